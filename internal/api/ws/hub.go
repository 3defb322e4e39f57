// Package ws pushes auction events to the viewers of a livestream.
package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/olyamironova/auction-engine/internal/codec"
	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/olyamironova/auction-engine/internal/port"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ViewerFunc is told the audience size whenever a livestream's room changes.
type ViewerFunc func(livestreamID string, viewers int)

var _ port.EventSink = (*Hub)(nil)

// Hub keeps one room of clients per livestream.
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	viewers ViewerFunc
	log     *zap.Logger
}

type Client struct {
	ID           string
	LivestreamID string
	conn         *websocket.Conn
	send         chan []byte
	closeOnce    sync.Once
}

func NewHub(log *zap.Logger, viewers ViewerFunc) *Hub {
	if viewers == nil {
		viewers = func(string, int) {}
	}
	return &Hub{
		rooms:   make(map[string]map[*Client]struct{}),
		viewers: viewers,
		log:     log,
	}
}

// Serve upgrades the request and subscribes the connection to livestreamID.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, livestreamID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", zap.Error(err))
		return
	}
	c := &Client{
		ID:           uuid.NewString(),
		LivestreamID: livestreamID,
		conn:         conn,
		send:         make(chan []byte, sendBuffer),
	}
	h.register(c)
	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	room := h.rooms[c.LivestreamID]
	if room == nil {
		room = make(map[*Client]struct{})
		h.rooms[c.LivestreamID] = room
	}
	room[c] = struct{}{}
	n := len(room)
	h.mu.Unlock()

	h.log.Debug("viewer joined", zap.String("client_id", c.ID), zap.String("livestream_id", c.LivestreamID))
	h.viewers(c.LivestreamID, n)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	room := h.rooms[c.LivestreamID]
	if _, ok := room[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(room, c)
	n := len(room)
	if n == 0 {
		delete(h.rooms, c.LivestreamID)
	}
	h.mu.Unlock()

	c.closeOnce.Do(func() { close(c.send) })
	h.log.Debug("viewer left", zap.String("client_id", c.ID), zap.String("livestream_id", c.LivestreamID))
	h.viewers(c.LivestreamID, n)
}

// Count returns the number of connected viewers of a livestream.
func (h *Hub) Count(livestreamID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[livestreamID])
}

// Publish sends ev to every viewer of its livestream. A viewer whose buffer is
// full is disconnected rather than allowed to stall the others.
func (h *Hub) Publish(ev domain.Event) {
	payload, err := codec.MarshalEvent(ev)
	if err != nil {
		h.log.Error("encode event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}

	h.mu.RLock()
	var slow []*Client
	for c := range h.rooms[ev.LivestreamID] {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("dropping slow viewer", zap.String("client_id", c.ID))
		h.unregister(c)
	}
}

// Close disconnects every viewer.
func (h *Hub) Close() {
	h.mu.RLock()
	var all []*Client
	for _, room := range h.rooms {
		for c := range room {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range all {
		h.unregister(c)
	}
}

func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only watches for the connection going away; viewers do not send
// commands over the socket.
func (h *Hub) readPump(c *Client) {
	defer h.unregister(c)

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug("websocket read", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
	}
}
