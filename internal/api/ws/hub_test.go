package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/olyamironova/auction-engine/internal/domain"
)

type viewerLog struct {
	mu   sync.Mutex
	last map[string]int
}

func (v *viewerLog) record(livestreamID string, n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.last[livestreamID] = n
}

func (v *viewerLog) get(livestreamID string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.last[livestreamID]
}

func newTestHub(t *testing.T) (*Hub, *viewerLog, string) {
	t.Helper()
	views := &viewerLog{last: map[string]int{}}
	hub := NewHub(zap.NewNop(), views.record)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, strings.TrimPrefix(r.URL.Path, "/ws/"))
	}))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, views, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubBroadcastsToLivestreamRoom(t *testing.T) {
	hub, views, base := newTestHub(t)
	viewer := dial(t, base+"live-1")
	other := dial(t, base+"live-2")

	require.Eventually(t, func() bool {
		return hub.Count("live-1") == 1 && hub.Count("live-2") == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, views.get("live-1"))

	hub.Publish(domain.Event{
		Type:         domain.EventClosed,
		AuctionID:    "item-1",
		LivestreamID: "live-1",
		Payload:      domain.Closed{AuctionID: "item-1", WinnerID: "a", FinalPrice: decimal.RequireFromString("82")},
	})

	_ = viewer.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := viewer.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(msg), `"type":"closed"`)
	assert.Contains(t, string(msg), `"winner_id":"a"`)

	_ = other.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	_, _, err = other.ReadMessage()
	require.Error(t, err, "other livestreams receive nothing")
}

func TestHubTracksViewerCount(t *testing.T) {
	hub, views, base := newTestHub(t)
	a := dial(t, base+"live-1")
	dial(t, base+"live-1")

	require.Eventually(t, func() bool { return views.get("live-1") == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool {
		return views.get("live-1") == 1 && hub.Count("live-1") == 1
	}, time.Second, 5*time.Millisecond)
}
