// Package natsbus fans engine events out to NATS subjects
// auction.<livestream>.<event type>.
package natsbus

import (
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/olyamironova/auction-engine/internal/codec"
	"github.com/olyamironova/auction-engine/internal/domain"
	"github.com/olyamironova/auction-engine/internal/port"
)

type publisher interface {
	Publish(subject string, data []byte) error
}

var _ port.EventSink = (*Sink)(nil)

// Sink publishes best effort: a failed publish is logged and dropped.
type Sink struct {
	pub        publisher
	prefix     string
	skipTimers bool
	log        *zap.Logger
}

type Option func(*Sink)

// WithoutTimerUpdates drops the per-tick countdown events.
func WithoutTimerUpdates() Option {
	return func(s *Sink) { s.skipTimers = true }
}

func WithPrefix(prefix string) Option {
	return func(s *Sink) { s.prefix = prefix }
}

func NewSink(conn *nats.Conn, log *zap.Logger, opts ...Option) *Sink {
	return newSink(conn, log, opts...)
}

func newSink(pub publisher, log *zap.Logger, opts ...Option) *Sink {
	s := &Sink{pub: pub, prefix: "auction", log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect dials url with reconnects enabled.
func Connect(url string, log *zap.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("auction-engine"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
}

// Subject builds the subject an event is published on. Dots in ids are
// replaced so they do not add tokens.
func (s *Sink) Subject(ev domain.Event) string {
	live := strings.ReplaceAll(ev.LivestreamID, ".", "_")
	if live == "" {
		live = "_"
	}
	return s.prefix + "." + live + "." + string(ev.Type)
}

func (s *Sink) Publish(ev domain.Event) {
	if s.skipTimers && ev.Type == domain.EventTimerUpdate {
		return
	}
	data, err := codec.MarshalEvent(ev)
	if err != nil {
		s.log.Error("encode event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	subject := s.Subject(ev)
	if err := s.pub.Publish(subject, data); err != nil {
		s.log.Warn("publish event", zap.String("subject", subject), zap.Error(err))
	}
}
