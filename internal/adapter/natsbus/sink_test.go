package natsbus

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/olyamironova/auction-engine/internal/domain"
)

type message struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	msgs []message
	err  error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, message{subject, data})
	return nil
}

func closedEvent() domain.Event {
	return domain.Event{
		Type:         domain.EventClosed,
		AuctionID:    "item-1",
		LivestreamID: "live.1",
		Payload:      domain.Closed{AuctionID: "item-1", WinnerID: "a", FinalPrice: decimal.RequireFromString("82")},
	}
}

func TestSinkPublishesOnLivestreamSubject(t *testing.T) {
	pub := &fakePublisher{}
	s := newSink(pub, zap.NewNop())

	s.Publish(closedEvent())
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "auction.live_1.closed", pub.msgs[0].subject)
	assert.Contains(t, string(pub.msgs[0].data), `"winner_id":"a"`)
}

func TestSinkCanSkipTimerUpdates(t *testing.T) {
	pub := &fakePublisher{}
	s := newSink(pub, zap.NewNop(), WithoutTimerUpdates(), WithPrefix("shop"))

	s.Publish(domain.Event{Type: domain.EventTimerUpdate, AuctionID: "item-1", LivestreamID: "live-1",
		Payload: domain.TimerUpdate{AuctionID: "item-1", TimeLeftMs: 500}})
	s.Publish(closedEvent())

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "shop.live_1.closed", pub.msgs[0].subject)
}

func TestSinkLogsPublishFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := newSink(&fakePublisher{err: errors.New("nats: connection closed")}, zap.New(core))

	s.Publish(closedEvent())
	require.Equal(t, 1, logs.FilterMessage("publish event").Len())
}
