package port

import "github.com/olyamironova/auction-engine/internal/domain"

// EventSink receives engine lifecycle events. Publish is called while the auction
// is serialized, so implementations must not block.
type EventSink interface {
	Publish(ev domain.Event)
}

// Sinks fans one event out to several sinks in order.
type Sinks []EventSink

func (s Sinks) Publish(ev domain.Event) {
	for _, sink := range s {
		if sink != nil {
			sink.Publish(ev)
		}
	}
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Publish(domain.Event) {}
