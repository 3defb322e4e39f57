package codec

import (
	"encoding/json"

	"github.com/olyamironova/auction-engine/internal/domain"
)

// MarshalEvent renders an engine event as JSON for the broadcast layer. A full
// state payload goes out in its storage shape.
func MarshalEvent(ev domain.Event) ([]byte, error) {
	if s, ok := ev.Payload.(*domain.AuctionState); ok {
		ev.Payload = ToRecord(s)
	}
	return json.Marshal(ev)
}
