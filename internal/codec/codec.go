package codec

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/olyamironova/auction-engine/internal/domain"
)

// Codec turns an AuctionState into bytes for a state store and back.
type Codec interface {
	Name() string
	Marshal(s *domain.AuctionState) ([]byte, error)
	Unmarshal(b []byte) (*domain.AuctionState, error)
}

type JSON struct{}

func (JSON) Name() string { return "json" }

func (JSON) Marshal(s *domain.AuctionState) ([]byte, error) {
	return json.Marshal(ToRecord(s))
}

func (JSON) Unmarshal(b []byte) (*domain.AuctionState, error) {
	var rec StateRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("codec: decode json: %w", err)
	}
	return FromRecord(&rec)
}

// CBOR is the compact binary alternative.
type CBOR struct{}

func (CBOR) Name() string { return "cbor" }

func (CBOR) Marshal(s *domain.AuctionState) ([]byte, error) {
	return cbor.Marshal(ToRecord(s))
}

func (CBOR) Unmarshal(b []byte) (*domain.AuctionState, error) {
	var rec StateRecord
	if err := cbor.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("codec: decode cbor: %w", err)
	}
	return FromRecord(&rec)
}

// ByName resolves a codec from configuration; empty means JSON.
func ByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON{}, nil
	case "cbor":
		return CBOR{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
}
