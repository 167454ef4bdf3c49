package processor

import (
	"encoding/json"
	"fmt"

	"pressureflow/models"
)

// BybitNormalizer reads the v5 orderbook REST envelope, a bare result object,
// and orderbook stream pushes. Stream deltas are rejected.
type BybitNormalizer struct{}

func (BybitNormalizer) Venue() models.Venue { return models.VenueBybit }

func (BybitNormalizer) Normalize(raw models.RawSnapshotMessage) (models.OrderBookSnapshot, error) {
	var msg models.BybitOrderBookMessage
	if err := json.Unmarshal(raw.Data, &msg); err != nil {
		return models.OrderBookSnapshot{}, fmt.Errorf("bybit: decode orderbook: %w", err)
	}

	var book *models.BybitBook
	ts := msg.Ts
	switch {
	case msg.RetCode != nil:
		if *msg.RetCode != 0 {
			return models.OrderBookSnapshot{}, fmt.Errorf("bybit: api error code %d: %s", *msg.RetCode, msg.RetMsg)
		}
		book = msg.Result
	case msg.Topic != "":
		if msg.Type == "delta" {
			return models.OrderBookSnapshot{}, ErrIncrementalUpdate
		}
		book = msg.Data
	default:
		var bare models.BybitBook
		if err := json.Unmarshal(raw.Data, &bare); err != nil {
			return models.OrderBookSnapshot{}, fmt.Errorf("bybit: decode result: %w", err)
		}
		book = &bare
	}
	if book == nil {
		return models.OrderBookSnapshot{}, models.ErrEmptyBook
	}
	if book.Ts > 0 {
		ts = book.Ts
	}
	return build(raw, book.Symbol, ts, parseLevels(book.Bids, -1), parseLevels(book.Asks, -1))
}
