package processor

import (
	"encoding/json"
	"fmt"
	"strconv"

	"pressureflow/models"
)

// okxOrderCountIdx is the position of the order count in an OKX book entry.
const okxOrderCountIdx = 3

// OKXNormalizer reads the /api/v5/market/books envelope and books5 pushes.
type OKXNormalizer struct{}

func (OKXNormalizer) Venue() models.Venue { return models.VenueOKX }

func (OKXNormalizer) Normalize(raw models.RawSnapshotMessage) (models.OrderBookSnapshot, error) {
	var msg models.OKXBooksMessage
	if err := json.Unmarshal(raw.Data, &msg); err != nil {
		return models.OrderBookSnapshot{}, fmt.Errorf("okx: decode books: %w", err)
	}
	if msg.Code != "" && msg.Code != "0" {
		return models.OrderBookSnapshot{}, fmt.Errorf("okx: api error code %s: %s", msg.Code, msg.Msg)
	}
	if msg.Event == "error" {
		return models.OrderBookSnapshot{}, fmt.Errorf("okx: stream error %s: %s", msg.Code, msg.Msg)
	}
	if msg.Action == "update" {
		return models.OrderBookSnapshot{}, ErrIncrementalUpdate
	}
	if len(msg.Data) == 0 {
		return models.OrderBookSnapshot{}, models.ErrEmptyBook
	}

	book := msg.Data[0]
	var ts int64
	if book.Ts != "" {
		v, err := strconv.ParseInt(book.Ts, 10, 64)
		if err != nil {
			return models.OrderBookSnapshot{}, fmt.Errorf("okx: parse ts %q: %w", book.Ts, err)
		}
		ts = v
	}
	symbol := ""
	if msg.Arg != nil {
		symbol = msg.Arg.InstID
	}
	return build(raw, symbol, ts, parseLevels(book.Bids, okxOrderCountIdx), parseLevels(book.Asks, okxOrderCountIdx))
}
