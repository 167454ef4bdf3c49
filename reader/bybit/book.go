package bybit

import (
	"strconv"

	"pressureflow/models"
)

// localBook rebuilds a full order book from orderbook stream snapshots and
// deltas. Levels are keyed by their price string as sent by the venue.
type localBook struct {
	symbol   string
	bids     map[string]string
	asks     map[string]string
	updateID int64
}

func newLocalBook(symbol string) *localBook {
	return &localBook{symbol: symbol, bids: map[string]string{}, asks: map[string]string{}}
}

func (b *localBook) reset() {
	b.bids = map[string]string{}
	b.asks = map[string]string{}
}

// apply merges one push into the book. A snapshot replaces the book, a delta
// updates levels and removes those with size 0. A delta that arrives before
// any snapshot is ignored and apply reports false.
func (b *localBook) apply(kind string, data models.BybitBook) bool {
	switch kind {
	case "snapshot":
		b.reset()
	case "delta":
		if b.updateID == 0 {
			return false
		}
	default:
		return false
	}
	// u == 1 is a service restart snapshot, even when sent as a delta.
	if data.UpdateID == 1 {
		b.reset()
	}
	mergeLevels(b.bids, data.Bids)
	mergeLevels(b.asks, data.Asks)
	b.updateID = data.UpdateID
	if b.updateID == 0 {
		b.updateID = 1
	}
	return true
}

func mergeLevels(side map[string]string, levels [][]string) {
	for _, l := range levels {
		if len(l) < 2 {
			continue
		}
		if qty, err := strconv.ParseFloat(l[1], 64); err == nil && qty == 0 {
			delete(side, l[0])
			continue
		}
		side[l[0]] = l[1]
	}
}

// snapshot returns the current book in the stream snapshot shape.
func (b *localBook) snapshot(ts int64) models.BybitOrderBookMessage {
	return models.BybitOrderBookMessage{
		Topic: topic(b.symbol),
		Type:  "snapshot",
		Ts:    ts,
		Data: &models.BybitBook{
			Symbol:   b.symbol,
			Bids:     flatten(b.bids),
			Asks:     flatten(b.asks),
			UpdateID: b.updateID,
		},
	}
}

func flatten(side map[string]string) [][]string {
	out := make([][]string, 0, len(side))
	for px, qty := range side {
		out = append(out, []string{px, qty})
	}
	return out
}

func (b *localBook) levels() int {
	return len(b.bids) + len(b.asks)
}
