package processor

import (
	"encoding/json"
	"fmt"

	"pressureflow/models"
)

// BinanceNormalizer reads spot depth responses and partial depth stream events.
// Binance does not report order counts, so every level counts as one order.
type BinanceNormalizer struct{}

func (BinanceNormalizer) Venue() models.Venue { return models.VenueBinance }

func (BinanceNormalizer) Normalize(raw models.RawSnapshotMessage) (models.OrderBookSnapshot, error) {
	var p models.BinanceDepthPayload
	if err := json.Unmarshal(raw.Data, &p); err != nil {
		return models.OrderBookSnapshot{}, fmt.Errorf("binance: decode depth: %w", err)
	}
	return build(raw, p.Symbol, p.EventTime, parseLevels(p.Bids, -1), parseLevels(p.Asks, -1))
}
