package processor

import (
	"encoding/json"
	"fmt"

	"pressureflow/models"
)

// MockNormalizer reads payloads produced by the synthetic venue.
type MockNormalizer struct{}

func (MockNormalizer) Venue() models.Venue { return models.VenueMock }

func (MockNormalizer) Normalize(raw models.RawSnapshotMessage) (models.OrderBookSnapshot, error) {
	var p models.MockBookPayload
	if err := json.Unmarshal(raw.Data, &p); err != nil {
		return models.OrderBookSnapshot{}, fmt.Errorf("mock: decode book: %w", err)
	}
	return build(raw, p.Symbol, p.Ts, levelParse{levels: mockLevels(p.Bids)}, levelParse{levels: mockLevels(p.Asks)})
}

func mockLevels(entries [][3]float64) []models.OrderBookLevel {
	out := make([]models.OrderBookLevel, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.OrderBookLevel{Price: e[0], Quantity: e[1], OrderCount: uint32(e[2])})
	}
	return out
}
