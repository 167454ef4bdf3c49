package models

import "time"

// ZoneType classifies a pressure zone relative to the current mid price.
type ZoneType string

const (
	ZoneSupport    ZoneType = "support"
	ZoneResistance ZoneType = "resistance"
)

// PressureZone is one ranked price cluster produced by an analysis pass.
type PressureZone struct {
	PriceLevel float64  `json:"priceLevel"`
	Intensity  float64  `json:"intensity"`
	Volume     float64  `json:"volume"`
	Type       ZoneType `json:"type"`
}

// ZoneReport wraps the zones of one analysis pass for publication.
type ZoneReport struct {
	PassID        string         `json:"pass_id"`
	Symbol        string         `json:"symbol,omitempty"`
	GeneratedAt   time.Time      `json:"generated_at"`
	SnapshotCount int            `json:"snapshot_count"`
	MidPrice      float64        `json:"mid_price,omitempty"`
	Zones         []PressureZone `json:"zones"`
}
