package models

import (
	"fmt"
	"strings"
)

// Venue is the opaque label of an order book source.
type Venue string

const (
	VenueBinance Venue = "binance"
	VenueOKX     Venue = "okx"
	VenueBybit   Venue = "bybit"
	VenueMock    Venue = "mock"
)

// ParseVenue maps a case-insensitive name to a known venue.
func ParseVenue(name string) (Venue, error) {
	switch v := Venue(strings.ToLower(strings.TrimSpace(name))); v {
	case VenueBinance, VenueOKX, VenueBybit, VenueMock:
		return v, nil
	default:
		return "", fmt.Errorf("unknown venue %q", name)
	}
}

// VenueInfo is display and connection metadata for a venue.
type VenueInfo struct {
	ID           Venue  `json:"id"`
	Name         string `json:"name"`
	Color        string `json:"color"`
	Enabled      bool   `json:"enabled"`
	WebsocketURL string `json:"websocketUrl,omitempty"`
	RestURL      string `json:"restUrl,omitempty"`
}

// DefaultVenues returns the built-in registry. Callers get a fresh slice.
func DefaultVenues() []VenueInfo {
	return []VenueInfo{
		{
			ID:           VenueBinance,
			Name:         "Binance",
			Color:        "#F0B90B",
			Enabled:      true,
			WebsocketURL: "wss://stream.binance.com:9443/ws",
			RestURL:      "https://api.binance.com/api/v3",
		},
		{
			ID:           VenueOKX,
			Name:         "OKX",
			Color:        "#0052FF",
			Enabled:      true,
			WebsocketURL: "wss://ws.okx.com:8443/ws/v5/public",
			RestURL:      "https://www.okx.com/api/v5",
		},
		{
			ID:           VenueBybit,
			Name:         "Bybit",
			Color:        "#F7A600",
			Enabled:      true,
			WebsocketURL: "wss://stream.bybit.com/v5/public/spot",
			RestURL:      "https://api.bybit.com/v5",
		},
		{
			ID:      VenueMock,
			Name:    "Mock",
			Color:   "#9CA3AF",
			Enabled: false,
		},
	}
}
