package symbols

import (
	"strings"

	"pressureflow/models"
)

// quoteAssets are tried longest first when splitting a compact symbol.
var quoteAssets = []string{"USDT", "USDC", "USD", "BTC", "ETH"}

// Canonical converts a venue-specific symbol to the compact uppercase form
// used across the service, e.g. BTC-USDT -> BTCUSDT.
func Canonical(venue models.Venue, sym string) string {
	sym = strings.ToUpper(strings.TrimSpace(sym))
	switch venue {
	case models.VenueOKX:
		sym = strings.TrimSuffix(sym, "-SWAP")
		sym = strings.ReplaceAll(sym, "-", "")
	case models.VenueBybit:
		switch sym {
		case "SHIB1000USDT":
			sym = "SHIBUSDT"
		}
	}
	return sym
}

// ForVenue converts a canonical symbol to what the venue's API expects.
// OKX wants BASE-QUOTE; binance, bybit and mock take the compact form.
func ForVenue(venue models.Venue, sym string) string {
	sym = strings.ToUpper(strings.TrimSpace(sym))
	switch venue {
	case models.VenueOKX:
		if strings.Contains(sym, "-") {
			return sym
		}
		for _, q := range quoteAssets {
			if strings.HasSuffix(sym, q) && len(sym) > len(q) {
				return sym[:len(sym)-len(q)] + "-" + q
			}
		}
	}
	return sym
}
