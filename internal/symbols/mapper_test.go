package symbols

import (
	"testing"

	"pressureflow/models"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		venue models.Venue
		in    string
		want  string
	}{
		{models.VenueOKX, "BTC-USDT", "BTCUSDT"},
		{models.VenueOKX, "BTC-USDT-SWAP", "BTCUSDT"},
		{models.VenueBinance, "ethusdt", "ETHUSDT"},
		{models.VenueBybit, "SHIB1000USDT", "SHIBUSDT"},
		{models.VenueMock, "BTCUSDT", "BTCUSDT"},
	}
	for _, tt := range tests {
		if got := Canonical(tt.venue, tt.in); got != tt.want {
			t.Errorf("Canonical(%s,%s)=%s want %s", tt.venue, tt.in, got, tt.want)
		}
	}
}

func TestForVenue(t *testing.T) {
	tests := []struct {
		venue models.Venue
		in    string
		want  string
	}{
		{models.VenueOKX, "BTCUSDT", "BTC-USDT"},
		{models.VenueOKX, "ETHUSDC", "ETH-USDC"},
		{models.VenueOKX, "ETHBTC", "ETH-BTC"},
		{models.VenueOKX, "SOL-USDT", "SOL-USDT"},
		{models.VenueBinance, "btcusdt", "BTCUSDT"},
		{models.VenueBybit, "BTCUSDT", "BTCUSDT"},
	}
	for _, tt := range tests {
		if got := ForVenue(tt.venue, tt.in); got != tt.want {
			t.Errorf("ForVenue(%s,%s)=%s want %s", tt.venue, tt.in, got, tt.want)
		}
	}
}
