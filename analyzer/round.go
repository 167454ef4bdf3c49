package analyzer

import "math"

// RoundPrice maps a price to its cluster key. Resolution shrinks with
// magnitude: 10 above 10000, 1 above 1000, 0.1 above 100, 0.01 above 10 and
// 0.001 otherwise.
func RoundPrice(p float64) float64 {
	switch {
	case p > 10000:
		return math.Round(p/10) * 10
	case p > 1000:
		return math.Round(p)
	case p > 100:
		return math.Round(p*10) / 10
	case p > 10:
		return math.Round(p*100) / 100
	default:
		return math.Round(p*1000) / 1000
	}
}
