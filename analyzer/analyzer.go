// Package analyzer turns a window of order book snapshots into a ranked list
// of pressure zones.
package analyzer

import (
	"math"
	"sort"

	"pressureflow/config"
	"pressureflow/models"
)

// Params controls clustering, filtering and scoring.
type Params struct {
	VolumeThreshold       float64
	PriceClusterThreshold float64
	TopK                  int
	IntensityBoost        float64
	AvgVolumeMultiplier   float64
}

// DefaultParams mirrors the defaults in config.Default.
func DefaultParams() Params {
	return Params{
		VolumeThreshold:       50,
		PriceClusterThreshold: 0.001,
		TopK:                  15,
		IntensityBoost:        2,
		AvgVolumeMultiplier:   10,
	}
}

// ParamsFromConfig copies the analyzer section of the service configuration.
func ParamsFromConfig(cfg config.AnalyzerConfig) Params {
	return Params{
		VolumeThreshold:       cfg.VolumeThreshold,
		PriceClusterThreshold: cfg.PriceClusterThreshold,
		TopK:                  cfg.TopK,
		IntensityBoost:        cfg.IntensityBoost,
		AvgVolumeMultiplier:   cfg.AvgVolumeMultiplier,
	}
}

// Analyzer is stateless: every call to Analyze recomputes from its input.
type Analyzer struct {
	params Params
}

func New(params Params) *Analyzer {
	return &Analyzer{params: params}
}

func (a *Analyzer) Params() Params {
	return a.params
}

type cluster struct {
	price  float64
	volume float64
}

// Analyze aggregates every level of every snapshot by rounded price, keeps
// the TopK clusters above VolumeThreshold in descending volume order, scores
// them and classifies them against the mid price of the last snapshot.
// It never fails: degenerate input yields an empty, non-nil slice.
func (a *Analyzer) Analyze(window []models.OrderBookSnapshot) []models.PressureZone {
	zones := []models.PressureZone{}
	if len(window) == 0 {
		return zones
	}

	maxVolume, avgVolume, ok := levelStats(window)
	if !ok {
		return zones
	}

	ranked := a.rank(aggregate(window))
	if len(ranked) == 0 {
		return zones
	}

	mid, midOK := window[len(window)-1].MidPrice()

	for _, c := range ranked {
		zones = append(zones, models.PressureZone{
			PriceLevel: c.price,
			Intensity:  a.intensity(c, window, maxVolume, avgVolume),
			Volume:     c.volume,
			Type:       classify(c.price, mid, midOK),
		})
	}
	return zones
}

// aggregate pools bid and ask quantity per cluster key. The returned slice is
// in first-seen order.
func aggregate(window []models.OrderBookSnapshot) []cluster {
	index := make(map[float64]int)
	var clusters []cluster

	add := func(levels []models.OrderBookLevel) {
		for _, l := range levels {
			key := RoundPrice(l.Price)
			i, seen := index[key]
			if !seen {
				i = len(clusters)
				index[key] = i
				clusters = append(clusters, cluster{price: key})
			}
			clusters[i].volume += l.Quantity
		}
	}

	for _, s := range window {
		add(s.Bids)
		add(s.Asks)
	}
	return clusters
}

func (a *Analyzer) rank(clusters []cluster) []cluster {
	kept := make([]cluster, 0, len(clusters))
	for _, c := range clusters {
		if c.volume > a.params.VolumeThreshold {
			kept = append(kept, c)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].volume > kept[j].volume })
	if a.params.TopK > 0 && len(kept) > a.params.TopK {
		kept = kept[:a.params.TopK]
	}
	return kept
}

// levelStats returns the largest and the mean single-level quantity in the
// window. ok is false when the window holds no levels at all.
func levelStats(window []models.OrderBookSnapshot) (maxVolume, avgVolume float64, ok bool) {
	var sum float64
	var n int
	for _, s := range window {
		for _, side := range [][]models.OrderBookLevel{s.Bids, s.Asks} {
			for _, l := range side {
				if n == 0 || l.Quantity > maxVolume {
					maxVolume = l.Quantity
				}
				sum += l.Quantity
				n++
			}
		}
	}
	if n == 0 {
		return 0, 0, false
	}
	return maxVolume, sum / float64(n), true
}

func (a *Analyzer) intensity(c cluster, window []models.OrderBookSnapshot, maxVolume, avgVolume float64) float64 {
	denominator := math.Max(maxVolume, avgVolume*a.params.AvgVolumeMultiplier)
	if denominator <= 0 || math.IsNaN(denominator) {
		return 0
	}
	volumeRatio := c.volume / denominator
	v := volumeRatio * a.persistence(c.price, window) * a.params.IntensityBoost
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// persistence is the share of snapshots with at least one level within
// price*PriceClusterThreshold of price.
func (a *Analyzer) persistence(price float64, window []models.OrderBookSnapshot) float64 {
	tolerance := math.Abs(price * a.params.PriceClusterThreshold)
	present := 0
	for _, s := range window {
		if hasLevelNear(s.Bids, price, tolerance) || hasLevelNear(s.Asks, price, tolerance) {
			present++
		}
	}
	return float64(present) / float64(len(window))
}

func hasLevelNear(levels []models.OrderBookLevel, price, tolerance float64) bool {
	for _, l := range levels {
		if math.Abs(l.Price-price) <= tolerance {
			return true
		}
	}
	return false
}

// classify falls back to support when the mid price is unusable.
func classify(price, mid float64, midOK bool) models.ZoneType {
	if !midOK || math.IsNaN(mid) {
		return models.ZoneSupport
	}
	if price < mid {
		return models.ZoneSupport
	}
	return models.ZoneResistance
}
