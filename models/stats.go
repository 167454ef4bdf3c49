package models

// BookStats summarises the top of a single snapshot.
type BookStats struct {
	Venue       Venue   `json:"venue"`
	Symbol      string  `json:"symbol"`
	BestBid     float64 `json:"best_bid"`
	BestAsk     float64 `json:"best_ask"`
	Spread      float64 `json:"spread"`
	SpreadBps   float64 `json:"spread_bps"`
	BidVolume   float64 `json:"bid_volume"`
	AskVolume   float64 `json:"ask_volume"`
	Imbalance   float64 `json:"imbalance"`
	TimestampMs int64   `json:"timestamp"`
}

// StatsDepth is how many levels per side feed the bid/ask volume totals.
const StatsDepth = 10

// ComputeStats derives BookStats from the first StatsDepth levels of each side.
func ComputeStats(s OrderBookSnapshot) BookStats {
	st := BookStats{
		Venue:       s.Venue,
		Symbol:      s.Symbol,
		Spread:      s.Spread,
		TimestampMs: s.TimestampMs,
	}
	if b, ok := s.BestBid(); ok {
		st.BestBid = b.Price
	}
	if a, ok := s.BestAsk(); ok {
		st.BestAsk = a.Price
	}
	if mid, ok := s.MidPrice(); ok && mid > 0 {
		st.SpreadBps = s.Spread / mid * 10000
	}
	st.BidVolume = topVolume(s.Bids, StatsDepth)
	st.AskVolume = topVolume(s.Asks, StatsDepth)
	if total := st.BidVolume + st.AskVolume; total > 0 {
		st.Imbalance = (st.BidVolume - st.AskVolume) / total
	}
	return st
}

func topVolume(levels []OrderBookLevel, depth int) float64 {
	if len(levels) < depth {
		depth = len(levels)
	}
	sum := 0.0
	for _, l := range levels[:depth] {
		sum += l.Quantity
	}
	return sum
}
