package models

import (
	"errors"
	"math"
	"sort"
	"time"
)

// ErrEmptyBook is returned by adapters when a venue payload carries no levels at all.
var ErrEmptyBook = errors.New("order book has no levels")

// Source identifies how a raw message reached the service.
type Source string

const (
	SourceREST      Source = "rest"
	SourceWebsocket Source = "websocket"
	SourceMock      Source = "mock"
)

// RawSnapshotMessage is the venue payload as read off the wire, before normalisation.
type RawSnapshotMessage struct {
	Venue      Venue
	Symbol     string
	Source     Source
	ReceivedAt time.Time
	Data       []byte
}

// OrderBookLevel is a single price level. CumulativeQuantity is the running
// sum of Quantity from the best price outward on the level's side.
type OrderBookLevel struct {
	Price              float64 `json:"price"`
	Quantity           float64 `json:"quantity"`
	CumulativeQuantity float64 `json:"cumulativeQuantity"`
	OrderCount         uint32  `json:"orders"`
}

// OrderBookSnapshot is a point-in-time view of one venue/symbol book.
// Values are treated as immutable once built by NewSnapshot; nothing in the
// service writes to Bids or Asks after construction.
type OrderBookSnapshot struct {
	Symbol      string           `json:"symbol"`
	Venue       Venue            `json:"venue"`
	TimestampMs int64            `json:"timestamp"`
	Bids        []OrderBookLevel `json:"bids"`
	Asks        []OrderBookLevel `json:"asks"`
	Spread      float64          `json:"spread"`
}

// NewSnapshot builds a snapshot from unsorted levels. Levels with a
// non-positive or non-finite price, or a negative quantity, are dropped. Bids
// end up descending, asks ascending, cumulative quantities and spread are
// computed here.
func NewSnapshot(symbol string, venue Venue, timestampMs int64, bids, asks []OrderBookLevel) OrderBookSnapshot {
	b := cleanLevels(bids)
	a := cleanLevels(asks)

	sort.SliceStable(b, func(i, j int) bool { return b[i].Price > b[j].Price })
	sort.SliceStable(a, func(i, j int) bool { return a[i].Price < a[j].Price })

	accumulate(b)
	accumulate(a)

	s := OrderBookSnapshot{
		Symbol:      symbol,
		Venue:       venue,
		TimestampMs: timestampMs,
		Bids:        b,
		Asks:        a,
	}
	if len(b) > 0 && len(a) > 0 {
		s.Spread = a[0].Price - b[0].Price
	}
	return s
}

func cleanLevels(levels []OrderBookLevel) []OrderBookLevel {
	out := make([]OrderBookLevel, 0, len(levels))
	for _, l := range levels {
		if l.Price <= 0 || math.IsNaN(l.Price) || math.IsInf(l.Price, 0) {
			continue
		}
		if l.Quantity < 0 || math.IsNaN(l.Quantity) || math.IsInf(l.Quantity, 0) {
			continue
		}
		if l.OrderCount == 0 {
			l.OrderCount = 1
		}
		out = append(out, l)
	}
	return out
}

func accumulate(levels []OrderBookLevel) {
	cum := 0.0
	for i := range levels {
		cum += levels[i].Quantity
		levels[i].CumulativeQuantity = cum
	}
}

// BestBid returns the highest bid, if any.
func (s OrderBookSnapshot) BestBid() (OrderBookLevel, bool) {
	if len(s.Bids) == 0 {
		return OrderBookLevel{}, false
	}
	return s.Bids[0], true
}

// BestAsk returns the lowest ask, if any.
func (s OrderBookSnapshot) BestAsk() (OrderBookLevel, bool) {
	if len(s.Asks) == 0 {
		return OrderBookLevel{}, false
	}
	return s.Asks[0], true
}

// MidPrice reports (bestBid+bestAsk)/2. ok is false when either side is empty
// or the result is not a finite number.
func (s OrderBookSnapshot) MidPrice() (float64, bool) {
	bid, okBid := s.BestBid()
	ask, okAsk := s.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	mid := (bid.Price + ask.Price) / 2
	if math.IsNaN(mid) || math.IsInf(mid, 0) {
		return 0, false
	}
	return mid, true
}

// LevelCount is the total number of levels on both sides.
func (s OrderBookSnapshot) LevelCount() int {
	return len(s.Bids) + len(s.Asks)
}

// Time converts TimestampMs to a time.Time in UTC.
func (s OrderBookSnapshot) Time() time.Time {
	return time.UnixMilli(s.TimestampMs).UTC()
}
