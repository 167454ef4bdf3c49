package processor

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"pressureflow/internal/symbols"
	"pressureflow/internal/throttle"
	"pressureflow/logger"
	"pressureflow/models"
)

var (
	// ErrUnsupportedVenue is returned by Registry.Normalize for a venue with no normalizer.
	ErrUnsupportedVenue = errors.New("unsupported venue")
	// ErrIncrementalUpdate marks a websocket delta that cannot stand alone as a snapshot.
	ErrIncrementalUpdate = errors.New("incremental update is not a snapshot")
)

// Normalizer turns one venue payload into a canonical snapshot.
type Normalizer interface {
	Venue() models.Venue
	Normalize(raw models.RawSnapshotMessage) (models.OrderBookSnapshot, error)
}

// Registry dispatches raw messages to the normalizer of their venue.
type Registry struct {
	normalizers map[models.Venue]Normalizer
}

// NewRegistry returns a registry holding the given normalizers, or every
// built-in one when none are passed.
func NewRegistry(normalizers ...Normalizer) *Registry {
	if len(normalizers) == 0 {
		normalizers = []Normalizer{BinanceNormalizer{}, OKXNormalizer{}, BybitNormalizer{}, MockNormalizer{}}
	}
	r := &Registry{normalizers: make(map[models.Venue]Normalizer, len(normalizers))}
	for _, n := range normalizers {
		r.normalizers[n.Venue()] = n
	}
	return r
}

func (r *Registry) Get(venue models.Venue) (Normalizer, bool) {
	n, ok := r.normalizers[venue]
	return n, ok
}

func (r *Registry) Normalize(raw models.RawSnapshotMessage) (models.OrderBookSnapshot, error) {
	n, ok := r.Get(raw.Venue)
	if !ok {
		return models.OrderBookSnapshot{}, fmt.Errorf("%w: %q", ErrUnsupportedVenue, raw.Venue)
	}
	return n.Normalize(raw)
}

type malformedLevels struct {
	venue   models.Venue
	symbol  string
	skipped int
}

// warnMalformed logs partially malformed books at most once every 5s.
var warnMalformed = throttle.Throttle(5*time.Second, func(m malformedLevels) {
	logger.GetLogger().WithComponent("normalizer").WithFields(logger.Fields{
		"venue":   m.venue,
		"symbol":  m.symbol,
		"skipped": m.skipped,
	}).Warn("skipped malformed levels")
})

// levelParse collects the outcome of parsing string-encoded levels.
type levelParse struct {
	levels  []models.OrderBookLevel
	skipped int
}

// parseLevels reads [price, quantity, ...] entries. When orderIdx is >= 0 and
// present, that field is read as the order count; otherwise every level counts
// as one order. Unparseable entries are skipped and counted.
func parseLevels(entries [][]string, orderIdx int) levelParse {
	out := levelParse{levels: make([]models.OrderBookLevel, 0, len(entries))}
	for _, e := range entries {
		if len(e) < 2 {
			out.skipped++
			continue
		}
		price, err := strconv.ParseFloat(e[0], 64)
		if err != nil {
			out.skipped++
			continue
		}
		qty, err := strconv.ParseFloat(e[1], 64)
		if err != nil {
			out.skipped++
			continue
		}
		orders := uint32(1)
		if orderIdx >= 0 && orderIdx < len(e) {
			if n, err := strconv.ParseUint(e[orderIdx], 10, 32); err == nil && n > 0 {
				orders = uint32(n)
			}
		}
		out.levels = append(out.levels, models.OrderBookLevel{Price: price, Quantity: qty, OrderCount: orders})
	}
	return out
}

// build assembles the snapshot shared by every venue. Venue timestamps of
// zero fall back to the receive time.
func build(raw models.RawSnapshotMessage, symbol string, tsMs int64, bids, asks levelParse) (models.OrderBookSnapshot, error) {
	if len(bids.levels) == 0 && len(asks.levels) == 0 {
		if bids.skipped+asks.skipped > 0 {
			return models.OrderBookSnapshot{}, fmt.Errorf("%s: all %d levels malformed", raw.Venue, bids.skipped+asks.skipped)
		}
		return models.OrderBookSnapshot{}, models.ErrEmptyBook
	}
	if symbol == "" {
		symbol = raw.Symbol
	}
	if skipped := bids.skipped + asks.skipped; skipped > 0 {
		warnMalformed(malformedLevels{venue: raw.Venue, symbol: symbol, skipped: skipped})
	}
	if tsMs <= 0 {
		tsMs = receivedMs(raw)
	}
	return models.NewSnapshot(symbols.Canonical(raw.Venue, symbol), raw.Venue, tsMs, bids.levels, asks.levels), nil
}

func receivedMs(raw models.RawSnapshotMessage) int64 {
	if raw.ReceivedAt.IsZero() {
		return time.Now().UnixMilli()
	}
	return raw.ReceivedAt.UnixMilli()
}
