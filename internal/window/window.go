// Package window holds the bounded, arrival-ordered buffer of normalised
// snapshots shared between ingestion and analysis.
package window

import (
	"sync"

	"pressureflow/models"
)

// DefaultCapacity is the number of snapshots retained when no capacity is configured.
const DefaultCapacity = 150

// recentPercent is the share of Downsample output reserved for the newest snapshots.
const recentPercent = 70

// Window is a FIFO of snapshots. Append is serialised, so arrival order is a
// total order across venues. Readers always receive copies.
type Window struct {
	mu       sync.RWMutex
	items    []models.OrderBookSnapshot
	capacity int
	appended uint64
}

func New(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Window{
		items:    make([]models.OrderBookSnapshot, 0, capacity),
		capacity: capacity,
	}
}

// Append adds s to the tail and evicts from the head beyond capacity.
func (w *Window) Append(s models.OrderBookSnapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.items = append(w.items, s)
	if over := len(w.items) - w.capacity; over > 0 {
		// backing array stays at capacity
		copy(w.items, w.items[over:])
		for i := len(w.items) - over; i < len(w.items); i++ {
			w.items[i] = models.OrderBookSnapshot{}
		}
		w.items = w.items[:len(w.items)-over]
	}
	w.appended++
}

// Recent returns up to n of the newest snapshots in arrival order.
func (w *Window) Recent(n int) []models.OrderBookSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if n <= 0 {
		return []models.OrderBookSnapshot{}
	}
	if n > len(w.items) {
		n = len(w.items)
	}
	out := make([]models.OrderBookSnapshot, n)
	copy(out, w.items[len(w.items)-n:])
	return out
}

// Latest returns the most recently appended snapshot.
func (w *Window) Latest() (models.OrderBookSnapshot, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if len(w.items) == 0 {
		return models.OrderBookSnapshot{}, false
	}
	return w.items[len(w.items)-1], true
}

func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.items)
}

func (w *Window) Capacity() int {
	return w.capacity
}

// Appended is the total number of snapshots ever appended, evicted ones included.
func (w *Window) Appended() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.appended
}

// Downsample returns at most maxSize snapshots: the newest 70% verbatim and
// an even sample of the older remainder, all in arrival order.
func (w *Window) Downsample(maxSize int) []models.OrderBookSnapshot {
	all := w.Recent(w.capacity)
	return downsample(all, maxSize)
}

func downsample(all []models.OrderBookSnapshot, maxSize int) []models.OrderBookSnapshot {
	if maxSize <= 0 {
		return []models.OrderBookSnapshot{}
	}
	if len(all) <= maxSize {
		return all
	}

	recentCount := maxSize * recentPercent / 100
	olderBudget := maxSize - recentCount
	recent := all[len(all)-recentCount:]
	older := all[:len(all)-recentCount]

	out := make([]models.OrderBookSnapshot, 0, maxSize)
	if olderBudget > 0 {
		step := float64(len(older)) / float64(olderBudget)
		for i := 0; i < olderBudget; i++ {
			out = append(out, older[int(float64(i)*step)])
		}
	}
	return append(out, recent...)
}
