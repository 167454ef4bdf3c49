// Package throttle batches and rate-limits fan-out of analysis results.
package throttle

import (
	"context"
	"sync"
	"time"
)

// DefaultFrame is the flush interval used when none is configured.
const DefaultFrame = 16 * time.Millisecond

// Scheduler collects callbacks and runs them together once per frame.
// Callbacks scheduled under the same non-empty key replace each other, so
// only the newest runs. Construct one per application and pass it to the
// components that publish.
type Scheduler struct {
	frame time.Duration

	mu      sync.Mutex
	order   []string
	keyed   map[string]func()
	anon    []func()
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	flushes int64
}

func NewScheduler(frame time.Duration) *Scheduler {
	if frame <= 0 {
		frame = DefaultFrame
	}
	return &Scheduler{
		frame: frame,
		keyed: make(map[string]func()),
	}
}

// Schedule queues fn for the next frame. An empty key always appends.
func (s *Scheduler) Schedule(key string, fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if key == "" {
		s.anon = append(s.anon, fn)
		return
	}
	if _, ok := s.keyed[key]; !ok {
		s.order = append(s.order, key)
	}
	s.keyed[key] = fn
}

// Pending is the number of callbacks waiting for the next frame.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keyed) + len(s.anon)
}

// Flushes is the number of frames that ran at least one callback.
func (s *Scheduler) Flushes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.frame)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.Flush()
			}
		}
	}()
}

// Stop ends the frame loop and runs whatever is still pending.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.Flush()
}

// Flush runs all pending callbacks now: keyed ones in first-scheduled order,
// then anonymous ones in scheduling order.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	if len(s.order) == 0 && len(s.anon) == 0 {
		s.mu.Unlock()
		return
	}
	batch := make([]func(), 0, len(s.order)+len(s.anon))
	for _, k := range s.order {
		batch = append(batch, s.keyed[k])
	}
	batch = append(batch, s.anon...)
	s.order = nil
	s.keyed = make(map[string]func())
	s.anon = nil
	s.flushes++
	s.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
}

// Throttle wraps fn so it runs at most once per interval. A call inside the
// interval is deferred to its end; only the newest deferred value is delivered.
func Throttle[T any](interval time.Duration, fn func(T)) func(T) {
	var (
		mu       sync.Mutex
		lastCall time.Time
		timer    *time.Timer
		pending  T
	)
	return func(v T) {
		mu.Lock()
		now := time.Now()
		since := now.Sub(lastCall)
		if since >= interval {
			lastCall = now
			if timer != nil {
				timer.Stop()
				timer = nil
			}
			mu.Unlock()
			fn(v)
			return
		}

		pending = v
		if timer == nil {
			timer = time.AfterFunc(interval-since, func() {
				mu.Lock()
				val := pending
				lastCall = time.Now()
				timer = nil
				mu.Unlock()
				fn(val)
			})
		}
		mu.Unlock()
	}
}

// LODLevel maps a data set size to a level of detail, 0 being full detail.
func LODLevel(size int) int {
	switch {
	case size > 10000:
		return 3
	case size > 5000:
		return 2
	case size > 1000:
		return 1
	default:
		return 0
	}
}
