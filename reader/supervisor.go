// Package reader holds what the venue readers share: the reconnect
// supervisor, transport construction and the raw channel hand-off.
package reader

import (
	"context"
	"sync/atomic"
	"time"

	"pressureflow/internal/metrics"
	"pressureflow/logger"
)

// DefaultBackoff is the wait between restarts when none is configured.
const DefaultBackoff = 5 * time.Second

// Supervisor restarts long-running tasks, such as websocket streams, until
// their context is cancelled. The wait between attempts is fixed.
type Supervisor struct {
	backoff  time.Duration
	log      *logger.Log
	restarts int64
}

func NewSupervisor(backoff time.Duration, log *logger.Log) *Supervisor {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Supervisor{backoff: backoff, log: log}
}

// Run calls task in a loop. A task that returns while ctx is still live is
// logged and started again after the backoff. Run returns once ctx is done.
func (s *Supervisor) Run(ctx context.Context, name string, task func(ctx context.Context) error) {
	log := s.log.WithComponent("reader_supervisor").WithFields(logger.Fields{"task": name})

	for {
		err := task(ctx)
		if ctx.Err() != nil {
			log.Info("task stopped")
			return
		}

		entry := log.WithFields(logger.Fields{"backoff": s.backoff.String()})
		if err != nil {
			entry = entry.WithError(err)
		}
		entry.Warn("task exited, restarting after backoff")

		atomic.AddInt64(&s.restarts, 1)
		metrics.IncReaderRestart(name)

		timer := time.NewTimer(s.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("task stopped")
			return
		case <-timer.C:
		}
	}
}

// Restarts returns how many times any supervised task has been restarted.
func (s *Supervisor) Restarts() int64 {
	return atomic.LoadInt64(&s.restarts)
}
