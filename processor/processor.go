package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	appconfig "pressureflow/config"
	"pressureflow/internal/metrics"
	"pressureflow/logger"
	"pressureflow/models"
)

// SnapshotSink receives normalised snapshots. *window.Window satisfies it.
type SnapshotSink interface {
	Append(models.OrderBookSnapshot)
}

// Processor drains the raw channel, normalises each payload and appends the
// result to the snapshot window. After every append it calls trigger, which
// is expected to coalesce.
type Processor struct {
	config   *appconfig.Config
	rawChan  <-chan models.RawSnapshotMessage
	registry *Registry
	sink     SnapshotSink
	trigger  func()
	symbol   string
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	messagesProcessed int64
	snapshotsAppended int64
	skippedCount      int64
	errorsCount       int64
}

// Stats is a point-in-time copy of the processor counters.
type Stats struct {
	MessagesProcessed int64 `json:"messages_processed"`
	SnapshotsAppended int64 `json:"snapshots_appended"`
	Skipped           int64 `json:"skipped"`
	Errors            int64 `json:"errors"`
}

func NewProcessor(cfg *appconfig.Config, rawChan <-chan models.RawSnapshotMessage, registry *Registry, sink SnapshotSink, trigger func()) *Processor {
	if registry == nil {
		registry = NewRegistry()
	}
	if trigger == nil {
		trigger = func() {}
	}
	var symbol string
	if cfg != nil {
		symbol = strings.ToUpper(strings.TrimSpace(cfg.Analyzer.Symbol))
	}
	return &Processor{
		config:   cfg,
		symbol:   symbol,
		rawChan:  rawChan,
		registry: registry,
		sink:     sink,
		trigger:  trigger,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("processor already running")
	}
	p.running = true
	p.ctx = ctx
	p.mu.Unlock()

	log := p.log.WithComponent("processor").WithFields(logger.Fields{"operation": "start"})

	numWorkers := p.config.Processor.MaxWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}
	log.WithFields(logger.Fields{"workers": numWorkers}).Info("starting processor workers")

	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.wg.Add(1)
	go p.metricsReporter(ctx)

	log.Info("processor started successfully")
	return nil
}

// Stop waits for the workers to exit. The context passed to Start must be
// cancelled, or the raw channel closed, before calling it.
func (p *Processor) Stop() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.log.WithComponent("processor").Info("stopping processor")
	p.wg.Wait()
	p.log.WithComponent("processor").Info("processor stopped")
}

func (p *Processor) Stats() Stats {
	return Stats{
		MessagesProcessed: atomic.LoadInt64(&p.messagesProcessed),
		SnapshotsAppended: atomic.LoadInt64(&p.snapshotsAppended),
		Skipped:           atomic.LoadInt64(&p.skippedCount),
		Errors:            atomic.LoadInt64(&p.errorsCount),
	}
}

func (p *Processor) worker(workerID int) {
	defer p.wg.Done()

	log := p.log.WithComponent("processor").WithFields(logger.Fields{
		"worker_id": workerID,
	})
	log.Debug("starting processor worker")

	for {
		select {
		case <-p.ctx.Done():
			log.Debug("worker stopped due to context cancellation")
			return
		case raw, ok := <-p.rawChan:
			if !ok {
				log.Info("raw channel closed, worker stopping")
				return
			}

			start := time.Now()
			p.process(raw)
			atomic.AddInt64(&p.messagesProcessed, 1)

			logger.LogPerformanceEntry(log, "processor", "process_message", time.Since(start), logger.Fields{
				"venue":  raw.Venue,
				"symbol": raw.Symbol,
				"source": raw.Source,
			})
		}
	}
}

// process handles one raw message and reports whether a snapshot was appended.
func (p *Processor) process(raw models.RawSnapshotMessage) bool {
	log := p.log.WithComponent("processor").WithFields(logger.Fields{
		"venue":     raw.Venue,
		"symbol":    raw.Symbol,
		"source":    raw.Source,
		"operation": "process_message",
	})

	snap, err := p.registry.Normalize(raw)
	switch {
	case err == nil:
	case errors.Is(err, ErrIncrementalUpdate), errors.Is(err, models.ErrEmptyBook):
		atomic.AddInt64(&p.skippedCount, 1)
		log.WithError(err).Debug("skipping payload")
		return false
	default:
		atomic.AddInt64(&p.errorsCount, 1)
		metrics.IncSnapshotError(string(raw.Venue), "normalize")
		log.WithError(err).Warn("failed to normalise payload")
		return false
	}

	if p.symbol != "" && snap.Symbol != p.symbol {
		atomic.AddInt64(&p.skippedCount, 1)
		log.WithFields(logger.Fields{"analyzer_symbol": p.symbol}).Debug("skipping snapshot of another symbol")
		return false
	}

	p.sink.Append(snap)
	atomic.AddInt64(&p.snapshotsAppended, 1)
	metrics.IncSnapshotIngested(string(raw.Venue))
	logger.IncrementSnapshotStored()

	log.WithFields(logger.Fields{
		"bids":   len(snap.Bids),
		"asks":   len(snap.Asks),
		"spread": snap.Spread,
	}).Debug("snapshot appended")
	logger.LogDataFlowEntry(log, "raw_channel", "window", 1, "snapshot")

	p.trigger()
	return true
}

func (p *Processor) metricsReporter(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	log := p.log.WithComponent("processor")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := p.Stats()
			log.WithFields(logger.Fields{
				"messages_processed": s.MessagesProcessed,
				"snapshots_appended": s.SnapshotsAppended,
				"skipped":            s.Skipped,
				"errors":             s.Errors,
			}).Info("processor metrics")
		}
	}
}
