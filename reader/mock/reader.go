package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pressureflow/config"
	"pressureflow/internal/channel"
	"pressureflow/logger"
	"pressureflow/models"
	"pressureflow/reader"
)

// Reader feeds generated books into the raw channel, for running the
// pipeline without venue access.
type Reader struct {
	config    config.MockConfig
	generator *Generator
	channels  *channel.Channels
	ctx       context.Context
	wg        *sync.WaitGroup
	mu        sync.RWMutex
	running   bool
	log       *logger.Log
	emitted   int64
}

func NewReader(cfg *config.Config, ch *channel.Channels, log *logger.Log) *Reader {
	if log == nil {
		log = logger.GetLogger()
	}
	mc := cfg.Venues.Mock
	return &Reader{
		config:    mc,
		generator: NewGenerator(mc.Symbol, mc.BasePrice, mc.Levels, mc.Seed),
		channels:  ch,
		wg:        &sync.WaitGroup{},
		log:       log,
	}
}

func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("mock reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("mock_reader").WithFields(logger.Fields{"operation": "start"})
	if !r.config.Enabled {
		log.Warn("mock venue is disabled")
		return fmt.Errorf("mock venue is disabled")
	}

	log.WithFields(logger.Fields{
		"symbol":        r.config.Symbol,
		"interval":      r.config.Interval.String(),
		"initial_burst": r.config.InitialBurst,
	}).Info("starting mock reader")

	r.wg.Add(1)
	go r.run()
	return nil
}

func (r *Reader) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("mock_reader").Info("stopping mock reader")
	r.wg.Wait()
	r.log.WithComponent("mock_reader").Info("mock reader stopped")
}

// Emitted returns how many books reached the raw channel.
func (r *Reader) Emitted() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.emitted
}

func (r *Reader) run() {
	defer r.wg.Done()

	log := r.log.WithComponent("mock_reader").WithFields(logger.Fields{
		"symbol": r.config.Symbol,
		"worker": "generator",
	})

	for i := 0; i < r.config.InitialBurst; i++ {
		if r.ctx.Err() != nil {
			return
		}
		r.emit(log)
	}

	interval := r.config.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case <-ticker.C:
			r.emit(log)
		}
	}
}

func (r *Reader) emit(log *logger.Entry) {
	now := time.Now().UTC()
	payload := r.generator.Next(now)
	data, err := models.Encode(payload)
	if err != nil {
		log.WithError(err).Warn("failed to marshal generated book")
		return
	}
	msg := models.RawSnapshotMessage{
		Venue:      models.VenueMock,
		Symbol:     r.config.Symbol,
		Source:     models.SourceMock,
		ReceivedAt: now,
		Data:       data,
	}
	if reader.Emit(r.ctx, r.channels, log, msg, "mock_generator", len(payload.Bids)+len(payload.Asks)) {
		r.mu.Lock()
		r.emitted++
		r.mu.Unlock()
	}
}
