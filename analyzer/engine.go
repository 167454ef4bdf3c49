package analyzer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"pressureflow/config"
	"pressureflow/internal/metrics"
	"pressureflow/internal/window"
	"pressureflow/logger"
	"pressureflow/models"
)

// Window is the read side of the snapshot buffer used by the engine.
type Window interface {
	Len() int
	Recent(n int) []models.OrderBookSnapshot
}

var _ Window = (*window.Window)(nil)

// EngineStats summarises engine activity.
type EngineStats struct {
	Passes            int64         `json:"passes"`
	TriggersCoalesced int64         `json:"triggers_coalesced"`
	LastPassDuration  time.Duration `json:"last_pass_duration_ns"`
	LastPassAt        time.Time     `json:"last_pass_at"`
	Running           bool          `json:"running"`
}

// Engine runs analysis passes over the tail of the window, on Trigger and on
// a fixed tick. Passes never overlap; triggers that arrive while one is
// pending are folded into it. The latest complete report survives Stop.
// Only snapshots of the configured symbol are analysed; with no symbol
// configured, the symbol of the newest snapshot is used.
type Engine struct {
	cfg      config.AnalyzerConfig
	symbol   string
	window   Window
	analyzer *Analyzer
	publish  func(models.ZoneReport)
	log      *logger.Log

	trigger chan struct{}
	passMu  sync.Mutex
	latest  atomic.Pointer[models.ZoneReport]

	passes       atomic.Int64
	coalesced    atomic.Int64
	lastDuration atomic.Int64
	lastPassAt   atomic.Int64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewEngine wires an engine. publish may be nil.
func NewEngine(cfg config.AnalyzerConfig, w Window, a *Analyzer, publish func(models.ZoneReport), log *logger.Log) *Engine {
	if log == nil {
		log = logger.GetLogger()
	}
	if a == nil {
		a = New(ParamsFromConfig(cfg))
	}
	e := &Engine{
		cfg:      cfg,
		symbol:   strings.ToUpper(strings.TrimSpace(cfg.Symbol)),
		window:   w,
		analyzer: a,
		publish:  publish,
		log:      log,
		trigger:  make(chan struct{}, 1),
	}

	log.WithComponent("analyzer").WithFields(logger.Fields{
		"volume_threshold":        cfg.VolumeThreshold,
		"price_cluster_threshold": cfg.PriceClusterThreshold,
		"analysis_window":         cfg.AnalysisWindow,
		"min_snapshots":           cfg.MinSnapshots,
		"top_k":                   cfg.TopK,
	}).Info("analysis engine initialized")

	return e
}

func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return fmt.Errorf("analysis engine already running")
	}
	e.running = true

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.wg.Add(1)
	go e.loop(runCtx)

	e.log.WithComponent("analyzer").WithFields(logger.Fields{
		"interval": e.cfg.AnalysisInterval.String(),
	}).Info("analysis engine started")
	return nil
}

// Stop ends the loop and waits for an in-flight pass. The window and the
// latest report are left untouched.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	e.mu.Unlock()

	e.log.WithComponent("analyzer").Info("stopping analysis engine")
	cancel()
	e.wg.Wait()
	e.log.WithComponent("analyzer").Info("analysis engine stopped")
}

// Trigger requests a pass without blocking.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
		e.coalesced.Add(1)
		metrics.IncTriggerCoalesced()
	}
}

func (e *Engine) loop(ctx context.Context) {
	defer e.wg.Done()

	interval := e.cfg.AnalysisInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.trigger:
			e.RunPass()
		case <-ticker.C:
			e.RunPass()
		}
	}
}

// RunPass analyses the window tail once. It reports false when the window
// does not yet hold more than MinSnapshots snapshots of the analysed symbol.
func (e *Engine) RunPass() (models.ZoneReport, bool) {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	available := e.window.Len()
	symbol, snapshots, held := e.tail()
	if held <= e.cfg.MinSnapshots {
		return models.ZoneReport{}, false
	}

	start := time.Now()
	zones := e.analyzer.Analyze(snapshots)
	duration := time.Since(start)

	report := models.ZoneReport{
		PassID:        uuid.New().String(),
		Symbol:        symbol,
		GeneratedAt:   time.Now().UTC(),
		SnapshotCount: len(snapshots),
		Zones:         zones,
	}
	if len(snapshots) > 0 {
		if mid, ok := snapshots[len(snapshots)-1].MidPrice(); ok {
			report.MidPrice = mid
		}
	}

	e.latest.Store(&report)
	e.passes.Add(1)
	e.lastDuration.Store(int64(duration))
	e.lastPassAt.Store(report.GeneratedAt.UnixNano())
	metrics.RecordPass(e.log, report.Symbol, duration, len(zones), available)
	logger.IncrementAnalysisPass()

	log := e.log.WithComponent("analyzer").WithFields(logger.Fields{
		"pass_id":   report.PassID,
		"snapshots": len(snapshots),
		"zones":     len(zones),
	})
	logger.LogPerformanceEntry(log, "analyzer", "analysis_pass", duration, nil)

	if e.publish != nil {
		e.publish(report)
	}
	return report, true
}

// tail returns the analysed symbol, its newest AnalysisWindow snapshots in
// arrival order, and how many snapshots of it the window holds.
func (e *Engine) tail() (string, []models.OrderBookSnapshot, int) {
	all := e.window.Recent(e.window.Len())
	symbol := e.symbol
	if symbol == "" && len(all) > 0 {
		symbol = all[len(all)-1].Symbol
	}

	matched := all[:0]
	for _, s := range all {
		if s.Symbol == symbol {
			matched = append(matched, s)
		}
	}
	held := len(matched)

	n := e.cfg.AnalysisWindow
	if n < 0 {
		n = 0
	}
	if held > n {
		matched = matched[held-n:]
	}
	return symbol, matched, held
}

// Latest returns the last complete report, if any pass has run.
func (e *Engine) Latest() (models.ZoneReport, bool) {
	r := e.latest.Load()
	if r == nil {
		return models.ZoneReport{}, false
	}
	return *r, true
}

func (e *Engine) Stats() EngineStats {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()

	st := EngineStats{
		Passes:            e.passes.Load(),
		TriggersCoalesced: e.coalesced.Load(),
		LastPassDuration:  time.Duration(e.lastDuration.Load()),
		Running:           running,
	}
	if ns := e.lastPassAt.Load(); ns > 0 {
		st.LastPassAt = time.Unix(0, ns).UTC()
	}
	return st
}
