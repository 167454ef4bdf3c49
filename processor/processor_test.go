package processor

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	appconfig "pressureflow/config"
	"pressureflow/models"
)

type recordingSink struct {
	mu    sync.Mutex
	snaps []models.OrderBookSnapshot
}

func (r *recordingSink) Append(s models.OrderBookSnapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *recordingSink) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func minimalConfig() *appconfig.Config {
	return &appconfig.Config{Processor: appconfig.ProcessorConfig{MaxWorkers: 1}}
}

func TestProcessorStartStop(t *testing.T) {
	raw := make(chan models.RawSnapshotMessage)
	p := NewProcessor(minimalConfig(), raw, nil, &recordingSink{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Fatalf("expected error on double start")
	}
	cancel()
	p.Stop()
}

func TestProcessorAppendsAndTriggers(t *testing.T) {
	raw := make(chan models.RawSnapshotMessage, 4)
	sink := &recordingSink{}
	var triggers int64
	p := NewProcessor(minimalConfig(), raw, nil, sink, func() { atomic.AddInt64(&triggers, 1) })

	raw <- rawMsg(models.VenueBinance, "BTCUSDT", `{"bids":[["100","1"]],"asks":[["101","1"]]}`)
	raw <- rawMsg(models.VenueBinance, "BTCUSDT", `not json`)
	raw <- rawMsg(models.VenueOKX, "BTC-USDT", `{"arg":{"channel":"books","instId":"BTC-USDT"},"action":"update","data":[{"ts":"1"}]}`)
	raw <- rawMsg(models.VenueMock, "BTCUSDT", `{"symbol":"BTCUSDT","ts":1,"bids":[[1,1,1]],"asks":[[2,1,1]]}`)
	close(raw)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for p.Stats().MessagesProcessed < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	p.Stop()

	s := p.Stats()
	if s.MessagesProcessed != 4 {
		t.Fatalf("expected 4 messages processed, got %d", s.MessagesProcessed)
	}
	if sink.len() != 2 || s.SnapshotsAppended != 2 {
		t.Fatalf("expected 2 snapshots appended, got %d/%d", sink.len(), s.SnapshotsAppended)
	}
	if s.Errors != 1 || s.Skipped != 1 {
		t.Fatalf("expected 1 error and 1 skip, got %+v", s)
	}
	if atomic.LoadInt64(&triggers) != 2 {
		t.Fatalf("expected 2 triggers, got %d", triggers)
	}
}

func TestProcessorSkipsOtherSymbols(t *testing.T) {
	raw := make(chan models.RawSnapshotMessage, 2)
	sink := &recordingSink{}
	cfg := minimalConfig()
	cfg.Analyzer.Symbol = "btcusdt"
	p := NewProcessor(cfg, raw, nil, sink, nil)

	raw <- rawMsg(models.VenueOKX, "ETH-USDT", `{"code":"0","data":[{"bids":[["3000","1","0","1"]],"asks":[["3001","1","0","1"]],"ts":"1"}]}`)
	raw <- rawMsg(models.VenueOKX, "BTC-USDT", `{"code":"0","data":[{"bids":[["45000","1","0","1"]],"asks":[["45001","1","0","1"]],"ts":"1"}]}`)
	close(raw)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for p.Stats().MessagesProcessed < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	p.Stop()

	s := p.Stats()
	if s.SnapshotsAppended != 1 || s.Skipped != 1 {
		t.Fatalf("expected 1 append and 1 skip, got %+v", s)
	}
	if sink.len() != 1 || sink.snaps[0].Symbol != "BTCUSDT" {
		t.Fatalf("unexpected appended snapshots: %+v", sink.snaps)
	}
}

func TestProcessorDefaultKeepsArrivalOrder(t *testing.T) {
	cfg := appconfig.Default()
	const n = 50
	raw := make(chan models.RawSnapshotMessage, n)
	sink := &recordingSink{}
	p := NewProcessor(&cfg, raw, nil, sink, nil)

	for i := 0; i < n; i++ {
		bid := strconv.Itoa(45000 + i)
		ask := strconv.Itoa(45001 + i)
		raw <- rawMsg(models.VenueBinance, "BTCUSDT", `{"bids":[["`+bid+`","1"]],"asks":[["`+ask+`","1"]]}`)
	}
	close(raw)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for p.Stats().MessagesProcessed < n && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	p.Stop()

	if sink.len() != n {
		t.Fatalf("expected %d snapshots, got %d", n, sink.len())
	}
	for i, s := range sink.snaps {
		if want := float64(45000 + i); s.Bids[0].Price != want {
			t.Fatalf("snapshot %d has best bid %v, want %v", i, s.Bids[0].Price, want)
		}
	}
}
