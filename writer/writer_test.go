package writer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"

	appconfig "pressureflow/config"
	"pressureflow/models"
)

type fakeSink struct {
	name      string
	err       error
	published []models.ZoneReport
	closed    bool
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Publish(_ context.Context, r models.ZoneReport) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, r)
	return nil
}

func (f *fakeSink) Close() error {
	f.closed = true
	return f.err
}

type fakeKafkaWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafkaWriter) Close() error {
	f.closed = true
	return nil
}

func sampleReport() models.ZoneReport {
	return models.ZoneReport{
		PassID:        "pass-1",
		Symbol:        "BTCUSDT",
		GeneratedAt:   time.UnixMilli(1700000000000).UTC(),
		SnapshotCount: 5,
		MidPrice:      45000,
		Zones: []models.PressureZone{
			{PriceLevel: 44990, Intensity: 0.8, Volume: 120, Type: models.ZoneSupport},
		},
	}
}

func TestFanoutPublishesToAllSinks(t *testing.T) {
	ok := &fakeSink{name: "ok"}
	bad := &fakeSink{name: "bad", err: errors.New("boom")}
	also := &fakeSink{name: "also"}
	f := NewFanout(nil, ok, bad, also)

	err := f.Publish(context.Background(), sampleReport())
	if err == nil {
		t.Fatal("expected joined error from failing sink")
	}
	if len(ok.published) != 1 || len(also.published) != 1 {
		t.Fatal("healthy sinks should still receive the report")
	}

	if err := f.Close(); err == nil {
		t.Fatal("expected close error from failing sink")
	}
	if !ok.closed || !bad.closed || !also.closed {
		t.Fatal("every sink should be closed")
	}
}

func TestFanoutEmpty(t *testing.T) {
	f := NewFanout(nil)
	if err := f.Publish(context.Background(), sampleReport()); err != nil {
		t.Fatalf("empty fanout should not fail: %v", err)
	}
	if f.Len() != 0 {
		t.Fatalf("expected no sinks, got %d", f.Len())
	}
}

func TestKafkaZoneSinkPublish(t *testing.T) {
	w := &fakeKafkaWriter{}
	s := newKafkaZoneSink(w, "zones", time.Second)

	if err := s.Publish(context.Background(), sampleReport()); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(w.msgs) != 1 || string(w.msgs[0].Key) != "BTCUSDT" {
		t.Fatalf("unexpected messages %+v", w.msgs)
	}
	var got models.ZoneReport
	if err := json.Unmarshal(w.msgs[0].Value, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.PassID != "pass-1" || len(got.Zones) != 1 || got.Zones[0].Type != models.ZoneSupport {
		t.Fatalf("unexpected report %+v", got)
	}

	w.err = errors.New("leader not available")
	if err := s.Publish(context.Background(), sampleReport()); err == nil {
		t.Fatal("expected write error")
	}
	if err := s.Close(); err != nil || !w.closed {
		t.Fatal("close should close the writer")
	}
}

func TestNewKafkaZoneSinkRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaZoneSink(appconfig.KafkaConfig{Topic: "zones"}); err == nil {
		t.Fatal("expected error without brokers")
	}
}

func TestRedisZoneSinkKey(t *testing.T) {
	s := &RedisZoneSink{keyPrefix: "pressureflow:zones:"}
	if got := s.key("BTCUSDT"); got != "pressureflow:zones:BTCUSDT" {
		t.Fatalf("unexpected key %s", got)
	}
}
