package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/sirupsen/logrus"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureReportLevelAndFormats(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("report", "text", "stderr", 0); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if log.GetLevel() != logrus.InfoLevel {
		t.Fatalf("report level should map to info, got %v", log.GetLevel())
	}
	if err := log.Configure("debug", "xml", "stdout", 0); err == nil {
		t.Fatal("expected error for invalid format")
	}
}

func TestConfigureFileOutput(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	path := filepath.Join(t.TempDir(), "pressureflow.log")
	log := Logger()
	if err := log.Configure("info", "json", path, 0); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	log.WithComponent("file_test").Info("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var line map[string]interface{}
	if err := json.Unmarshal(bytes.TrimSpace(data), &line); err != nil {
		t.Fatalf("log line is not json: %v (%s)", err, data)
	}
	if line["message"] != "hello" || line["component"] != "file_test" {
		t.Fatalf("unexpected log line: %v", line)
	}
	if _, ok := line["timestamp"]; !ok {
		t.Fatalf("timestamp key missing: %v", line)
	}
}

func TestWithEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	log := Logger()
	entry := log.WithEnv("FOO")
	if v, ok := entry.Entry.Data["FOO"]; !ok || v != "bar" {
		t.Fatalf("env field not set: %v", entry.Entry.Data)
	}
}

func TestHelpersDoNotMutateCallerFields(t *testing.T) {
	log := Logger()
	var buf bytes.Buffer
	log.SetOutput(&buf)

	fields := Fields{"venue": "okx"}
	log.LogMetric("analyzer", "passes", int64(1), "", fields)
	LogPerformanceEntry(log.WithComponent("analyzer"), "analyzer", "pass", time.Millisecond, fields)

	if len(fields) != 1 {
		t.Fatalf("caller fields were mutated: %v", fields)
	}
	if !strings.Contains(buf.String(), `"metric":"passes"`) {
		t.Fatalf("metric line missing: %s", buf.String())
	}
}

type fakePutter struct {
	mu    sync.Mutex
	input []*cloudwatch.PutMetricDataInput
}

func (f *fakePutter) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.input = append(f.input, in)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

func (f *fakePutter) PutDashboard(context.Context, *cloudwatch.PutDashboardInput, ...func(*cloudwatch.Options)) (*cloudwatch.PutDashboardOutput, error) {
	return &cloudwatch.PutDashboardOutput{}, nil
}

func TestLogMetricPublishesToCloudWatch(t *testing.T) {
	fake := &fakePutter{}
	setCloudWatch(fake, "Test", "")
	defer cwState.Store(nil)

	log := Logger()
	log.SetOutput(&bytes.Buffer{})
	log.LogMetric("processor", "snapshots_processed", 3, "counter", Fields{"venue": "binance", "count": 2})

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.input) != 1 {
		t.Fatalf("expected one publish, got %d", len(fake.input))
	}
	in := fake.input[0]
	if *in.Namespace != "Test" || *in.MetricData[0].MetricName != "snapshots_processed" {
		t.Fatalf("unexpected datum: %+v", in)
	}
	// component plus the single string field
	if got := len(in.MetricData[0].Dimensions); got != 2 {
		t.Fatalf("dimensions = %d, want 2", got)
	}
}

func TestCountersTrackComponents(t *testing.T) {
	before := Counters()
	log := Logger()
	log.SetOutput(&bytes.Buffer{})
	log.WithComponent("okx_reader").Warn("w")
	log.WithComponent("analyzer").Error("e")
	IncrementSnapshotStored()

	after := Counters()
	if after.WarnsReader != before.WarnsReader+1 {
		t.Errorf("reader warns = %d, want %d", after.WarnsReader, before.WarnsReader+1)
	}
	if after.ErrorsPipeline != before.ErrorsPipeline+1 {
		t.Errorf("pipeline errors = %d, want %d", after.ErrorsPipeline, before.ErrorsPipeline+1)
	}
	if after.SnapshotsStored != before.SnapshotsStored+1 {
		t.Errorf("snapshots stored = %d", after.SnapshotsStored)
	}
}
