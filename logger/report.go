package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	warnsReader     int64
	errorsReader    int64
	warnsPipeline   int64
	errorsPipeline  int64
	snapshotsRead   int64
	snapshotsStored int64
	analysisPasses  int64
	zonesPublished  int64
	channels        sync.Map // map[string]*channelStat
)

// ReportCounters is a point-in-time copy of the counters behind the runtime report.
type ReportCounters struct {
	WarnsReader     int64 `json:"warns_reader"`
	ErrorsReader    int64 `json:"errors_reader"`
	WarnsPipeline   int64 `json:"warns_pipeline"`
	ErrorsPipeline  int64 `json:"errors_pipeline"`
	SnapshotsRead   int64 `json:"snapshots_read"`
	SnapshotsStored int64 `json:"snapshots_stored"`
	AnalysisPasses  int64 `json:"analysis_passes"`
	ZonesPublished  int64 `json:"zones_published"`
}

func recordWarn(component string) {
	if strings.Contains(component, "reader") {
		atomic.AddInt64(&warnsReader, 1)
	} else {
		atomic.AddInt64(&warnsPipeline, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "reader") {
		atomic.AddInt64(&errorsReader, 1)
	} else {
		atomic.AddInt64(&errorsPipeline, 1)
	}
}

// IncrementSnapshotRead counts a raw venue payload of size bytes.
func IncrementSnapshotRead(source string, size int) {
	atomic.AddInt64(&snapshotsRead, 1)
	recordChannel(source, size)
}

// IncrementSnapshotStored counts a normalised snapshot admitted to the window.
func IncrementSnapshotStored() {
	atomic.AddInt64(&snapshotsStored, 1)
}

// IncrementAnalysisPass counts one completed analysis pass.
func IncrementAnalysisPass() {
	atomic.AddInt64(&analysisPasses, 1)
}

// IncrementZonesPublished counts a zone report handed to a sink.
func IncrementZonesPublished(sink string, size int) {
	atomic.AddInt64(&zonesPublished, 1)
	recordChannel(sink, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

// Counters returns the current counter values.
func Counters() ReportCounters {
	return ReportCounters{
		WarnsReader:     atomic.LoadInt64(&warnsReader),
		ErrorsReader:    atomic.LoadInt64(&errorsReader),
		WarnsPipeline:   atomic.LoadInt64(&warnsPipeline),
		ErrorsPipeline:  atomic.LoadInt64(&errorsPipeline),
		SnapshotsRead:   atomic.LoadInt64(&snapshotsRead),
		SnapshotsStored: atomic.LoadInt64(&snapshotsStored),
		AnalysisPasses:  atomic.LoadInt64(&analysisPasses),
		ZonesPublished:  atomic.LoadInt64(&zonesPublished),
	}
}

// StartReport logs system and pipeline statistics every interval until ctx is done.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	cpuPct := 0.0
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		cpuPct = pct[0]
	}
	var memUsedMB, diskUsedMB float64
	if vm, err := mem.VirtualMemory(); err == nil {
		memUsedMB = float64(vm.Used) / 1024 / 1024
	}
	if du, err := disk.Usage("/"); err == nil {
		diskUsedMB = float64(du.Used) / 1024 / 1024
	}

	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		cs := v.(*channelStat)
		channelData[k.(string)] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	c := Counters()
	log.WithComponent("report").WithFields(Fields{
		"warns_reader":     c.WarnsReader,
		"errors_reader":    c.ErrorsReader,
		"warns_pipeline":   c.WarnsPipeline,
		"errors_pipeline":  c.ErrorsPipeline,
		"snapshots_read":   c.SnapshotsRead,
		"snapshots_stored": c.SnapshotsStored,
		"analysis_passes":  c.AnalysisPasses,
		"zones_published":  c.ZonesPublished,
		"goroutines":       runtime.NumGoroutine(),
		"cpu_percent":      cpuPct,
		"memory_mb":        int64(memUsedMB),
		"disk_mb":          int64(diskUsedMB),
		"channels":         channelData,
	}).Info("runtime report")

	count := func(name string, v int64) cwtypes.MetricDatum {
		return cwtypes.MetricDatum{MetricName: aws.String(name), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(v))}
	}
	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(memUsedMB)},
		{MetricName: aws.String("DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(diskUsedMB)},
		count("SnapshotsRead", c.SnapshotsRead),
		count("SnapshotsStored", c.SnapshotsStored),
		count("AnalysisPasses", c.AnalysisPasses),
		count("ZonesPublished", c.ZonesPublished),
		count("ReaderErrors", c.ErrorsReader),
		count("PipelineErrors", c.ErrorsPipeline),
	}
	for name, stats := range channelData {
		dims := []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}}
		data = append(data,
			cwtypes.MetricDatum{MetricName: aws.String("ChannelMessages"), Unit: cwtypes.StandardUnitCount, Dimensions: dims, Value: aws.Float64(float64(stats["messages"]))},
			cwtypes.MetricDatum{MetricName: aws.String("ChannelBytes"), Unit: cwtypes.StandardUnitBytes, Dimensions: dims, Value: aws.Float64(float64(stats["bytes"]))},
		)
	}

	publishMetrics(ctx, data)
}
