// Package metrics exposes Prometheus collectors for the ingestion and
// analysis pipeline and fans typed pipeline events out to observers.
//
// Exposed on /metrics:
//
//	pressureflow_snapshots_ingested_total{venue}
//	pressureflow_snapshot_errors_total{venue,stage}
//	pressureflow_messages_dropped_total{venue,stage}
//	pressureflow_analysis_passes_total
//	pressureflow_analysis_triggers_coalesced_total
//	pressureflow_analysis_duration_seconds
//	pressureflow_zones_emitted
//	pressureflow_window_size
//	pressureflow_sink_publish_errors_total{sink}
//	pressureflow_reader_restarts_total{task}
//	go_* and process_* system metrics
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once     sync.Once
	registry = prometheus.NewRegistry()

	snapshotsIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pressureflow_snapshots_ingested_total",
		Help: "Normalised snapshots appended to the analysis window",
	}, []string{"venue"})
	snapshotErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pressureflow_snapshot_errors_total",
		Help: "Failed fetch or normalisation attempts",
	}, []string{"venue", "stage"})
	messagesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pressureflow_messages_dropped_total",
		Help: "Messages dropped because a channel was full",
	}, []string{"venue", "stage"})
	analysisPasses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pressureflow_analysis_passes_total",
		Help: "Completed pressure zone analysis passes",
	})
	triggersCoalesced = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pressureflow_analysis_triggers_coalesced_total",
		Help: "Analysis triggers folded into an already pending pass",
	})
	analysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pressureflow_analysis_duration_seconds",
		Help:    "Wall time of one analysis pass",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	})
	zonesEmitted = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pressureflow_zones_emitted",
		Help: "Number of zones in the latest analysis result",
	})
	windowSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pressureflow_window_size",
		Help: "Snapshots currently held in the analysis window",
	})
	sinkErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pressureflow_sink_publish_errors_total",
		Help: "Zone report publish failures per sink",
	}, []string{"sink"})
	readerRestarts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pressureflow_reader_restarts_total",
		Help: "Supervised reader task restarts",
	}, []string{"task"})
)

// Init registers every collector with the package registry. Safe to call more than once.
func Init() {
	once.Do(func() {
		registry.MustRegister(
			snapshotsIngested,
			snapshotErrors,
			messagesDropped,
			analysisPasses,
			triggersCoalesced,
			analysisDuration,
			zonesEmitted,
			windowSize,
			sinkErrors,
			readerRestarts,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// Handler serves the package registry in the Prometheus exposition format.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func IncSnapshotIngested(venue string) {
	snapshotsIngested.WithLabelValues(venue).Inc()
}

func IncSnapshotError(venue, stage string) {
	snapshotErrors.WithLabelValues(venue, stage).Inc()
}

func IncTriggerCoalesced() {
	triggersCoalesced.Inc()
}

// ObservePass records one analysis pass.
func ObservePass(duration time.Duration, zones, window int) {
	analysisPasses.Inc()
	analysisDuration.Observe(duration.Seconds())
	zonesEmitted.Set(float64(zones))
	windowSize.Set(float64(window))
}

func IncSinkError(sink string) {
	sinkErrors.WithLabelValues(sink).Inc()
}

func IncReaderRestart(task string) {
	readerRestarts.WithLabelValues(task).Inc()
}
