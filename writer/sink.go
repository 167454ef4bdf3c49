// Package writer publishes zone reports to external systems.
package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"pressureflow/internal/metrics"
	"pressureflow/logger"
	"pressureflow/models"
)

// Sink receives every published zone report.
type Sink interface {
	Name() string
	Publish(ctx context.Context, report models.ZoneReport) error
	Close() error
}

func encodeReport(report models.ZoneReport) ([]byte, error) {
	data, err := json.Marshal(report)
	if err != nil {
		return nil, fmt.Errorf("marshal zone report: %w", err)
	}
	return data, nil
}

// Fanout publishes to every sink. One failing sink does not stop the others;
// their errors are joined.
type Fanout struct {
	sinks []Sink
	log   *logger.Log
}

func NewFanout(log *logger.Log, sinks ...Sink) *Fanout {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Fanout{sinks: sinks, log: log}
}

func (f *Fanout) Len() int { return len(f.sinks) }

func (f *Fanout) Publish(ctx context.Context, report models.ZoneReport) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, report); err != nil {
			metrics.IncSinkError(s.Name())
			f.log.WithComponent("zone_writer").WithError(err).WithFields(logger.Fields{
				"sink":    s.Name(),
				"pass_id": report.PassID,
			}).Warn("failed to publish zone report")
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		logger.IncrementZonesPublished(s.Name(), len(report.Zones))
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
