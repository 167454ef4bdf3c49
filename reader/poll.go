package reader

import (
	"context"
	"time"

	"pressureflow/internal/channel"
	"pressureflow/logger"
	"pressureflow/models"
)

// PollAligned calls fetch on interval boundaries until ctx is done. A fetch
// that overruns the interval is logged and the next tick is realigned.
func PollAligned(ctx context.Context, interval time.Duration, log *logger.Entry, fetch func()) {
	now := time.Now()
	nextTick := now.Truncate(interval).Add(interval)
	timer := time.NewTimer(nextTick.Sub(now))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case <-timer.C:
			start := time.Now()
			fetch()
			duration := time.Since(start)

			if duration > interval {
				log.WithFields(logger.Fields{
					"duration": duration.Milliseconds(),
					"interval": interval.Milliseconds(),
				}).Warn("fetch took longer than interval")
			}

			nextTick = time.Now().Truncate(interval).Add(interval)
			timer.Reset(time.Until(nextTick))
		}
	}
}

// Emit hands msg to the raw channel. source names the upstream and records
// the count reported in the data flow log.
func Emit(ctx context.Context, ch *channel.Channels, log *logger.Entry, msg models.RawSnapshotMessage, source string, records int) bool {
	if ch.SendRaw(ctx, msg) {
		logger.LogDataFlowEntry(log, source, "raw_channel", records, "orderbook")
		logger.IncrementSnapshotRead(source, len(msg.Data))
		return true
	}
	if ctx.Err() == nil {
		log.Warn("raw channel is full, dropping data")
	}
	return false
}
