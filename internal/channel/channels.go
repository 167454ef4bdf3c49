package channel

import (
	"context"
	"sync"
	"time"

	"pressureflow/internal/metrics"
	"pressureflow/logger"
	"pressureflow/models"
)

type ChannelStats struct {
	RawSent    int64 `json:"raw_sent"`
	RawDropped int64 `json:"raw_dropped"`
	Buffered   int   `json:"buffered"`
	Capacity   int   `json:"capacity"`
}

// Channels carries raw venue payloads from readers to the processor.
type Channels struct {
	Raw chan models.RawSnapshotMessage

	stats      ChannelStats
	statsMutex sync.RWMutex
	closeOnce  sync.Once
	log        *logger.Log
}

func NewChannels(rawBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw: make(chan models.RawSnapshotMessage, rawBufferSize),
		log: log,
	}
	log.WithComponent("channels").WithFields(logger.Fields{
		"raw_buffer_size": rawBufferSize,
	}).Info("snapshot channels initialized")
	return c
}

// SendRaw enqueues msg without blocking. A full buffer drops the message and
// records a drop metric; a cancelled ctx returns false without counting a drop.
func (c *Channels) SendRaw(ctx context.Context, msg models.RawSnapshotMessage) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}

	select {
	case c.Raw <- msg:
		c.statsMutex.Lock()
		c.stats.RawSent++
		c.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		return false
	default:
		c.statsMutex.Lock()
		c.stats.RawDropped++
		c.statsMutex.Unlock()
		metrics.EmitDropMetric(c.log, metrics.StageRaw, string(msg.Venue), msg.Symbol)
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	st := c.stats
	c.statsMutex.RUnlock()
	st.Buffered = len(c.Raw)
	st.Capacity = cap(c.Raw)
	return st
}

// StartMetricsReporting emits the buffer occupancy every interval until ctx is done.
func (c *Channels) StartMetricsReporting(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := c.GetStats()
				metrics.RecordChannelDepth(c.log, "raw", st.Buffered, st.Capacity)
			}
		}
	}()
}

// Close closes the raw channel. Only call once every producer has stopped.
func (c *Channels) Close() {
	c.closeOnce.Do(func() {
		close(c.Raw)
		c.log.WithComponent("channels").Info("snapshot channels closed")
	})
}
