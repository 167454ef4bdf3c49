package metrics

import "pressureflow/logger"

// Drop stages.
const (
	StageRaw     = "raw"
	StagePublish = "publish"
)

// EmitDropMetric records one dropped message. Call once per dropped message.
func EmitDropMetric(log *logger.Log, stage, venue, symbol string) {
	messagesDropped.WithLabelValues(venue, stage).Inc()

	Record(log, Event{
		Kind:      KindDrop,
		Component: "channel_drops",
		Name:      "messages_dropped",
		Value:     1,
		Venue:     venue,
		Symbol:    symbol,
		Fields:    logger.Fields{"stage": stage},
	})
}
