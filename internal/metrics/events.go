package metrics

import (
	"sync"
	"time"

	"pressureflow/logger"
)

// Kind classifies pipeline events.
type Kind string

const (
	KindPass    Kind = "pass"
	KindDrop    Kind = "drop"
	KindLimit   Kind = "limit"
	KindChannel Kind = "channel"
)

// metricType is the LogMetric type an event of this kind is logged as.
func (k Kind) metricType() string {
	switch k {
	case KindPass, KindChannel:
		return "gauge"
	default:
		return "counter"
	}
}

// Event is one observation from the pipeline: an analysis pass, a dropped
// message, a venue limit hit or a channel depth sample.
type Event struct {
	At        time.Time     `json:"at"`
	Kind      Kind          `json:"kind"`
	Component string        `json:"component"`
	Name      string        `json:"name"`
	Value     float64       `json:"value"`
	Venue     string        `json:"venue,omitempty"`
	Symbol    string        `json:"symbol,omitempty"`
	Fields    logger.Fields `json:"fields,omitempty"`
}

// Observer receives every recorded event. It runs on the recording goroutine.
type Observer func(Event)

// Observers is a set of subscribed observers. The zero value is ready to use.
type Observers struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]Observer
}

// Subscribe adds fn and returns the function that removes it.
func (o *Observers) Subscribe(fn Observer) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	o.mu.Lock()
	if o.subs == nil {
		o.subs = make(map[uint64]Observer)
	}
	o.next++
	id := o.next
	o.subs[id] = fn
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.subs, id)
			o.mu.Unlock()
		})
	}
}

// Len reports the number of subscribed observers.
func (o *Observers) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.subs)
}

func (o *Observers) notify(e Event) {
	o.mu.RLock()
	fns := make([]Observer, 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.mu.RUnlock()

	for _, fn := range fns {
		fn(e)
	}
}

var observers Observers

// Subscribe registers fn for every event recorded through this package.
func Subscribe(fn Observer) (unsubscribe func()) {
	return observers.Subscribe(fn)
}

// Record logs e through LogMetric, which also forwards it to CloudWatch when
// enabled, and hands it to the observers. Events without a name are ignored.
func Record(log *logger.Log, e Event) {
	if e.Name == "" {
		return
	}
	if log == nil {
		log = logger.GetLogger()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}

	fields := make(logger.Fields, len(e.Fields)+3)
	for k, v := range e.Fields {
		fields[k] = v
	}
	fields["kind"] = string(e.Kind)
	if e.Venue != "" {
		fields["venue"] = e.Venue
	}
	if e.Symbol != "" {
		fields["symbol"] = e.Symbol
	}
	log.LogMetric(e.Component, e.Name, e.Value, e.Kind.metricType(), fields)

	observers.notify(e)
}

// RecordPass feeds one analysis pass to Prometheus and the observers.
func RecordPass(log *logger.Log, symbol string, duration time.Duration, zones, window int) {
	ObservePass(duration, zones, window)
	Record(log, Event{
		Kind:      KindPass,
		Component: "analyzer",
		Name:      "zones_emitted",
		Value:     float64(zones),
		Symbol:    symbol,
		Fields: logger.Fields{
			"window":      window,
			"duration_ms": float64(duration.Microseconds()) / 1000,
		},
	})
}

// RecordChannelDepth samples the occupancy of a buffered channel.
func RecordChannelDepth(log *logger.Log, channel string, buffered, capacity int) {
	Record(log, Event{
		Kind:      KindChannel,
		Component: "channels",
		Name:      channel + "_buffer_length",
		Value:     float64(buffered),
		Fields:    logger.Fields{"capacity": capacity},
	})
}
