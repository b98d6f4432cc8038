package logging

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultAggregateInterval between summary records.
const DefaultAggregateInterval = 30 * time.Second

type counterKey struct {
	component string
	event     string
}

type counter struct {
	n    int64
	last []slog.Attr
}

// Aggregator counts noisy events (PTY chunks, dropped subscriber frames) and
// logs one "event_summary" record per event and window instead of one record
// per occurrence.
type Aggregator struct {
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu          sync.Mutex
	counters    map[counterKey]*counter
	windowStart time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewAggregator creates an aggregator flushing every interval. A nil logger
// drops the summaries.
func NewAggregator(logger *slog.Logger, interval time.Duration) *Aggregator {
	if interval <= 0 {
		interval = DefaultAggregateInterval
	}
	a := &Aggregator{
		logger:   logger,
		interval: interval,
		now:      time.Now,
		counters: make(map[counterKey]*counter),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	a.windowStart = a.now()
	return a
}

// Start runs the flush loop until Stop.
func (a *Aggregator) Start() {
	go func() {
		defer close(a.done)
		t := time.NewTicker(a.interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				a.Flush()
			case <-a.stop:
				return
			}
		}
	}()
}

// Stop ends the flush loop and writes what is still counted. Safe to call
// more than once; Start must have been called.
func (a *Aggregator) Stop() {
	a.stopOnce.Do(func() {
		close(a.stop)
		<-a.done
		a.Flush()
	})
}

// Record counts one occurrence. The attrs of the latest call are attached
// to the summary.
func (a *Aggregator) Record(component, event string, attrs ...slog.Attr) {
	k := counterKey{component, event}
	a.mu.Lock()
	c := a.counters[k]
	if c == nil {
		c = &counter{}
		a.counters[k] = c
	}
	c.n++
	if len(attrs) > 0 {
		c.last = attrs
	}
	a.mu.Unlock()
}

// Flush logs and resets the current window.
func (a *Aggregator) Flush() {
	now := a.now()
	a.mu.Lock()
	counters := a.counters
	window := now.Sub(a.windowStart)
	a.counters = make(map[counterKey]*counter)
	a.windowStart = now
	a.mu.Unlock()

	if a.logger == nil || len(counters) == 0 {
		return
	}

	keys := make([]counterKey, 0, len(counters))
	for k := range counters {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].component != keys[j].component {
			return keys[i].component < keys[j].component
		}
		return keys[i].event < keys[j].event
	})

	for _, k := range keys {
		c := counters[k]
		args := []any{
			slog.String("component", k.component),
			slog.String("event", k.event),
			slog.Int64("count", c.n),
			slog.Duration("window", window.Round(time.Millisecond)),
		}
		if secs := window.Seconds(); secs > 0 {
			args = append(args, slog.Float64("per_second", float64(c.n)/secs))
		}
		for _, attr := range c.last {
			args = append(args, attr)
		}
		a.logger.Info("event_summary", args...)
	}
}
