package logging

import (
	"log/slog"
	"sync"
	"time"
)

// burstKey identifies one high-rate event stream for batching.
type burstKey struct {
	Component string
	Event     string
}

// burstStats accumulates one window's worth of a stream: occurrence
// count, total payload bytes, and the most recent call's fields.
type burstStats struct {
	Count  int64
	Bytes  int64
	Fields []slog.Attr
}

// Aggregator batches high-rate events (output chunks, dispatches) and
// emits one summary line per stream per flush window. Logging every PTY
// chunk individually would drown the debug log during a busy burst.
type Aggregator struct {
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	streams map[burstKey]*burstStats

	done chan struct{}
	wg   sync.WaitGroup
}

// NewAggregator creates an aggregator that flushes every intervalSecs
// seconds. A nil logger drops recorded events.
func NewAggregator(logger *slog.Logger, intervalSecs int) *Aggregator {
	if intervalSecs <= 0 {
		intervalSecs = 30
	}
	return &Aggregator{
		logger:   logger,
		interval: time.Duration(intervalSecs) * time.Second,
		streams:  make(map[burstKey]*burstStats),
		done:     make(chan struct{}),
	}
}

// Start begins the background flush goroutine.
func (a *Aggregator) Start() {
	a.wg.Add(1)
	go a.flushLoop()
}

// Stop flushes remaining streams and stops the background goroutine.
func (a *Aggregator) Stop() {
	close(a.done)
	a.wg.Wait()
	a.flush()
}

// Record adds one occurrence with a payload size to a stream. Fields
// are kept from the most recent call (last-writer-wins for context).
func (a *Aggregator) Record(component, event string, size int, fields ...slog.Attr) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := burstKey{Component: component, Event: event}
	stats, ok := a.streams[key]
	if !ok {
		stats = &burstStats{}
		a.streams[key] = stats
	}
	stats.Count++
	stats.Bytes += int64(size)
	if len(fields) > 0 {
		stats.Fields = fields
	}
}

func (a *Aggregator) flushLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.flush()
		case <-a.done:
			return
		}
	}
}

func (a *Aggregator) flush() {
	a.mu.Lock()
	if len(a.streams) == 0 {
		a.mu.Unlock()
		return
	}
	streams := a.streams
	a.streams = make(map[burstKey]*burstStats)
	a.mu.Unlock()

	if a.logger == nil {
		return
	}

	for key, stats := range streams {
		attrs := []any{
			slog.String("component", key.Component),
			slog.String("event", key.Event),
			slog.Int64("count", stats.Count),
			slog.Int64("bytes", stats.Bytes),
			slog.Int("window_seconds", int(a.interval.Seconds())),
		}
		for _, f := range stats.Fields {
			attrs = append(attrs, f)
		}
		a.logger.Info("burst_summary", attrs...)
	}
}
