package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Closer allows flushing and stopping the async handler.
type Closer interface {
	Close()
}

// nopCloser is a no-op Closer for synchronous mode.
type nopCloser struct{}

func (nopCloser) Close() {}

// asyncItem pairs a record with the handler derivation (attrs, groups)
// it was logged through, so derived attributes survive the queue.
type asyncItem struct {
	h   slog.Handler
	rec slog.Record
}

// asyncCore is the pipeline shared by a root AsyncHandler and every
// WithAttrs/WithGroup derivation of it.
type asyncCore struct {
	queue    chan asyncItem
	sink     slog.Handler // root inner, used for drop reports
	wg       sync.WaitGroup
	closeFn  sync.Once
	dropped  atomic.Int64
	reported atomic.Int64
}

// AsyncHandler keeps logging off the runner's hot path: records are
// queued and drained by a single goroutine so tool and stream events
// stay ordered in the output. When the queue is full, records are
// dropped rather than stalling a model turn — and the drops are
// self-reported: the next record that gets through is preceded by a
// warning carrying the number of records lost.
type AsyncHandler struct {
	inner slog.Handler
	core  *asyncCore
}

// NewAsyncHandler creates an AsyncHandler with the given queue capacity.
func NewAsyncHandler(inner slog.Handler, queueSize int) *AsyncHandler {
	if queueSize < 1 {
		queueSize = 1
	}
	core := &asyncCore{
		queue: make(chan asyncItem, queueSize),
		sink:  inner,
	}
	core.wg.Add(1)
	go core.drain()
	return &AsyncHandler{inner: inner, core: core}
}

// drain is the single consumer; it surfaces accumulated drops before
// the record that follows them.
func (c *asyncCore) drain() {
	defer c.wg.Done()
	for item := range c.queue {
		c.reportDrops()
		_ = item.h.Handle(context.Background(), item.rec)
	}
	c.reportDrops()
}

// reportDrops emits one warning for any drops not yet surfaced.
func (c *asyncCore) reportDrops() {
	total := c.dropped.Load()
	seen := c.reported.Swap(total)
	if delta := total - seen; delta > 0 {
		rec := slog.NewRecord(time.Now(), slog.LevelWarn, "log records dropped under backpressure", 0)
		rec.AddAttrs(slog.Int64("count", delta))
		_ = c.sink.Handle(context.Background(), rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record. Drops if the queue is full.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.core.queue <- asyncItem{h: h.inner, rec: rec}:
	default:
		h.core.dropped.Add(1)
	}
	return nil
}

// WithAttrs returns a handler sharing the same pipeline but carrying
// the derived attributes.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), core: h.core}
}

// WithGroup returns a handler sharing the same pipeline but carrying
// the derived group.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), core: h.core}
}

// DroppedCount returns the number of dropped records so far.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.core.dropped.Load()
}

// Close drains the queue, surfaces any trailing drops, and stops the
// consumer. Safe to call more than once.
func (h *AsyncHandler) Close() {
	h.core.closeFn.Do(func() { close(h.core.queue) })
	h.core.wg.Wait()
}
