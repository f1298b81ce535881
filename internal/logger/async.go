package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// asyncQueueSize holds roughly a second of peak hook traffic; ingest
// logs one line per event plus the request line.
const asyncQueueSize = 4096

// Closer flushes and stops the async handler. Synchronous mode returns
// a no-op.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// AsyncHandler decouples record emission from I/O so the ingest path
// never waits on a slow stdout. A full queue drops the record; drops
// are counted and summarized when the handler shuts down.
type AsyncHandler struct {
	inner   slog.Handler
	queue   chan slog.Record
	done    chan struct{}
	stop    *sync.Once
	dropped *atomic.Int64
}

// NewAsyncHandler wraps inner with a bounded queue drained by a single
// goroutine. Records keep their original order.
func NewAsyncHandler(inner slog.Handler, queueSize int) *AsyncHandler {
	h := &AsyncHandler{
		inner:   inner,
		queue:   make(chan slog.Record, queueSize),
		done:    make(chan struct{}),
		stop:    &sync.Once{},
		dropped: &atomic.Int64{},
	}
	go h.drain()
	return h
}

func (h *AsyncHandler) drain() {
	defer close(h.done)
	for rec := range h.queue {
		_ = h.inner.Handle(context.Background(), rec)
	}
	if n := h.dropped.Load(); n > 0 {
		rec := slog.NewRecord(time.Now(), slog.LevelWarn, "log records dropped under load", 0)
		rec.AddAttrs(slog.Int64("dropped", n))
		_ = h.inner.Handle(context.Background(), rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record and returns immediately. When the queue
// is full the record is dropped rather than blocking the caller.
func (h *AsyncHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	select {
	case h.queue <- rec:
	default:
		h.dropped.Add(1)
	}
	return nil
}

// WithAttrs derives a handler over the same queue with extra attributes
// on the inner handler.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{
		inner:   h.inner.WithAttrs(attrs),
		queue:   h.queue,
		done:    h.done,
		stop:    h.stop,
		dropped: h.dropped,
	}
}

// WithGroup derives a handler over the same queue with a group opened
// on the inner handler.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{
		inner:   h.inner.WithGroup(name),
		queue:   h.queue,
		done:    h.done,
		stop:    h.stop,
		dropped: h.dropped,
	}
}

// DroppedCount returns the number of records dropped so far.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.dropped.Load()
}

// Close stops accepting records and blocks until the queue is drained.
// Safe to call from any derived handler, once or more.
func (h *AsyncHandler) Close() {
	h.stop.Do(func() { close(h.queue) })
	<-h.done
}
