package logger

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// captureHandler collects records for assertions.
type captureHandler struct {
	mu       sync.Mutex
	records  int
	messages []string
	delay    time.Duration
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, rec slog.Record) error {
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	h.mu.Lock()
	h.records++
	h.messages = append(h.messages, rec.Message)
	h.mu.Unlock()
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func (h *captureHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.records
}

func TestAsyncHandlerDeliversRecords(t *testing.T) {
	inner := &captureHandler{}
	ah := NewAsyncHandler(inner, 64)

	for range 10 {
		rec := slog.NewRecord(time.Now(), slog.LevelInfo, "ingest", 0)
		_ = ah.Handle(context.Background(), rec)
	}
	ah.Close()

	if got := inner.count(); got != 10 {
		t.Fatalf("expected 10 records after close, got %d", got)
	}
}

func TestAsyncHandlerNeverBlocksWhenFull(t *testing.T) {
	inner := &captureHandler{delay: 20 * time.Millisecond}
	ah := NewAsyncHandler(inner, 1)

	done := make(chan struct{})
	go func() {
		for range 30 {
			rec := slog.NewRecord(time.Now(), slog.LevelInfo, "flood", 0)
			_ = ah.Handle(context.Background(), rec)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(150 * time.Millisecond):
		t.Fatal("Handle blocked on a full channel")
	}

	ah.Close()
	if ah.DroppedCount() == 0 {
		t.Error("expected drops with a saturated channel")
	}
}

func TestAsyncHandlerSummarizesDropsOnClose(t *testing.T) {
	inner := &captureHandler{delay: 20 * time.Millisecond}
	ah := NewAsyncHandler(inner, 1)

	for range 10 {
		rec := slog.NewRecord(time.Now(), slog.LevelInfo, "flood", 0)
		_ = ah.Handle(context.Background(), rec)
	}
	ah.Close()

	inner.mu.Lock()
	defer inner.mu.Unlock()
	if len(inner.messages) == 0 {
		t.Fatal("expected at least one record")
	}
	last := inner.messages[len(inner.messages)-1]
	if last != "log records dropped under load" {
		t.Errorf("expected drop summary as final record, got %q", last)
	}
}

func TestAsyncHandlerCloseIsIdempotent(t *testing.T) {
	ah := NewAsyncHandler(&captureHandler{}, 8)
	derived, ok := ah.WithAttrs([]slog.Attr{slog.String("k", "v")}).(*AsyncHandler)
	if !ok {
		t.Fatal("WithAttrs did not return an AsyncHandler")
	}

	ah.Close()
	derived.Close() // shares the queue; must not panic
}
