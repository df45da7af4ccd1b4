package logger

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Closer allows flushing and stopping the async handler.
type Closer interface {
	Close()
}

type nopCloser struct{}

func (nopCloser) Close() {}

// asyncRecord keeps the request id alongside the record because the
// caller's context is gone by the time a worker handles it.
type asyncRecord struct {
	rec       slog.Record
	requestID string
	inner     slog.Handler
}

// queue is shared by an AsyncHandler and every handler derived from it.
type queue struct {
	mu      sync.RWMutex
	ch      chan asyncRecord
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// AsyncHandler moves record formatting off the hot path (websocket fan-out,
// move requests) onto a small worker pool. Records are dropped, and counted,
// when the buffer is full.
type AsyncHandler struct {
	inner slog.Handler
	q     *queue
}

// NewAsyncHandler creates an AsyncHandler with the given channel capacity and worker count.
func NewAsyncHandler(inner slog.Handler, chanSize, workers int) *AsyncHandler {
	q := &queue{ch: make(chan asyncRecord, chanSize)}
	for range workers {
		q.wg.Add(1)
		go q.drain()
	}
	return &AsyncHandler{inner: inner, q: q}
}

func (q *queue) drain() {
	defer q.wg.Done()
	for ar := range q.ch {
		ctx := context.Background()
		if ar.requestID != "" {
			ctx = WithRequestID(ctx, ar.requestID)
		}
		_ = ar.inner.Handle(ctx, ar.rec)
	}
}

// Enabled delegates to the inner handler.
func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle enqueues the record. Drops if the channel is full or the handler is closed.
func (h *AsyncHandler) Handle(ctx context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	h.q.mu.RLock()
	defer h.q.mu.RUnlock()
	if h.q.closed {
		h.q.dropped.Add(1)
		return nil
	}
	select {
	case h.q.ch <- asyncRecord{rec: rec.Clone(), requestID: RequestID(ctx), inner: h.inner}:
	default:
		h.q.dropped.Add(1)
	}
	return nil
}

// WithAttrs shares the queue and workers but wraps a derived inner handler.
func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithAttrs(attrs), q: h.q}
}

// WithGroup shares the queue and workers but wraps a derived inner handler.
func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{inner: h.inner.WithGroup(name), q: h.q}
}

// DroppedCount returns the number of dropped records.
func (h *AsyncHandler) DroppedCount() int64 {
	return h.q.dropped.Load()
}

// Close stops accepting records and waits for the workers to drain. Safe to call twice.
func (h *AsyncHandler) Close() {
	h.q.mu.Lock()
	if h.q.closed {
		h.q.mu.Unlock()
		return
	}
	h.q.closed = true
	close(h.q.ch)
	h.q.mu.Unlock()
	h.q.wg.Wait()
}
