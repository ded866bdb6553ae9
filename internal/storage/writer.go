package storage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"momentum_go/internal/domain"
)

const (
	defaultWriterBuffer = 4096
	writeTimeout        = 5 * time.Second
)

type record struct {
	trade  *domain.TradeRecord
	signal *domain.SignalRow
}

// Writer is an asynchronous domain.Sink over a Store. Appends never block
// the caller; when the buffer is full the row is dropped and counted.
type Writer struct {
	store   *Store
	inbox   chan record
	dropped atomic.Uint64
	failed  atomic.Uint64

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewWriter starts the background write loop.
func NewWriter(store *Store, buffer int) *Writer {
	if buffer <= 0 {
		buffer = defaultWriterBuffer
	}
	w := &Writer{store: store, inbox: make(chan record, buffer)}
	w.wg.Add(1)
	go w.run()
	return w
}

func (w *Writer) AppendTrade(rec domain.TradeRecord) {
	w.enqueue(record{trade: &rec})
}

func (w *Writer) AppendSignal(row domain.SignalRow) {
	w.enqueue(record{signal: &row})
}

func (w *Writer) enqueue(r record) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.dropped.Add(1)
		return
	}
	select {
	case w.inbox <- r:
	default:
		if n := w.dropped.Add(1); n == 1 || n%1000 == 0 {
			slog.Warn("Storage writer buffer full, dropping rows", slog.Uint64("dropped", n))
		}
	}
}

func (w *Writer) run() {
	defer w.wg.Done()
	for r := range w.inbox {
		w.write(r)
	}
}

func (w *Writer) write(r record) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var err error
	switch {
	case r.trade != nil:
		err = w.store.SaveTrade(ctx, *r.trade)
		if err != nil {
			slog.Error("Failed to persist trade",
				slog.String("id", r.trade.ID),
				slog.String("instance", r.trade.InstanceID),
				slog.Any("error", err))
		}
	case r.signal != nil:
		err = w.store.SaveSignal(ctx, *r.signal)
		if err != nil {
			slog.Warn("Failed to persist signal", slog.String("instance", r.signal.InstanceID), slog.Any("error", err))
		}
	}
	if err != nil {
		w.failed.Add(1)
	}
}

// Dropped is the number of rows discarded because the buffer was full or
// the writer was closed.
func (w *Writer) Dropped() uint64 { return w.dropped.Load() }

// Failed is the number of rows the store rejected.
func (w *Writer) Failed() uint64 { return w.failed.Load() }

// Close stops accepting rows and waits until buffered rows are written.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.inbox)
	w.mu.Unlock()
	w.wg.Wait()
}
