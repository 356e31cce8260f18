// Package buffer groups inventory records into bounded batch writes.
//
// A flush always empties the buffer. Records the store reports as unprocessed,
// and every record of a batch whose write failed outright, are dropped after a
// warning unless a dead letter is configured. The store remains the source of
// truth: the next scan writes the resources again.
package buffer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jlgore/tagsweep/internal/store"
	"github.com/jlgore/tagsweep/pkg/models"
)

// DefaultCapacity matches the largest batch the store accepts
const DefaultCapacity = store.MaxBatchSize

// Buffer accumulates records and writes them in groups of at most Capacity.
// It is safe for concurrent use.
type Buffer struct {
	mu         sync.Mutex
	writer     store.Writer
	deadLetter store.DeadLetter
	logger     *slog.Logger
	capacity   int
	records    []models.InventoryRecord
	stats      Stats
}

// Option configures a Buffer
type Option func(*Buffer)

// WithCapacity sets the flush threshold. Values outside 1..store.MaxBatchSize
// are clamped.
func WithCapacity(n int) Option {
	return func(b *Buffer) {
		b.capacity = min(max(n, 1), store.MaxBatchSize)
	}
}

// WithDeadLetter keeps records that could not be written instead of dropping them
func WithDeadLetter(dl store.DeadLetter) Option {
	return func(b *Buffer) {
		b.deadLetter = dl
	}
}

// WithLogger sets the logger for write warnings
func WithLogger(logger *slog.Logger) Option {
	return func(b *Buffer) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a buffer writing to w
func New(w store.Writer, opts ...Option) *Buffer {
	b := &Buffer{
		writer:   w,
		logger:   slog.Default(),
		capacity: DefaultCapacity,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.records = make([]models.InventoryRecord, 0, b.capacity)
	return b
}

// Capacity returns the flush threshold
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Len returns the number of records waiting to be flushed
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Stats returns the counters accumulated so far
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Add appends rec and flushes when the buffer reaches capacity. The returned
// error is the write error of that flush, if any; the record is never rejected.
func (b *Buffer) Add(ctx context.Context, rec models.InventoryRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.records = append(b.records, rec)
	if len(b.records) < b.capacity {
		return nil
	}
	return b.flushLocked(ctx).Err
}

// Flush writes the buffered records as one batch. Empty buffers are a no-op.
func (b *Buffer) Flush(ctx context.Context) FlushResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushLocked(ctx)
}

// ForceFlush drains whatever is left below capacity. It is called once a
// region or run is done.
func (b *Buffer) ForceFlush(ctx context.Context) FlushResult {
	return b.Flush(ctx)
}

func (b *Buffer) flushLocked(ctx context.Context) FlushResult {
	if len(b.records) == 0 {
		return FlushResult{}
	}

	batch := b.records
	b.records = make([]models.InventoryRecord, 0, b.capacity)

	b.stats.Flushes++
	b.stats.Submitted += len(batch)

	unprocessed, err := b.writer.BatchUpsert(ctx, batch)
	if err != nil {
		werr := &WriteError{Kind: ErrTotalWrite, Count: len(batch), Submitted: len(batch), Err: err}
		b.logger.WarnContext(ctx, "batch write failed, buffered records lost",
			"count", len(batch),
			"error", err,
		)
		b.salvage(ctx, batch)
		return FlushResult{Submitted: len(batch), Unprocessed: len(batch), Err: werr}
	}

	b.stats.Written += len(batch) - len(unprocessed)
	if len(unprocessed) == 0 {
		return FlushResult{Submitted: len(batch)}
	}

	b.stats.Unprocessed += len(unprocessed)
	b.logger.WarnContext(ctx, "batch write left records unprocessed",
		"unprocessed", len(unprocessed),
		"submitted", len(batch),
	)
	b.salvage(ctx, unprocessed)

	return FlushResult{
		Submitted:   len(batch),
		Unprocessed: len(unprocessed),
		Err:         &WriteError{Kind: ErrPartialWrite, Count: len(unprocessed), Submitted: len(batch)},
	}
}

// salvage hands lost records to the dead letter, or counts them as dropped
func (b *Buffer) salvage(ctx context.Context, recs []models.InventoryRecord) {
	if b.deadLetter == nil {
		b.stats.Dropped += len(recs)
		return
	}

	if err := b.deadLetter.Put(ctx, recs); err != nil {
		b.logger.ErrorContext(ctx, "dead letter write failed, records dropped",
			"count", len(recs),
			"error", err,
		)
		b.stats.Dropped += len(recs)
		return
	}
	b.stats.DeadLettered += len(recs)
}
