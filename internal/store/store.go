// Package store persists inventory records in a key-value table whose rows
// expire on their own.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jlgore/tagsweep/pkg/models"
)

// MaxBatchSize is the largest group accepted by BatchUpsert
const MaxBatchSize = 25

// ErrBatchTooLarge is returned without contacting the backend
var ErrBatchTooLarge = errors.New("batch exceeds maximum size")

// Writer upserts records keyed by ARN (and account when set).
type Writer interface {
	// Upsert writes a single record, replacing any previous version
	Upsert(ctx context.Context, rec models.InventoryRecord) error

	// BatchUpsert writes up to MaxBatchSize records in one request. On partial
	// acceptance it returns the records the backend did not process and a nil
	// error; a non-nil error means the whole request failed.
	BatchUpsert(ctx context.Context, recs []models.InventoryRecord) ([]models.InventoryRecord, error)
}

// DeadLetter keeps records a Writer could not persist
type DeadLetter interface {
	Put(ctx context.Context, recs []models.InventoryRecord) error
}

func checkBatch(recs []models.InventoryRecord) error {
	if len(recs) > MaxBatchSize {
		return fmt.Errorf("%w: %d records, limit %d", ErrBatchTooLarge, len(recs), MaxBatchSize)
	}
	return nil
}
