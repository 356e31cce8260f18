package buffer

import (
	"errors"
	"fmt"
)

var (
	// ErrPartialWrite means the store accepted only part of a batch
	ErrPartialWrite = errors.New("partial batch write")
	// ErrTotalWrite means the batch write call itself failed
	ErrTotalWrite = errors.New("batch write failed")
)

// WriteError describes a flush that did not persist every record
type WriteError struct {
	Kind      error // ErrPartialWrite or ErrTotalWrite
	Count     int   // records not written
	Submitted int
	Err       error
}

func (e *WriteError) Error() string {
	if errors.Is(e.Kind, ErrPartialWrite) {
		return fmt.Sprintf("%v: %d of %d records unprocessed", e.Kind, e.Count, e.Submitted)
	}
	return fmt.Sprintf("%v: %d records lost: %v", e.Kind, e.Count, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

func (e *WriteError) Is(target error) bool {
	return target == e.Kind
}

// FlushResult reports the outcome of one flush
type FlushResult struct {
	Submitted   int
	Unprocessed int
	Err         error
}

// Stats are cumulative buffer counters. Submitted always equals
// Written + Dropped + DeadLettered.
type Stats struct {
	Flushes      int
	Submitted    int
	Written      int
	Unprocessed  int
	Dropped      int
	DeadLettered int
}

// Merge adds other into s
func (s *Stats) Merge(other Stats) {
	s.Flushes += other.Flushes
	s.Submitted += other.Submitted
	s.Written += other.Written
	s.Unprocessed += other.Unprocessed
	s.Dropped += other.Dropped
	s.DeadLettered += other.DeadLettered
}
