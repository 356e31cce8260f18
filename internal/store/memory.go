package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jlgore/tagsweep/pkg/models"
)

// MemoryStore keeps records in a map. It backs dry runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]models.InventoryRecord
	batches [][]models.InventoryRecord

	// Reject, when set, decides per record whether BatchUpsert leaves it unprocessed
	Reject func(models.InventoryRecord) bool
	// Err, when set, fails every write
	Err error
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.InventoryRecord)}
}

// Upsert implements Writer
func (m *MemoryStore) Upsert(ctx context.Context, rec models.InventoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}
	m.records[rec.Key()] = rec
	return nil
}

// BatchUpsert implements Writer
func (m *MemoryStore) BatchUpsert(ctx context.Context, recs []models.InventoryRecord) ([]models.InventoryRecord, error) {
	if err := checkBatch(recs); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.batches = append(m.batches, append([]models.InventoryRecord(nil), recs...))
	if m.Err != nil {
		return nil, m.Err
	}

	var unprocessed []models.InventoryRecord
	for _, rec := range recs {
		if m.Reject != nil && m.Reject(rec) {
			unprocessed = append(unprocessed, rec)
			continue
		}
		m.records[rec.Key()] = rec
	}
	return unprocessed, nil
}

// Batches returns a copy of every batch received, including failed ones
func (m *MemoryStore) Batches() [][]models.InventoryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]models.InventoryRecord, len(m.batches))
	copy(out, m.batches)
	return out
}

// Records returns the stored records ordered by key
func (m *MemoryStore) Records() []models.InventoryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.InventoryRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Get returns the record stored under key
func (m *MemoryStore) Get(key string) (models.InventoryRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	return rec, ok
}

// PurgeExpired drops records whose expiry has passed, the way the table TTL would
func (m *MemoryStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key, rec := range m.records {
		if rec.Expired(now) {
			delete(m.records, key)
			n++
		}
	}
	return n, nil
}
