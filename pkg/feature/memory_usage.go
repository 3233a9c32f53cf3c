package feature

import (
	"context"
	"maps"
	"sync"
)

// MemoryUsageStorage is an in-memory, append-only implementation of the
// UsageStorage port. Records are copied on write and on read so they stay
// immutable once stored.
type MemoryUsageStorage struct {
	mu      sync.RWMutex
	records []UsageRecord
}

// NewMemoryUsageStorage creates an empty in-memory usage storage.
func NewMemoryUsageStorage() *MemoryUsageStorage {
	return &MemoryUsageStorage{}
}

// Append stores one usage record.
func (s *MemoryUsageStorage) Append(ctx context.Context, rec UsageRecord) error {
	stored := copyUsageRecord(rec)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, stored)
	return nil
}

// Query returns copies of all records matching the criteria, in insertion
// order.
func (s *MemoryUsageStorage) Query(ctx context.Context, criteria UsageCriteria) ([]UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []UsageRecord
	for _, rec := range s.records {
		if criteria.FlagID != "" && rec.FlagID != criteria.FlagID {
			continue
		}
		if criteria.ExperimentID != "" && rec.ExperimentID != criteria.ExperimentID {
			continue
		}
		if !criteria.From.IsZero() && rec.CreatedAt.Before(criteria.From) {
			continue
		}
		if !criteria.To.IsZero() && rec.CreatedAt.After(criteria.To) {
			continue
		}
		result = append(result, copyUsageRecord(rec))
	}
	return result, nil
}

func copyUsageRecord(rec UsageRecord) UsageRecord {
	c := rec
	if rec.Metadata != nil {
		c.Metadata = maps.Clone(rec.Metadata)
	}
	return c
}
