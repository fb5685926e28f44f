package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"price-oracle-lab/internal/domain"
	"price-oracle-lab/internal/storage"
)

// BucketAggregateStore is an in-memory implementation of
// storage.BucketAggregateStore.
type BucketAggregateStore struct {
	mu   sync.RWMutex
	data map[string]*domain.BucketAggregate // keyed by (pubkey, start_time)
}

// NewBucketAggregateStore creates a new in-memory bucket aggregate store.
func NewBucketAggregateStore() *BucketAggregateStore {
	return &BucketAggregateStore{
		data: make(map[string]*domain.BucketAggregate),
	}
}

// Compile-time interface check.
var _ storage.BucketAggregateStore = (*BucketAggregateStore)(nil)

// bucketKey generates a unique key for an aggregate row.
func bucketKey(pubkey string, startTime int64) string {
	return fmt.Sprintf("%s|%d", pubkey, startTime)
}

// InsertBulk adds multiple aggregates; re-exported windows replace the
// previous row.
func (s *BucketAggregateStore) InsertBulk(_ context.Context, rows []*domain.BucketAggregate) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		if row == nil || row.AccountPubkey == "" {
			return storage.ErrInvalidInput
		}
	}
	for _, row := range rows {
		rowCopy := *row
		s.data[bucketKey(row.AccountPubkey, row.StartTime)] = &rowCopy
	}

	return nil
}

// GetByAccount retrieves all aggregates for an account, ordered by window
// start ASC.
func (s *BucketAggregateStore) GetByAccount(_ context.Context, pubkey string) ([]*domain.BucketAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BucketAggregate
	for _, row := range s.data {
		if row.AccountPubkey == pubkey {
			rowCopy := *row
			result = append(result, &rowCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime < result[j].StartTime
	})

	return result, nil
}

// GetByTimeRange retrieves aggregates for an account with window start
// within [start, end] (inclusive).
func (s *BucketAggregateStore) GetByTimeRange(_ context.Context, pubkey string, start, end int64) ([]*domain.BucketAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.BucketAggregate
	for _, row := range s.data {
		if row.AccountPubkey == pubkey && row.StartTime >= start && row.StartTime <= end {
			rowCopy := *row
			result = append(result, &rowCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime < result[j].StartTime
	})

	return result, nil
}
