package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"price-oracle-lab/internal/domain"
	"price-oracle-lab/internal/storage"
)

// PriceAccountStore is an in-memory implementation of
// storage.PriceAccountStore.
type PriceAccountStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PriceAccountRecord // keyed by pubkey
}

// NewPriceAccountStore creates a new in-memory price account store.
func NewPriceAccountStore() *PriceAccountStore {
	return &PriceAccountStore{
		data: make(map[string]*domain.PriceAccountRecord),
	}
}

// Compile-time interface check.
var _ storage.PriceAccountStore = (*PriceAccountStore)(nil)

// Upsert inserts or replaces the account snapshot keyed by pubkey.
func (s *PriceAccountStore) Upsert(_ context.Context, rec *domain.PriceAccountRecord) error {
	if rec == nil || rec.Pubkey == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recCopy := *rec
	recCopy.Data = append([]byte(nil), rec.Data...)
	if recCopy.UpdatedAt.IsZero() {
		recCopy.UpdatedAt = time.Now().UTC()
	}
	s.data[rec.Pubkey] = &recCopy
	return nil
}

// GetByPubkey retrieves an account by address.
func (s *PriceAccountStore) GetByPubkey(_ context.Context, pubkey string) (*domain.PriceAccountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.data[pubkey]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", pubkey, storage.ErrNotFound)
	}
	recCopy := *rec
	recCopy.Data = append([]byte(nil), rec.Data...)
	return &recCopy, nil
}

// List retrieves all accounts, ordered by symbol.
func (s *PriceAccountStore) List(_ context.Context) ([]*domain.PriceAccountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.PriceAccountRecord, 0, len(s.data))
	for _, rec := range s.data {
		recCopy := *rec
		recCopy.Data = append([]byte(nil), rec.Data...)
		result = append(result, &recCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Symbol != result[j].Symbol {
			return result[i].Symbol < result[j].Symbol
		}
		return result[i].Pubkey < result[j].Pubkey
	})

	return result, nil
}
