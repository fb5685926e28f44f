package storage

import (
	"context"

	"price-oracle-lab/internal/domain"
)

// PriceAccountStore persists raw price account images.
type PriceAccountStore interface {
	// Upsert inserts or replaces the account snapshot keyed by pubkey.
	Upsert(ctx context.Context, rec *domain.PriceAccountRecord) error

	// GetByPubkey retrieves an account by address. Returns ErrNotFound if
	// not exists.
	GetByPubkey(ctx context.Context, pubkey string) (*domain.PriceAccountRecord, error)

	// List retrieves all accounts, ordered by symbol.
	List(ctx context.Context) ([]*domain.PriceAccountRecord, error)
}

// BucketAggregateStore persists finalized time machine buckets for
// analytics.
type BucketAggregateStore interface {
	// InsertBulk adds multiple aggregates. Re-exporting the same
	// (account, start_time) window is allowed; backends keep the newest.
	InsertBulk(ctx context.Context, rows []*domain.BucketAggregate) error

	// GetByAccount retrieves all aggregates for an account, ordered by
	// window start ASC.
	GetByAccount(ctx context.Context, pubkey string) ([]*domain.BucketAggregate, error)

	// GetByTimeRange retrieves aggregates for an account with window
	// start within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, pubkey string, start, end int64) ([]*domain.BucketAggregate, error)
}
