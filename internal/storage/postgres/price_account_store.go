package postgres

import (
	"context"
	"fmt"
	"time"

	"price-oracle-lab/internal/domain"
	"price-oracle-lab/internal/storage"
)

// PriceAccountStore implements storage.PriceAccountStore using PostgreSQL.
type PriceAccountStore struct {
	pool *Pool
}

// NewPriceAccountStore creates a new PriceAccountStore.
func NewPriceAccountStore(pool *Pool) *PriceAccountStore {
	return &PriceAccountStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PriceAccountStore = (*PriceAccountStore)(nil)

// Upsert inserts or replaces the account snapshot keyed by pubkey.
func (s *PriceAccountStore) Upsert(ctx context.Context, rec *domain.PriceAccountRecord) error {
	if rec == nil || rec.Pubkey == "" {
		return storage.ErrInvalidInput
	}

	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO price_accounts (pubkey, owner, symbol, lamports, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (pubkey) DO UPDATE
		SET owner = EXCLUDED.owner,
		    symbol = EXCLUDED.symbol,
		    lamports = EXCLUDED.lamports,
		    data = EXCLUDED.data,
		    updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		rec.Pubkey,
		rec.Owner,
		rec.Symbol,
		int64(rec.Lamports),
		rec.Data,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert price account: %w", err)
	}
	return nil
}

// GetByPubkey retrieves an account by address. Returns ErrNotFound if not
// exists.
func (s *PriceAccountStore) GetByPubkey(ctx context.Context, pubkey string) (*domain.PriceAccountRecord, error) {
	query := `
		SELECT pubkey, owner, symbol, lamports, data, updated_at
		FROM price_accounts
		WHERE pubkey = $1
	`

	var rec domain.PriceAccountRecord
	var lamports int64
	err := s.pool.QueryRow(ctx, query, pubkey).Scan(
		&rec.Pubkey,
		&rec.Owner,
		&rec.Symbol,
		&lamports,
		&rec.Data,
		&rec.UpdatedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("account %s: %w", pubkey, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("get price account: %w", err)
	}
	rec.Lamports = uint64(lamports)

	return &rec, nil
}

// List retrieves all accounts, ordered by symbol.
func (s *PriceAccountStore) List(ctx context.Context) ([]*domain.PriceAccountRecord, error) {
	query := `
		SELECT pubkey, owner, symbol, lamports, data, updated_at
		FROM price_accounts
		ORDER BY symbol ASC, pubkey ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list price accounts: %w", err)
	}
	defer rows.Close()

	var result []*domain.PriceAccountRecord
	for rows.Next() {
		var rec domain.PriceAccountRecord
		var lamports int64
		err := rows.Scan(
			&rec.Pubkey,
			&rec.Owner,
			&rec.Symbol,
			&lamports,
			&rec.Data,
			&rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan price account row: %w", err)
		}
		rec.Lamports = uint64(lamports)
		result = append(result, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price account rows: %w", err)
	}

	return result, nil
}
