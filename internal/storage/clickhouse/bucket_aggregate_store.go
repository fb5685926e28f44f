package clickhouse

import (
	"context"
	"fmt"

	"price-oracle-lab/internal/domain"
	"price-oracle-lab/internal/storage"
)

// BucketAggregateStore implements storage.BucketAggregateStore using
// ClickHouse. The table is a ReplacingMergeTree ordered by
// (account_pubkey, start_time), so re-exported windows collapse to the
// newest row.
type BucketAggregateStore struct {
	conn *Conn
}

// NewBucketAggregateStore creates a new BucketAggregateStore.
func NewBucketAggregateStore(conn *Conn) *BucketAggregateStore {
	return &BucketAggregateStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BucketAggregateStore = (*BucketAggregateStore)(nil)

// InsertBulk adds multiple aggregates in one batch.
func (s *BucketAggregateStore) InsertBulk(ctx context.Context, rows []*domain.BucketAggregate) error {
	if len(rows) == 0 {
		return nil
	}

	for _, row := range rows {
		if row == nil || row.AccountPubkey == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO bucket_aggregates (
			account_pubkey, start_time, granularity, avg_price, avg_conf, obs_count, exponent
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare bucket aggregate batch: %w", err)
	}

	for _, row := range rows {
		err := batch.Append(
			row.AccountPubkey,
			row.StartTime,
			row.Granularity,
			row.AvgPrice,
			row.AvgConf,
			row.Count,
			row.Exponent,
		)
		if err != nil {
			return fmt.Errorf("append bucket aggregate: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send bucket aggregate batch: %w", err)
	}

	return nil
}

// GetByAccount retrieves all aggregates for an account, ordered by window
// start ASC.
func (s *BucketAggregateStore) GetByAccount(ctx context.Context, pubkey string) ([]*domain.BucketAggregate, error) {
	query := `
		SELECT account_pubkey, start_time, granularity, avg_price, avg_conf, obs_count, exponent
		FROM bucket_aggregates FINAL
		WHERE account_pubkey = ?
		ORDER BY start_time ASC
	`
	return s.query(ctx, query, pubkey)
}

// GetByTimeRange retrieves aggregates for an account with window start
// within [start, end] (inclusive).
func (s *BucketAggregateStore) GetByTimeRange(ctx context.Context, pubkey string, start, end int64) ([]*domain.BucketAggregate, error) {
	query := `
		SELECT account_pubkey, start_time, granularity, avg_price, avg_conf, obs_count, exponent
		FROM bucket_aggregates FINAL
		WHERE account_pubkey = ? AND start_time >= ? AND start_time <= ?
		ORDER BY start_time ASC
	`
	return s.query(ctx, query, pubkey, start, end)
}

// query runs a select and scans the rows.
func (s *BucketAggregateStore) query(ctx context.Context, query string, args ...any) ([]*domain.BucketAggregate, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bucket aggregates: %w", err)
	}
	defer rows.Close()

	var result []*domain.BucketAggregate
	for rows.Next() {
		var row domain.BucketAggregate
		err := rows.Scan(
			&row.AccountPubkey,
			&row.StartTime,
			&row.Granularity,
			&row.AvgPrice,
			&row.AvgConf,
			&row.Count,
			&row.Exponent,
		)
		if err != nil {
			return nil, fmt.Errorf("scan bucket aggregate row: %w", err)
		}
		result = append(result, &row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bucket aggregate rows: %w", err)
	}

	return result, nil
}
