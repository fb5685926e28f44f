package clickhouse

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-oracle-lab/internal/domain"
	"price-oracle-lab/internal/storage"
)

func TestBucketAggregateStore_InsertAndGetByAccount(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewBucketAggregateStore(conn)

	rows := []*domain.BucketAggregate{
		{AccountPubkey: "pk1", StartTime: 3600, Granularity: 1800, AvgPrice: 101.5, AvgConf: 0.4, Count: 7, Exponent: -8},
		{AccountPubkey: "pk1", StartTime: 1800, Granularity: 1800, AvgPrice: 100.25, AvgConf: 0.5, Count: 4, Exponent: -8},
		{AccountPubkey: "pk2", StartTime: 1800, Granularity: 1800, AvgPrice: 55, AvgConf: 1.5, Count: 2, Exponent: -6},
	}
	require.NoError(t, store.InsertBulk(ctx, rows))

	got, err := store.GetByAccount(ctx, "pk1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1800), got[0].StartTime)
	assert.Equal(t, int64(3600), got[1].StartTime)
	assert.Equal(t, 100.25, got[0].AvgPrice)
	assert.Equal(t, uint32(7), got[1].Count)
	assert.Equal(t, int32(-8), got[1].Exponent)
}

func TestBucketAggregateStore_GetByTimeRange(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewBucketAggregateStore(conn)

	rows := []*domain.BucketAggregate{
		{AccountPubkey: "pk1", StartTime: 1800, Granularity: 1800, AvgPrice: 1},
		{AccountPubkey: "pk1", StartTime: 3600, Granularity: 1800, AvgPrice: 2},
		{AccountPubkey: "pk1", StartTime: 5400, Granularity: 1800, AvgPrice: 3},
	}
	require.NoError(t, store.InsertBulk(ctx, rows))

	got, err := store.GetByTimeRange(ctx, "pk1", 1800, 3600)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1800), got[0].StartTime)
	assert.Equal(t, int64(3600), got[1].StartTime)
}

func TestBucketAggregateStore_ReExportKeepsNewest(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewBucketAggregateStore(conn)

	require.NoError(t, store.InsertBulk(ctx, []*domain.BucketAggregate{
		{AccountPubkey: "pk1", StartTime: 1800, Granularity: 1800, AvgPrice: 9, Count: 2},
	}))
	require.NoError(t, store.InsertBulk(ctx, []*domain.BucketAggregate{
		{AccountPubkey: "pk1", StartTime: 1800, Granularity: 1800, AvgPrice: 9.5, Count: 5},
	}))

	// FINAL collapses ReplacingMergeTree duplicates to the newest row.
	got, err := store.GetByAccount(ctx, "pk1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint32(5), got[0].Count)
}

func TestBucketAggregateStore_EmptyInsert(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBucketAggregateStore(conn)
	require.NoError(t, store.InsertBulk(context.Background(), nil))
}

func TestBucketAggregateStore_InvalidInput(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBucketAggregateStore(conn)
	err := store.InsertBulk(context.Background(), []*domain.BucketAggregate{{}})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
