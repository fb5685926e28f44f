package exporter

import (
	"context"
	"testing"
	"time"

	"price-oracle-lab/internal/ledger"
	"price-oracle-lab/internal/storage/memory"
	"price-oracle-lab/internal/timemachine"
)

var testAccount = ledger.Pubkey{0xcc, 1}

func TestExporter_CollectAndFlush(t *testing.T) {
	store := memory.NewBucketAggregateStore()
	e := New(store, nil)

	buckets := []timemachine.Bucket{
		{StartTime: 1800, LastUpdate: 1860, PriceWeightSum: 6000, ConfSum: 6, WeightSum: 60, Count: 3, Closed: true},
		{StartTime: 3600, LastUpdate: 3610, PriceWeightSum: 1100, ConfSum: 1, WeightSum: 10, Count: 1, Closed: true},
	}
	e.Collect(testAccount, -8, buckets)

	ctx := context.Background()
	if err := e.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	rows, err := store.GetByAccount(ctx, testAccount.String())
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("stored %d rows, want 2", len(rows))
	}
	if rows[0].AvgPrice != 100 {
		t.Errorf("avg price = %v, want 100", rows[0].AvgPrice)
	}
	if rows[0].AvgConf != 2 {
		t.Errorf("avg conf = %v, want 2", rows[0].AvgConf)
	}
	if rows[0].Count != 3 || rows[0].Exponent != -8 {
		t.Errorf("row = %+v", rows[0])
	}
	if rows[1].StartTime != 3600 {
		t.Errorf("second row start = %d", rows[1].StartTime)
	}
}

func TestExporter_FlushEmptyIsNoop(t *testing.T) {
	e := New(memory.NewBucketAggregateStore(), nil)
	if err := e.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func TestExporter_MaxBatchTriggersFlush(t *testing.T) {
	store := memory.NewBucketAggregateStore()
	e := New(store, &Config{FlushInterval: time.Hour, MaxBatch: 2})

	e.Collect(testAccount, -8, []timemachine.Bucket{
		{StartTime: 1800, WeightSum: 1, PriceWeightSum: 100, Count: 1, Closed: true},
		{StartTime: 3600, WeightSum: 1, PriceWeightSum: 100, Count: 1, Closed: true},
	})

	rows, err := store.GetByAccount(context.Background(), testAccount.String())
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("stored %d rows, want 2 after max batch flush", len(rows))
	}
}

func TestExporter_PeriodicFlush(t *testing.T) {
	store := memory.NewBucketAggregateStore()
	e := New(store, &Config{FlushInterval: 20 * time.Millisecond, MaxBatch: 1000})

	ctx := context.Background()
	e.Start(ctx)
	defer e.Close(ctx)

	e.Collect(testAccount, -8, []timemachine.Bucket{
		{StartTime: 1800, WeightSum: 1, PriceWeightSum: 100, Count: 1, Closed: true},
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rows, err := store.GetByAccount(ctx, testAccount.String())
		if err == nil && len(rows) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("periodic flush never happened")
}

func TestExporter_CloseFlushesRemainder(t *testing.T) {
	store := memory.NewBucketAggregateStore()
	e := New(store, &Config{FlushInterval: time.Hour, MaxBatch: 1000})

	ctx := context.Background()
	e.Start(ctx)

	e.Collect(testAccount, -8, []timemachine.Bucket{
		{StartTime: 1800, WeightSum: 1, PriceWeightSum: 100, Count: 1, Closed: true},
	})

	if err := e.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	rows, err := store.GetByAccount(ctx, testAccount.String())
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("stored %d rows, want 1 after close", len(rows))
	}
}
