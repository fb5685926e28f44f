package memory

import (
	"context"
	"errors"
	"testing"

	"price-oracle-lab/internal/domain"
	"price-oracle-lab/internal/storage"
)

func TestPriceAccountStore_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewPriceAccountStore()

	rec := &domain.PriceAccountRecord{
		Pubkey:   "pk1",
		Owner:    "owner",
		Symbol:   "SOL/USD",
		Lamports: 1000,
		Data:     []byte{1, 2, 3},
	}
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetByPubkey(ctx, "pk1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Symbol != "SOL/USD" || got.Lamports != 1000 {
		t.Errorf("unexpected record: %+v", got)
	}

	// Mutating the returned copy must not affect the store.
	got.Data[0] = 99
	again, _ := s.GetByPubkey(ctx, "pk1")
	if again.Data[0] != 1 {
		t.Error("store data aliased to caller slice")
	}
}

func TestPriceAccountStore_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewPriceAccountStore()

	_ = s.Upsert(ctx, &domain.PriceAccountRecord{Pubkey: "pk1", Data: []byte{1}})
	_ = s.Upsert(ctx, &domain.PriceAccountRecord{Pubkey: "pk1", Data: []byte{1, 2}})

	got, err := s.GetByPubkey(ctx, "pk1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Data) != 2 {
		t.Errorf("expected replaced data, got %v", got.Data)
	}
}

func TestPriceAccountStore_GetMissing(t *testing.T) {
	s := NewPriceAccountStore()
	_, err := s.GetByPubkey(context.Background(), "nope")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPriceAccountStore_InvalidInput(t *testing.T) {
	s := NewPriceAccountStore()
	if err := s.Upsert(context.Background(), &domain.PriceAccountRecord{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestPriceAccountStore_ListOrdered(t *testing.T) {
	ctx := context.Background()
	s := NewPriceAccountStore()

	_ = s.Upsert(ctx, &domain.PriceAccountRecord{Pubkey: "b", Symbol: "ETH/USD"})
	_ = s.Upsert(ctx, &domain.PriceAccountRecord{Pubkey: "a", Symbol: "BTC/USD"})
	_ = s.Upsert(ctx, &domain.PriceAccountRecord{Pubkey: "c", Symbol: "SOL/USD"})

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 records, got %d", len(list))
	}
	if list[0].Symbol != "BTC/USD" || list[2].Symbol != "SOL/USD" {
		t.Errorf("unexpected order: %s, %s, %s", list[0].Symbol, list[1].Symbol, list[2].Symbol)
	}
}
