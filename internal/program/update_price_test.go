package program

import (
	"bytes"
	"errors"
	"testing"

	"price-oracle-lab/internal/ledger"
	"price-oracle-lab/internal/oracle"
	"price-oracle-lab/internal/timemachine"
)

const t0 = int64(1_700_000_000) / timemachine.ThirtyMinutes * timemachine.ThirtyMinutes

// newExtendedAccount builds a migrated price account with the given
// publishers registered.
func newExtendedAccount(t *testing.T, pubs ...ledger.Pubkey) *ledger.Account {
	t.Helper()

	acc := oracle.NewPriceAccount(-8)
	for _, pub := range pubs {
		if err := acc.AddPublisher(pub); err != nil {
			t.Fatal(err)
		}
	}

	data := make([]byte, oracle.PriceAccountSize)
	if err := acc.Marshal(data); err != nil {
		t.Fatal(err)
	}
	target := &ledger.Account{
		Owner:    programID,
		Lamports: ledger.MinimumBalance(oracle.PriceAccountSize),
		Data:     data,
	}
	if err := New(programID).ResizeAccount(newFunder(), target); err != nil {
		t.Fatal(err)
	}
	return target
}

func timeMachineState(t *testing.T, target *ledger.Account) *timemachine.State {
	t.Helper()
	state, err := timemachine.Unmarshal(target.Data[oracle.TimeMachineOffset:])
	if err != nil {
		t.Fatal(err)
	}
	return state
}

func TestUpdatePrice_SetsComponentAndAggregate(t *testing.T) {
	pub := ledger.Pubkey{7}
	p := New(programID)
	target := newExtendedAccount(t, pub)

	upd := PriceUpdate{
		Publisher:   pub,
		Price:       100,
		Conf:        3,
		Status:      oracle.StatusTrading,
		PublishTime: t0,
	}
	if _, err := p.UpdatePrice(priceKey, target, upd, t0); err != nil {
		t.Fatalf("update: %v", err)
	}

	acc, err := oracle.UnmarshalPriceAccount(target.Data)
	if err != nil {
		t.Fatal(err)
	}
	if got := acc.Components[0].Latest; got.Price != 100 || got.Conf != 3 {
		t.Errorf("component = %+v", got)
	}
	if acc.Agg.Price != 100 {
		t.Errorf("aggregate price = %d, want 100", acc.Agg.Price)
	}
	if acc.Agg.Status != oracle.StatusTrading {
		t.Errorf("aggregate status = %d", acc.Agg.Status)
	}
}

func TestUpdatePrice_AggregatesAcrossPublishers(t *testing.T) {
	pubs := []ledger.Pubkey{{1}, {2}, {3}}
	p := New(programID)
	target := newExtendedAccount(t, pubs...)

	for i, price := range []int64{95, 100, 120} {
		upd := PriceUpdate{
			Publisher:   pubs[i],
			Price:       price,
			Conf:        1,
			Status:      oracle.StatusTrading,
			PublishTime: t0,
		}
		if _, err := p.UpdatePrice(priceKey, target, upd, t0); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}

	acc, err := oracle.UnmarshalPriceAccount(target.Data)
	if err != nil {
		t.Fatal(err)
	}
	if acc.Agg.Price != 100 {
		t.Errorf("aggregate price = %d, want median 100", acc.Agg.Price)
	}
	// conf = max(p50-p25, p75-p50) = max(5, 20)
	if acc.Agg.Conf != 20 {
		t.Errorf("aggregate conf = %d, want 20", acc.Agg.Conf)
	}
}

func TestUpdatePrice_FeedsTimeMachine(t *testing.T) {
	pub := ledger.Pubkey{7}
	p := New(programID)
	target := newExtendedAccount(t, pub)

	upd := PriceUpdate{Publisher: pub, Price: 100, Conf: 2, Status: oracle.StatusTrading, PublishTime: t0}
	if _, err := p.UpdatePrice(priceKey, target, upd, t0); err != nil {
		t.Fatal(err)
	}

	state := timeMachineState(t, target)
	idx := t0 / timemachine.ThirtyMinutes % timemachine.RingCapacity
	b := state.Ring[idx]
	if b.Count != 1 || b.StartTime != t0 {
		t.Fatalf("bucket = %+v", b)
	}
}

func TestUpdatePrice_StaleUpdateSkipsTimeMachine(t *testing.T) {
	pub := ledger.Pubkey{7}
	p := New(programID)
	target := newExtendedAccount(t, pub)

	now := t0 + 100
	upd := PriceUpdate{
		Publisher:   pub,
		Price:       100,
		Conf:        2,
		Status:      oracle.StatusTrading,
		PublishTime: now - timemachine.MaxSendLatency - 1,
	}
	finalized, err := p.UpdatePrice(priceKey, target, upd, now)
	if err != nil {
		t.Fatalf("stale update must not error: %v", err)
	}
	if finalized != nil {
		t.Error("stale update finalized buckets")
	}

	// Component and aggregate still reflect the quote.
	acc, err := oracle.UnmarshalPriceAccount(target.Data)
	if err != nil {
		t.Fatal(err)
	}
	if acc.Components[0].Latest.Price != 100 {
		t.Error("stale update did not land in component slot")
	}

	// The ring is untouched.
	state := timeMachineState(t, target)
	for i := range state.Ring {
		if state.Ring[i].Count != 0 {
			t.Fatalf("ring slot %d touched by stale update", i)
		}
	}
}

func TestUpdatePrice_FinalizesOnWindowAdvance(t *testing.T) {
	pub := ledger.Pubkey{7}
	p := New(programID)
	target := newExtendedAccount(t, pub)

	var delivered []timemachine.Bucket
	p.OnFinalized = func(key ledger.Pubkey, buckets []timemachine.Bucket) {
		if key != priceKey {
			t.Errorf("callback key = %s, want %s", key, priceKey)
		}
		delivered = append(delivered, buckets...)
	}

	times := []int64{t0, t0 + 60, t0 + timemachine.ThirtyMinutes}
	for _, now := range times {
		upd := PriceUpdate{Publisher: pub, Price: 100, Conf: 2, Status: oracle.StatusTrading, PublishTime: now}
		if _, err := p.UpdatePrice(priceKey, target, upd, now); err != nil {
			t.Fatal(err)
		}
	}

	if len(delivered) != 1 {
		t.Fatalf("finalized %d buckets, want 1", len(delivered))
	}
	if delivered[0].StartTime != t0 || delivered[0].Count != 2 {
		t.Errorf("finalized bucket = %+v", delivered[0])
	}
}

func TestUpdatePrice_LegacyAccountSkipsTimeMachine(t *testing.T) {
	pub := ledger.Pubkey{7}
	p := New(programID)

	acc := oracle.NewPriceAccount(-8)
	if err := acc.AddPublisher(pub); err != nil {
		t.Fatal(err)
	}
	data := make([]byte, oracle.PriceAccountSize)
	if err := acc.Marshal(data); err != nil {
		t.Fatal(err)
	}
	target := &ledger.Account{Owner: programID, Data: data}

	upd := PriceUpdate{Publisher: pub, Price: 100, Conf: 2, Status: oracle.StatusTrading, PublishTime: t0}
	finalized, err := p.UpdatePrice(priceKey, target, upd, t0)
	if err != nil {
		t.Fatalf("update on legacy account: %v", err)
	}
	if finalized != nil {
		t.Error("legacy account produced finalized buckets")
	}
	if target.DataLen() != oracle.PriceAccountSize {
		t.Error("update changed legacy account size")
	}
}

func TestUpdatePrice_UnknownPublisher(t *testing.T) {
	p := New(programID)
	target := newExtendedAccount(t, ledger.Pubkey{7})

	upd := PriceUpdate{Publisher: ledger.Pubkey{8}, Price: 1, Status: oracle.StatusTrading}
	_, err := p.UpdatePrice(priceKey, target, upd, t0)
	if !errors.Is(err, ErrInvalidPublisher) {
		t.Fatalf("err = %v, want ErrInvalidPublisher", err)
	}
}

func TestDispatch_ResizeThroughRuntime(t *testing.T) {
	p := New(programID)
	rt := ledger.NewRuntime()
	rt.SetAccount(funderKey, newFunder())
	rt.SetAccount(priceKey, newLegacyAccount(t))

	keys := []ledger.Pubkey{funderKey, priceKey}
	if err := p.Dispatch(rt, keys, EncodeResizeAccount()); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	target, err := rt.Account(priceKey)
	if err != nil {
		t.Fatal(err)
	}
	if target.DataLen() != oracle.ExtendedPriceAccountSize {
		t.Errorf("data length = %d", target.DataLen())
	}
}

func TestDispatch_RollbackOnError(t *testing.T) {
	p := New(programID)
	rt := ledger.NewRuntime()

	// Funder cannot cover the rent top-up; the transfer inside the handler
	// must be rolled back along with everything else.
	rt.SetAccount(funderKey, &ledger.Account{Lamports: 10})
	legacy := newLegacyAccount(t)
	legacy.Lamports = 0
	rt.SetAccount(priceKey, legacy)

	before, err := rt.Account(priceKey)
	if err != nil {
		t.Fatal(err)
	}

	keys := []ledger.Pubkey{funderKey, priceKey}
	if err := p.Dispatch(rt, keys, EncodeResizeAccount()); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	after, err := rt.Account(priceKey)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(after.Data, before.Data) || after.Lamports != before.Lamports {
		t.Error("failed instruction left account mutated")
	}
	funder, err := rt.Account(funderKey)
	if err != nil {
		t.Fatal(err)
	}
	if funder.Lamports != 10 {
		t.Errorf("funder lamports = %d, want 10", funder.Lamports)
	}
}

func TestDispatch_UpdatePriceRoundTrip(t *testing.T) {
	pub := ledger.Pubkey{7}
	p := New(programID)
	p.Clock = func() int64 { return t0 }

	rt := ledger.NewRuntime()
	rt.SetAccount(priceKey, newExtendedAccount(t, pub))

	upd := PriceUpdate{Publisher: pub, Price: 250, Conf: 5, Status: oracle.StatusTrading, PublishTime: t0}
	if err := p.Dispatch(rt, []ledger.Pubkey{priceKey}, EncodeUpdatePrice(upd)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	target, err := rt.Account(priceKey)
	if err != nil {
		t.Fatal(err)
	}
	acc, err := oracle.UnmarshalPriceAccount(target.Data)
	if err != nil {
		t.Fatal(err)
	}
	if acc.Agg.Price != 250 {
		t.Errorf("aggregate price = %d, want 250", acc.Agg.Price)
	}
}

func TestDispatch_AddPublisher(t *testing.T) {
	p := New(programID)
	rt := ledger.NewRuntime()
	rt.SetAccount(priceKey, newExtendedAccount(t))

	pub := ledger.Pubkey{42}
	if err := p.Dispatch(rt, []ledger.Pubkey{priceKey}, EncodeAddPublisher(pub)); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	target, err := rt.Account(priceKey)
	if err != nil {
		t.Fatal(err)
	}
	acc, err := oracle.UnmarshalPriceAccount(target.Data)
	if err != nil {
		t.Fatal(err)
	}
	if acc.NumPublishers != 1 || acc.Components[0].Publisher != pub {
		t.Errorf("publisher table = %d publishers", acc.NumPublishers)
	}
}

func TestDispatch_BadInstruction(t *testing.T) {
	p := New(programID)
	rt := ledger.NewRuntime()

	if err := p.Dispatch(rt, nil, []byte{1, 2}); !errors.Is(err, ErrBadInstruction) {
		t.Errorf("short data: err = %v", err)
	}

	bad := EncodeResizeAccount()
	bad[4] = 0xff
	if err := p.Dispatch(rt, nil, bad); !errors.Is(err, ErrUnknownOpcode) {
		t.Errorf("unknown opcode: err = %v", err)
	}

	if err := p.Dispatch(rt, nil, EncodeResizeAccount()); !errors.Is(err, ErrMissingAccounts) {
		t.Errorf("missing accounts: err = %v", err)
	}
}
