package program

import (
	"fmt"

	"price-oracle-lab/internal/ledger"
	"price-oracle-lab/internal/observability"
	"price-oracle-lab/internal/oracle"
	"price-oracle-lab/internal/pricemodel"
	"price-oracle-lab/internal/timemachine"
)

// PriceUpdate is one publisher quote.
type PriceUpdate struct {
	Publisher   ledger.Pubkey
	Price       int64
	Conf        uint64
	Status      uint32
	PublishTime int64
}

// UpdatePrice applies a publisher quote to its component slot, recomputes
// the aggregate from all trading components, and on extended accounts folds
// the new aggregate into the time machine. Returns the buckets the time
// machine finalized, if any.
//
// A quote older than the staleness threshold still lands in its component
// slot and the aggregate, but is excluded from the time machine.
func (p *Program) UpdatePrice(key ledger.Pubkey, target *ledger.Account, upd PriceUpdate, now int64) ([]timemachine.Bucket, error) {
	if target.Owner != p.ID {
		return nil, fmt.Errorf("owner %s: %w", target.Owner, ErrWrongOwner)
	}

	acc, err := oracle.UnmarshalPriceAccount(target.Data)
	if err != nil {
		return nil, err
	}

	idx := acc.ComponentIndex(upd.Publisher)
	if idx < 0 {
		return nil, fmt.Errorf("publisher %s: %w", upd.Publisher, ErrInvalidPublisher)
	}

	acc.Components[idx].Latest = oracle.PriceInfo{
		Price:       upd.Price,
		Conf:        upd.Conf,
		Status:      upd.Status,
		PublishTime: upd.PublishTime,
	}

	quotes := make([]int64, 0, acc.NumPublishers)
	for i := uint32(0); i < acc.NumPublishers; i++ {
		if acc.Components[i].Latest.Status == oracle.StatusTrading {
			quotes = append(quotes, acc.Components[i].Latest.Price)
		}
	}

	if price, conf, err := pricemodel.Aggregate(quotes); err == nil {
		acc.Agg = oracle.PriceInfo{
			Price:       price,
			Conf:        conf,
			Status:      oracle.StatusTrading,
			PublishTime: now,
		}
	} else {
		acc.Agg.Status = oracle.StatusUnknown
	}

	if err := acc.Marshal(target.Data); err != nil {
		return nil, err
	}

	if target.DataLen() < oracle.ExtendedPriceAccountSize || acc.Agg.Status != oracle.StatusTrading {
		return nil, nil
	}

	region := target.Data[oracle.TimeMachineOffset:]
	state, err := timemachine.Unmarshal(region)
	if err != nil {
		return nil, err
	}

	finalized, stale := state.Record(timemachine.Observation{
		Price:      acc.Agg.Price,
		Conf:       acc.Agg.Conf,
		OriginTime: upd.PublishTime,
	}, now)
	if stale {
		observability.RecordStaleUpdate()
		return nil, nil
	}
	observability.RecordObservation()

	if err := state.Marshal(region); err != nil {
		return nil, err
	}

	if len(finalized) > 0 {
		observability.RecordBucketsFinalized(len(finalized))
		if p.OnFinalized != nil {
			p.OnFinalized(key, finalized)
		}
	}
	return finalized, nil
}

// AddPublisher registers a new publisher component slot on the account.
func (p *Program) AddPublisher(target *ledger.Account, pub ledger.Pubkey) error {
	if target.Owner != p.ID {
		return fmt.Errorf("owner %s: %w", target.Owner, ErrWrongOwner)
	}

	acc, err := oracle.UnmarshalPriceAccount(target.Data)
	if err != nil {
		return err
	}
	if err := acc.AddPublisher(pub); err != nil {
		return err
	}
	return acc.Marshal(target.Data)
}
