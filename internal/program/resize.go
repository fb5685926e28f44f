// Package program implements the oracle program's instruction handlers:
// price account migration to the extended layout and publisher price
// updates feeding the time machine.
package program

import (
	"fmt"
	"log"

	"price-oracle-lab/internal/ledger"
	"price-oracle-lab/internal/observability"
	"price-oracle-lab/internal/oracle"
	"price-oracle-lab/internal/timemachine"
)

// Program is the oracle program. ID is the owner pubkey checked against
// every target account; Clock supplies the processing time for price
// updates and defaults to the wall clock.
type Program struct {
	ID    ledger.Pubkey
	Clock func() int64

	// OnFinalized, if set, receives buckets the moment the time machine
	// closes them. Called inside the instruction, before it commits.
	OnFinalized func(account ledger.Pubkey, buckets []timemachine.Bucket)
}

// New creates a program with the given owner id.
func New(id ledger.Pubkey) *Program {
	return &Program{ID: id}
}

// ResizeAccount grows a legacy price account to the extended layout.
//
// The operation is idempotent: an account already at the extended size is
// left untouched and the call succeeds. A legacy-size account is topped up
// to the rent-exempt minimum for the extended size from funder, grown in
// place with a zero-filled suffix, and gets the default time machine state
// installed in the new region. Every pre-existing byte of the account,
// including the header's size field, is preserved exactly.
func (p *Program) ResizeAccount(funder, target *ledger.Account) error {
	if target.Owner != p.ID {
		observability.RecordResize("wrong_owner")
		return fmt.Errorf("owner %s: %w", target.Owner, ErrWrongOwner)
	}

	h, err := oracle.ParseHeader(target.Data)
	if err != nil {
		observability.RecordResize("invalid_type")
		return fmt.Errorf("%v: %w", err, ErrInvalidAccountType)
	}
	if h.AccountType != oracle.AccountTypePrice {
		observability.RecordResize("invalid_type")
		return fmt.Errorf("account type %d: %w", h.AccountType, ErrInvalidAccountType)
	}

	switch target.DataLen() {
	case oracle.ExtendedPriceAccountSize:
		// Already migrated.
		observability.RecordResize("noop")
		return nil
	case oracle.PriceAccountSize:
	default:
		observability.RecordResize("unexpected_size")
		return fmt.Errorf("account size %d: %w", target.DataLen(), ErrUnexpectedSize)
	}

	var topUp uint64
	if need := ledger.MinimumBalance(oracle.ExtendedPriceAccountSize); target.Lamports < need {
		topUp = need - target.Lamports
		if err := ledger.Transfer(funder, target, topUp); err != nil {
			observability.RecordResize("insufficient_funds")
			return fmt.Errorf("rent top-up of %d lamports: %w: %w", topUp, ErrInsufficientFunds, err)
		}
	}

	if err := target.Grow(oracle.ExtendedPriceAccountSize); err != nil {
		observability.RecordResize("growth_failed")
		return fmt.Errorf("%w: %w", ErrGrowthFailed, err)
	}

	if err := timemachine.InstallDefault(target.Data[oracle.TimeMachineOffset:]); err != nil {
		observability.RecordResize("growth_failed")
		return fmt.Errorf("%w: %w", ErrGrowthFailed, err)
	}

	log.Printf("[program] resized price account to %d bytes, rent top-up %d lamports",
		oracle.ExtendedPriceAccountSize, topUp)
	observability.RecordResize("migrated")
	observability.RecordMigration(topUp)
	return nil
}
