package ledger

import (
	"errors"
	"fmt"
)

// Rent model constants, mirroring the host runtime's storage-fee schedule.
const (
	// LamportsPerByteYear is the rent rate charged per account byte per year.
	LamportsPerByteYear = 3480

	// RentExemptionYears is the number of years of rent an account must hold
	// to be exempt from collection.
	RentExemptionYears = 2

	// AccountStorageOverhead is the fixed per-account byte overhead the rent
	// model charges on top of the data length.
	AccountStorageOverhead = 128

	// MaxDataIncrease caps how much an account may grow in a single
	// instruction.
	MaxDataIncrease = 10 * 1024
)

var (
	// ErrAccountImmutable is returned when growing an executable account.
	ErrAccountImmutable = errors.New("account is immutable")

	// ErrDataShrink is returned when a resize would shrink account data.
	ErrDataShrink = errors.New("account data may not shrink")

	// ErrDataIncreaseTooLarge is returned when a single grow exceeds the
	// per-instruction cap.
	ErrDataIncreaseTooLarge = errors.New("account data increase exceeds per-instruction cap")

	// ErrInsufficientLamports is returned when a transfer would overdraw the
	// source account.
	ErrInsufficientLamports = errors.New("insufficient lamports")
)

// Account is a ledger account: an owner program, a lamport balance and a raw
// data region. The oracle program reads and writes price accounts through
// this handle.
type Account struct {
	Owner      Pubkey
	Lamports   uint64
	Data       []byte
	Executable bool
}

// DataLen returns the current byte length of the account data.
func (a *Account) DataLen() int {
	return len(a.Data)
}

// Grow extends the account data in place to newLen, zero-filling the added
// suffix. Existing bytes are preserved. Shrinking is refused.
func (a *Account) Grow(newLen int) error {
	if a.Executable {
		return ErrAccountImmutable
	}
	if newLen < len(a.Data) {
		return ErrDataShrink
	}
	if newLen-len(a.Data) > MaxDataIncrease {
		return ErrDataIncreaseTooLarge
	}
	if newLen == len(a.Data) {
		return nil
	}

	grown := make([]byte, newLen)
	copy(grown, a.Data)
	a.Data = grown
	return nil
}

// MinimumBalance returns the rent-exempt minimum for an account of the given
// data length.
func MinimumBalance(dataLen int) uint64 {
	return uint64(AccountStorageOverhead+dataLen) * LamportsPerByteYear * RentExemptionYears
}

// Transfer moves lamports between accounts.
func Transfer(from, to *Account, lamports uint64) error {
	if from.Lamports < lamports {
		return fmt.Errorf("transfer %d lamports: %w", lamports, ErrInsufficientLamports)
	}
	from.Lamports -= lamports
	to.Lamports += lamports
	return nil
}

// clone returns a deep copy used for instruction snapshots.
func (a *Account) clone() *Account {
	c := *a
	c.Data = make([]byte, len(a.Data))
	copy(c.Data, a.Data)
	return &c
}
