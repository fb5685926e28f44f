package ledger

import (
	"errors"
	"fmt"
	"sync"
)

// ErrAccountNotFound is returned when an instruction references an unknown
// account.
var ErrAccountNotFound = errors.New("account not found")

// Runtime is an in-process stand-in for the host ledger: it holds accounts
// and executes instructions one at a time with all-or-nothing semantics.
// On-chain these guarantees come from the transaction runtime; off-chain we
// provide them with a lock and per-call snapshots.
type Runtime struct {
	mu       sync.Mutex
	accounts map[Pubkey]*Account
}

// NewRuntime creates an empty runtime.
func NewRuntime() *Runtime {
	return &Runtime{accounts: make(map[Pubkey]*Account)}
}

// SetAccount installs or replaces an account.
func (r *Runtime) SetAccount(key Pubkey, acc *Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[key] = acc.clone()
}

// Account returns a copy of the account, or ErrAccountNotFound.
func (r *Runtime) Account(key Pubkey) (*Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.accounts[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrAccountNotFound)
	}
	return acc.clone(), nil
}

// Keys returns the pubkeys of all accounts.
func (r *Runtime) Keys() []Pubkey {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]Pubkey, 0, len(r.accounts))
	for k := range r.accounts {
		keys = append(keys, k)
	}
	return keys
}

// Execute runs fn with exclusive access to the requested accounts, in the
// order given. If fn returns an error every account mutation is rolled back
// and the error is returned unchanged.
func (r *Runtime) Execute(keys []Pubkey, fn func(accounts []*Account) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	accounts := make([]*Account, len(keys))
	snapshots := make([]*Account, len(keys))
	for i, key := range keys {
		acc, ok := r.accounts[key]
		if !ok {
			return fmt.Errorf("%s: %w", key, ErrAccountNotFound)
		}
		accounts[i] = acc
		snapshots[i] = acc.clone()
	}

	if err := fn(accounts); err != nil {
		for i, key := range keys {
			r.accounts[key] = snapshots[i]
		}
		return err
	}
	return nil
}
