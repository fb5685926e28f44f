package program

import "errors"

var (
	// ErrWrongOwner is returned when the target account is not owned by the
	// oracle program.
	ErrWrongOwner = errors.New("account owner is not the oracle program")

	// ErrInvalidAccountType is returned when the target account is not a
	// valid price account.
	ErrInvalidAccountType = errors.New("invalid account type")

	// ErrUnexpectedSize is returned when the target account is neither the
	// legacy nor the extended price account size.
	ErrUnexpectedSize = errors.New("unexpected account size")

	// ErrInsufficientFunds is returned when the funding account cannot cover
	// the rent top-up for the grown account.
	ErrInsufficientFunds = errors.New("insufficient funds for rent exemption")

	// ErrGrowthFailed is returned when the ledger refuses to extend the
	// account data.
	ErrGrowthFailed = errors.New("account growth failed")

	// ErrInvalidPublisher is returned when an update comes from a publisher
	// with no component slot in the target account.
	ErrInvalidPublisher = errors.New("publisher not registered on price account")

	// ErrBadInstruction is returned when instruction data cannot be decoded.
	ErrBadInstruction = errors.New("malformed instruction data")

	// ErrUnknownOpcode is returned for an unrecognized instruction opcode.
	ErrUnknownOpcode = errors.New("unknown instruction opcode")

	// ErrMissingAccounts is returned when an instruction names fewer
	// accounts than its handler requires.
	ErrMissingAccounts = errors.New("instruction is missing accounts")
)
