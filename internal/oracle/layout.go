// Package oracle defines the binary layout of price accounts.
//
// Layouts are fixed little-endian records shared with every external reader
// of raw account bytes. Changing any size or offset here is a breaking
// format change.
package oracle

import "price-oracle-lab/internal/timemachine"

// Account header constants.
const (
	// Magic identifies an account as belonging to the oracle program.
	Magic = 0xa1b2c3d4

	// Version is the current layout version.
	Version = 2

	// AccountTypePrice is the type discriminant of a price account.
	AccountTypePrice = 3
)

// Price status values for the aggregate and per-publisher quotes.
const (
	StatusUnknown = iota
	StatusTrading
	StatusHalted
	StatusAuction
)

// MaxPublishers is the number of publisher component slots in a price
// account.
const MaxPublishers = 32

// Field offsets and sizes of the legacy price account layout.
const (
	offMagic         = 0
	offVersion       = 4
	offAccountType   = 8
	offSize          = 12
	offPriceType     = 16
	offExponent      = 20
	offNumPublishers = 24
	offLastSlot      = 32
	offValidSlot     = 40
	offAggPubTime    = 48
	offAggPrice      = 56
	offAggConf       = 64
	offAggStatus     = 72
	offComponents    = 80

	componentSize = 64

	// HeaderSize covers the fields needed to identify an account.
	HeaderSize = 16

	// PriceAccountSize is the legacy price account byte length.
	PriceAccountSize = offComponents + MaxPublishers*componentSize

	// TimeMachineOffset is where the extended region begins.
	TimeMachineOffset = PriceAccountSize

	// ExtendedPriceAccountSize is the price account byte length after
	// migration: the legacy record followed by the time machine state.
	ExtendedPriceAccountSize = PriceAccountSize + timemachine.Size
)

// Publisher component field offsets, relative to the component start.
const (
	compOffPublisher = 0
	compOffPrice     = 32
	compOffConf      = 40
	compOffPubTime   = 48
	compOffStatus    = 56
)
