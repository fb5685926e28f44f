package oracle

import (
	"encoding/binary"
	"errors"
	"fmt"

	"price-oracle-lab/internal/ledger"
)

var (
	// ErrBadMagic is returned when account data does not start with the
	// oracle magic number.
	ErrBadMagic = errors.New("bad magic number")

	// ErrBadVersion is returned for an unsupported layout version.
	ErrBadVersion = errors.New("unsupported layout version")

	// ErrNotPriceAccount is returned when the type discriminant is not a
	// price account.
	ErrNotPriceAccount = errors.New("not a price account")

	// ErrDataTooShort is returned when account data is shorter than the
	// structure being read.
	ErrDataTooShort = errors.New("account data too short")

	// ErrPublisherLimit is returned when adding a publisher to a full
	// component table.
	ErrPublisherLimit = errors.New("publisher component table is full")
)

// Header is the common prefix of every oracle account.
type Header struct {
	Magic       uint32
	Version     uint32
	AccountType uint32
	Size        uint32
}

// ParseHeader reads and validates the account header.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("header needs %d bytes, have %d: %w", HeaderSize, len(data), ErrDataTooShort)
	}
	h := Header{
		Magic:       binary.LittleEndian.Uint32(data[offMagic:]),
		Version:     binary.LittleEndian.Uint32(data[offVersion:]),
		AccountType: binary.LittleEndian.Uint32(data[offAccountType:]),
		Size:        binary.LittleEndian.Uint32(data[offSize:]),
	}
	if h.Magic != Magic {
		return h, ErrBadMagic
	}
	if h.Version != Version {
		return h, fmt.Errorf("version %d: %w", h.Version, ErrBadVersion)
	}
	return h, nil
}

// PriceInfo is one price quote: the live aggregate or a publisher component.
type PriceInfo struct {
	Price       int64
	Conf        uint64
	Status      uint32
	PublishTime int64
}

// PriceComponent is one publisher slot in the component table.
type PriceComponent struct {
	Publisher ledger.Pubkey
	Latest    PriceInfo
}

// PriceAccount is the decoded legacy price record. The time machine region
// of an extended account is not part of this structure; it lives at
// TimeMachineOffset and is handled by the timemachine package.
type PriceAccount struct {
	Header        Header
	PriceType     uint32
	Exponent      int32
	NumPublishers uint32
	LastSlot      uint64
	ValidSlot     uint64
	Agg           PriceInfo
	Components    [MaxPublishers]PriceComponent
}

// NewPriceAccount returns a zero-quote price account for the given exponent.
func NewPriceAccount(exponent int32) *PriceAccount {
	return &PriceAccount{
		Header: Header{
			Magic:       Magic,
			Version:     Version,
			AccountType: AccountTypePrice,
			Size:        PriceAccountSize,
		},
		PriceType: 1,
		Exponent:  exponent,
	}
}

// UnmarshalPriceAccount decodes the legacy price record from account data.
// Extended accounts decode identically; the trailing region is ignored.
func UnmarshalPriceAccount(data []byte) (*PriceAccount, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if h.AccountType != AccountTypePrice {
		return nil, fmt.Errorf("account type %d: %w", h.AccountType, ErrNotPriceAccount)
	}
	if len(data) < PriceAccountSize {
		return nil, fmt.Errorf("price account needs %d bytes, have %d: %w", PriceAccountSize, len(data), ErrDataTooShort)
	}

	p := &PriceAccount{
		Header:        h,
		PriceType:     binary.LittleEndian.Uint32(data[offPriceType:]),
		Exponent:      int32(binary.LittleEndian.Uint32(data[offExponent:])),
		NumPublishers: binary.LittleEndian.Uint32(data[offNumPublishers:]),
		LastSlot:      binary.LittleEndian.Uint64(data[offLastSlot:]),
		ValidSlot:     binary.LittleEndian.Uint64(data[offValidSlot:]),
		Agg: PriceInfo{
			PublishTime: int64(binary.LittleEndian.Uint64(data[offAggPubTime:])),
			Price:       int64(binary.LittleEndian.Uint64(data[offAggPrice:])),
			Conf:        binary.LittleEndian.Uint64(data[offAggConf:]),
			Status:      binary.LittleEndian.Uint32(data[offAggStatus:]),
		},
	}

	for i := 0; i < MaxPublishers; i++ {
		c := data[offComponents+i*componentSize:]
		copy(p.Components[i].Publisher[:], c[compOffPublisher:compOffPublisher+ledger.PubkeyLen])
		p.Components[i].Latest = PriceInfo{
			Price:       int64(binary.LittleEndian.Uint64(c[compOffPrice:])),
			Conf:        binary.LittleEndian.Uint64(c[compOffConf:]),
			PublishTime: int64(binary.LittleEndian.Uint64(c[compOffPubTime:])),
			Status:      binary.LittleEndian.Uint32(c[compOffStatus:]),
		}
	}

	return p, nil
}

// Marshal encodes the legacy price record into data, which must hold at
// least PriceAccountSize bytes. Bytes past the legacy record are untouched.
func (p *PriceAccount) Marshal(data []byte) error {
	if len(data) < PriceAccountSize {
		return fmt.Errorf("price account needs %d bytes, have %d: %w", PriceAccountSize, len(data), ErrDataTooShort)
	}

	binary.LittleEndian.PutUint32(data[offMagic:], p.Header.Magic)
	binary.LittleEndian.PutUint32(data[offVersion:], p.Header.Version)
	binary.LittleEndian.PutUint32(data[offAccountType:], p.Header.AccountType)
	binary.LittleEndian.PutUint32(data[offSize:], p.Header.Size)
	binary.LittleEndian.PutUint32(data[offPriceType:], p.PriceType)
	binary.LittleEndian.PutUint32(data[offExponent:], uint32(p.Exponent))
	binary.LittleEndian.PutUint32(data[offNumPublishers:], p.NumPublishers)
	binary.LittleEndian.PutUint64(data[offLastSlot:], p.LastSlot)
	binary.LittleEndian.PutUint64(data[offValidSlot:], p.ValidSlot)
	binary.LittleEndian.PutUint64(data[offAggPubTime:], uint64(p.Agg.PublishTime))
	binary.LittleEndian.PutUint64(data[offAggPrice:], uint64(p.Agg.Price))
	binary.LittleEndian.PutUint64(data[offAggConf:], p.Agg.Conf)
	binary.LittleEndian.PutUint32(data[offAggStatus:], p.Agg.Status)

	for i := 0; i < MaxPublishers; i++ {
		c := data[offComponents+i*componentSize:]
		copy(c[compOffPublisher:], p.Components[i].Publisher[:])
		binary.LittleEndian.PutUint64(c[compOffPrice:], uint64(p.Components[i].Latest.Price))
		binary.LittleEndian.PutUint64(c[compOffConf:], p.Components[i].Latest.Conf)
		binary.LittleEndian.PutUint64(c[compOffPubTime:], uint64(p.Components[i].Latest.PublishTime))
		binary.LittleEndian.PutUint32(c[compOffStatus:], p.Components[i].Latest.Status)
	}

	return nil
}

// AddPublisher appends a publisher to the component table.
func (p *PriceAccount) AddPublisher(pub ledger.Pubkey) error {
	if p.NumPublishers >= MaxPublishers {
		return ErrPublisherLimit
	}
	for i := uint32(0); i < p.NumPublishers; i++ {
		if p.Components[i].Publisher == pub {
			return fmt.Errorf("publisher %s already registered", pub)
		}
	}
	p.Components[p.NumPublishers].Publisher = pub
	p.NumPublishers++
	return nil
}

// ComponentIndex returns the component slot index for a publisher, or -1.
func (p *PriceAccount) ComponentIndex(pub ledger.Pubkey) int {
	for i := uint32(0); i < p.NumPublishers && i < MaxPublishers; i++ {
		if p.Components[i].Publisher == pub {
			return int(i)
		}
	}
	return -1
}
