package program

import (
	"encoding/binary"
	"fmt"
	"time"

	"price-oracle-lab/internal/ledger"
	"price-oracle-lab/internal/observability"
)

// Instruction opcodes.
const (
	OpResizeAccount = 1
	OpUpdatePrice   = 2
	OpAddPublisher  = 3
)

// InstructionVersion is the current instruction wire version.
const InstructionVersion = 1

// Instruction data is little endian: version(4) opcode(4) payload.
//
// Payloads:
//
//	resize_account: none; accounts = [funder, target]
//	update_price:   publisher(32) price(8) conf(8) status(4) pad(4)
//	                publish_time(8); accounts = [target]
//	add_publisher:  publisher(32); accounts = [target]
const cmdHeaderSize = 8

const updPricePayloadSize = 32 + 8 + 8 + 4 + 4 + 8

// EncodeResizeAccount encodes a resize_account instruction.
func EncodeResizeAccount() []byte {
	data := make([]byte, cmdHeaderSize)
	binary.LittleEndian.PutUint32(data[0:], InstructionVersion)
	binary.LittleEndian.PutUint32(data[4:], OpResizeAccount)
	return data
}

// EncodeUpdatePrice encodes an update_price instruction.
func EncodeUpdatePrice(upd PriceUpdate) []byte {
	data := make([]byte, cmdHeaderSize+updPricePayloadSize)
	binary.LittleEndian.PutUint32(data[0:], InstructionVersion)
	binary.LittleEndian.PutUint32(data[4:], OpUpdatePrice)
	copy(data[8:], upd.Publisher[:])
	binary.LittleEndian.PutUint64(data[40:], uint64(upd.Price))
	binary.LittleEndian.PutUint64(data[48:], upd.Conf)
	binary.LittleEndian.PutUint32(data[56:], upd.Status)
	binary.LittleEndian.PutUint64(data[64:], uint64(upd.PublishTime))
	return data
}

// EncodeAddPublisher encodes an add_publisher instruction.
func EncodeAddPublisher(pub ledger.Pubkey) []byte {
	data := make([]byte, cmdHeaderSize+ledger.PubkeyLen)
	binary.LittleEndian.PutUint32(data[0:], InstructionVersion)
	binary.LittleEndian.PutUint32(data[4:], OpAddPublisher)
	copy(data[8:], pub[:])
	return data
}

// Dispatch decodes instruction data and executes the matching handler under
// the runtime's all-or-nothing guarantee. A handler error rolls every named
// account back to its pre-instruction state.
func (p *Program) Dispatch(rt *ledger.Runtime, keys []ledger.Pubkey, data []byte) error {
	start := time.Now()

	if len(data) < cmdHeaderSize {
		observability.RecordInstruction("unknown", "error", time.Since(start).Seconds())
		return fmt.Errorf("instruction needs %d header bytes, have %d: %w", cmdHeaderSize, len(data), ErrBadInstruction)
	}
	if v := binary.LittleEndian.Uint32(data[0:]); v != InstructionVersion {
		observability.RecordInstruction("unknown", "error", time.Since(start).Seconds())
		return fmt.Errorf("instruction version %d: %w", v, ErrBadInstruction)
	}

	opcode := binary.LittleEndian.Uint32(data[4:])
	payload := data[cmdHeaderSize:]

	var name string
	var err error
	switch opcode {
	case OpResizeAccount:
		name = "resize_account"
		err = p.dispatchResize(rt, keys)
	case OpUpdatePrice:
		name = "update_price"
		err = p.dispatchUpdatePrice(rt, keys, payload)
	case OpAddPublisher:
		name = "add_publisher"
		err = p.dispatchAddPublisher(rt, keys, payload)
	default:
		observability.RecordInstruction("unknown", "error", time.Since(start).Seconds())
		return fmt.Errorf("opcode %d: %w", opcode, ErrUnknownOpcode)
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.RecordInstruction(name, status, time.Since(start).Seconds())
	return err
}

func (p *Program) dispatchResize(rt *ledger.Runtime, keys []ledger.Pubkey) error {
	if len(keys) < 2 {
		return fmt.Errorf("resize_account needs funder and target: %w", ErrMissingAccounts)
	}
	return rt.Execute(keys[:2], func(accounts []*ledger.Account) error {
		return p.ResizeAccount(accounts[0], accounts[1])
	})
}

func (p *Program) dispatchUpdatePrice(rt *ledger.Runtime, keys []ledger.Pubkey, payload []byte) error {
	if len(keys) < 1 {
		return fmt.Errorf("update_price needs a target: %w", ErrMissingAccounts)
	}
	if len(payload) < updPricePayloadSize {
		return fmt.Errorf("update_price payload needs %d bytes, have %d: %w", updPricePayloadSize, len(payload), ErrBadInstruction)
	}

	var upd PriceUpdate
	copy(upd.Publisher[:], payload[0:32])
	upd.Price = int64(binary.LittleEndian.Uint64(payload[32:]))
	upd.Conf = binary.LittleEndian.Uint64(payload[40:])
	upd.Status = binary.LittleEndian.Uint32(payload[48:])
	upd.PublishTime = int64(binary.LittleEndian.Uint64(payload[56:]))

	now := time.Now().Unix()
	if p.Clock != nil {
		now = p.Clock()
	}

	return rt.Execute(keys[:1], func(accounts []*ledger.Account) error {
		_, err := p.UpdatePrice(keys[0], accounts[0], upd, now)
		return err
	})
}

func (p *Program) dispatchAddPublisher(rt *ledger.Runtime, keys []ledger.Pubkey, payload []byte) error {
	if len(keys) < 1 {
		return fmt.Errorf("add_publisher needs a target: %w", ErrMissingAccounts)
	}
	if len(payload) < ledger.PubkeyLen {
		return fmt.Errorf("add_publisher payload needs %d bytes, have %d: %w", ledger.PubkeyLen, len(payload), ErrBadInstruction)
	}

	var pub ledger.Pubkey
	copy(pub[:], payload[:ledger.PubkeyLen])

	return rt.Execute(keys[:1], func(accounts []*ledger.Account) error {
		return p.AddPublisher(accounts[0], pub)
	})
}
