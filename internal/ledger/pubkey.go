package ledger

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PubkeyLen is the byte length of an account address.
const PubkeyLen = 32

// Pubkey is a 32-byte account address, displayed in base58.
type Pubkey [PubkeyLen]byte

// ParsePubkey decodes a base58-encoded address.
func ParsePubkey(s string) (Pubkey, error) {
	var pk Pubkey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("decode pubkey: %w", err)
	}
	if len(raw) != PubkeyLen {
		return pk, fmt.Errorf("pubkey must be %d bytes, got %d", PubkeyLen, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// String returns the base58 representation.
func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

// IsZero reports whether the pubkey is all zeros (an unset component slot).
func (p Pubkey) IsZero() bool {
	return p == Pubkey{}
}

// DeriveAddress derives a program address from seeds, in the Solana PDA manner:
// sha256(seeds || bump || program || "ProgramDerivedAddress"), taking the first
// bump whose hash is off the ed25519 curve.
func DeriveAddress(programID Pubkey, seeds ...[]byte) (Pubkey, error) {
	for bump := byte(255); ; bump-- {
		var data []byte
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, bump)
		data = append(data, programID[:]...)
		data = append(data, []byte("ProgramDerivedAddress")...)

		hash := sha256.Sum256(data)
		if !isOnCurve(hash[:]) {
			var pk Pubkey
			copy(pk[:], hash[:])
			return pk, nil
		}

		if bump == 0 {
			return Pubkey{}, fmt.Errorf("no off-curve address for seeds")
		}
	}
}

func isOnCurve(point []byte) bool {
	if len(point) != PubkeyLen {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
