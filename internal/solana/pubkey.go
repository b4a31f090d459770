package solana

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PubkeyLength is the size of an account address in bytes.
const PubkeyLength = 32

// PDA derivation limits.
const (
	MaxSeedLength = 32
	MaxSeeds      = 16
)

const pdaMarker = "ProgramDerivedAddress"

// Well-known program IDs.
var (
	TokenProgramID           = MustParsePubkey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedTokenProgramID = MustParsePubkey("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

var (
	errNoViableBump        = errors.New("unable to find a viable program address bump seed")
	errInvalidSeeds        = errors.New("invalid seeds")
	errInvalidPubkeyLength = errors.New("invalid pubkey length")
	errOnCurve             = errors.New("derived address is on the ed25519 curve")
)

// Pubkey is a 32-byte account address. Its text form is base58.
type Pubkey [PubkeyLength]byte

// ParsePubkey decodes a base58 address.
func ParsePubkey(s string) (Pubkey, error) {
	var pk Pubkey
	decoded, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("decode pubkey %q: %w", s, err)
	}
	if len(decoded) != PubkeyLength {
		return pk, fmt.Errorf("decode pubkey %q: %w (%d bytes)", s, errInvalidPubkeyLength, len(decoded))
	}
	copy(pk[:], decoded)
	return pk, nil
}

// MustParsePubkey is ParsePubkey that panics on error. Use for constants only.
func MustParsePubkey(s string) Pubkey {
	pk, err := ParsePubkey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// PubkeyFromBytes copies a 32-byte slice into a Pubkey.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var pk Pubkey
	if len(b) != PubkeyLength {
		return pk, errInvalidPubkeyLength
	}
	copy(pk[:], b)
	return pk, nil
}

// String returns the base58 encoding.
func (p Pubkey) String() string {
	return base58.Encode(p[:])
}

// IsZero reports whether p is the all-zero address.
func (p Pubkey) IsZero() bool {
	return p == Pubkey{}
}

// Equals compares two keys.
func (p Pubkey) Equals(other Pubkey) bool {
	return bytes.Equal(p[:], other[:])
}

// MarshalText implements encoding.TextMarshaler.
func (p Pubkey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pubkey) UnmarshalText(text []byte) error {
	pk, err := ParsePubkey(string(text))
	if err != nil {
		return err
	}
	*p = pk
	return nil
}

// IsOnCurve reports whether the bytes decode to a valid ed25519 point.
func IsOnCurve(b []byte) bool {
	if len(b) != PubkeyLength {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// CreateProgramAddress derives an address from seeds (bump included) and a
// program ID. The result must be off the ed25519 curve.
func CreateProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, error) {
	if len(seeds) > MaxSeeds {
		return Pubkey{}, errInvalidSeeds
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return Pubkey{}, errInvalidSeeds
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var pk Pubkey
	copy(pk[:], h.Sum(nil))
	if IsOnCurve(pk[:]) {
		return Pubkey{}, errOnCurve
	}
	return pk, nil
}

// FindProgramAddress searches bump seeds from 255 downwards for the first
// off-curve derived address.
func FindProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return Pubkey{}, 0, errInvalidSeeds
	}

	for bump := 255; bump > 0; bump-- {
		withBump := make([][]byte, 0, len(seeds)+1)
		withBump = append(withBump, seeds...)
		withBump = append(withBump, []byte{byte(bump)})

		pk, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return pk, uint8(bump), nil
		}
		if !errors.Is(err, errOnCurve) {
			return Pubkey{}, 0, err
		}
	}

	return Pubkey{}, 0, errNoViableBump
}

// AssociatedTokenAddress returns the associated token account of owner for mint.
func AssociatedTokenAddress(owner, mint Pubkey) (Pubkey, error) {
	pk, _, err := FindProgramAddress(
		[][]byte{owner[:], TokenProgramID[:], mint[:]},
		AssociatedTokenProgramID,
	)
	return pk, err
}
