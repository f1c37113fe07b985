package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// ErrU128Overflow is returned when a value does not fit in 128 bits.
var ErrU128Overflow = errors.New("u128: value exceeds 128 bits")

// U128 is an unsigned 128-bit integer. It shares its layout with uint256.Int
// and never has the upper two limbs set.
type U128 uint256.Int

// NewU128 returns v as a U128.
func NewU128(v uint64) U128 {
	return U128(*uint256.NewInt(v))
}

// ParseU128 parses a base-10 string.
func ParseU128(s string) (U128, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return U128{}, fmt.Errorf("u128: empty value")
	}
	v, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return U128{}, fmt.Errorf("u128: parse %q: %w", s, err)
	}
	if v.BitLen() > 128 {
		return U128{}, ErrU128Overflow
	}
	return U128(*v), nil
}

// U128FromBytes decodes a 16-byte big-endian value.
func U128FromBytes(b []byte) (U128, error) {
	if len(b) != 16 {
		return U128{}, fmt.Errorf("u128: expected 16 bytes, got %d", len(b))
	}
	var v uint256.Int
	v.SetBytes(b)
	return U128(v), nil
}

func (u *U128) int() *uint256.Int { return (*uint256.Int)(u) }

// Bytes returns the 16-byte big-endian encoding. Byte order matches numeric
// order.
func (u U128) Bytes() []byte {
	full := u.int().Bytes32()
	return append([]byte(nil), full[16:]...)
}

// Cmp returns -1, 0 or +1.
func (u U128) Cmp(other U128) int {
	return u.int().Cmp(other.int())
}

// Uint64 returns the low 64 bits.
func (u U128) Uint64() uint64 {
	return u.int().Uint64()
}

func (u U128) String() string {
	return u.int().Dec()
}

// MarshalJSON encodes the value as a decimal string, since JSON numbers cannot
// carry 128 bits losslessly.
func (u U128) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

func (u *U128) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("u128: expected decimal string: %w", err)
	}
	parsed, err := ParseU128(s)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
