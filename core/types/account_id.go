package types

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var ErrInvalidAccountID = errors.New("invalid account id")

const (
	minAccountIDLen = 2
	maxAccountIDLen = 64
)

// AccountID identifies the principal a call executes on behalf of.
type AccountID string

// ParseAccountID normalizes s (trimmed, lowercased, NFKC) and validates the
// result: 2-64 characters of lowercase letters, digits and the separators
// '-', '_' and '.'. Separators may not lead, trail or repeat.
func ParseAccountID(raw string) (AccountID, error) {
	s := norm.NFKC.String(strings.ToLower(strings.TrimSpace(raw)))
	if len(s) < minAccountIDLen || len(s) > maxAccountIDLen {
		return "", fmt.Errorf("%w: %q must be %d-%d characters", ErrInvalidAccountID, s, minAccountIDLen, maxAccountIDLen)
	}
	prevSeparator := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			prevSeparator = false
		case c == '-' || c == '_' || c == '.':
			if prevSeparator {
				return "", fmt.Errorf("%w: %q has a misplaced separator", ErrInvalidAccountID, s)
			}
			prevSeparator = true
		default:
			return "", fmt.Errorf("%w: %q contains %q", ErrInvalidAccountID, s, c)
		}
	}
	if prevSeparator {
		return "", fmt.Errorf("%w: %q ends with a separator", ErrInvalidAccountID, s)
	}
	return AccountID(s), nil
}

func (a AccountID) String() string { return string(a) }
