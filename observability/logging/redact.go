package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces the value of any masked log field.
const RedactedValue = "[REDACTED]"

// plainKeys are the call log fields that never carry caller-supplied payload.
var plainKeys = map[string]struct{}{
	"call_id": {},
	"method":  {},
	"caller":  {},
	"status":  {},
	"writes":  {},
	"error":   {},
}

// MaskField logs value under key, or RedactedValue when key may carry call
// payload. Empty values are logged as is.
func MaskField(key, value string) slog.Attr {
	if value == "" {
		return slog.String(key, value)
	}
	if _, ok := plainKeys[strings.ToLower(key)]; ok {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
