package types

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseU128(t *testing.T) {
	maxValue := "340282366920938463463374607431768211455"
	v, err := ParseU128(maxValue)
	if err != nil {
		t.Fatalf("parse max: %v", err)
	}
	if v.String() != maxValue {
		t.Fatalf("unexpected round trip: %s", v.String())
	}
	if _, err := ParseU128("340282366920938463463374607431768211456"); !errors.Is(err, ErrU128Overflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := ParseU128("-1"); err == nil {
		t.Fatalf("expected error for negative value")
	}
	if _, err := ParseU128(" "); err == nil {
		t.Fatalf("expected error for empty value")
	}
}

func TestU128BytesPreserveOrder(t *testing.T) {
	small := NewU128(255)
	big, err := ParseU128("18446744073709551616") // 2^64
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if small.Cmp(big) >= 0 {
		t.Fatalf("expected %s < %s", small, big)
	}
	sb, bb := small.Bytes(), big.Bytes()
	if len(sb) != 16 || len(bb) != 16 {
		t.Fatalf("unexpected lengths %d/%d", len(sb), len(bb))
	}
	if string(sb) >= string(bb) {
		t.Fatalf("byte order does not follow numeric order")
	}
	back, err := U128FromBytes(bb)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Cmp(big) != 0 {
		t.Fatalf("decoded %s, want %s", back, big)
	}
	if _, err := U128FromBytes(bb[:8]); err == nil {
		t.Fatalf("expected length error")
	}
}

func TestU128JSON(t *testing.T) {
	var payload struct {
		Key U128 `json:"key"`
	}
	if err := json.Unmarshal([]byte(`{"key":"19"}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Key.Uint64() != 19 {
		t.Fatalf("unexpected key %s", payload.Key)
	}
	if err := json.Unmarshal([]byte(`{"key":19}`), &payload); err == nil {
		t.Fatalf("expected bare numbers to be rejected")
	}
	out, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != `{"key":"19"}` {
		t.Fatalf("unexpected json %s", out)
	}
}
