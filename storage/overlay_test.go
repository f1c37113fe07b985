package storage

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestOverlayReadsOwnWrites(t *testing.T) {
	base := NewMemDB()
	mustPut(t, base, "a", "base-a")
	mustPut(t, base, "b", "base-b")

	ov := NewOverlay(base)
	mustPut(t, ov, "a", "new-a")
	if err := ov.Delete([]byte("b")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	mustPut(t, ov, "c", "new-c")

	got, err := ov.Get([]byte("a"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, []byte("new-a")) {
		t.Fatalf("expected pending value, got %q", got)
	}
	if _, err := ov.Get([]byte("b")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected pending delete to hide key, got %v", err)
	}
	if !mustHas(t, ov, "c") {
		t.Fatalf("expected pending put to be visible")
	}

	// Base is untouched until commit.
	got, err = base.Get([]byte("a"))
	if err != nil {
		t.Fatalf("base get: %v", err)
	}
	if !bytes.Equal(got, []byte("base-a")) {
		t.Fatalf("base modified before commit: %q", got)
	}
	if base.Len() != 2 {
		t.Fatalf("expected 2 base records, got %d", base.Len())
	}
}

func TestOverlayIterateMergesPending(t *testing.T) {
	base := NewMemDB()
	for _, k := range []string{"x/1", "x/3", "x/5"} {
		mustPut(t, base, k, "base")
	}
	ov := NewOverlay(base)
	mustPut(t, ov, "x/2", "ov")
	if err := ov.Delete([]byte("x/3")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	mustPut(t, ov, "x/5", "ov")
	mustPut(t, ov, "y/1", "ov")

	var got []string
	if err := ov.Iterate([]byte("x/"), func(key, value []byte) bool {
		got = append(got, string(key)+"="+string(value))
		return true
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if want := []string{"x/1=base", "x/2=ov", "x/5=ov"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestOverlayCommitAndDiscard(t *testing.T) {
	base := NewMemDB()
	mustPut(t, base, "old", "v")

	ov := NewOverlay(base)
	mustPut(t, ov, "dropped", "v")
	ov.Discard()
	if ov.Pending() != 0 {
		t.Fatalf("expected discard to drop pending writes, got %d", ov.Pending())
	}
	if err := ov.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if mustHas(t, base, "dropped") {
		t.Fatalf("discarded write reached the base store")
	}

	mustPut(t, ov, "kept", "v")
	if err := ov.Delete([]byte("old")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ov.Pending() != 2 {
		t.Fatalf("expected 2 pending writes, got %d", ov.Pending())
	}
	if err := ov.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if ov.Pending() != 0 {
		t.Fatalf("expected commit to reset pending writes, got %d", ov.Pending())
	}
	if !mustHas(t, base, "kept") {
		t.Fatalf("committed put missing from base")
	}
	if mustHas(t, base, "old") {
		t.Fatalf("committed delete not applied to base")
	}
}
