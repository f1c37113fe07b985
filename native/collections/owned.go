package collections

import (
	"encoding/binary"
	"errors"
	"fmt"

	"treekv/core/events"
	"treekv/core/types"
	"treekv/storage"
	"treekv/storage/treemap"
)

// Descriptor is the owner map's value: everything needed to reopen an owner's
// inner map.
type Descriptor struct {
	Generation uint64
	Map        treemap.Header
}

// ownedPrefix derives the namespace of an owner's inner map. The length
// prefix makes the encoding self-delimiting, so distinct (owner, generation)
// pairs never yield prefixes where one extends the other.
func ownedPrefix(owner types.AccountID, generation uint64) []byte {
	buf := make([]byte, 0, 1+binary.MaxVarintLen64+len(owner)+8)
	buf = append(buf, ownedTag)
	buf = binary.AppendUvarint(buf, uint64(len(owner)))
	buf = append(buf, owner...)
	return binary.BigEndian.AppendUint64(buf, generation)
}

func generationKey(owner types.AccountID) []byte {
	return append(append([]byte(nil), generationPrefix...), owner...)
}

// nextGeneration bumps and returns the owner's generation counter. The
// counter outlives the owner's descriptor, so a re-created inner map never
// reuses the namespace of a detached one.
func (c *Contract) nextGeneration(owner types.AccountID) (uint64, error) {
	var last uint64
	data, err := c.store.Get(generationKey(owner))
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return 0, fmt.Errorf("collections: load generation: %w", err)
	case len(data) != 8:
		return 0, fmt.Errorf("%w: generation record for %s has %d bytes", treemap.ErrCorrupt, owner, len(data))
	default:
		last = binary.BigEndian.Uint64(data)
	}
	next := last + 1
	if err := c.store.Put(generationKey(owner), binary.BigEndian.AppendUint64(nil, next)); err != nil {
		return 0, fmt.Errorf("collections: store generation: %w", err)
	}
	return next, nil
}

func (c *Contract) openOwned(desc Descriptor) (*numericMap, error) {
	return treemap.Open[types.U128, string](c.store, desc.Map, treemap.U128Keys{}, treemap.RLP[string]())
}

func (c *Contract) createOwned(owner types.AccountID) (*numericMap, Descriptor, error) {
	gen, err := c.nextGeneration(owner)
	if err != nil {
		return nil, Descriptor{}, err
	}
	prefix := ownedPrefix(owner, gen)
	inUse := false
	if err := c.store.Iterate(prefix, func(_, _ []byte) bool {
		inUse = true
		return false
	}); err != nil {
		return nil, Descriptor{}, err
	}
	if inUse {
		return nil, Descriptor{}, fmt.Errorf("%w: namespace %x already holds records", treemap.ErrCorrupt, prefix)
	}
	inner := treemap.New[types.U128, string](c.store, prefix, treemap.U128Keys{}, treemap.RLP[string]())
	return inner, Descriptor{Generation: gen, Map: inner.Header()}, nil
}

// withOwnedMap acquires the owner's inner map, creating it when create is set
// and the owner has none, and hands it to fn. The descriptor is written back
// to the owner map only when fn succeeds; on error nothing is saved.
func (c *Contract) withOwnedMap(owner types.AccountID, create bool, fn func(inner *numericMap) error) error {
	desc, ok, err := c.owners.Get(owner)
	if err != nil {
		return err
	}
	var inner *numericMap
	created := false
	if ok {
		if inner, err = c.openOwned(desc); err != nil {
			return fmt.Errorf("owner %s: %w", owner, err)
		}
	} else {
		if !create {
			return errNoOwnedMap
		}
		if inner, desc, err = c.createOwned(owner); err != nil {
			return err
		}
		created = true
	}

	if err := fn(inner); err != nil {
		return err
	}

	desc.Map = inner.Header()
	if _, err := c.owners.Insert(owner, desc); err != nil {
		return err
	}
	if err := c.save(); err != nil {
		return err
	}
	if created {
		c.emit(events.OwnerMapCreated{Owner: owner, Generation: desc.Generation, Prefix: desc.Map.Prefix})
	}
	return nil
}

// InsertOwnedNumeric stores value under key in owner's inner map, creating the
// map on the owner's first insert.
func (c *Contract) InsertOwnedNumeric(owner types.AccountID, key types.U128, value string) error {
	return c.withOwnedMap(owner, true, func(inner *numericMap) error {
		_, err := inner.Insert(key, value)
		return err
	})
}

// RemoveOwnedNumeric removes key from owner's inner map. Unlike the flat maps
// it is strict: a missing key, or an owner without a map, is
// ErrNumberNotFound.
func (c *Contract) RemoveOwnedNumeric(owner types.AccountID, key types.U128) error {
	err := c.withOwnedMap(owner, false, func(inner *numericMap) error {
		found, err := inner.Contains(key)
		if err != nil {
			return err
		}
		if !found {
			return ErrNumberNotFound
		}
		_, err = inner.Remove(key)
		return err
	})
	if errors.Is(err, errNoOwnedMap) {
		return ErrNumberNotFound
	}
	return err
}

// RemoveOwnerEntries detaches owner's inner map by deleting its descriptor.
// The inner map's nodes are left in the store; the owner's next insert starts
// a new generation under a fresh namespace.
func (c *Contract) RemoveOwnerEntries(owner types.AccountID) error {
	desc, ok, err := c.owners.Get(owner)
	if err != nil {
		return err
	}
	if !ok {
		return ErrOwnerNotFound
	}
	if _, err := c.owners.Remove(owner); err != nil {
		return err
	}
	if err := c.save(); err != nil {
		return err
	}
	c.emit(events.OwnerMapDetached{Owner: owner, Generation: desc.Generation, Entries: desc.Map.Length})
	return nil
}

// GetOwnedNumeric reads key from owner's inner map. An owner without a map
// holds nothing.
func (c *Contract) GetOwnedNumeric(owner types.AccountID, key types.U128) (string, bool, error) {
	desc, ok, err := c.owners.Get(owner)
	if err != nil || !ok {
		return "", false, err
	}
	inner, err := c.openOwned(desc)
	if err != nil {
		return "", false, fmt.Errorf("owner %s: %w", owner, err)
	}
	return inner.Get(key)
}

// OwnedNumerics lists owner's entries with from <= key < to.
func (c *Contract) OwnedNumerics(owner types.AccountID, from, to *types.U128) ([]treemap.Entry[types.U128, string], error) {
	desc, ok, err := c.owners.Get(owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []treemap.Entry[types.U128, string]{}, nil
	}
	inner, err := c.openOwned(desc)
	if err != nil {
		return nil, fmt.Errorf("owner %s: %w", owner, err)
	}
	return collect(inner, from, to)
}

// OwnerInfo summarizes one attached inner map.
type OwnerInfo struct {
	Owner      types.AccountID `json:"owner"`
	Generation uint64          `json:"generation"`
	Entries    uint64          `json:"entries"`
}

// Owners lists every owner with an attached inner map, in account id order.
func (c *Contract) Owners() ([]OwnerInfo, error) {
	entries, err := c.owners.Entries()
	if err != nil {
		return nil, err
	}
	out := make([]OwnerInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, OwnerInfo{Owner: e.Key, Generation: e.Value.Generation, Entries: e.Value.Map.Length})
	}
	return out, nil
}
