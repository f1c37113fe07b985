// Package collections is the key-value contract: a numeric map, a string map
// and a map from owners to their own independent numeric maps, all persisted
// through storage/treemap.
package collections

import (
	"errors"
	"fmt"
	"strings"

	"treekv/core/events"
	"treekv/core/types"
	"treekv/storage"
	"treekv/storage/treemap"
)

type (
	numericMap = treemap.Map[types.U128, string]
	stringMap  = treemap.Map[string, string]
	ownerMap   = treemap.Map[types.AccountID, Descriptor]
)

// ownerKeys orders owners by their account id bytes.
type ownerKeys struct{}

func (ownerKeys) Encode(k types.AccountID) []byte { return []byte(k) }
func (ownerKeys) Decode(b []byte) (types.AccountID, error) {
	return types.AccountID(b), nil
}
func (ownerKeys) Compare(a, b types.AccountID) int { return strings.Compare(string(a), string(b)) }

// Contract holds the three outer maps. Every mutating method saves the
// contract state record before returning successfully. A Contract is bound to
// the store of a single call and must not be reused after an error.
type Contract struct {
	store   storage.Database
	numeric *numericMap
	strs    *stringMap
	owners  *ownerMap
	emitter events.Emitter
}

// Initialize creates empty outer maps and saves the contract state.
func Initialize(store storage.Database) (*Contract, error) {
	if _, err := loadState(store); err == nil {
		return nil, ErrAlreadyInitialized
	} else if !errors.Is(err, ErrNotInitialized) {
		return nil, err
	}
	c := &Contract{
		store:   store,
		numeric: treemap.New[types.U128, string](store, numericPrefix, treemap.U128Keys{}, treemap.RLP[string]()),
		strs:    treemap.New[string, string](store, stringPrefix, treemap.StringKeys{}, treemap.RLP[string]()),
		owners:  treemap.New[types.AccountID, Descriptor](store, ownersPrefix, ownerKeys{}, treemap.RLP[Descriptor]()),
		emitter: events.NoopEmitter{},
	}
	if err := c.save(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load rebuilds the contract from its saved state record.
func Load(store storage.Database) (*Contract, error) {
	rec, err := loadState(store)
	if err != nil {
		return nil, err
	}
	numeric, err := treemap.Open[types.U128, string](store, rec.Numeric, treemap.U128Keys{}, treemap.RLP[string]())
	if err != nil {
		return nil, fmt.Errorf("numeric map: %w", err)
	}
	strs, err := treemap.Open[string, string](store, rec.Strings, treemap.StringKeys{}, treemap.RLP[string]())
	if err != nil {
		return nil, fmt.Errorf("string map: %w", err)
	}
	owners, err := treemap.Open[types.AccountID, Descriptor](store, rec.Owners, ownerKeys{}, treemap.RLP[Descriptor]())
	if err != nil {
		return nil, fmt.Errorf("owner map: %w", err)
	}
	return &Contract{
		store:   store,
		numeric: numeric,
		strs:    strs,
		owners:  owners,
		emitter: events.NoopEmitter{},
	}, nil
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (c *Contract) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		c.emitter = events.NoopEmitter{}
		return
	}
	c.emitter = emitter
}

func (c *Contract) emit(evt events.Event) {
	if c.emitter != nil {
		c.emitter.Emit(evt)
	}
}

func (c *Contract) save() error {
	return writeState(c.store, &stateRecord{
		Numeric: c.numeric.Header(),
		Strings: c.strs.Header(),
		Owners:  c.owners.Header(),
	})
}

// InsertFlatString stores value under key in the string map, overwriting any
// previous value.
func (c *Contract) InsertFlatString(key, value string) error {
	if _, err := c.strs.Insert(key, value); err != nil {
		return err
	}
	return c.save()
}

// RemoveFlatString removes key from the string map. A missing key is ignored.
func (c *Contract) RemoveFlatString(key string) error {
	if _, err := c.strs.Remove(key); err != nil {
		return err
	}
	return c.save()
}

func (c *Contract) InsertFlatNumeric(key types.U128, value string) error {
	if _, err := c.numeric.Insert(key, value); err != nil {
		return err
	}
	return c.save()
}

// RemoveFlatNumeric removes key from the numeric map. A missing key is ignored.
func (c *Contract) RemoveFlatNumeric(key types.U128) error {
	if _, err := c.numeric.Remove(key); err != nil {
		return err
	}
	return c.save()
}

func (c *Contract) GetFlatString(key string) (string, bool, error) {
	return c.strs.Get(key)
}

func (c *Contract) GetFlatNumeric(key types.U128) (string, bool, error) {
	return c.numeric.Get(key)
}

// FlatStrings lists string map entries with from <= key < to.
func (c *Contract) FlatStrings(from, to *string) ([]treemap.Entry[string, string], error) {
	return collect(c.strs, from, to)
}

// FlatNumerics lists numeric map entries with from <= key < to.
func (c *Contract) FlatNumerics(from, to *types.U128) ([]treemap.Entry[types.U128, string], error) {
	return collect(c.numeric, from, to)
}

// Verify checks the structure of every outer map and every attached inner
// map.
func (c *Contract) Verify() error {
	if err := c.numeric.Verify(); err != nil {
		return fmt.Errorf("numeric map: %w", err)
	}
	if err := c.strs.Verify(); err != nil {
		return fmt.Errorf("string map: %w", err)
	}
	if err := c.owners.Verify(); err != nil {
		return fmt.Errorf("owner map: %w", err)
	}
	owners, err := c.owners.Entries()
	if err != nil {
		return err
	}
	for _, e := range owners {
		inner, err := c.openOwned(e.Value)
		if err != nil {
			return fmt.Errorf("owner %s: %w", e.Key, err)
		}
		if err := inner.Verify(); err != nil {
			return fmt.Errorf("owner %s: %w", e.Key, err)
		}
	}
	return nil
}

func collect[K, V any](m *treemap.Map[K, V], from, to *K) ([]treemap.Entry[K, V], error) {
	out := make([]treemap.Entry[K, V], 0)
	err := m.Ascend(from, to, func(k K, v V) bool {
		out = append(out, treemap.Entry[K, V]{Key: k, Value: v})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
