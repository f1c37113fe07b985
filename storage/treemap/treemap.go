// Package treemap implements an ordered map persisted node by node into a
// storage.Database.
//
// Every map lives under a namespace prefix. Nodes are stored at
// prefix ++ 'n' ++ uint64be(id) and the Header (prefix, root id, next id and
// length) is the only thing needed to rebuild a Map from the store. The map
// does not persist its own Header: the owner of a Map saves it wherever it
// keeps its state, e.g. inside a parent map. Two maps whose prefixes overlap
// corrupt each other, and detecting that is the caller's job.
//
// The tree is an AVL tree, so Insert, Remove and Get touch O(log n) nodes.
// A Map is not safe for concurrent use, and after any error other than a
// codec error on the value being inserted it must be discarded.
package treemap

import (
	"errors"
	"fmt"

	"treekv/storage"
)

// ErrCorrupt reports that the store holds data inconsistent with the tree.
var ErrCorrupt = errors.New("treemap: structural corruption")

// Header describes a persisted map.
type Header struct {
	Prefix []byte
	Root   uint64
	NextID uint64
	Length uint64
}

// Entry is a key-value pair returned by ordered reads.
type Entry[K, V any] struct {
	Key   K
	Value V
}

type Map[K, V any] struct {
	store  storage.Database
	header Header
	keys   KeyCodec[K]
	values ValueCodec[V]
}

// New returns an empty map bound to prefix.
func New[K, V any](store storage.Database, prefix []byte, keys KeyCodec[K], values ValueCodec[V]) *Map[K, V] {
	return &Map[K, V]{
		store: store,
		header: Header{
			Prefix: append([]byte(nil), prefix...),
			NextID: 1,
		},
		keys:   keys,
		values: values,
	}
}

// Open rebinds a map from a previously saved header.
func Open[K, V any](store storage.Database, header Header, keys KeyCodec[K], values ValueCodec[V]) (*Map[K, V], error) {
	if len(header.Prefix) == 0 {
		return nil, corruptf("header has empty prefix")
	}
	if header.NextID == 0 || header.Root >= header.NextID {
		return nil, corruptf("header root %d outside id space %d", header.Root, header.NextID)
	}
	if (header.Root == 0) != (header.Length == 0) {
		return nil, corruptf("header root %d inconsistent with length %d", header.Root, header.Length)
	}
	header.Prefix = append([]byte(nil), header.Prefix...)
	return &Map[K, V]{store: store, header: header, keys: keys, values: values}, nil
}

// Header returns a copy of the map's current header.
func (m *Map[K, V]) Header() Header {
	h := m.header
	h.Prefix = append([]byte(nil), h.Prefix...)
	return h
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() uint64 { return m.header.Length }

// Insert stores value under key, overwriting any existing value in place. It
// reports whether an existing value was replaced.
func (m *Map[K, V]) Insert(key K, value V) (bool, error) {
	raw, err := m.values.Encode(value)
	if err != nil {
		return false, fmt.Errorf("treemap: encode value: %w", err)
	}
	root, replaced, err := m.mutate().insert(m.header.Root, key, m.keys.Encode(key), raw)
	if err != nil {
		return false, err
	}
	m.header.Root = root
	if !replaced {
		m.header.Length++
	}
	return replaced, nil
}

// Remove deletes key and reports whether it was present. Removing an absent
// key is not an error.
func (m *Map[K, V]) Remove(key K) (bool, error) {
	root, removed, err := m.mutate().remove(m.header.Root, key)
	if err != nil {
		return false, err
	}
	if removed {
		if m.header.Length == 0 {
			return false, corruptf("removed a key from a map of length 0")
		}
		m.header.Root = root
		m.header.Length--
	}
	return removed, nil
}

func (m *Map[K, V]) find(key K) (*node[K], error) {
	id := m.header.Root
	for id != 0 {
		n, err := m.loadNode(id)
		if err != nil {
			return nil, err
		}
		switch c := m.keys.Compare(key, n.key); {
		case c == 0:
			return n, nil
		case c < 0:
			id = n.left
		default:
			id = n.right
		}
	}
	return nil, nil
}

func (m *Map[K, V]) decodeValue(n *node[K]) (V, error) {
	v, err := m.values.Decode(n.value)
	if err != nil {
		return v, corruptf("node %d value: %v", n.id, err)
	}
	return v, nil
}

// Get returns the value stored under key.
func (m *Map[K, V]) Get(key K) (V, bool, error) {
	var zero V
	n, err := m.find(key)
	if err != nil || n == nil {
		return zero, false, err
	}
	v, err := m.decodeValue(n)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (m *Map[K, V]) Contains(key K) (bool, error) {
	n, err := m.find(key)
	return n != nil, err
}

func (m *Map[K, V]) entry(n *node[K]) (Entry[K, V], bool, error) {
	if n == nil {
		return Entry[K, V]{}, false, nil
	}
	v, err := m.decodeValue(n)
	if err != nil {
		return Entry[K, V]{}, false, err
	}
	return Entry[K, V]{Key: n.key, Value: v}, true, nil
}

func (m *Map[K, V]) edge(leftmost bool) (Entry[K, V], bool, error) {
	var last *node[K]
	id := m.header.Root
	for id != 0 {
		n, err := m.loadNode(id)
		if err != nil {
			return Entry[K, V]{}, false, err
		}
		last = n
		if leftmost {
			id = n.left
		} else {
			id = n.right
		}
	}
	return m.entry(last)
}

// Min returns the entry with the smallest key.
func (m *Map[K, V]) Min() (Entry[K, V], bool, error) { return m.edge(true) }

// Max returns the entry with the largest key.
func (m *Map[K, V]) Max() (Entry[K, V], bool, error) { return m.edge(false) }

// Floor returns the entry with the largest key <= key.
func (m *Map[K, V]) Floor(key K) (Entry[K, V], bool, error) {
	var best *node[K]
	id := m.header.Root
	for id != 0 {
		n, err := m.loadNode(id)
		if err != nil {
			return Entry[K, V]{}, false, err
		}
		c := m.keys.Compare(key, n.key)
		if c == 0 {
			return m.entry(n)
		}
		if c < 0 {
			id = n.left
		} else {
			best = n
			id = n.right
		}
	}
	return m.entry(best)
}

// Ceiling returns the entry with the smallest key >= key.
func (m *Map[K, V]) Ceiling(key K) (Entry[K, V], bool, error) {
	var best *node[K]
	id := m.header.Root
	for id != 0 {
		n, err := m.loadNode(id)
		if err != nil {
			return Entry[K, V]{}, false, err
		}
		c := m.keys.Compare(key, n.key)
		if c == 0 {
			return m.entry(n)
		}
		if c > 0 {
			id = n.right
		} else {
			best = n
			id = n.left
		}
	}
	return m.entry(best)
}

// Ascend calls fn for every entry with from <= key < to in ascending key
// order until fn returns false. A nil bound is unbounded.
func (m *Map[K, V]) Ascend(from, to *K, fn func(key K, value V) bool) error {
	_, err := m.ascend(m.header.Root, from, to, fn)
	return err
}

func (m *Map[K, V]) ascend(id uint64, from, to *K, fn func(K, V) bool) (bool, error) {
	if id == 0 {
		return true, nil
	}
	n, err := m.loadNode(id)
	if err != nil {
		return false, err
	}
	aboveFrom := from == nil || m.keys.Compare(n.key, *from) >= 0
	belowTo := to == nil || m.keys.Compare(n.key, *to) < 0
	if from == nil || m.keys.Compare(n.key, *from) > 0 {
		if cont, err := m.ascend(n.left, from, to, fn); err != nil || !cont {
			return false, err
		}
	}
	if aboveFrom && belowTo {
		v, err := m.decodeValue(n)
		if err != nil {
			return false, err
		}
		if !fn(n.key, v) {
			return false, nil
		}
	}
	if belowTo {
		return m.ascend(n.right, from, to, fn)
	}
	return true, nil
}

// Entries returns every entry in key order.
func (m *Map[K, V]) Entries() ([]Entry[K, V], error) {
	out := make([]Entry[K, V], 0, m.header.Length)
	err := m.Ascend(nil, nil, func(k K, v V) bool {
		out = append(out, Entry[K, V]{Key: k, Value: v})
		return true
	})
	return out, err
}

// Keys returns every key in ascending order.
func (m *Map[K, V]) Keys() ([]K, error) {
	out := make([]K, 0, m.header.Length)
	err := m.Ascend(nil, nil, func(k K, _ V) bool {
		out = append(out, k)
		return true
	})
	return out, err
}

// Clear deletes every node stored under the map's namespace, including nodes
// no longer reachable from the root, and resets the map to empty.
func (m *Map[K, V]) Clear() error {
	var stale [][]byte
	if err := m.store.Iterate(nodesPrefix(m.header.Prefix), func(key, _ []byte) bool {
		stale = append(stale, key)
		return true
	}); err != nil {
		return fmt.Errorf("treemap: scan namespace: %w", err)
	}
	for _, key := range stale {
		if err := m.store.Delete(key); err != nil {
			return fmt.Errorf("treemap: clear node: %w", err)
		}
	}
	m.header.Root = 0
	m.header.NextID = 1
	m.header.Length = 0
	return nil
}
