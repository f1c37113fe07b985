package treemap

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"treekv/storage"
)

const nodeTag = 'n'

// nodeRecord is the persisted form of one tree node. Child ids of zero mean
// no child.
type nodeRecord struct {
	Key    []byte
	Value  []byte
	Left   uint64
	Right  uint64
	Height uint64
}

type node[K any] struct {
	id     uint64
	key    K
	rawKey []byte
	value  []byte
	left   uint64
	right  uint64
	height uint64
}

func nodeKey(prefix []byte, id uint64) []byte {
	buf := make([]byte, len(prefix)+1+8)
	copy(buf, prefix)
	buf[len(prefix)] = nodeTag
	binary.BigEndian.PutUint64(buf[len(prefix)+1:], id)
	return buf
}

func nodesPrefix(prefix []byte) []byte {
	buf := make([]byte, len(prefix)+1)
	copy(buf, prefix)
	buf[len(prefix)] = nodeTag
	return buf
}

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrCorrupt}, args...)...)
}

func (m *Map[K, V]) loadNode(id uint64) (*node[K], error) {
	if id == 0 || id >= m.header.NextID {
		return nil, corruptf("node id %d out of range", id)
	}
	data, err := m.store.Get(nodeKey(m.header.Prefix, id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, corruptf("node %d missing", id)
	}
	if err != nil {
		return nil, fmt.Errorf("treemap: load node %d: %w", id, err)
	}
	var rec nodeRecord
	if err := rlp.DecodeBytes(data, &rec); err != nil {
		return nil, corruptf("node %d: %v", id, err)
	}
	key, err := m.keys.Decode(rec.Key)
	if err != nil {
		return nil, corruptf("node %d key: %v", id, err)
	}
	return &node[K]{
		id:     id,
		key:    key,
		rawKey: rec.Key,
		value:  rec.Value,
		left:   rec.Left,
		right:  rec.Right,
		height: rec.Height,
	}, nil
}

func (m *Map[K, V]) storeNode(n *node[K]) error {
	encoded, err := rlp.EncodeToBytes(&nodeRecord{
		Key:    n.rawKey,
		Value:  n.value,
		Left:   n.left,
		Right:  n.right,
		Height: n.height,
	})
	if err != nil {
		return fmt.Errorf("treemap: encode node %d: %w", n.id, err)
	}
	return m.store.Put(nodeKey(m.header.Prefix, n.id), encoded)
}

func (m *Map[K, V]) deleteNode(id uint64) error {
	return m.store.Delete(nodeKey(m.header.Prefix, id))
}

// mutation caches the nodes touched by one structural operation so rebalancing
// reads each node at most once. Every change is written through immediately.
type mutation[K, V any] struct {
	m     *Map[K, V]
	nodes map[uint64]*node[K]
}

func (m *Map[K, V]) mutate() *mutation[K, V] {
	return &mutation[K, V]{m: m, nodes: make(map[uint64]*node[K])}
}

func (t *mutation[K, V]) node(id uint64) (*node[K], error) {
	if n, ok := t.nodes[id]; ok {
		return n, nil
	}
	n, err := t.m.loadNode(id)
	if err != nil {
		return nil, err
	}
	t.nodes[id] = n
	return n, nil
}

func (t *mutation[K, V]) height(id uint64) (uint64, error) {
	if id == 0 {
		return 0, nil
	}
	n, err := t.node(id)
	if err != nil {
		return 0, err
	}
	return n.height, nil
}

func (t *mutation[K, V]) write(n *node[K]) error {
	t.nodes[n.id] = n
	return t.m.storeNode(n)
}

func (t *mutation[K, V]) drop(id uint64) error {
	delete(t.nodes, id)
	return t.m.deleteNode(id)
}

func (t *mutation[K, V]) alloc(key K, rawKey, value []byte) (*node[K], error) {
	id := t.m.header.NextID
	t.m.header.NextID++
	n := &node[K]{id: id, key: key, rawKey: rawKey, value: value, height: 1}
	return n, t.write(n)
}

// fix recomputes the height of n from its children and persists it.
func (t *mutation[K, V]) fix(n *node[K]) error {
	hl, err := t.height(n.left)
	if err != nil {
		return err
	}
	hr, err := t.height(n.right)
	if err != nil {
		return err
	}
	n.height = 1 + max(hl, hr)
	return t.write(n)
}

func (t *mutation[K, V]) rotateRight(n *node[K]) (uint64, error) {
	l, err := t.node(n.left)
	if err != nil {
		return 0, err
	}
	n.left = l.right
	if err := t.fix(n); err != nil {
		return 0, err
	}
	l.right = n.id
	if err := t.fix(l); err != nil {
		return 0, err
	}
	return l.id, nil
}

func (t *mutation[K, V]) rotateLeft(n *node[K]) (uint64, error) {
	r, err := t.node(n.right)
	if err != nil {
		return 0, err
	}
	n.right = r.left
	if err := t.fix(n); err != nil {
		return 0, err
	}
	r.left = n.id
	if err := t.fix(r); err != nil {
		return 0, err
	}
	return r.id, nil
}

// rebalance restores the AVL property at n, assuming both subtrees are
// balanced, and returns the id of the subtree root.
func (t *mutation[K, V]) rebalance(n *node[K]) (uint64, error) {
	hl, err := t.height(n.left)
	if err != nil {
		return 0, err
	}
	hr, err := t.height(n.right)
	if err != nil {
		return 0, err
	}
	switch {
	case hl > hr+1:
		l, err := t.node(n.left)
		if err != nil {
			return 0, err
		}
		lh, err := t.height(l.left)
		if err != nil {
			return 0, err
		}
		rh, err := t.height(l.right)
		if err != nil {
			return 0, err
		}
		if lh < rh {
			if n.left, err = t.rotateLeft(l); err != nil {
				return 0, err
			}
		}
		return t.rotateRight(n)
	case hr > hl+1:
		r, err := t.node(n.right)
		if err != nil {
			return 0, err
		}
		lh, err := t.height(r.left)
		if err != nil {
			return 0, err
		}
		rh, err := t.height(r.right)
		if err != nil {
			return 0, err
		}
		if rh < lh {
			if n.right, err = t.rotateRight(r); err != nil {
				return 0, err
			}
		}
		return t.rotateLeft(n)
	}
	n.height = 1 + max(hl, hr)
	return n.id, t.write(n)
}

func (t *mutation[K, V]) insert(id uint64, key K, rawKey, value []byte) (uint64, bool, error) {
	if id == 0 {
		n, err := t.alloc(key, rawKey, value)
		if err != nil {
			return 0, false, err
		}
		return n.id, false, nil
	}
	n, err := t.node(id)
	if err != nil {
		return 0, false, err
	}
	c := t.m.keys.Compare(key, n.key)
	if c == 0 {
		n.value = value
		return id, true, t.write(n)
	}
	var child uint64
	var replaced bool
	if c < 0 {
		child, replaced, err = t.insert(n.left, key, rawKey, value)
	} else {
		child, replaced, err = t.insert(n.right, key, rawKey, value)
	}
	if err != nil || replaced {
		return id, replaced, err
	}
	if c < 0 {
		n.left = child
	} else {
		n.right = child
	}
	root, err := t.rebalance(n)
	return root, false, err
}

func (t *mutation[K, V]) remove(id uint64, key K) (uint64, bool, error) {
	if id == 0 {
		return 0, false, nil
	}
	n, err := t.node(id)
	if err != nil {
		return 0, false, err
	}
	switch c := t.m.keys.Compare(key, n.key); {
	case c < 0:
		child, removed, err := t.remove(n.left, key)
		if err != nil || !removed {
			return id, false, err
		}
		n.left = child
	case c > 0:
		child, removed, err := t.remove(n.right, key)
		if err != nil || !removed {
			return id, false, err
		}
		n.right = child
	default:
		if n.left == 0 || n.right == 0 {
			next := n.left
			if next == 0 {
				next = n.right
			}
			return next, true, t.drop(n.id)
		}
		succ, rest, err := t.removeMin(n.right)
		if err != nil {
			return 0, false, err
		}
		succ.left, succ.right = n.left, rest
		if err := t.drop(n.id); err != nil {
			return 0, false, err
		}
		root, err := t.rebalance(succ)
		return root, true, err
	}
	root, err := t.rebalance(n)
	return root, true, err
}

// removeMin detaches the smallest node of the subtree at id and returns it
// together with the new subtree root.
func (t *mutation[K, V]) removeMin(id uint64) (*node[K], uint64, error) {
	n, err := t.node(id)
	if err != nil {
		return nil, 0, err
	}
	if n.left == 0 {
		return n, n.right, nil
	}
	least, rest, err := t.removeMin(n.left)
	if err != nil {
		return nil, 0, err
	}
	n.left = rest
	root, err := t.rebalance(n)
	if err != nil {
		return nil, 0, err
	}
	return least, root, nil
}
