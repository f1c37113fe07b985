package treemap

type subtreeStats struct {
	height uint64
	count  uint64
}

// Verify walks the whole tree and checks key order, AVL balance, stored
// heights, the entry count and that no node is reachable twice. Any violation
// is reported as ErrCorrupt.
func (m *Map[K, V]) Verify() error {
	seen := make(map[uint64]struct{})
	stats, err := m.verify(m.header.Root, nil, nil, seen)
	if err != nil {
		return err
	}
	if stats.count != m.header.Length {
		return corruptf("header length %d, tree holds %d", m.header.Length, stats.count)
	}
	return nil
}

func (m *Map[K, V]) verify(id uint64, lower, upper *K, seen map[uint64]struct{}) (subtreeStats, error) {
	if id == 0 {
		return subtreeStats{}, nil
	}
	if _, dup := seen[id]; dup {
		return subtreeStats{}, corruptf("node %d reachable twice", id)
	}
	seen[id] = struct{}{}

	n, err := m.loadNode(id)
	if err != nil {
		return subtreeStats{}, err
	}
	if lower != nil && m.keys.Compare(n.key, *lower) <= 0 {
		return subtreeStats{}, corruptf("node %d out of order", id)
	}
	if upper != nil && m.keys.Compare(n.key, *upper) >= 0 {
		return subtreeStats{}, corruptf("node %d out of order", id)
	}
	if _, err := m.decodeValue(n); err != nil {
		return subtreeStats{}, err
	}
	left, err := m.verify(n.left, lower, &n.key, seen)
	if err != nil {
		return subtreeStats{}, err
	}
	right, err := m.verify(n.right, &n.key, upper, seen)
	if err != nil {
		return subtreeStats{}, err
	}
	height := 1 + max(left.height, right.height)
	if n.height != height {
		return subtreeStats{}, corruptf("node %d stores height %d, actual %d", id, n.height, height)
	}
	if left.height > right.height+1 || right.height > left.height+1 {
		return subtreeStats{}, corruptf("node %d unbalanced (%d/%d)", id, left.height, right.height)
	}
	return subtreeStats{height: height, count: left.count + right.count + 1}, nil
}
