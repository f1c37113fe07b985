package storage

import (
	"bytes"
	"sort"
)

type pendingValue struct {
	value   []byte
	deleted bool
}

// Overlay buffers the writes of one call on top of a base Database. Reads see
// the buffered writes. Nothing reaches the base until Commit, which applies
// every buffered write in a single Batch; Discard drops them.
//
// Overlay is not safe for concurrent use.
type Overlay struct {
	base    Database
	pending map[string]pendingValue
}

// NewOverlay wraps base. The overlay does not own base and Close is a no-op.
func NewOverlay(base Database) *Overlay {
	return &Overlay{base: base, pending: make(map[string]pendingValue)}
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	if p, ok := o.pending[string(key)]; ok {
		if p.deleted {
			return nil, ErrNotFound
		}
		return append([]byte(nil), p.value...), nil
	}
	return o.base.Get(key)
}

func (o *Overlay) Has(key []byte) (bool, error) {
	if p, ok := o.pending[string(key)]; ok {
		return !p.deleted, nil
	}
	return o.base.Has(key)
}

func (o *Overlay) Put(key []byte, value []byte) error {
	o.pending[string(key)] = pendingValue{value: append([]byte(nil), value...)}
	return nil
}

func (o *Overlay) Delete(key []byte) error {
	o.pending[string(key)] = pendingValue{deleted: true}
	return nil
}

func (o *Overlay) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	merged := make(map[string][]byte)
	if err := o.base.Iterate(prefix, func(key, value []byte) bool {
		merged[string(key)] = value
		return true
	}); err != nil {
		return err
	}
	for k, p := range o.pending {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if p.deleted {
			delete(merged, k)
			continue
		}
		merged[k] = p.value
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !fn([]byte(k), append([]byte(nil), merged[k]...)) {
			return nil
		}
	}
	return nil
}

// Write queues the batch operations in the overlay.
func (o *Overlay) Write(b *Batch) error {
	if b == nil {
		return nil
	}
	for _, op := range b.ops {
		if op.del {
			_ = o.Delete(op.key)
			continue
		}
		_ = o.Put(op.key, op.value)
	}
	return nil
}

// Pending returns the number of buffered writes.
func (o *Overlay) Pending() int {
	return len(o.pending)
}

// Commit applies the buffered writes to the base store atomically and resets
// the overlay.
func (o *Overlay) Commit() error {
	if len(o.pending) == 0 {
		return nil
	}
	keys := make([]string, 0, len(o.pending))
	for k := range o.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := new(Batch)
	for _, k := range keys {
		p := o.pending[k]
		if p.deleted {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), p.value)
	}
	if err := o.base.Write(batch); err != nil {
		return err
	}
	o.Discard()
	return nil
}

// Discard drops every buffered write.
func (o *Overlay) Discard() {
	o.pending = make(map[string]pendingValue)
}

func (o *Overlay) Close() error { return nil }
