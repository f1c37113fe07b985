package treemap

import (
	"strings"

	"github.com/ethereum/go-ethereum/rlp"

	"treekv/core/types"
)

// KeyCodec encodes keys for storage and defines their total order.
type KeyCodec[K any] interface {
	Encode(K) []byte
	Decode([]byte) (K, error)
	Compare(a, b K) int
}

// ValueCodec serializes values. Round trips must be lossless.
type ValueCodec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// U128Keys orders keys numerically.
type U128Keys struct{}

func (U128Keys) Encode(k types.U128) []byte          { return k.Bytes() }
func (U128Keys) Decode(b []byte) (types.U128, error) { return types.U128FromBytes(b) }
func (U128Keys) Compare(a, b types.U128) int         { return a.Cmp(b) }

// StringKeys orders keys by their bytes.
type StringKeys struct{}

func (StringKeys) Encode(k string) []byte          { return []byte(k) }
func (StringKeys) Decode(b []byte) (string, error) { return string(b), nil }
func (StringKeys) Compare(a, b string) int         { return strings.Compare(a, b) }

type rlpCodec[V any] struct{}

// RLP returns a ValueCodec using go-ethereum's RLP encoding.
func RLP[V any]() ValueCodec[V] { return rlpCodec[V]{} }

func (rlpCodec[V]) Encode(v V) ([]byte, error) {
	return rlp.EncodeToBytes(v)
}

func (rlpCodec[V]) Decode(b []byte) (V, error) {
	var v V
	if err := rlp.DecodeBytes(b, &v); err != nil {
		return v, err
	}
	return v, nil
}
