package collections

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"treekv/storage"
	"treekv/storage/treemap"
)

// Store layout. No namespace is a prefix of another:
//
//	STATE                    contract state record
//	m ...                    numeric map nodes
//	t ...                    string map nodes
//	n ...                    owner map nodes
//	g ++ owner               last generation issued to owner
//	u ++ uvarint(len) ++ owner ++ uint64be(generation) ...   inner map nodes
var (
	stateKey         = []byte("STATE")
	numericPrefix    = []byte("m")
	stringPrefix     = []byte("t")
	ownersPrefix     = []byte("n")
	generationPrefix = []byte("g")
)

const ownedTag = 'u'

// stateRecord is the persisted contract state: the headers of the three outer
// maps.
type stateRecord struct {
	Numeric treemap.Header
	Strings treemap.Header
	Owners  treemap.Header
}

func loadState(store storage.Database) (*stateRecord, error) {
	data, err := store.Get(stateKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("collections: load state: %w", err)
	}
	rec := new(stateRecord)
	if err := rlp.DecodeBytes(data, rec); err != nil {
		return nil, fmt.Errorf("%w: contract state: %v", treemap.ErrCorrupt, err)
	}
	return rec, nil
}

func writeState(store storage.Database, rec *stateRecord) error {
	encoded, err := rlp.EncodeToBytes(rec)
	if err != nil {
		return fmt.Errorf("collections: encode state: %w", err)
	}
	return store.Put(stateKey, encoded)
}
