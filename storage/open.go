package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
)

// Open returns the Database implementation named by backend. For leveldb
// path is a directory; for bolt it is the database file.
func Open(backend, path string) (Database, error) {
	switch backend {
	case BackendMemory:
		return NewMemDB(), nil
	case BackendLevelDB:
		return NewLevelDB(path)
	case BackendBolt:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create bolt directory: %w", err)
		}
		return NewBoltDB(path, &bolt.Options{Timeout: time.Second})
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", backend)
	}
}
