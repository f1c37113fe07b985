package storage

import (
	"bytes"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

func openBackends(t *testing.T) map[string]Database {
	t.Helper()
	dir := t.TempDir()

	ldb, err := NewLevelDB(filepath.Join(dir, "leveldb"))
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	bdb, err := NewBoltDB(filepath.Join(dir, "bolt.db"), nil)
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}

	backends := map[string]Database{
		"memory":  NewMemDB(),
		"leveldb": ldb,
		"bolt":    bdb,
	}
	t.Cleanup(func() {
		for _, db := range backends {
			_ = db.Close()
		}
	})
	return backends
}

func mustPut(t *testing.T, db Database, key, value string) {
	t.Helper()
	if err := db.Put([]byte(key), []byte(value)); err != nil {
		t.Fatalf("put %s: %v", key, err)
	}
}

func mustHas(t *testing.T, db Database, key string) bool {
	t.Helper()
	ok, err := db.Has([]byte(key))
	if err != nil {
		t.Fatalf("has %s: %v", key, err)
	}
	return ok
}

func TestDatabaseBasicOperations(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			mustPut(t, db, "a", "1")
			got, err := db.Get([]byte("a"))
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if !bytes.Equal(got, []byte("1")) {
				t.Fatalf("unexpected value %q", got)
			}
			if !mustHas(t, db, "a") {
				t.Fatalf("expected key to exist")
			}

			if err := db.Delete([]byte("a")); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if mustHas(t, db, "a") {
				t.Fatalf("expected key to be deleted")
			}

			// Deleting an absent key is not an error.
			if err := db.Delete([]byte("a")); err != nil {
				t.Fatalf("delete absent key: %v", err)
			}
		})
	}
}

func TestDatabaseIteratePrefixOrdered(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"p/c", "p/a", "q/a", "p/b", "o/z"} {
				mustPut(t, db, k, k)
			}
			var keys []string
			err := db.Iterate([]byte("p/"), func(key, value []byte) bool {
				if !bytes.Equal(key, value) {
					t.Errorf("value %q does not match key %q", value, key)
				}
				keys = append(keys, string(key))
				return true
			})
			if err != nil {
				t.Fatalf("iterate: %v", err)
			}
			if want := []string{"p/a", "p/b", "p/c"}; !reflect.DeepEqual(keys, want) {
				t.Fatalf("expected %v, got %v", want, keys)
			}

			keys = keys[:0]
			if err := db.Iterate([]byte("p/"), func(key, _ []byte) bool {
				keys = append(keys, string(key))
				return false
			}); err != nil {
				t.Fatalf("iterate: %v", err)
			}
			if want := []string{"p/a"}; !reflect.DeepEqual(keys, want) {
				t.Fatalf("expected iteration to stop after %v, got %v", want, keys)
			}
		})
	}
}

func TestDatabaseWriteBatch(t *testing.T) {
	for name, db := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			mustPut(t, db, "gone", "x")

			batch := new(Batch)
			batch.Put([]byte("k1"), []byte("v1"))
			batch.Put([]byte("k2"), []byte("v2"))
			batch.Delete([]byte("gone"))
			batch.Put([]byte("k1"), []byte("v1b"))
			if batch.Len() != 4 {
				t.Fatalf("expected 4 queued ops, got %d", batch.Len())
			}
			if err := db.Write(batch); err != nil {
				t.Fatalf("write: %v", err)
			}

			got, err := db.Get([]byte("k1"))
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if !bytes.Equal(got, []byte("v1b")) {
				t.Fatalf("expected later put to win, got %q", got)
			}
			if _, err := db.Get([]byte("gone")); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected deleted key to be gone, got %v", err)
			}
		})
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	openers := map[string]func() (Database, error){
		"leveldb": func() (Database, error) { return NewLevelDB(filepath.Join(dir, "leveldb")) },
		"bolt":    func() (Database, error) { return NewBoltDB(filepath.Join(dir, "store.db"), nil) },
	}
	for name, open := range openers {
		t.Run(name, func(t *testing.T) {
			db1, err := open()
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			mustPut(t, db1, "key", "value")
			if err := db1.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}

			db2, err := open()
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer db2.Close()

			got, err := db2.Get([]byte("key"))
			if err != nil {
				t.Fatalf("get after reopen: %v", err)
			}
			if !bytes.Equal(got, []byte("value")) {
				t.Fatalf("unexpected value %q", got)
			}
		})
	}
}

func TestOpenBackends(t *testing.T) {
	dir := t.TempDir()
	for _, tc := range []struct {
		backend string
		path    string
	}{
		{BackendMemory, ""},
		{BackendLevelDB, filepath.Join(dir, "ldb")},
		{BackendBolt, filepath.Join(dir, "bolt", "treekv.db")},
	} {
		db, err := Open(tc.backend, tc.path)
		if err != nil {
			t.Fatalf("%s: open: %v", tc.backend, err)
		}
		mustPut(t, db, "k", "v")
		if err := db.Close(); err != nil {
			t.Fatalf("%s: close: %v", tc.backend, err)
		}
	}
	if _, err := Open("redis", dir); err == nil {
		t.Fatalf("expected unknown backend to be rejected")
	}
}
