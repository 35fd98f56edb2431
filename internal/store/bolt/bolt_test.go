package bolt

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"), Options{Timeout: time.Second, NoSync: true})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testBucket = []byte("test-bucket")

func TestOpenClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "test.db")
	s, err := Open(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if s.Path() != path {
		t.Errorf("Path: got %q, want %q", s.Path(), path)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	// File should exist, including the created parent dir
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("db file should exist: %v", err)
	}
}

func TestOpenBlocked(t *testing.T) {
	s := tempStore(t)
	_, err := Open(s.Path(), Options{Timeout: 50 * time.Millisecond})
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("second open should be blocked, got %v", err)
	}
}

func TestUpdateAndView(t *testing.T) {
	s := tempStore(t)
	err := s.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(testBucket)
		if err != nil {
			return err
		}
		return b.Put([]byte("k"), []byte("v"))
	})
	if err != nil {
		t.Fatal(err)
	}

	var got []byte
	err = s.View(func(tx *bolt.Tx) error {
		got = append([]byte{}, tx.Bucket(testBucket).Get([]byte("k"))...)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v" {
		t.Fatalf("expected v, got %q", got)
	}
}

func TestUpdateRollsBackOnError(t *testing.T) {
	s := tempStore(t)
	boom := errors.New("boom")
	err := s.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucket(testBucket); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	_ = s.View(func(tx *bolt.Tx) error {
		if tx.Bucket(testBucket) != nil {
			t.Error("bucket should not exist after rollback")
		}
		return nil
	})
}

func TestBeginReadTx(t *testing.T) {
	s := tempStore(t)
	tx, err := s.Begin(false)
	if err != nil {
		t.Fatal(err)
	}
	if tx.Writable() {
		t.Error("expected read-only tx")
	}
	if err := tx.Rollback(); err != nil {
		t.Fatal(err)
	}
	if s.Stats().TxN < 1 {
		t.Error("stats should count the read tx")
	}
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.db")
	s, err := Open(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
	if err := Remove(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("file should be gone")
	}
	// Removing again is fine
	if err := Remove(path); err != nil {
		t.Fatal(err)
	}
}
