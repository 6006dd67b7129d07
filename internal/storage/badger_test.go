package storage

import (
	"encoding/binary"
	"errors"
	"testing"
)

func openTestStorage(t *testing.T) *BadgerStorage {
	t.Helper()
	st, err := NewBadgerStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestBadgerStorage_SetGet(t *testing.T) {
	st := openTestStorage(t)

	txn, err := st.Begin(true)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := txn.Set(TableSnapshots, []byte("key1"), []byte("value1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	txn, err = st.Begin(false)
	if err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	defer txn.Rollback()

	value, err := txn.Get(TableSnapshots, []byte("key1"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(value) != "value1" {
		t.Errorf("Expected value1, got %s", value)
	}

	if _, err := txn.Get(TableSnapshots, []byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestBadgerStorage_TablesAreIsolated(t *testing.T) {
	st := openTestStorage(t)

	txn, _ := st.Begin(true)
	if err := txn.Set(TableSnapshots, []byte("key"), []byte("snapshot")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := txn.Set(TableMeta, []byte("key"), []byte("meta")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	txn, _ = st.Begin(false)
	defer txn.Rollback()

	value, err := txn.Get(TableMeta, []byte("key"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(value) != "meta" {
		t.Errorf("Expected the meta table's value, got %s", value)
	}
}

func TestBadgerStorage_ReadOnlyTransaction(t *testing.T) {
	st := openTestStorage(t)

	txn, _ := st.Begin(false)
	defer txn.Rollback()

	if err := txn.Set(TableSnapshots, []byte("key"), []byte("value")); !errors.Is(err, ErrTransactionRO) {
		t.Errorf("Expected ErrTransactionRO, got %v", err)
	}
	if err := txn.Delete(TableSnapshots, []byte("key")); !errors.Is(err, ErrTransactionRO) {
		t.Errorf("Expected ErrTransactionRO, got %v", err)
	}
}

func TestBadgerStorage_ScanOrder(t *testing.T) {
	st := openTestStorage(t)

	txn, _ := st.Begin(true)
	// Insert out of order; the scan comes back lexicographic
	for _, seq := range []uint64{2, 0, 1} {
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		if err := txn.Set(TableSnapshots, key[:], []byte{byte(seq)}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	txn, _ = st.Begin(false)
	defer txn.Rollback()

	it, err := txn.Scan(TableSnapshots, nil, nil)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	defer it.Close()

	var got []uint64
	for it.Next() {
		got = append(got, binary.BigEndian.Uint64(it.Key()))
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 keys, got %d", len(got))
	}
	for i, seq := range got {
		if uint64(i) != seq {
			t.Errorf("Expected sequence %d at position %d, got %d", i, i, seq)
		}
	}
}

func TestBadgerStorage_ScanRange(t *testing.T) {
	st := openTestStorage(t)

	txn, _ := st.Begin(true)
	for _, key := range []string{"a", "b", "c", "d"} {
		if err := txn.Set(TableSnapshots, []byte(key), []byte(key)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	txn, _ = st.Begin(false)
	defer txn.Rollback()

	it, err := txn.Scan(TableSnapshots, []byte("b"), []byte("d"))
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	defer it.Close()

	var got []string
	for it.Next() {
		got = append(got, string(it.Key()))
	}
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("Expected [b c], got %v", got)
	}
}

func TestBadgerStorage_Delete(t *testing.T) {
	st := openTestStorage(t)

	txn, _ := st.Begin(true)
	txn.Set(TableSnapshots, []byte("key"), []byte("value"))
	txn.Commit()

	txn, _ = st.Begin(true)
	if err := txn.Delete(TableSnapshots, []byte("key")); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	txn.Commit()

	txn, _ = st.Begin(false)
	defer txn.Rollback()
	if _, err := txn.Get(TableSnapshots, []byte("key")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}
