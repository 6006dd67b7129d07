// Package storage abstracts the key-value store underneath the temporal
// store's persistence layer.
package storage

import (
	"errors"
)

var (
	ErrNotFound      = errors.New("key not found")
	ErrTransactionRO = errors.New("transaction is read-only")
)

// Storage is the interface for the underlying key-value store
type Storage interface {
	// Begin starts a new transaction
	Begin(writable bool) (Transaction, error)

	// Close closes the storage
	Close() error

	// Sync flushes writes to disk
	Sync() error
}

// Transaction represents a storage transaction with snapshot isolation
type Transaction interface {
	// Get retrieves a value by key
	Get(table Table, key []byte) ([]byte, error)

	// Set stores a key-value pair
	Set(table Table, key, value []byte) error

	// Delete removes a key
	Delete(table Table, key []byte) error

	// Scan iterates over a key range [start, end)
	// If start is nil, begins from the first key
	// If end is nil, scans until the last key
	Scan(table Table, start, end []byte) (Iterator, error)

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error
}

// Iterator iterates over key-value pairs
type Iterator interface {
	// Next advances to the next item
	Next() bool

	// Key returns the current key
	Key() []byte

	// Value returns the current value
	Value() ([]byte, error)

	// Close closes the iterator
	Close() error
}

// Table represents a logical table in the storage
type Table byte

const (
	// Snapshot journal: big-endian sequence number -> snapshot record.
	// Scanning in key order replays snapshot creation order.
	TableSnapshots Table = iota

	// Store-level metadata (base URI)
	TableMeta

	// Total number of tables
	TableCount
)

func (t Table) String() string {
	switch t {
	case TableSnapshots:
		return "snapshots"
	case TableMeta:
		return "meta"
	default:
		return "unknown"
	}
}

// TablePrefix returns a byte prefix for a table to namespace keys
func TablePrefix(table Table) []byte {
	return []byte{byte(table)}
}

// PrefixKey prepends the table prefix to a key
func PrefixKey(table Table, key []byte) []byte {
	prefixed := make([]byte, 0, 1+len(key))
	prefixed = append(prefixed, byte(table))
	prefixed = append(prefixed, key...)
	return prefixed
}
