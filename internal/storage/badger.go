package storage

import (
	"bytes"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerStorage implements Storage using BadgerDB
type BadgerStorage struct {
	db *badger.DB
}

// NewBadgerStorage opens a BadgerDB-backed storage at path
func NewBadgerStorage(path string) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	return &BadgerStorage{db: db}, nil
}

// NewInMemoryBadgerStorage opens an in-memory BadgerDB, useful in tests
func NewInMemoryBadgerStorage() (*BadgerStorage, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory badger db: %w", err)
	}

	return &BadgerStorage{db: db}, nil
}

func (s *BadgerStorage) Begin(writable bool) (Transaction, error) {
	return &badgerTxn{
		txn:      s.db.NewTransaction(writable),
		writable: writable,
	}, nil
}

func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

func (s *BadgerStorage) Sync() error {
	return s.db.Sync()
}

type badgerTxn struct {
	txn      *badger.Txn
	writable bool
}

func (t *badgerTxn) Get(table Table, key []byte) ([]byte, error) {
	item, err := t.txn.Get(PrefixKey(table, key))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *badgerTxn) Set(table Table, key, value []byte) error {
	if !t.writable {
		return ErrTransactionRO
	}
	return t.txn.Set(PrefixKey(table, key), value)
}

func (t *badgerTxn) Delete(table Table, key []byte) error {
	if !t.writable {
		return ErrTransactionRO
	}
	return t.txn.Delete(PrefixKey(table, key))
}

func (t *badgerTxn) Scan(table Table, start, end []byte) (Iterator, error) {
	tablePrefix := TablePrefix(table)

	seekKey := tablePrefix
	if start != nil {
		seekKey = PrefixKey(table, start)
	}

	var endKey []byte
	if end != nil {
		endKey = PrefixKey(table, end)
	}

	opts := badger.DefaultIteratorOptions
	opts.Prefix = tablePrefix

	return &badgerIterator{
		it:      t.txn.NewIterator(opts),
		prefix:  tablePrefix,
		seekKey: seekKey,
		endKey:  endKey,
	}, nil
}

func (t *badgerTxn) Commit() error {
	return t.txn.Commit()
}

func (t *badgerTxn) Rollback() error {
	t.txn.Discard()
	return nil
}

type badgerIterator struct {
	it       *badger.Iterator
	prefix   []byte
	seekKey  []byte
	endKey   []byte
	started  bool
	hasValue bool
}

func (i *badgerIterator) Next() bool {
	if !i.started {
		i.it.Seek(i.seekKey)
		i.started = true
	} else if i.hasValue {
		i.it.Next()
	}

	if !i.it.ValidForPrefix(i.prefix) {
		i.hasValue = false
		return false
	}
	if i.endKey != nil && bytes.Compare(i.it.Item().Key(), i.endKey) >= 0 {
		i.hasValue = false
		return false
	}

	i.hasValue = true
	return true
}

func (i *badgerIterator) Key() []byte {
	if !i.hasValue {
		return nil
	}
	key := i.it.Item().Key()
	return key[len(i.prefix):]
}

func (i *badgerIterator) Value() ([]byte, error) {
	if !i.hasValue {
		return nil, ErrNotFound
	}
	return i.it.Item().ValueCopy(nil)
}

func (i *badgerIterator) Close() error {
	i.it.Close()
	return nil
}
