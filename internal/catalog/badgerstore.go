package catalog

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/raoulx24/snaprotate/internal/snapshot"
)

const badgerPrefix = "snap/"

// BadgerStore persists one key per snapshot: snap/<set>/<id> -> JSON record.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) a store in dir. An empty dir opens an
// in-memory database.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.SyncWrites = true
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func badgerKey(set string, id snapshot.ID) []byte {
	return []byte(badgerPrefix + set + "/" + string(id))
}

func (b *BadgerStore) Load() ([]Record, error) {
	return b.scan([]byte(badgerPrefix))
}

func (b *BadgerStore) LoadSet(set string) ([]Record, error) {
	return b.scan([]byte(badgerPrefix + set + "/"))
}

func (b *BadgerStore) scan(prefix []byte) ([]Record, error) {
	var recs []Record
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var r Record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return fmt.Errorf("decoding %s: %w", item.Key(), err)
			}
			recs = append(recs, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate catalog: %w", err)
	}
	return recs, nil
}

func (b *BadgerStore) Put(r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(badgerKey(r.Set, r.ID), data))
	})
}

func (b *BadgerStore) Delete(set string, id snapshot.ID) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(badgerKey(set, id)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}
