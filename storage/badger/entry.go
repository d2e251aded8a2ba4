package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/tagstore/storage"
)

// EntryRepository implements storage.EntryRepository for BadgerDB.
type EntryRepository struct {
	backend *Backend
}

var _ storage.EntryRepository = (*EntryRepository)(nil)

// GetEntry retrieves a row by key.
func (r *EntryRepository) GetEntry(ctx context.Context, key string) (*storage.EntryRow, error) {
	var row *storage.EntryRow
	err := r.backend.view(ctx, func(txn *badger.Txn) error {
		var err error
		row, err = readEntry(txn, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, storage.ErrNotFound
	}
	return row, nil
}

// PutEntry upserts a row, keeping the CreatedAt of an existing one.
func (r *EntryRepository) PutEntry(ctx context.Context, row *storage.EntryRow) error {
	if row == nil {
		return fmt.Errorf("put entry: nil row")
	}
	return r.backend.update(ctx, func(txn *badger.Txn) error {
		existing, err := readEntry(txn, row.Key)
		if err != nil {
			return err
		}
		toWrite := *row
		if existing != nil {
			toWrite.CreatedAt = existing.CreatedAt
		}
		return txn.Set(makeEntryKey(row.Key), marshalEntryRow(&toWrite))
	})
}

// DeleteEntry removes a row by key.
func (r *EntryRepository) DeleteEntry(ctx context.Context, key string) error {
	return r.backend.update(ctx, func(txn *badger.Txn) error {
		return txn.Delete(makeEntryKey(key))
	})
}

// EntryKeys returns all entry keys in ascending order.
func (r *EntryRepository) EntryKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := r.backend.view(ctx, func(txn *badger.Txn) error {
		scanKeys(txn, []byte(entryPrefix), func(key string) {
			keys = append(keys, key)
		})
		return nil
	})
	return keys, err
}

// readEntry reads a row. Returns nil, nil if it doesn't exist.
func readEntry(txn *badger.Txn, key string) (*storage.EntryRow, error) {
	item, err := txn.Get(makeEntryKey(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var row *storage.EntryRow
	err = item.Value(func(val []byte) error {
		var err error
		row, err = unmarshalEntryRow(key, val)
		return err
	})
	return row, err
}

// requireEntry fails with storage.ErrNotFound when no row exists for key.
func requireEntry(txn *badger.Txn, key string) error {
	found, err := exists(txn, makeEntryKey(key))
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("entry %s: %w", key, storage.ErrNotFound)
	}
	return nil
}
