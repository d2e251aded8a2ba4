package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/tagstore/storage"
)

// schemaVersion is bumped whenever the key layout changes incompatibly.
const schemaVersion int64 = 1

// Backend wraps a BadgerDB instance and implements storage.Backend.
type Backend struct {
	db     *badger.DB
	logger *slog.Logger

	entries *EntryRepository
	tags    *TagRepository
	metrics *MetricRepository
}

var _ storage.Backend = (*Backend)(nil)

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// OpenBackend opens a BadgerDB database in the directory filePath.
// Creates the directory if it doesn't exist. With inMemory set the path is ignored.
func OpenBackend(filePath string, inMemory bool) (*Backend, error) {
	var opts badger.Options

	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		// Ensure directory exists
		info, err := os.Stat(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				if err := os.MkdirAll(filePath, 0755); err != nil {
					return nil, err
				}
				info, err = os.Stat(filePath)
				if err != nil {
					return nil, err
				}
			} else {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		opts = badger.DefaultOptions(filePath)
	}

	logger := slog.Default().With("component", "badger")
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	// Payload compression happens in the codec
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	b := &Backend{
		db:     db,
		logger: logger,
	}
	b.entries = &EntryRepository{backend: b}
	b.tags = &TagRepository{backend: b}
	b.metrics = &MetricRepository{backend: b}
	return b, nil
}

// Close closes the BadgerDB database. Closing twice is a no-op.
func (b *Backend) Close() error {
	if b.db.IsClosed() {
		return nil
	}
	return b.db.Close()
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

func (b *Backend) Entries() storage.EntryRepository {
	return b.entries
}

func (b *Backend) Tags() storage.TagRepository {
	return b.tags
}

func (b *Backend) Metrics() storage.MetricRepository {
	return b.metrics
}

type txKey struct{}

func txFromContext(ctx context.Context) *badger.Txn {
	txn, _ := ctx.Value(txKey{}).(*badger.Txn)
	return txn
}

// WithTransaction executes fn within one read-write transaction.
// Implements storage.TransactionManager interface.
func (b *Backend) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}

	txn := b.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(context.WithValue(ctx, txKey{}, txn)); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", storage.ErrTransactionFailed, err)
	}
	return nil
}

// view runs fn against the context's transaction, or a fresh read-only one.
func (b *Backend) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if txn := txFromContext(ctx); txn != nil {
		return fn(txn)
	}
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	return b.db.View(fn)
}

// update runs fn against the context's transaction, or a fresh read-write one
// that is committed when fn succeeds.
func (b *Backend) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if txn := txFromContext(ctx); txn != nil {
		return fn(txn)
	}
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}

	txn := b.db.NewTransaction(true)
	defer txn.Discard()
	if err := fn(txn); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", storage.ErrTransactionFailed, err)
	}
	return nil
}

// EnsureSchema writes the schema version marker, or verifies an existing one.
func (b *Backend) EnsureSchema(ctx context.Context) error {
	return b.update(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaVersionKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			buf := make([]byte, varint.Int64.Size(schemaVersion))
			varint.Int64.Marshal(schemaVersion, buf)
			return txn.Set([]byte(schemaVersionKey), buf)
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			version, _, err := varint.Int64.Unmarshal(val)
			if err != nil {
				return fmt.Errorf("%w: schema version: %w", storage.ErrSerializationFailed, err)
			}
			if version != schemaVersion {
				return fmt.Errorf("unsupported schema version %d (want %d)", version, schemaVersion)
			}
			return nil
		})
	})
}

// exists reports whether key is present.
func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// setIfAbsent writes key only when it does not exist yet.
func setIfAbsent(txn *badger.Txn, key, value []byte) error {
	found, err := exists(txn, key)
	if err != nil || found {
		return err
	}
	return txn.Set(key, value)
}

// scanPrefix calls fn with a copy of every key/value under prefix, in key order.
// The iterator is closed before returning, so fn's results may be written
// back in the same read-write transaction afterwards.
func scanPrefix(txn *badger.Txn, prefix []byte, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := txn.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		item := iter.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(item.KeyCopy(nil), val); err != nil {
			return err
		}
	}
	return nil
}

// scanKeys calls fn with the suffix of every key under prefix, skipping values.
func scanKeys(txn *badger.Txn, prefix []byte, fn func(suffix string)) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	iter := txn.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		fn(string(iter.Item().Key()[len(prefix):]))
	}
}
