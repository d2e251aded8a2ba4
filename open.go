package tagstore

import (
	"context"

	"github.com/poiesic/tagstore/storage"
	"github.com/poiesic/tagstore/storage/badger"
	"github.com/poiesic/tagstore/storage/sqlite"
)

// OpenSQLite opens (creating if needed) a SQLite-backed store at path and
// activates it. Use sqlite.MemoryPath for a throwaway database.
func OpenSQLite[T any](ctx context.Context, path string, opts ...Option[T]) (*Store[T], error) {
	backend, err := sqlite.Open(path, nil)
	if err != nil {
		return nil, err
	}
	return Open(ctx, backend, opts...)
}

// OpenBadger opens (creating if needed) a Badger-backed store in dir and activates it.
func OpenBadger[T any](ctx context.Context, dir string, opts ...Option[T]) (*Store[T], error) {
	backend, err := badger.OpenBackend(dir, false)
	if err != nil {
		return nil, err
	}
	return Open(ctx, backend, opts...)
}

// OpenMemory opens an activated store over an in-memory SQLite database.
func OpenMemory[T any](ctx context.Context, opts ...Option[T]) (*Store[T], error) {
	return OpenSQLite(ctx, sqlite.MemoryPath, opts...)
}

// Open builds a store over an already opened backend and activates it.
// The backend is closed if either step fails.
func Open[T any](ctx context.Context, backend storage.Backend, opts ...Option[T]) (*Store[T], error) {
	s, err := New(backend, opts...)
	if err != nil {
		backend.Close()
		return nil, err
	}
	if err := s.Activate(ctx); err != nil {
		backend.Close()
		return nil, err
	}
	return s, nil
}
