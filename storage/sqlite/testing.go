package sqlite

import "context"

// NewMemoryBackend opens an in-memory database with the schema in place.
// Caller must close the backend when done.
func NewMemoryBackend() (*Backend, error) {
	backend, err := Open(MemoryPath, nil)
	if err != nil {
		return nil, err
	}
	if err := backend.EnsureSchema(context.Background()); err != nil {
		backend.Close()
		return nil, err
	}
	return backend, nil
}
