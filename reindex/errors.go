package reindex

import "errors"

var (
	// ErrStoreRequired is returned when a Reindexer is built without a store.
	ErrStoreRequired = errors.New("reindex: store is required")

	// ErrInvalidPoolSize is returned when Config.PoolSize is negative.
	ErrInvalidPoolSize = errors.New("reindex: pool size must not be negative")
)
