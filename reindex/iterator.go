package reindex

import (
	"context"

	"github.com/poiesic/tagstore"
)

// DefaultBatchSize is used when a non-positive batch size is configured.
const DefaultBatchSize = 100

// KeyIterator walks a snapshot of a store's known keys in base order.
type KeyIterator[T any] struct {
	store     *tagstore.Store[T]
	batchSize int
}

// NewKeyIterator creates an iterator yielding batches of up to batchSize keys.
func NewKeyIterator[T any](store *tagstore.Store[T], batchSize int) *KeyIterator[T] {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &KeyIterator[T]{store: store, batchSize: batchSize}
}

// Keys snapshots every known key in base order.
func (it *KeyIterator[T]) Keys(ctx context.Context) ([]string, error) {
	return it.store.ToEntryKeys(ctx, tagstore.QueryOptions{})
}

// ForEach calls fn with consecutive batches of keys. Iteration stops at the
// first error from fn. Context cancellation is checked between batches.
func (it *KeyIterator[T]) ForEach(ctx context.Context, keys []string, fn func([]string) error) error {
	for start := 0; start < len(keys); start += it.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+it.batchSize, len(keys))
		if err := fn(keys[start:end]); err != nil {
			return err
		}
	}
	return nil
}
