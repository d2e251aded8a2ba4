package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/tagstore/storage"
)

// EntryRepository implements storage.EntryRepository on the entries table.
type EntryRepository struct {
	engine *Engine
}

// NewEntryRepository creates a new SQLite entry repository.
func NewEntryRepository(engine *Engine) *EntryRepository {
	return &EntryRepository{engine: engine}
}

// GetEntry retrieves a row by key.
func (r *EntryRepository) GetEntry(ctx context.Context, key string) (*storage.EntryRow, error) {
	row, err := r.engine.QueryFirst(ctx, selectEntrySQL, key)
	if err != nil {
		return nil, fmt.Errorf("get entry %s: %w", key, err)
	}
	if row == nil {
		return nil, storage.ErrNotFound
	}
	return &storage.EntryRow{
		Key:       row.String("key"),
		Data:      row.Bytes("data"),
		CreatedAt: fromMicros(row.Int64("createdAt")),
		UpdatedAt: fromMicros(row.Int64("updatedAt")),
	}, nil
}

// PutEntry upserts a row. The createdAt column of an existing row is kept.
func (r *EntryRepository) PutEntry(ctx context.Context, row *storage.EntryRow) error {
	if row == nil {
		return fmt.Errorf("put entry: nil row")
	}
	_, err := r.engine.Exec(ctx, upsertEntrySQL,
		row.Key, row.Data, row.CreatedAt.UnixMicro(), row.UpdatedAt.UnixMicro())
	if err != nil {
		return fmt.Errorf("put entry %s: %w", row.Key, err)
	}
	return nil
}

// DeleteEntry removes a row by key.
func (r *EntryRepository) DeleteEntry(ctx context.Context, key string) error {
	if _, err := r.engine.Exec(ctx, deleteEntrySQL, key); err != nil {
		return fmt.Errorf("delete entry %s: %w", key, err)
	}
	return nil
}

// EntryKeys returns all entry keys in ascending order.
func (r *EntryRepository) EntryKeys(ctx context.Context) ([]string, error) {
	rows, err := r.engine.QueryAll(ctx, selectEntryKeysSQL)
	if err != nil {
		return nil, fmt.Errorf("list entry keys: %w", err)
	}
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, row.String("key"))
	}
	return keys, nil
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

var _ storage.EntryRepository = (*EntryRepository)(nil)
