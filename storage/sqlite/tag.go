package sqlite

import (
	"context"
	"fmt"

	"github.com/poiesic/tagstore/storage"
)

// TagRepository implements storage.TagRepository on the tagPrefixes, tags and
// tagEntries tables.
type TagRepository struct {
	engine *Engine
}

// NewTagRepository creates a new SQLite tag repository.
func NewTagRepository(engine *Engine) *TagRepository {
	return &TagRepository{engine: engine}
}

// EnsureTag registers the prefix and the tag if absent.
func (r *TagRepository) EnsureTag(ctx context.Context, prefix storage.TagPrefixRecord, tag storage.TagRecord) error {
	if _, err := r.engine.Exec(ctx, insertTagPrefixSQL, prefix.Key, prefix.Label, prefix.NormalizedLabel); err != nil {
		return fmt.Errorf("ensure tag prefix %s: %w", prefix.Key, err)
	}
	if _, err := r.engine.Exec(ctx, insertTagSQL, tag.Key, tag.PrefixKey, tag.Label, tag.NormalizedLabel); err != nil {
		return fmt.Errorf("ensure tag %s: %w", tag.Key, err)
	}
	return nil
}

// TagMembers returns the entry keys tagged with tagKey.
func (r *TagRepository) TagMembers(ctx context.Context, tagKey string) ([]string, error) {
	return r.column(ctx, "entryKey", selectTagMembersSQL, tagKey)
}

// AddTagMember inserts a membership row.
func (r *TagRepository) AddTagMember(ctx context.Context, tagKey, entryKey string) error {
	if _, err := r.engine.Exec(ctx, insertTagEntrySQL, tagKey, entryKey); err != nil {
		return fmt.Errorf("add %s to tag %s: %w", entryKey, tagKey, err)
	}
	return nil
}

// RemoveTagMember deletes a membership row.
func (r *TagRepository) RemoveTagMember(ctx context.Context, tagKey, entryKey string) error {
	if _, err := r.engine.Exec(ctx, deleteTagEntrySQL, tagKey, entryKey); err != nil {
		return fmt.Errorf("remove %s from tag %s: %w", entryKey, tagKey, err)
	}
	return nil
}

// TagPrefixes returns the prefix catalog.
func (r *TagRepository) TagPrefixes(ctx context.Context) ([]storage.TagPrefixRecord, error) {
	rows, err := r.engine.QueryAll(ctx, selectTagPrefixesSQL)
	if err != nil {
		return nil, fmt.Errorf("list tag prefixes: %w", err)
	}
	prefixes := make([]storage.TagPrefixRecord, 0, len(rows))
	for _, row := range rows {
		prefixes = append(prefixes, storage.TagPrefixRecord{
			Key:             row.String("key"),
			Label:           row.String("label"),
			NormalizedLabel: row.String("normalizedLabel"),
		})
	}
	return prefixes, nil
}

// Tags returns the tag catalog.
func (r *TagRepository) Tags(ctx context.Context) ([]storage.TagRecord, error) {
	rows, err := r.engine.QueryAll(ctx, selectTagsSQL)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	tags := make([]storage.TagRecord, 0, len(rows))
	for _, row := range rows {
		tags = append(tags, storage.TagRecord{
			Key:             row.String("key"),
			PrefixKey:       row.String("tagPrefixKey"),
			Label:           row.String("label"),
			NormalizedLabel: row.String("normalizedLabel"),
		})
	}
	return tags, nil
}

// TagsForEntry returns the keys of the tags entryKey belongs to.
func (r *TagRepository) TagsForEntry(ctx context.Context, entryKey string) ([]string, error) {
	return r.column(ctx, "tagKey", selectTagsForEntrySQL, entryKey)
}

// BackfillNormalizedLabels fills empty normalizedLabel columns.
// The normalization runs here rather than in SQL so both engines agree on it.
func (r *TagRepository) BackfillNormalizedLabels(ctx context.Context, normalize func(string) string) (int, error) {
	changed := 0
	err := r.engine.RunTransaction(ctx, func(ctx context.Context) error {
		for _, pass := range []struct {
			selectSQL, updateSQL string
		}{
			{selectUnnormalizedPrefixSQL, updatePrefixNormalizedSQL},
			{selectUnnormalizedTagSQL, updateTagNormalizedSQL},
		} {
			rows, err := r.engine.QueryAll(ctx, pass.selectSQL)
			if err != nil {
				return err
			}
			for _, row := range rows {
				if _, err := r.engine.Exec(ctx, pass.updateSQL, normalize(row.String("label")), row.String("key")); err != nil {
					return err
				}
				changed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("backfill normalized labels: %w", err)
	}
	return changed, nil
}

func (r *TagRepository) column(ctx context.Context, column, query string, args ...any) ([]string, error) {
	rows, err := r.engine.QueryAll(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", column, err)
	}
	values := make([]string, 0, len(rows))
	for _, row := range rows {
		values = append(values, row.String(column))
	}
	return values, nil
}

var _ storage.TagRepository = (*TagRepository)(nil)
