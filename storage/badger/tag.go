package badger

import (
	"context"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/tagstore/storage"
)

// TagRepository implements storage.TagRepository for BadgerDB.
type TagRepository struct {
	backend *Backend
}

var _ storage.TagRepository = (*TagRepository)(nil)

// EnsureTag registers the prefix and the tag if absent.
func (r *TagRepository) EnsureTag(ctx context.Context, prefix storage.TagPrefixRecord, tag storage.TagRecord) error {
	return r.backend.update(ctx, func(txn *badger.Txn) error {
		if err := setIfAbsent(txn, makeTagPrefixKey(prefix.Key),
			marshalStrings(prefix.Label, prefix.NormalizedLabel)); err != nil {
			return fmt.Errorf("ensure tag prefix %s: %w", prefix.Key, err)
		}
		if err := setIfAbsent(txn, makeTagKey(tag.Key),
			marshalStrings(tag.PrefixKey, tag.Label, tag.NormalizedLabel)); err != nil {
			return fmt.Errorf("ensure tag %s: %w", tag.Key, err)
		}
		return nil
	})
}

// TagMembers returns the entry keys tagged with tagKey.
func (r *TagRepository) TagMembers(ctx context.Context, tagKey string) ([]string, error) {
	var members []string
	err := r.backend.view(ctx, func(txn *badger.Txn) error {
		partial := makePartialHashedKey(tagEntryPrefix, tagKey)
		return scanPrefix(txn, partial, func(key, val []byte) error {
			// Hash collision with another tag
			if string(val) != tagKey {
				return nil
			}
			members = append(members, string(key[len(partial):]))
			return nil
		})
	})
	return members, err
}

// AddTagMember writes the membership and its reverse lookup.
func (r *TagRepository) AddTagMember(ctx context.Context, tagKey, entryKey string) error {
	return r.backend.update(ctx, func(txn *badger.Txn) error {
		if err := requireEntry(txn, entryKey); err != nil {
			return fmt.Errorf("add to tag %s: %w", tagKey, err)
		}
		if err := txn.Set(makeTagEntryKey(tagKey, entryKey), []byte(tagKey)); err != nil {
			return err
		}
		return txn.Set(makeEntryTagKey(entryKey, tagKey), []byte(entryKey))
	})
}

// RemoveTagMember deletes the membership and its reverse lookup.
func (r *TagRepository) RemoveTagMember(ctx context.Context, tagKey, entryKey string) error {
	return r.backend.update(ctx, func(txn *badger.Txn) error {
		if err := txn.Delete(makeTagEntryKey(tagKey, entryKey)); err != nil {
			return err
		}
		return txn.Delete(makeEntryTagKey(entryKey, tagKey))
	})
}

// TagPrefixes returns the prefix catalog.
func (r *TagRepository) TagPrefixes(ctx context.Context) ([]storage.TagPrefixRecord, error) {
	var prefixes []storage.TagPrefixRecord
	err := r.backend.view(ctx, func(txn *badger.Txn) error {
		var err error
		prefixes, err = readTagPrefixes(txn)
		return err
	})
	return prefixes, err
}

// Tags returns the tag catalog.
func (r *TagRepository) Tags(ctx context.Context) ([]storage.TagRecord, error) {
	var tags []storage.TagRecord
	err := r.backend.view(ctx, func(txn *badger.Txn) error {
		var err error
		tags, err = readTags(txn)
		return err
	})
	return tags, err
}

// TagsForEntry returns the keys of the tags entryKey belongs to.
func (r *TagRepository) TagsForEntry(ctx context.Context, entryKey string) ([]string, error) {
	var tagKeys []string
	err := r.backend.view(ctx, func(txn *badger.Txn) error {
		partial := makePartialHashedKey(entryTagPrefix, entryKey)
		return scanPrefix(txn, partial, func(key, val []byte) error {
			if string(val) != entryKey {
				return nil
			}
			tagKeys = append(tagKeys, string(key[len(partial):]))
			return nil
		})
	})
	slices.Sort(tagKeys)
	return tagKeys, err
}

// BackfillNormalizedLabels fills empty normalized labels of prefixes and tags.
func (r *TagRepository) BackfillNormalizedLabels(ctx context.Context, normalize func(string) string) (int, error) {
	changed := 0
	err := r.backend.update(ctx, func(txn *badger.Txn) error {
		prefixes, err := readTagPrefixes(txn)
		if err != nil {
			return err
		}
		for _, p := range prefixes {
			if p.NormalizedLabel != "" {
				continue
			}
			if err := txn.Set(makeTagPrefixKey(p.Key), marshalStrings(p.Label, normalize(p.Label))); err != nil {
				return err
			}
			changed++
		}

		tags, err := readTags(txn)
		if err != nil {
			return err
		}
		for _, t := range tags {
			if t.NormalizedLabel != "" {
				continue
			}
			if err := txn.Set(makeTagKey(t.Key), marshalStrings(t.PrefixKey, t.Label, normalize(t.Label))); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("backfill normalized labels: %w", err)
	}
	return changed, nil
}

func readTagPrefixes(txn *badger.Txn) ([]storage.TagPrefixRecord, error) {
	var prefixes []storage.TagPrefixRecord
	err := scanPrefix(txn, []byte(tagPrefixPrefix), func(key, val []byte) error {
		fields, err := unmarshalStrings(val, 2)
		if err != nil {
			return err
		}
		prefixes = append(prefixes, storage.TagPrefixRecord{
			Key:             string(key[len(tagPrefixPrefix):]),
			Label:           fields[0],
			NormalizedLabel: fields[1],
		})
		return nil
	})
	return prefixes, err
}

func readTags(txn *badger.Txn) ([]storage.TagRecord, error) {
	var tags []storage.TagRecord
	err := scanPrefix(txn, []byte(tagPrefix), func(key, val []byte) error {
		fields, err := unmarshalStrings(val, 3)
		if err != nil {
			return err
		}
		tags = append(tags, storage.TagRecord{
			Key:             string(key[len(tagPrefix):]),
			PrefixKey:       fields[0],
			Label:           fields[1],
			NormalizedLabel: fields[2],
		})
		return nil
	})
	return tags, err
}
