package index

import (
	"context"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/poiesic/tagstore/core"
	"github.com/poiesic/tagstore/storage"
)

// Tag is the lazily loaded member set of one tag key.
type Tag struct {
	key      core.TagKey
	prefix   core.TagPrefix
	store    storage.MembershipStore
	keys     *Keyspace
	onChange func()

	state   LoadState
	members *roaring.Bitmap
}

// NewTag creates an unloaded tag. The key must parse with core.ParseTagKey.
// onChange, when set, is called every time the in-memory member set changes,
// hydration included.
func NewTag(key string, store storage.MembershipStore, keys *Keyspace, onChange func()) (*Tag, error) {
	parsed, err := core.ParseTagKey(key)
	if err != nil {
		return nil, err
	}
	return &Tag{
		key:      parsed,
		prefix:   core.NewTagPrefix(parsed.Prefix),
		store:    store,
		keys:     keys,
		onChange: onChange,
		members:  roaring.New(),
	}, nil
}

// Key returns the full "prefix:value" key.
func (t *Tag) Key() string {
	return t.key.String()
}

// Prefix returns the prefix the tag belongs to.
func (t *Tag) Prefix() core.TagPrefix {
	return t.prefix
}

// Label returns the value part of the key.
func (t *Tag) Label() string {
	return t.key.Label()
}

// NormalizedLabel returns the case-insensitive form of Label.
func (t *Tag) NormalizedLabel() string {
	return core.NormalizeLabel(t.key.Label())
}

// State returns the hydration state.
func (t *Tag) State() LoadState {
	return t.state
}

// EnsureLoaded registers the tag's catalog rows and hydrates the member set
// from storage. It does nothing once the tag is loaded.
func (t *Tag) EnsureLoaded(ctx context.Context) error {
	switch t.state {
	case Loaded:
		return nil
	case Loading:
		return fmt.Errorf("tag %s: %w", t.Key(), ErrLoadInProgress)
	}

	t.state = Loading
	if err := t.load(ctx); err != nil {
		t.state = Unloaded
		return fmt.Errorf("load tag %s: %w", t.Key(), err)
	}
	t.state = Loaded
	return nil
}

func (t *Tag) load(ctx context.Context) error {
	err := t.store.EnsureTag(ctx,
		storage.TagPrefixRecord{
			Key:             t.prefix.Key,
			Label:           t.prefix.Label,
			NormalizedLabel: t.prefix.NormalizedLabel,
		},
		storage.TagRecord{
			Key:             t.Key(),
			PrefixKey:       t.prefix.Key,
			Label:           t.Label(),
			NormalizedLabel: t.NormalizedLabel(),
		})
	if err != nil {
		return err
	}

	entryKeys, err := t.store.TagMembers(ctx, t.Key())
	if err != nil {
		return err
	}
	members := roaring.New()
	for _, entryKey := range entryKeys {
		members.Add(t.keys.Intern(entryKey))
	}
	t.members = members
	t.changed()
	return nil
}

// Members returns the member bitmap. Callers must not modify it.
func (t *Tag) Members(ctx context.Context) (*roaring.Bitmap, error) {
	if err := t.EnsureLoaded(ctx); err != nil {
		return nil, err
	}
	return t.members, nil
}

// EntryKeys returns the member keys in ordinal order.
func (t *Tag) EntryKeys(ctx context.Context) ([]string, error) {
	members, err := t.Members(ctx)
	if err != nil {
		return nil, err
	}
	return t.keys.Keys(members), nil
}

// Contains reports whether entryKey carries the tag.
func (t *Tag) Contains(ctx context.Context, entryKey string) (bool, error) {
	members, err := t.Members(ctx)
	if err != nil {
		return false, err
	}
	ord, ok := t.keys.Lookup(entryKey)
	return ok && members.Contains(ord), nil
}

// Add makes entryKey a member in storage and in memory.
func (t *Tag) Add(ctx context.Context, entryKey string) error {
	if err := t.EnsureLoaded(ctx); err != nil {
		return err
	}
	if err := t.store.AddTagMember(ctx, t.Key(), entryKey); err != nil {
		return err
	}
	if t.members.CheckedAdd(t.keys.Intern(entryKey)) {
		t.changed()
	}
	return nil
}

// Remove drops entryKey from the tag. Removing a non-member is a no-op.
func (t *Tag) Remove(ctx context.Context, entryKey string) error {
	if err := t.EnsureLoaded(ctx); err != nil {
		return err
	}
	if err := t.store.RemoveTagMember(ctx, t.Key(), entryKey); err != nil {
		return err
	}
	if ord, ok := t.keys.Lookup(entryKey); ok && t.members.CheckedRemove(ord) {
		t.changed()
	}
	return nil
}

// Len returns the member count. An unloaded tag reports zero.
func (t *Tag) Len() int {
	return int(t.members.GetCardinality())
}

func (t *Tag) changed() {
	if t.onChange != nil {
		t.onChange()
	}
}
