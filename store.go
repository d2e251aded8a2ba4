// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package tagstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/poiesic/tagstore/core"
	"github.com/poiesic/tagstore/index"
	"github.com/poiesic/tagstore/storage"
	"github.com/prometheus/client_golang/prometheus"
)

// Store is a persistent collection of entries with tag and metric indexes.
// A Store is not safe for concurrent use.
type Store[T any] struct {
	backend    storage.Backend
	codec      storage.Codec
	tagKeysOf  func(T) []string
	metricsOf  func(T) map[string]float64
	newKey     func() string
	logger     *slog.Logger
	registerer prometheus.Registerer
	stats      *storeMetrics

	active    bool
	desynced  bool
	mutations uint64
	keys      *index.Keyspace
	known     *roaring.Bitmap
	tags      map[string]*index.Tag
	metrics   map[string]*index.Metric

	subscribers   []subscription
	nextSubID     int
	txDepth       int
	pendingEvents []event
}

// New creates an inactive store over backend. Call Activate before use.
// The store owns the backend from here on; Close closes it.
func New[T any](backend storage.Backend, opts ...Option[T]) (*Store[T], error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}

	s := &Store[T]{
		backend: backend,
		codec:   storage.JSONCodec{},
		newKey:  core.NewEntryKey,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.registerer == nil {
		s.registerer = prometheus.NewRegistry()
	}
	s.stats = newStoreMetrics(s.registerer)
	return s, nil
}

// Activate prepares storage and loads the key set and the tag and metric
// catalogs. Tags and metrics stay unloaded until first use.
// Activating an active store is a no-op.
func (s *Store[T]) Activate(ctx context.Context) error {
	if s.active {
		return nil
	}

	if err := s.backend.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	backfilled, err := s.backend.Tags().BackfillNormalizedLabels(ctx, core.NormalizeLabel)
	if err != nil {
		return err
	}
	if backfilled > 0 {
		s.logger.Info("backfilled normalized labels", "count", backfilled)
	}

	entryKeys, err := s.backend.Entries().EntryKeys(ctx)
	if err != nil {
		return fmt.Errorf("load entry keys: %w", err)
	}
	tagRecords, err := s.backend.Tags().Tags(ctx)
	if err != nil {
		return fmt.Errorf("load tag catalog: %w", err)
	}
	metricKeys, err := s.backend.Metrics().Metrics(ctx)
	if err != nil {
		return fmt.Errorf("load metric catalog: %w", err)
	}

	s.keys = index.NewKeyspace()
	s.known = roaring.New()
	s.tags = make(map[string]*index.Tag, len(tagRecords))
	s.metrics = make(map[string]*index.Metric, len(metricKeys))

	for _, key := range entryKeys {
		s.known.Add(s.keys.Intern(key))
	}
	for _, rec := range tagRecords {
		if _, err := s.tagFor(rec.Key); err != nil {
			s.logger.Warn("skipping malformed persisted tag", "key", rec.Key, "err", err)
		}
	}
	for _, key := range metricKeys {
		if _, err := s.metricFor(key); err != nil {
			s.logger.Warn("skipping invalid persisted metric", "key", key, "err", err)
		}
	}

	s.active = true
	s.desynced = false
	s.updateGauges()
	s.logger.Debug("store activated", "entries", len(entryKeys), "tags", len(s.tags), "metrics", len(s.metrics))
	return nil
}

// Deactivate drops every in-memory index. Storage is left untouched.
func (s *Store[T]) Deactivate() {
	s.active = false
	s.keys = nil
	s.known = nil
	s.tags = nil
	s.metrics = nil
	s.pendingEvents = nil
}

// Reload rebuilds the in-memory indexes from storage and clears a pending
// ErrReloadRequired.
func (s *Store[T]) Reload(ctx context.Context) error {
	if s.txDepth > 0 {
		return errors.New("cannot reload inside a transaction")
	}
	s.Deactivate()
	s.desynced = false
	return s.Activate(ctx)
}

// Close deactivates the store and closes its backend.
func (s *Store[T]) Close() error {
	s.Deactivate()
	if err := s.backend.Close(); err != nil {
		s.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// Active reports whether the store is activated.
func (s *Store[T]) Active() bool {
	return s.active
}

// Len returns the number of known entries.
func (s *Store[T]) Len() int {
	if !s.active {
		return 0
	}
	return int(s.known.GetCardinality())
}

// Has reports whether key is a known entry.
func (s *Store[T]) Has(key string) bool {
	if !s.active {
		return false
	}
	ord, ok := s.keys.Lookup(key)
	return ok && s.known.Contains(ord)
}

// TagKeys returns every tag key known to the store, sorted.
func (s *Store[T]) TagKeys() []string {
	keys := make([]string, 0, len(s.tags))
	for key := range s.tags {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// MetricKeys returns every metric key known to the store, sorted.
func (s *Store[T]) MetricKeys() []string {
	keys := make([]string, 0, len(s.metrics))
	for key := range s.metrics {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// TagPrefixes returns the persisted prefix catalog.
func (s *Store[T]) TagPrefixes(ctx context.Context) ([]core.TagPrefix, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	records, err := s.backend.Tags().TagPrefixes(ctx)
	if err != nil {
		return nil, err
	}
	prefixes := make([]core.TagPrefix, 0, len(records))
	for _, r := range records {
		prefixes = append(prefixes, core.TagPrefix{Key: r.Key, Label: r.Label, NormalizedLabel: r.NormalizedLabel})
	}
	return prefixes, nil
}

// TagKeysGivenPrefixLabel returns the keys of every tag whose prefix label
// matches label, ignoring case.
func (s *Store[T]) TagKeysGivenPrefixLabel(ctx context.Context, label string) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	prefixes, err := s.backend.Tags().TagPrefixes(ctx)
	if err != nil {
		return nil, err
	}
	want := core.NormalizeLabel(label)
	matched := make(map[string]bool)
	for _, p := range prefixes {
		if p.NormalizedLabel == want {
			matched[p.Key] = true
		}
	}
	if len(matched) == 0 {
		return nil, nil
	}

	tags, err := s.backend.Tags().Tags(ctx)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, t := range tags {
		if matched[t.PrefixKey] {
			keys = append(keys, t.Key)
		}
	}
	return keys, nil
}

// ready guards every data operation.
func (s *Store[T]) ready() error {
	if !s.active {
		return ErrNotActive
	}
	if s.desynced {
		return ErrReloadRequired
	}
	return nil
}

// touch records a change to an in-memory index.
func (s *Store[T]) touch() {
	s.mutations++
}

// tagFor returns the cached tag for key, creating an unloaded one if needed.
func (s *Store[T]) tagFor(key string) (*index.Tag, error) {
	if tag, ok := s.tags[key]; ok {
		return tag, nil
	}
	tag, err := index.NewTag(key, s.backend.Tags(), s.keys, s.touch)
	if err != nil {
		return nil, err
	}
	s.tags[key] = tag
	s.touch()
	return tag, nil
}

// metricFor returns the cached metric for key, creating an unloaded one if needed.
func (s *Store[T]) metricFor(key string) (*index.Metric, error) {
	if metric, ok := s.metrics[key]; ok {
		return metric, nil
	}
	metric, err := index.NewMetric(key, s.backend.Metrics(), s.keys, s.touch)
	if err != nil {
		return nil, err
	}
	s.metrics[key] = metric
	s.touch()
	return metric, nil
}

func (s *Store[T]) updateGauges() {
	s.stats.knownEntries.Set(float64(s.known.GetCardinality()))
	s.stats.tags.Set(float64(len(s.tags)))
	s.stats.metrics.Set(float64(len(s.metrics)))
}

// load reads an entry. A missing row yields a StatusNew entry and false.
func (s *Store[T]) load(ctx context.Context, key string) (*core.Entry[T], bool, error) {
	row, err := s.backend.Entries().GetEntry(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return &core.Entry[T]{Key: key, Status: core.StatusNew}, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	entry := &core.Entry[T]{
		Key:       row.Key,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
		Status:    core.StatusSaved,
	}
	if len(row.Data) > 0 {
		if err := s.codec.Unmarshal(row.Data, &entry.Data); err != nil {
			return nil, false, fmt.Errorf("decode entry %s: %w", key, err)
		}
	}
	return entry, true, nil
}

// save encodes and upserts an entry, advancing its timestamps.
func (s *Store[T]) save(ctx context.Context, entry *core.Entry[T]) error {
	data, err := s.codec.Marshal(entry.Data)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", entry.Key, err)
	}

	now := core.Now()
	updatedAt := now
	if entry.UpdatedAt.After(now) {
		updatedAt = entry.UpdatedAt
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	err = s.backend.Entries().PutEntry(ctx, &storage.EntryRow{
		Key:       entry.Key,
		Data:      data,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	})
	if err != nil {
		return err
	}

	entry.CreatedAt = createdAt
	entry.UpdatedAt = updatedAt
	entry.Status = core.StatusSaved
	return nil
}
