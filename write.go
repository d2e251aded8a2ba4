package tagstore

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/tagstore/core"
)

// Metadata is the derived index data of one entry.
type Metadata struct {
	TagKeys []string
	Metrics map[string]float64
}

// WriteEntryData creates or overwrites the entry stored under key and
// returns it as saved. An empty key gets a generated one. createdAt is used
// only when the entry does not exist yet; the zero time means now.
//
// Tag keys and metric names derived from data are validated before anything
// is written.
func (s *Store[T]) WriteEntryData(ctx context.Context, data T, key string, createdAt time.Time) (*core.Entry[T], error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if key == "" {
		key = s.newKey()
	}
	if err := core.ValidateEntryKey(key); err != nil {
		return nil, err
	}

	entry, found, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found && !createdAt.IsZero() {
		entry.CreatedAt = createdAt.UTC().Truncate(time.Microsecond)
	}
	entry.Data = data

	md, err := s.DeriveMetadata(entry)
	if err != nil {
		return nil, err
	}

	if err := s.save(ctx, entry); err != nil {
		return nil, fmt.Errorf("save entry %s: %w", key, err)
	}
	ord := s.keys.Intern(key)
	if s.known.CheckedAdd(ord) {
		s.touch()
	}

	// Timestamps are final only after save
	injectTimeMetrics(md.Metrics, entry)
	if err := s.replaceMetadata(ctx, key, md); err != nil {
		return nil, err
	}

	s.stats.writes.Inc()
	s.updateGauges()
	if !found {
		s.emit(collectionChanged(), entryChanged(key))
	} else {
		s.emit(entryChanged(key))
	}
	return entry, nil
}

// WriteEntry applies an entry according to its status:
// StatusDeleted deletes it, StatusNew, StatusUpdated and StatusUnknown write
// it, StatusSaved is a no-op.
func (s *Store[T]) WriteEntry(ctx context.Context, entry *core.Entry[T]) (*core.Entry[T], error) {
	if entry == nil {
		return nil, fmt.Errorf("%w: nil entry", core.ErrInvalidInput)
	}
	if err := core.ValidateStatus(entry.Status); err != nil {
		return nil, err
	}

	switch entry.Status {
	case core.StatusDeleted:
		if err := s.DeleteEntryKey(ctx, entry.Key); err != nil {
			return nil, err
		}
		return entry, nil
	case core.StatusSaved:
		if err := s.ready(); err != nil {
			return nil, err
		}
		return entry, nil
	default:
		return s.WriteEntryData(ctx, entry.Data, entry.Key, entry.CreatedAt)
	}
}

// DeleteEntryKey removes an entry and every index association it has.
// Deleting an unknown key is a no-op.
func (s *Store[T]) DeleteEntryKey(ctx context.Context, key string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := core.ValidateEntryKey(key); err != nil {
		return err
	}
	ord, ok := s.keys.Lookup(key)
	if !ok || !s.known.Contains(ord) {
		return nil
	}

	if err := s.removeAssociations(ctx, key); err != nil {
		return err
	}
	if err := s.backend.Entries().DeleteEntry(ctx, key); err != nil {
		return fmt.Errorf("delete entry %s: %w", key, err)
	}
	s.known.Remove(ord)
	s.keys.Forget(key)
	s.touch()

	s.stats.deletes.Inc()
	s.updateGauges()
	s.emit(collectionChanged(), entryChanged(key))
	return nil
}

// RebuildMetadataGivenEntry replaces the tag and metric associations of a
// saved entry with the ones derived from its current data.
func (s *Store[T]) RebuildMetadataGivenEntry(ctx context.Context, entry *core.Entry[T]) error {
	if entry == nil {
		return fmt.Errorf("%w: nil entry", core.ErrInvalidInput)
	}
	md, err := s.DeriveMetadata(entry)
	if err != nil {
		return err
	}
	return s.ReplaceMetadata(ctx, entry.Key, md)
}

// DeriveMetadata computes an entry's tag keys and metric values, implicit
// timestamp metrics included, and validates them. It touches neither memory
// nor storage and is safe to call concurrently when the configured tag and
// metric functions are.
func (s *Store[T]) DeriveMetadata(entry *core.Entry[T]) (Metadata, error) {
	md := Metadata{Metrics: make(map[string]float64)}

	if s.tagKeysOf != nil {
		seen := make(map[string]bool)
		for _, key := range s.tagKeysOf(entry.Data) {
			if _, err := core.ParseTagKey(key); err != nil {
				return Metadata{}, fmt.Errorf("entry %s: %w", entry.Key, err)
			}
			if !seen[key] {
				seen[key] = true
				md.TagKeys = append(md.TagKeys, key)
			}
		}
	}
	if s.metricsOf != nil {
		for key, value := range s.metricsOf(entry.Data) {
			if err := core.ValidateMetricKey(key); err != nil {
				return Metadata{}, fmt.Errorf("entry %s: %w", entry.Key, err)
			}
			if err := core.ValidateMetricValue(key, value); err != nil {
				return Metadata{}, fmt.Errorf("entry %s: %w", entry.Key, err)
			}
			md.Metrics[key] = value
		}
	}
	injectTimeMetrics(md.Metrics, entry)
	return md, nil
}

// ReplaceMetadata swaps the associations of a known entry for md.
func (s *Store[T]) ReplaceMetadata(ctx context.Context, key string, md Metadata) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := core.ValidateEntryKey(key); err != nil {
		return err
	}
	if !s.Has(key) {
		return fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	for _, tagKey := range md.TagKeys {
		if _, err := core.ParseTagKey(tagKey); err != nil {
			return err
		}
	}
	for metricKey, value := range md.Metrics {
		if err := core.ValidateMetricKey(metricKey); err != nil {
			return err
		}
		if err := core.ValidateMetricValue(metricKey, value); err != nil {
			return err
		}
	}
	return s.replaceMetadata(ctx, key, md)
}

// replaceMetadata removes every association of key, then adds md's.
func (s *Store[T]) replaceMetadata(ctx context.Context, key string, md Metadata) error {
	if err := s.removeAssociations(ctx, key); err != nil {
		return err
	}

	for _, tagKey := range md.TagKeys {
		tag, err := s.tagFor(tagKey)
		if err != nil {
			return err
		}
		if err := tag.Add(ctx, key); err != nil {
			return err
		}
	}
	for metricKey, value := range md.Metrics {
		metric, err := s.metricFor(metricKey)
		if err != nil {
			return err
		}
		if err := metric.SetValue(ctx, key, value); err != nil {
			return err
		}
	}
	s.updateGauges()
	return nil
}

// removeAssociations drops key from every tag and metric that references it
// in storage.
func (s *Store[T]) removeAssociations(ctx context.Context, key string) error {
	tagKeys, err := s.backend.Tags().TagsForEntry(ctx, key)
	if err != nil {
		return fmt.Errorf("find tags of %s: %w", key, err)
	}
	for _, tagKey := range tagKeys {
		tag, err := s.tagFor(tagKey)
		if err != nil {
			return err
		}
		if err := tag.Remove(ctx, key); err != nil {
			return err
		}
	}

	metricKeys, err := s.backend.Metrics().MetricsForEntry(ctx, key)
	if err != nil {
		return fmt.Errorf("find metrics of %s: %w", key, err)
	}
	for _, metricKey := range metricKeys {
		metric, err := s.metricFor(metricKey)
		if err != nil {
			return err
		}
		if err := metric.DeleteKey(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// injectTimeMetrics sets the implicit timestamp metrics, overriding caller values.
func injectTimeMetrics[T any](metrics map[string]float64, entry *core.Entry[T]) {
	metrics[core.MetricCreatedAt] = core.TimeMetric(entry.CreatedAt)
	metrics[core.MetricUpdatedAt] = core.TimeMetric(entry.UpdatedAt)
}
