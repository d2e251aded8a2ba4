package badger

import (
	"context"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/tagstore/storage"
)

// MetricRepository implements storage.MetricRepository for BadgerDB.
type MetricRepository struct {
	backend *Backend
}

var _ storage.MetricRepository = (*MetricRepository)(nil)

// EnsureMetric registers a metric if absent.
func (r *MetricRepository) EnsureMetric(ctx context.Context, metricKey string) error {
	return r.backend.update(ctx, func(txn *badger.Txn) error {
		return setIfAbsent(txn, makeMetricKey(metricKey), []byte{})
	})
}

// MetricValues returns every entry value of a metric.
func (r *MetricRepository) MetricValues(ctx context.Context, metricKey string) (map[string]float64, error) {
	values := make(map[string]float64)
	err := r.backend.view(ctx, func(txn *badger.Txn) error {
		partial := makePartialHashedKey(metricValuePrefix, metricKey)
		return scanPrefix(txn, partial, func(key, val []byte) error {
			owner, value, err := unmarshalMetricValue(val)
			if err != nil {
				return err
			}
			// Hash collision with another metric
			if owner != metricKey {
				return nil
			}
			values[string(key[len(partial):])] = value
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load metric %s: %w", metricKey, err)
	}
	return values, nil
}

// SetMetricValue upserts the value and its reverse lookup.
func (r *MetricRepository) SetMetricValue(ctx context.Context, metricKey, entryKey string, value float64) error {
	return r.backend.update(ctx, func(txn *badger.Txn) error {
		if err := requireEntry(txn, entryKey); err != nil {
			return fmt.Errorf("set metric %s: %w", metricKey, err)
		}
		if err := txn.Set(makeMetricValueKey(metricKey, entryKey), marshalMetricValue(metricKey, value)); err != nil {
			return err
		}
		return txn.Set(makeEntryMetricKey(entryKey, metricKey), []byte(entryKey))
	})
}

// DeleteMetricValue removes the value and its reverse lookup.
func (r *MetricRepository) DeleteMetricValue(ctx context.Context, metricKey, entryKey string) error {
	return r.backend.update(ctx, func(txn *badger.Txn) error {
		if err := txn.Delete(makeMetricValueKey(metricKey, entryKey)); err != nil {
			return err
		}
		return txn.Delete(makeEntryMetricKey(entryKey, metricKey))
	})
}

// Metrics returns the metric catalog.
func (r *MetricRepository) Metrics(ctx context.Context) ([]string, error) {
	var keys []string
	err := r.backend.view(ctx, func(txn *badger.Txn) error {
		scanKeys(txn, []byte(metricPrefix), func(key string) {
			keys = append(keys, key)
		})
		return nil
	})
	return keys, err
}

// MetricsForEntry returns the metric keys holding a value for entryKey.
func (r *MetricRepository) MetricsForEntry(ctx context.Context, entryKey string) ([]string, error) {
	var keys []string
	err := r.backend.view(ctx, func(txn *badger.Txn) error {
		partial := makePartialHashedKey(entryMetricPrefix, entryKey)
		return scanPrefix(txn, partial, func(key, val []byte) error {
			if string(val) != entryKey {
				return nil
			}
			keys = append(keys, string(key[len(partial):]))
			return nil
		})
	})
	slices.Sort(keys)
	return keys, err
}
