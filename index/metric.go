package index

import (
	"context"
	"fmt"

	"github.com/poiesic/tagstore/core"
	"github.com/poiesic/tagstore/storage"
)

// Metric is the lazily loaded per-entry value map of one metric key.
type Metric struct {
	key      string
	store    storage.ValueStore
	keys     *Keyspace
	onChange func()

	state  LoadState
	values map[uint32]float64
}

// NewMetric creates an unloaded metric.
func NewMetric(key string, store storage.ValueStore, keys *Keyspace, onChange func()) (*Metric, error) {
	if err := core.ValidateMetricKey(key); err != nil {
		return nil, err
	}
	return &Metric{
		key:      key,
		store:    store,
		keys:     keys,
		onChange: onChange,
		values:   make(map[uint32]float64),
	}, nil
}

func (m *Metric) Key() string {
	return m.key
}

func (m *Metric) State() LoadState {
	return m.state
}

// EnsureLoaded registers the metric and hydrates its values.
func (m *Metric) EnsureLoaded(ctx context.Context) error {
	switch m.state {
	case Loaded:
		return nil
	case Loading:
		return fmt.Errorf("metric %s: %w", m.key, ErrLoadInProgress)
	}

	m.state = Loading
	if err := m.load(ctx); err != nil {
		m.state = Unloaded
		return fmt.Errorf("load metric %s: %w", m.key, err)
	}
	m.state = Loaded
	return nil
}

func (m *Metric) load(ctx context.Context) error {
	if err := m.store.EnsureMetric(ctx, m.key); err != nil {
		return err
	}
	persisted, err := m.store.MetricValues(ctx, m.key)
	if err != nil {
		return err
	}
	values := make(map[uint32]float64, len(persisted))
	for entryKey, v := range persisted {
		values[m.keys.Intern(entryKey)] = v
	}
	m.values = values
	m.changed()
	return nil
}

// SetValue upserts the value for entryKey.
func (m *Metric) SetValue(ctx context.Context, entryKey string, value float64) error {
	if err := core.ValidateMetricValue(m.key, value); err != nil {
		return err
	}
	if err := m.EnsureLoaded(ctx); err != nil {
		return err
	}
	if err := m.store.SetMetricValue(ctx, m.key, entryKey, value); err != nil {
		return err
	}
	m.values[m.keys.Intern(entryKey)] = value
	m.changed()
	return nil
}

// DeleteKey removes the value for entryKey.
func (m *Metric) DeleteKey(ctx context.Context, entryKey string) error {
	if err := m.EnsureLoaded(ctx); err != nil {
		return err
	}
	if err := m.store.DeleteMetricValue(ctx, m.key, entryKey); err != nil {
		return err
	}
	if ord, ok := m.keys.Lookup(entryKey); ok {
		if _, had := m.values[ord]; had {
			delete(m.values, ord)
			m.changed()
		}
	}
	return nil
}

// Value returns the value held for an ordinal. Call EnsureLoaded first.
func (m *Metric) Value(ord uint32) (float64, bool) {
	v, ok := m.values[ord]
	return v, ok
}

// ValueOf returns the value held for entryKey.
func (m *Metric) ValueOf(ctx context.Context, entryKey string) (float64, bool, error) {
	if err := m.EnsureLoaded(ctx); err != nil {
		return 0, false, err
	}
	ord, ok := m.keys.Lookup(entryKey)
	if !ok {
		return 0, false, nil
	}
	v, ok := m.values[ord]
	return v, ok, nil
}

// Len returns the number of entries holding a value.
func (m *Metric) Len() int {
	return len(m.values)
}

func (m *Metric) changed() {
	if m.onChange != nil {
		m.onChange()
	}
}
