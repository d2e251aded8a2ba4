package sqlite

import (
	"context"
	"fmt"

	"github.com/poiesic/tagstore/storage"
)

// MetricRepository implements storage.MetricRepository on the metrics and
// metricValues tables.
type MetricRepository struct {
	engine *Engine
}

// NewMetricRepository creates a new SQLite metric repository.
func NewMetricRepository(engine *Engine) *MetricRepository {
	return &MetricRepository{engine: engine}
}

// EnsureMetric registers a metric if absent.
func (r *MetricRepository) EnsureMetric(ctx context.Context, metricKey string) error {
	if _, err := r.engine.Exec(ctx, insertMetricSQL, metricKey); err != nil {
		return fmt.Errorf("ensure metric %s: %w", metricKey, err)
	}
	return nil
}

// MetricValues returns every entry value of a metric.
func (r *MetricRepository) MetricValues(ctx context.Context, metricKey string) (map[string]float64, error) {
	rows, err := r.engine.QueryAll(ctx, selectMetricValuesSQL, metricKey)
	if err != nil {
		return nil, fmt.Errorf("load metric %s: %w", metricKey, err)
	}
	values := make(map[string]float64, len(rows))
	for _, row := range rows {
		values[row.String("entryKey")] = row.Float64("metricValue")
	}
	return values, nil
}

// SetMetricValue upserts the value of a metric for an entry.
func (r *MetricRepository) SetMetricValue(ctx context.Context, metricKey, entryKey string, value float64) error {
	if _, err := r.engine.Exec(ctx, upsertMetricValueSQL, metricKey, entryKey, value); err != nil {
		return fmt.Errorf("set metric %s for %s: %w", metricKey, entryKey, err)
	}
	return nil
}

// DeleteMetricValue removes the value of a metric for an entry.
func (r *MetricRepository) DeleteMetricValue(ctx context.Context, metricKey, entryKey string) error {
	if _, err := r.engine.Exec(ctx, deleteMetricValueSQL, metricKey, entryKey); err != nil {
		return fmt.Errorf("delete metric %s for %s: %w", metricKey, entryKey, err)
	}
	return nil
}

// Metrics returns the metric catalog.
func (r *MetricRepository) Metrics(ctx context.Context) ([]string, error) {
	rows, err := r.engine.QueryAll(ctx, selectMetricsSQL)
	if err != nil {
		return nil, fmt.Errorf("list metrics: %w", err)
	}
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, row.String("key"))
	}
	return keys, nil
}

// MetricsForEntry returns the metric keys holding a value for entryKey.
func (r *MetricRepository) MetricsForEntry(ctx context.Context, entryKey string) ([]string, error) {
	rows, err := r.engine.QueryAll(ctx, selectMetricsForEntrySQL, entryKey)
	if err != nil {
		return nil, fmt.Errorf("list metrics of %s: %w", entryKey, err)
	}
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, row.String("metricKey"))
	}
	return keys, nil
}

var _ storage.MetricRepository = (*MetricRepository)(nil)
