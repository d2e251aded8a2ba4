package storage

import (
	"context"
	"time"
)

// EntryRow is the persisted form of an entry. Data holds the codec output.
type EntryRow struct {
	Key       string
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TagPrefixRecord is one row of the tag prefix catalog.
type TagPrefixRecord struct {
	Key             string
	Label           string
	NormalizedLabel string
}

// TagRecord is one row of the tag catalog.
type TagRecord struct {
	Key             string
	PrefixKey       string
	Label           string
	NormalizedLabel string
}

// TransactionManager runs a block of repository calls atomically.
type TransactionManager interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back and that error is returned.
	// If fn returns nil, the transaction is committed; a failed commit returns an
	// error wrapping ErrTransactionFailed.
	// The context passed to fn carries the transaction; repository calls made with it
	// join the transaction. Nested calls join the outer transaction.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EntryRepository persists entry rows.
type EntryRepository interface {
	// GetEntry retrieves a single row by key.
	// Returns ErrNotFound if the row doesn't exist.
	GetEntry(ctx context.Context, key string) (*EntryRow, error)

	// PutEntry inserts or updates a row keyed by row.Key.
	// CreatedAt of an existing row is never overwritten.
	PutEntry(ctx context.Context, row *EntryRow) error

	// DeleteEntry removes a row. Deleting a missing row is not an error.
	DeleteEntry(ctx context.Context, key string) error

	// EntryKeys returns every persisted entry key in ascending key order.
	EntryKeys(ctx context.Context) ([]string, error)
}

// MembershipStore is the slice of tag storage a single Tag needs to hydrate
// and maintain its member set.
type MembershipStore interface {
	// EnsureTag registers the tag and its prefix if absent. Existing rows are left untouched.
	EnsureTag(ctx context.Context, prefix TagPrefixRecord, tag TagRecord) error

	// TagMembers returns the entry keys of every membership row of a tag.
	TagMembers(ctx context.Context, tagKey string) ([]string, error)

	// AddTagMember inserts a membership row. Inserting an existing membership is a no-op.
	AddTagMember(ctx context.Context, tagKey, entryKey string) error

	// RemoveTagMember deletes a membership row. Removing a non-member is a no-op.
	RemoveTagMember(ctx context.Context, tagKey, entryKey string) error
}

// TagRepository persists the tag catalog and the tag→entry inverted index.
type TagRepository interface {
	MembershipStore

	// TagPrefixes returns the prefix catalog ordered by key.
	TagPrefixes(ctx context.Context) ([]TagPrefixRecord, error)

	// Tags returns the tag catalog ordered by key.
	Tags(ctx context.Context) ([]TagRecord, error)

	// TagsForEntry returns the keys of all tags that currently list entryKey as a member.
	TagsForEntry(ctx context.Context, entryKey string) ([]string, error)

	// BackfillNormalizedLabels fills in missing normalized labels of prefix and tag rows
	// using normalize. Returns the number of rows changed.
	BackfillNormalizedLabels(ctx context.Context, normalize func(string) string) (int, error)
}

// ValueStore is the slice of metric storage a single Metric needs.
type ValueStore interface {
	// EnsureMetric registers the metric if absent.
	EnsureMetric(ctx context.Context, metricKey string) error

	// MetricValues returns every (entryKey, value) pair of a metric.
	MetricValues(ctx context.Context, metricKey string) (map[string]float64, error)

	// SetMetricValue upserts the value of a metric for an entry.
	SetMetricValue(ctx context.Context, metricKey, entryKey string, value float64) error

	// DeleteMetricValue removes the value of a metric for an entry. Missing values are ignored.
	DeleteMetricValue(ctx context.Context, metricKey, entryKey string) error
}

// MetricRepository persists the metric catalog and per-entry metric values.
type MetricRepository interface {
	ValueStore

	// Metrics returns the metric catalog ordered by key.
	Metrics(ctx context.Context) ([]string, error)

	// MetricsForEntry returns the keys of all metrics holding a value for entryKey.
	MetricsForEntry(ctx context.Context, entryKey string) ([]string, error)
}

// Backend bundles the repositories of one storage engine.
// A Backend is owned by exactly one store for its whole lifetime.
type Backend interface {
	TransactionManager

	// EnsureSchema creates whatever tables, indexes or markers the engine needs.
	// It is idempotent.
	EnsureSchema(ctx context.Context) error

	Entries() EntryRepository
	Tags() TagRepository
	Metrics() MetricRepository

	// Close closes the storage engine and releases resources.
	Close() error
}
