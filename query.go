package tagstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/poiesic/tagstore/core"
)

// Direction is the sort direction of a metric ordering.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// MetricOrder orders query results by a metric's values.
type MetricOrder struct {
	Key       string
	Direction Direction
}

// QueryOptions selects, orders and pages entry keys.
type QueryOptions struct {
	// RequireTagKeys keeps only entries carrying every listed tag.
	// Empty means all known entries.
	RequireTagKeys []string

	// OrderByMetric sorts by metric value. Entries without a value come last
	// in both directions; ties keep base order. An unknown metric leaves
	// base order untouched.
	OrderByMetric *MetricOrder

	// Offset skips leading results. Negative values count as 0.
	Offset int

	// Limit caps the result count. Zero or negative means unbounded.
	Limit int
}

// ToEntryKeys evaluates a query and returns matching entry keys.
// A tag key the store has never seen, malformed ones included, matches nothing.
func (s *Store[T]) ToEntryKeys(ctx context.Context, opts QueryOptions) ([]string, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() {
		s.stats.queries.Inc()
		s.stats.queryLatency.Observe(time.Since(start).Seconds())
	}()

	candidates, err := s.candidates(ctx, opts.RequireTagKeys)
	if err != nil {
		return nil, err
	}
	ords := candidates.ToArray()

	if opts.OrderByMetric != nil {
		if err := s.orderByMetric(ctx, ords, *opts.OrderByMetric); err != nil {
			return nil, err
		}
	}

	ords = paginate(ords, opts.Offset, opts.Limit)
	keys := make([]string, len(ords))
	for i, ord := range ords {
		keys[i] = s.keys.Key(ord)
	}
	return keys, nil
}

// ToEntries evaluates a query and loads the matching entries.
// Entries that vanished from storage are skipped.
func (s *Store[T]) ToEntries(ctx context.Context, opts QueryOptions) ([]*core.Entry[T], error) {
	keys, err := s.ToEntryKeys(ctx, opts)
	if err != nil {
		return nil, err
	}
	entries := make([]*core.Entry[T], 0, len(keys))
	for _, key := range keys {
		entry, found, err := s.load(ctx, key)
		if err != nil {
			return nil, err
		}
		if found {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// ToOptionalFirstEntry returns the first entry a query yields, or nil.
func (s *Store[T]) ToOptionalFirstEntry(ctx context.Context, opts QueryOptions) (*core.Entry[T], error) {
	keys, err := s.ToEntryKeys(ctx, opts)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		entry, found, err := s.load(ctx, key)
		if err != nil {
			return nil, err
		}
		if found {
			return entry, nil
		}
	}
	return nil, nil
}

// ToEntryCount counts the entries carrying every tag in tagKeys.
func (s *Store[T]) ToEntryCount(ctx context.Context, tagKeys []string) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	candidates, err := s.candidates(ctx, tagKeys)
	if err != nil {
		return 0, err
	}
	return int(candidates.GetCardinality()), nil
}

// ToEntryGivenKey loads one entry. Returns core.ErrNotFound if it doesn't exist.
func (s *Store[T]) ToEntryGivenKey(ctx context.Context, key string) (*core.Entry[T], error) {
	entry, err := s.ToOptionalEntryGivenKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, key)
	}
	return entry, nil
}

// ToOptionalEntryGivenKey loads one entry. Returns nil, nil if it doesn't exist.
func (s *Store[T]) ToOptionalEntryGivenKey(ctx context.Context, key string) (*core.Entry[T], error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if err := core.ValidateEntryKey(key); err != nil {
		return nil, err
	}
	entry, found, err := s.load(ctx, key)
	if err != nil || !found {
		return nil, err
	}
	return entry, nil
}

// ErrStopIteration ends ForEach early without an error.
var ErrStopIteration = errors.New("stop iteration")

// ForEach loads every known entry in base order and calls fn with it.
// Returning ErrStopIteration from fn ends the walk cleanly.
func (s *Store[T]) ForEach(ctx context.Context, fn func(*core.Entry[T]) error) error {
	if err := s.ready(); err != nil {
		return err
	}
	for _, key := range s.keys.Keys(s.known.Clone()) {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, found, err := s.load(ctx, key)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		if err := fn(entry); err != nil {
			if errors.Is(err, ErrStopIteration) {
				return nil
			}
			return err
		}
	}
	return nil
}

// candidates intersects the member sets of tagKeys with the known set.
func (s *Store[T]) candidates(ctx context.Context, tagKeys []string) (*roaring.Bitmap, error) {
	if len(tagKeys) == 0 {
		return s.known.Clone(), nil
	}

	bitmaps := make([]*roaring.Bitmap, 0, len(tagKeys)+1)
	for _, key := range tagKeys {
		tag, ok := s.tags[key]
		if !ok {
			return roaring.New(), nil
		}
		members, err := tag.Members(ctx)
		if err != nil {
			return nil, err
		}
		bitmaps = append(bitmaps, members)
	}
	bitmaps = append(bitmaps, s.known)
	return roaring.FastAnd(bitmaps...), nil
}

// orderByMetric stably sorts ords by metric value, missing values last.
func (s *Store[T]) orderByMetric(ctx context.Context, ords []uint32, order MetricOrder) error {
	metric, ok := s.metrics[order.Key]
	if !ok {
		return nil
	}
	if err := metric.EnsureLoaded(ctx); err != nil {
		return err
	}

	slices.SortStableFunc(ords, func(a, b uint32) int {
		va, okA := metric.Value(a)
		vb, okB := metric.Value(b)
		switch {
		case !okA && !okB:
			return 0
		case !okA:
			return 1
		case !okB:
			return -1
		case order.Direction == Descending:
			return cmp.Compare(vb, va)
		default:
			return cmp.Compare(va, vb)
		}
	})
	return nil
}

func paginate(ords []uint32, offset, limit int) []uint32 {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(ords) {
		return nil
	}
	end := len(ords)
	if limit > 0 && limit < end-offset {
		end = offset + limit
	}
	return ords[offset:end]
}
