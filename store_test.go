package tagstore

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/tagstore/core"
	"github.com/poiesic/tagstore/storage"
	"github.com/poiesic/tagstore/storage/badger"
	"github.com/poiesic/tagstore/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	Message string             `json:"message"`
	Tags    []string           `json:"tags,omitempty"`
	Scores  map[string]float64 `json:"scores,omitempty"`
}

func noteTags(n note) []string {
	return n.Tags
}

func noteScores(n note) map[string]float64 {
	return n.Scores
}

var testBackends = map[string]func(t *testing.T) storage.Backend{
	"sqlite": func(t *testing.T) storage.Backend {
		backend, err := sqlite.Open(sqlite.MemoryPath, nil)
		require.NoError(t, err)
		return backend
	},
	"badger": func(t *testing.T) storage.Backend {
		backend, err := badger.OpenBackend("", true)
		require.NoError(t, err)
		return backend
	},
}

// forEachBackend runs fn once per storage engine with an activated store.
func forEachBackend(t *testing.T, fn func(t *testing.T, s *Store[note])) {
	for name, newBackend := range testBackends {
		t.Run(name, func(t *testing.T) {
			s, err := New(newBackend(t), WithTagKeys(noteTags), WithMetrics(noteScores))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			require.NoError(t, s.Activate(context.Background()))
			fn(t, s)
		})
	}
}

func write(t *testing.T, s *Store[note], key string, n note) *core.Entry[note] {
	t.Helper()
	return writeCtx(t, context.Background(), s, key, n)
}

// writeCtx writes with ctx; inside RunTransaction it must be the transaction's context.
func writeCtx(t *testing.T, ctx context.Context, s *Store[note], key string, n note) *core.Entry[note] {
	t.Helper()
	entry, err := s.WriteEntryData(ctx, n, key, time.Time{})
	require.NoError(t, err)
	return entry
}

func queryKeys(t *testing.T, s *Store[note], opts QueryOptions) []string {
	t.Helper()
	keys, err := s.ToEntryKeys(context.Background(), opts)
	require.NoError(t, err)
	return keys
}

func TestNewRequiresBackend(t *testing.T) {
	_, err := New[note](nil)
	assert.ErrorIs(t, err, ErrBackendRequired)
}

func TestOperationsRequireActivation(t *testing.T) {
	backend, err := sqlite.NewMemoryBackend()
	require.NoError(t, err)
	s, err := New[note](backend)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	_, err = s.WriteEntryData(ctx, note{}, "entry-1", time.Time{})
	assert.ErrorIs(t, err, ErrNotActive)
	_, err = s.ToEntryKeys(ctx, QueryOptions{})
	assert.ErrorIs(t, err, ErrNotActive)
	assert.ErrorIs(t, s.DeleteEntryKey(ctx, "entry-1"), ErrNotActive)
	assert.Zero(t, s.Len())
	assert.False(t, s.Has("entry-1"))

	require.NoError(t, s.Activate(ctx))
	require.NoError(t, s.Activate(ctx))
	assert.True(t, s.Active())

	s.Deactivate()
	assert.False(t, s.Active())
	_, err = s.ToEntryKeys(ctx, QueryOptions{})
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store[note]) {
		ctx := context.Background()
		data := note{Message: "hello", Tags: []string{"kind:greeting"}, Scores: map[string]float64{"len": 5}}

		written := write(t, s, "greeting-1", data)
		assert.Equal(t, core.StatusSaved, written.Status)

		loaded, err := s.ToEntryGivenKey(ctx, "greeting-1")
		require.NoError(t, err)
		assert.Equal(t, data, loaded.Data)
		assert.Equal(t, "greeting-1", loaded.Key)
		assert.Equal(t, core.StatusSaved, loaded.Status)
		assert.False(t, loaded.UpdatedAt.Before(loaded.CreatedAt))
		assert.True(t, written.CreatedAt.Equal(loaded.CreatedAt))
		assert.Equal(t, time.UTC, loaded.CreatedAt.Location())

		_, err = s.ToEntryGivenKey(ctx, "missing-key")
		assert.ErrorIs(t, err, core.ErrNotFound)

		missing, err := s.ToOptionalEntryGivenKey(ctx, "missing-key")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestGeneratedKeys(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store[note]) {
		entry := write(t, s, "", note{Message: "anonymous"})
		assert.GreaterOrEqual(t, len(entry.Key), core.MinEntryKeyLength)
		assert.True(t, s.Has(entry.Key))

		other := write(t, s, "", note{Message: "anonymous"})
		assert.NotEqual(t, entry.Key, other.Key)
	})
}

func TestGeneratedKeysAreValidated(t *testing.T) {
	s, err := OpenMemory(context.Background(),
		WithTagKeys(noteTags),
		WithKeyGenerator[note](func() string { return "abc" }))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.WriteEntryData(context.Background(), note{}, "", time.Time{})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	assert.ErrorIs(t, err, core.ErrInvalidEntryKey)
}

func TestIdempotentResave(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store[note]) {
		ctx := context.Background()
		data := note{Message: "same", Tags: []string{"kind:a"}}
		created := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

		first, err := s.WriteEntryData(ctx, data, "entry-1", created)
		require.NoError(t, err)
		assert.True(t, created.Equal(first.CreatedAt))

		// createdAt only applies to new entries
		second, err := s.WriteEntryData(ctx, data, "entry-1", created.Add(time.Hour))
		require.NoError(t, err)

		assert.Equal(t, "entry-1", second.Key)
		assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
		assert.False(t, second.UpdatedAt.Before(first.UpdatedAt))
		assert.Equal(t, 1, s.Len())
		assert.Equal(t, []string{"entry-1"}, queryKeys(t, s, QueryOptions{RequireTagKeys: []string{"kind:a"}}))
	})
}

func TestMinimumKeyLength(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store[note]) {
		ctx := context.Background()

		_, err := s.WriteEntryData(ctx, note{}, "abcd", time.Time{})
		assert.ErrorIs(t, err, core.ErrInvalidInput)
		assert.ErrorIs(t, s.DeleteEntryKey(ctx, "abcd"), core.ErrInvalidInput)
		_, err = s.ToEntryGivenKey(ctx, "abcd")
		assert.ErrorIs(t, err, core.ErrInvalidInput)
		_, err = s.ToOptionalEntryGivenKey(ctx, "a")
		assert.ErrorIs(t, err, core.ErrInvalidEntryKey)
		assert.ErrorIs(t, s.ReplaceMetadata(ctx, "abc", Metadata{}), core.ErrInvalidInput)

		assert.Zero(t, s.Len())
	})
}

func TestMalformedTagKeyRejectedBeforeWrite(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store[note]) {
		ctx := context.Background()

		for _, bad := range []string{"nocolon", ":value", "prefix:"} {
			_, err := s.WriteEntryData(ctx, note{Tags: []string{"kind:ok", bad}}, "entry-1", time.Time{})
			assert.ErrorIs(t, err, core.ErrMalformedTagKey, bad)
		}

		assert.False(t, s.Has("entry-1"))
		missing, err := s.ToOptionalEntryGivenKey(ctx, "entry-1")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestEmptyMetricKeyRejectedBeforeWrite(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store[note]) {
		_, err := s.WriteEntryData(context.Background(),
			note{Scores: map[string]float64{"": 1}}, "entry-1", time.Time{})
		assert.ErrorIs(t, err, core.ErrEmptyMetricKey)
		assert.False(t, s.Has("entry-1"))
	})
}

func TestNonFiniteMetricRejectedBeforeWrite(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store[note]) {
		ctx := context.Background()
		write(t, s, "key-a", note{Scores: map[string]float64{"m": 1}})
		write(t, s, "key-c", note{Scores: map[string]float64{"m": -5}})

		for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
			_, err := s.WriteEntryData(ctx, note{Scores: map[string]float64{"m": v}}, "key-b", time.Time{})
			assert.ErrorIs(t, err, core.ErrInvalidMetricValue)
			assert.ErrorIs(t, err, core.ErrInvalidInput)

			err = s.ReplaceMetadata(ctx, "key-a", Metadata{Metrics: map[string]float64{"m": v}})
			assert.ErrorIs(t, err, core.ErrInvalidMetricValue)
		}
		assert.False(t, s.Has("key-b"))

		order := QueryOptions{OrderByMetric: &MetricOrder{Key: "m", Direction: Ascending}}
		assert.Equal(t, []string{"key-c", "key-a"}, queryKeys(t, s, order))
		require.NoError(t, s.Reload(ctx))
		assert.Equal(t, []string{"key-c", "key-a"}, queryKeys(t, s, order))
	})
}

func TestWriteEntryByStatus(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store[note]) {
		ctx := context.Background()

		entry := &core.Entry[note]{Key: "entry-1", Data: note{Message: "v1"}, Status: core.StatusNew}
		saved, err := s.WriteEntry(ctx, entry)
		require.NoError(t, err)
		assert.Equal(t, core.StatusSaved, saved.Status)

		saved.Data.Message = "v2"
		saved.Status = core.StatusUpdated
		updated, err := s.WriteEntry(ctx, saved)
		require.NoError(t, err)
		assert.Equal(t, "v2", updated.Data.Message)

		// Saved entries are not written again
		updated.Data.Message = "ignored"
		same, err := s.WriteEntry(ctx, updated)
		require.NoError(t, err)
		assert.Same(t, updated, same)
		loaded, err := s.ToEntryGivenKey(ctx, "entry-1")
		require.NoError(t, err)
		assert.Equal(t, "v2", loaded.Data.Message)

		unknown := &core.Entry[note]{Key: "entry-2", Data: note{Message: "plain"}}
		_, err = s.WriteEntry(ctx, unknown)
		require.NoError(t, err)
		assert.True(t, s.Has("entry-2"))

		_, err = s.WriteEntry(ctx, &core.Entry[note]{Key: "entry-1", Status: core.StatusDeleted})
		require.NoError(t, err)
		assert.False(t, s.Has("entry-1"))

		_, err = s.WriteEntry(ctx, &core.Entry[note]{Key: "entry-2", Status: core.Status(42)})
		assert.ErrorIs(t, err, core.ErrUnsupportedStatus)

		_, err = s.WriteEntry(ctx, nil)
		assert.ErrorIs(t, err, core.ErrInvalidInput)
	})
}

func TestDeleteCleansIndexes(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store[note]) {
		ctx := context.Background()
		write(t, s, "entry-1", note{Tags: []string{"kind:a", "color:red"}, Scores: map[string]float64{"m": 1}})
		write(t, s, "entry-2", note{Tags: []string{"kind:a"}, Scores: map[string]float64{"m": 2}})

		require.NoError(t, s.DeleteEntryKey(ctx, "entry-1"))
		// Unknown keys are a no-op
		require.NoError(t, s.DeleteEntryKey(ctx, "entry-1"))
		require.NoError(t, s.DeleteEntryKey(ctx, "never-written"))

		assert.Equal(t, []string{"entry-2"}, queryKeys(t, s, QueryOptions{}))
		assert.Equal(t, []string{"entry-2"}, queryKeys(t, s, QueryOptions{RequireTagKeys: []string{"kind:a"}}))
		assert.Empty(t, queryKeys(t, s, QueryOptions{RequireTagKeys: []string{"color:red"}}))

		for _, tag := range s.tags {
			ok, err := tag.Contains(ctx, "entry-1")
			require.NoError(t, err)
			assert.False(t, ok, tag.Key())
		}
		for _, metric := range s.metrics {
			_, ok, err := metric.ValueOf(ctx, "entry-1")
			require.NoError(t, err)
			assert.False(t, ok, metric.Key())
		}

		tagKeys, err := s.backend.Tags().TagsForEntry(ctx, "entry-1")
		require.NoError(t, err)
		assert.Empty(t, tagKeys)
		metricKeys, err := s.backend.Metrics().MetricsForEntry(ctx, "entry-1")
		require.NoError(t, err)
		assert.Empty(t, metricKeys)

		// Re-created keys go to the end of base order
		write(t, s, "entry-1", note{Tags: []string{"kind:a"}})
		assert.Equal(t, []string{"entry-2", "entry-1"}, queryKeys(t, s, QueryOptions{RequireTagKeys: []string{"kind:a"}}))
	})
}

func TestPersistenceAcrossReopen(t *testing.T) {
	ctx := context.Background()
	opts := []Option[note]{WithTagKeys(noteTags), WithMetrics(noteScores)}

	openers := map[string]func(dir string) (*Store[note], error){
		"sqlite": func(dir string) (*Store[note], error) {
			return OpenSQLite(ctx, filepath.Join(dir, "store.db"), opts...)
		},
		"badger": func(dir string) (*Store[note], error) {
			return OpenBadger(ctx, filepath.Join(dir, "badger"), opts...)
		},
	}

	for name, openStore := range openers {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()

			s, err := openStore(dir)
			require.NoError(t, err)
			write(t, s, "entry-a", note{Tags: []string{"kind:x"}, Scores: map[string]float64{"m": 3}})
			write(t, s, "entry-b", note{Tags: []string{"kind:x"}, Scores: map[string]float64{"m": 1}})
			write(t, s, "entry-c", note{Tags: []string{"kind:y"}})
			require.NoError(t, s.Close())

			s, err = openStore(dir)
			require.NoError(t, err)
			defer s.Close()

			assert.Equal(t, 3, s.Len())
			assert.Equal(t, []string{"kind:x", "kind:y"}, s.TagKeys())
			assert.Equal(t, []string{"createdAt", "m", "updatedAt"}, s.MetricKeys())
			assert.Equal(t, []string{"entry-b", "entry-a"}, queryKeys(t, s, QueryOptions{
				RequireTagKeys: []string{"kind:x"},
				OrderByMetric:  &MetricOrder{Key: "m"},
			}))
		})
	}
}

func TestRebuildMetadataGivenEntry(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store[note]) {
		ctx := context.Background()
		entry := write(t, s, "entry-1", note{Tags: []string{"status:low"}})

		entry.Data.Tags = []string{"status:high"}
		require.NoError(t, s.RebuildMetadataGivenEntry(ctx, entry))

		assert.Empty(t, queryKeys(t, s, QueryOptions{RequireTagKeys: []string{"status:low"}}))
		assert.Equal(t, []string{"entry-1"}, queryKeys(t, s, QueryOptions{RequireTagKeys: []string{"status:high"}}))

		// Entry data in storage is untouched
		loaded, err := s.ToEntryGivenKey(ctx, "entry-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"status:low"}, loaded.Data.Tags)

		assert.ErrorIs(t, s.RebuildMetadataGivenEntry(ctx, nil), core.ErrInvalidInput)
		assert.ErrorIs(t, s.ReplaceMetadata(ctx, "unknown-key", Metadata{}), core.ErrNotFound)
	})
}

func TestImplicitTimeMetrics(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store[note]) {
		ctx := context.Background()
		created := time.Date(2021, 6, 1, 12, 0, 0, 0, time.UTC)
		entry, err := s.WriteEntryData(ctx,
			note{Scores: map[string]float64{core.MetricCreatedAt: -1}}, "entry-1", created)
		require.NoError(t, err)

		v, ok, err := s.metrics[core.MetricCreatedAt].ValueOf(ctx, "entry-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, core.TimeMetric(created), v, "implicit metric overrides caller value")

		v, ok, err = s.metrics[core.MetricUpdatedAt].ValueOf(ctx, "entry-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, core.TimeMetric(entry.UpdatedAt), v)

		md, err := s.DeriveMetadata(entry)
		require.NoError(t, err)
		assert.Equal(t, core.TimeMetric(created), md.Metrics[core.MetricCreatedAt])
	})
}

func TestDeriveMetadataDeduplicatesTags(t *testing.T) {
	s, err := New(&nopBackend{}, WithTagKeys(noteTags))
	require.NoError(t, err)

	md, err := s.DeriveMetadata(&core.Entry[note]{Key: "entry-1", Data: note{Tags: []string{"a:1", "b:2", "a:1"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a:1", "b:2"}, md.TagKeys)
	assert.Contains(t, md.Metrics, core.MetricCreatedAt)
	assert.Contains(t, md.Metrics, core.MetricUpdatedAt)
}

func TestCatalogHelpers(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store[note]) {
		ctx := context.Background()
		write(t, s, "entry-1", note{Tags: []string{"City:Paris", "City:Oslo", "kind:trip"}})

		prefixes, err := s.TagPrefixes(ctx)
		require.NoError(t, err)
		require.Len(t, prefixes, 2)
		assert.Equal(t, core.TagPrefix{Key: "City", Label: "City", NormalizedLabel: "city"}, prefixes[0])

		keys, err := s.TagKeysGivenPrefixLabel(ctx, "CITY")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"City:Paris", "City:Oslo"}, keys)

		keys, err = s.TagKeysGivenPrefixLabel(ctx, "nothing")
		require.NoError(t, err)
		assert.Empty(t, keys)

		assert.Equal(t, []string{"City:Oslo", "City:Paris", "kind:trip"}, s.TagKeys())
	})
}

func TestForEach(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s *Store[note]) {
		ctx := context.Background()
		for _, key := range []string{"entry-1", "entry-2", "entry-3"} {
			write(t, s, key, note{Message: key})
		}

		var seen []string
		require.NoError(t, s.ForEach(ctx, func(e *core.Entry[note]) error {
			seen = append(seen, e.Data.Message)
			return nil
		}))
		assert.Equal(t, []string{"entry-1", "entry-2", "entry-3"}, seen)

		seen = nil
		require.NoError(t, s.ForEach(ctx, func(e *core.Entry[note]) error {
			seen = append(seen, e.Key)
			if len(seen) == 2 {
				return ErrStopIteration
			}
			return nil
		}))
		assert.Len(t, seen, 2)
	})
}

func TestZstdCodecStore(t *testing.T) {
	ctx := context.Background()
	s, err := OpenMemory(ctx, WithTagKeys(noteTags), WithCodec[note](storage.NewZstdCodec(16)))
	require.NoError(t, err)
	defer s.Close()

	long := note{Message: string(make([]byte, 2048)), Tags: []string{"size:big"}}
	write(t, s, "entry-1", long)

	loaded, err := s.ToEntryGivenKey(ctx, "entry-1")
	require.NoError(t, err)
	assert.Equal(t, long, loaded.Data)
}

// nopBackend satisfies storage.Backend for tests that never touch storage.
type nopBackend struct {
	storage.Backend
}
