package index

import (
	"context"
	"errors"

	"github.com/poiesic/tagstore/storage"
)

var errInjected = errors.New("injected failure")

// fakeStore is an in-memory MembershipStore and ValueStore.
type fakeStore struct {
	prefixes map[string]storage.TagPrefixRecord
	tags     map[string]storage.TagRecord
	members  map[string]map[string]bool
	metrics  map[string]map[string]float64

	memberReads int
	failReads   bool
	failWrites  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		prefixes: make(map[string]storage.TagPrefixRecord),
		tags:     make(map[string]storage.TagRecord),
		members:  make(map[string]map[string]bool),
		metrics:  make(map[string]map[string]float64),
	}
}

func (f *fakeStore) EnsureTag(ctx context.Context, prefix storage.TagPrefixRecord, tag storage.TagRecord) error {
	if f.failWrites {
		return errInjected
	}
	if _, ok := f.prefixes[prefix.Key]; !ok {
		f.prefixes[prefix.Key] = prefix
	}
	if _, ok := f.tags[tag.Key]; !ok {
		f.tags[tag.Key] = tag
	}
	return nil
}

func (f *fakeStore) TagMembers(ctx context.Context, tagKey string) ([]string, error) {
	f.memberReads++
	if f.failReads {
		return nil, errInjected
	}
	var keys []string
	for k := range f.members[tagKey] {
		keys = append(keys, k)
	}
	return keys, nil
}

func (f *fakeStore) AddTagMember(ctx context.Context, tagKey, entryKey string) error {
	if f.failWrites {
		return errInjected
	}
	if f.members[tagKey] == nil {
		f.members[tagKey] = make(map[string]bool)
	}
	f.members[tagKey][entryKey] = true
	return nil
}

func (f *fakeStore) RemoveTagMember(ctx context.Context, tagKey, entryKey string) error {
	if f.failWrites {
		return errInjected
	}
	delete(f.members[tagKey], entryKey)
	return nil
}

func (f *fakeStore) EnsureMetric(ctx context.Context, metricKey string) error {
	if f.failWrites {
		return errInjected
	}
	if f.metrics[metricKey] == nil {
		f.metrics[metricKey] = make(map[string]float64)
	}
	return nil
}

func (f *fakeStore) MetricValues(ctx context.Context, metricKey string) (map[string]float64, error) {
	if f.failReads {
		return nil, errInjected
	}
	values := make(map[string]float64)
	for k, v := range f.metrics[metricKey] {
		values[k] = v
	}
	return values, nil
}

func (f *fakeStore) SetMetricValue(ctx context.Context, metricKey, entryKey string, value float64) error {
	if f.failWrites {
		return errInjected
	}
	if f.metrics[metricKey] == nil {
		f.metrics[metricKey] = make(map[string]float64)
	}
	f.metrics[metricKey][entryKey] = value
	return nil
}

func (f *fakeStore) DeleteMetricValue(ctx context.Context, metricKey, entryKey string) error {
	if f.failWrites {
		return errInjected
	}
	delete(f.metrics[metricKey], entryKey)
	return nil
}
