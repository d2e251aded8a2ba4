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

// Package tagstore is an embedded, persistent entry store with tag and
// metric indexes.
//
// # Overview
//
// A Store[T] keeps entries of an opaque payload type T under string keys.
// Two caller functions describe how entries are indexed:
//
//   - WithTagKeys derives "prefix:value" tag keys; queries intersect them.
//   - WithMetrics derives named float64 values; queries order by them.
//
// Every entry also carries the implicit createdAt and updatedAt metrics
// (Unix microseconds).
//
// # Usage
//
//	store, err := tagstore.OpenSQLite(ctx, "notes.db",
//		tagstore.WithTagKeys(func(n Note) []string { return n.Tags }),
//		tagstore.WithMetrics(func(n Note) map[string]float64 {
//			return map[string]float64{"priority": n.Priority}
//		}),
//	)
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	entry, err := store.WriteEntryData(ctx, note, "", time.Time{})
//
//	keys, err := store.ToEntryKeys(ctx, tagstore.QueryOptions{
//		RequireTagKeys: []string{"status:open"},
//		OrderByMetric:  &tagstore.MetricOrder{Key: "priority", Direction: tagstore.Descending},
//		Limit:          10,
//	})
//
// # Storage
//
// Stores run over a storage.Backend: the SQLite engine (storage/sqlite) or
// BadgerDB (storage/badger). The in-memory indexes (known keys, tag member
// bitmaps, metric values) are rebuilt from storage at activation and kept in
// step with it on every write.
//
// # Transactions
//
// RunTransaction groups writes. When a failed transaction may have left the
// in-memory indexes ahead of storage, the store refuses further work with
// ErrReloadRequired until Reload rebuilds them.
//
// # Concurrency
//
// A Store is not safe for concurrent use. Callers that share one across
// goroutines must serialize access.
package tagstore
