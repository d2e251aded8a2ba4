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

// Package index holds the in-memory secondary indexes of a store.
//
// # Keyspace
//
// Entry keys are interned to dense uint32 ordinals so that membership sets
// can be roaring bitmaps. Ordinals are handed out in insertion order and are
// never reused while the keyspace lives; ascending ordinal order is the base
// order of every query result.
//
// # Tags and metrics
//
// A Tag is the set of entries carrying one "prefix:value" tag key. A Metric
// maps entries to a float64 used for ordering. Both are created unloaded and
// hydrate from storage the first time they are read or written:
//
//	Unloaded → Loading → Loaded
//
// Once loaded, every change is written through to storage and applied to
// memory in the same call. Neither type opens a transaction of its own; a
// transaction carried in the context is joined by the storage layer.
//
// Tags and metrics are not safe for concurrent use.
package index
