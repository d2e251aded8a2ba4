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


// Package storage provides the storage abstraction layer for tagstore.
//
// This package defines the repository interfaces the store consumes to persist
// entries, the tag catalog with its entry inverted index, and per-entry metric
// values. Two engines implement them:
//
//   - sqlite: the canonical engine, a SQL schema on modernc.org/sqlite
//   - badger: a key/value layout on BadgerDB, also usable fully in memory
//
// # Architecture
//
// The storage layer follows the Repository pattern:
//
//   - EntryRepository: entry rows (key, payload, timestamps)
//   - TagRepository: tag prefixes, tags and tag memberships
//   - MetricRepository: metrics and metric values
//   - TransactionManager: transaction support
//   - Backend: the bundle one store owns
//
// # Transactions
//
// WithTransaction places the engine transaction in the context handed to the
// callback. Every repository method takes a context and joins that transaction
// when one is present, so a block of calls commits or rolls back together.
//
// # Payloads
//
// Entry payloads are opaque bytes to the repositories. The Codec implementations
// in this package (JSONCodec, ZstdCodec) turn caller data into those bytes; the
// first byte names the format so codecs can be switched on an existing database.
//
// # Thread Safety
//
// Backends are used by a single store, which is not safe for concurrent use.
// Implementations only need to be safe for sequential access.
package storage
