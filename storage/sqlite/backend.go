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

// Package sqlite is the canonical storage engine: one SQLite database file
// holding entries, the tag catalog, tag memberships and metric values.
package sqlite

import (
	"context"

	"github.com/poiesic/tagstore/storage"
)

// Backend implements storage.Backend on top of an Engine.
type Backend struct {
	engine  *Engine
	entries *EntryRepository
	tags    *TagRepository
	metrics *MetricRepository
}

// Open opens the database at path with the given config (nil for defaults).
func Open(path string, cfg *Config) (*Backend, error) {
	engine, err := OpenEngine(path, cfg)
	if err != nil {
		return nil, err
	}
	return NewBackend(engine), nil
}

// NewBackend wraps an already open engine.
func NewBackend(engine *Engine) *Backend {
	return &Backend{
		engine:  engine,
		entries: NewEntryRepository(engine),
		tags:    NewTagRepository(engine),
		metrics: NewMetricRepository(engine),
	}
}

// Engine exposes the underlying SQL engine.
func (b *Backend) Engine() *Engine {
	return b.engine
}

// EnsureSchema creates the tables and indexes and warms the statement cache.
func (b *Backend) EnsureSchema(ctx context.Context) error {
	return ensureSchema(ctx, b.engine)
}

// WithTransaction runs fn inside a SQLite transaction.
func (b *Backend) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return b.engine.RunTransaction(ctx, fn)
}

func (b *Backend) Entries() storage.EntryRepository {
	return b.entries
}

func (b *Backend) Tags() storage.TagRepository {
	return b.tags
}

func (b *Backend) Metrics() storage.MetricRepository {
	return b.metrics
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.engine.Close()
}

var _ storage.Backend = (*Backend)(nil)
