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


package reindex

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/tagstore"
	"github.com/poiesic/tagstore/core"
)

// Config holds configuration for a reindex run.
type Config struct {
	// BatchSize is the number of entries written per transaction
	BatchSize int

	// ReportInterval is how often to report progress (number of entries)
	ReportInterval int

	// PoolSize is the number of derivation workers; zero means one per CPU
	PoolSize int

	// Logger receives per-batch diagnostics; nil means slog.Default()
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		PoolSize:       runtime.NumCPU(),
	}
}

// Result summarizes a completed run.
type Result struct {
	Entries int
	Batches int
	Elapsed time.Duration
}

// Reindexer rebuilds every entry's associations from its current data using
// the store's configured tag and metric functions.
type Reindexer[T any] struct {
	store    *tagstore.Store[T]
	config   *Config
	progress io.Writer
	iterator *KeyIterator[T]
	logger   *slog.Logger
}

// NewReindexer creates a reindexer over store.
// progress: where to write progress output (typically os.Stderr); nil discards it
func NewReindexer[T any](store *tagstore.Store[T], config *Config, progress io.Writer) (*Reindexer[T], error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.PoolSize < 0 {
		return nil, ErrInvalidPoolSize
	}
	if progress == nil {
		progress = io.Discard
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reindexer[T]{
		store:    store,
		config:   config,
		progress: progress,
		iterator: NewKeyIterator(store, config.BatchSize),
		logger:   logger.With("component", "reindex"),
	}, nil
}

// Run rebuilds the associations of every known entry. Batches that committed
// before a failure stay committed. When a batch fails after memory changed,
// the returned error matches tagstore.ErrReloadRequired.
func (r *Reindexer[T]) Run(ctx context.Context) (Result, error) {
	keys, err := r.iterator.Keys(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list entries: %w", err)
	}
	if len(keys) == 0 {
		fmt.Fprintf(r.progress, "No entries found in store (0 entries)\n")
		return Result{}, nil
	}

	size := r.config.PoolSize
	if size == 0 {
		size = runtime.NumCPU()
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	fmt.Fprintf(r.progress, "Starting reindex of %d entries (batch size: %d, workers: %d)\n",
		len(keys), r.iterator.batchSize, size)

	tracker := NewProgressTracker(r.progress, len(keys), r.config.ReportInterval)
	tracker.Start()

	var result Result
	err = r.iterator.ForEach(ctx, keys, func(batch []string) error {
		n, err := r.processBatch(ctx, pool, batch)
		if err != nil {
			r.logger.Error("batch failed", "batch", result.Batches, "size", len(batch), "err", err)
			return fmt.Errorf("batch %d: %w", result.Batches, err)
		}
		result.Batches++
		result.Entries += n
		tracker.Advance(len(batch))
		return nil
	})
	tracker.Finish()
	result.Elapsed = tracker.Elapsed()
	if err != nil {
		return result, err
	}

	fmt.Fprintf(r.progress, "Reindex complete. Processed %d entries in %v (%.1f entries/sec)\n",
		result.Entries, result.Elapsed.Round(time.Millisecond), float64(result.Entries)/result.Elapsed.Seconds())
	return result, nil
}

type derived struct {
	key string
	md  tagstore.Metadata
	err error
}

// processBatch loads the batch, derives metadata on the pool and applies it
// in one transaction. It returns the number of entries rewritten.
func (r *Reindexer[T]) processBatch(ctx context.Context, pool *ants.Pool, keys []string) (int, error) {
	entries := make([]*core.Entry[T], 0, len(keys))
	for _, key := range keys {
		entry, err := r.store.ToOptionalEntryGivenKey(ctx, key)
		if err != nil {
			return 0, fmt.Errorf("failed to load %s: %w", key, err)
		}
		if entry == nil {
			r.logger.Warn("entry vanished during reindex", "key", key)
			continue
		}
		entries = append(entries, entry)
	}

	results := make([]derived, len(entries))
	var wg sync.WaitGroup
	for i, entry := range entries {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			md, err := r.store.DeriveMetadata(entry)
			results[i] = derived{key: entry.Key, md: md, err: err}
		})
		if err != nil {
			wg.Done()
			results[i] = derived{key: entry.Key, err: err}
		}
	}
	wg.Wait()

	for _, d := range results {
		if d.err != nil {
			return 0, fmt.Errorf("failed to derive metadata for %s: %w", d.key, d.err)
		}
	}

	_, err := r.store.RunTransaction(ctx, func(ctx context.Context) error {
		for _, d := range results {
			if err := r.store.ReplaceMetadata(ctx, d.key, d.md); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(results), nil
}
