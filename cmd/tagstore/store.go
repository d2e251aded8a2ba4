package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/tagstore"
	"github.com/poiesic/tagstore/storage"
	"github.com/poiesic/tagstore/storage/badger"
	"github.com/poiesic/tagstore/storage/sqlite"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

const (
	engineSQLite = "sqlite"
	engineBadger = "badger"
)

type docStore = tagstore.Store[document]

func schemaFrom(c *cli.Context) schema {
	return schema{
		tagFields:    c.StringSlice("tag-field"),
		metricFields: c.StringSlice("metric-field"),
	}
}

func openBackend(c *cli.Context) (storage.Backend, error) {
	path := c.String("db")
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	switch engine := c.String("engine"); engine {
	case engineSQLite:
		cfg := sqlite.DefaultConfig()
		cfg.JournalMode = c.String("journal-mode")
		return sqlite.Open(path, cfg)
	case engineBadger:
		return badger.OpenBackend(path, false)
	default:
		return nil, fmt.Errorf("unknown engine %q: must be one of %s, %s", engine, engineSQLite, engineBadger)
	}
}

// openStore opens and activates the store named by the global flags.
// reg may be nil when the caller does not read metrics.
func openStore(ctx context.Context, c *cli.Context, reg prometheus.Registerer) (*docStore, error) {
	sc := schemaFrom(c)
	opts := []tagstore.Option[document]{
		tagstore.WithTagKeys(sc.tagKeys),
		tagstore.WithMetrics(sc.metrics),
		tagstore.WithLogger[document](slog.Default()),
	}
	if c.Bool("compress") {
		opts = append(opts, tagstore.WithCodec[document](storage.NewZstdCodec(c.Int("compress-threshold"))))
	}
	if reg != nil {
		opts = append(opts, tagstore.WithRegisterer[document](reg))
	}

	backend, err := openBackend(c)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s, err := tagstore.Open(ctx, backend, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to activate store: %w", err)
	}
	slog.Debug("store opened", "db", c.String("db"), "engine", c.String("engine"),
		"entries", s.Len(), "schema", describeSchema(sc))
	return s, nil
}
