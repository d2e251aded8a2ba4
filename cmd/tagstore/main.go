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


package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/tagstore/storage"
	"github.com/poiesic/tagstore/storage/sqlite"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "tagstore",
		Usage: "Tag-indexed JSON entry store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:     "db",
				Aliases:  []string{"d"},
				Usage:    "Path to the SQLite file or Badger directory",
				EnvVars:  []string{"TAGSTORE_DB"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "engine",
				Aliases: []string{"e"},
				Usage:   "Storage engine (sqlite, badger)",
				EnvVars: []string{"TAGSTORE_ENGINE"},
				Value:   engineSQLite,
			},
			&cli.StringFlag{
				Name:    "journal-mode",
				Usage:   "SQLite journal mode (WAL, DELETE)",
				EnvVars: []string{"TAGSTORE_JOURNAL_MODE"},
				Value:   sqlite.JournalModeWAL,
			},
			&cli.BoolFlag{
				Name:    "compress",
				Usage:   "Store large payloads zstd-compressed",
				EnvVars: []string{"TAGSTORE_COMPRESS"},
			},
			&cli.IntFlag{
				Name:  "compress-threshold",
				Usage: "Smallest payload in bytes that gets compressed",
				Value: storage.DefaultCompressionThreshold,
			},
			&cli.StringSliceFlag{
				Name:    "tag-field",
				Aliases: []string{"t"},
				Usage:   "Document field whose values become field:value tags (repeatable)",
				EnvVars: []string{"TAGSTORE_TAG_FIELDS"},
			},
			&cli.StringSliceFlag{
				Name:    "metric-field",
				Aliases: []string{"m"},
				Usage:   "Numeric document field recorded as a metric (repeatable)",
				EnvVars: []string{"TAGSTORE_METRIC_FIELDS"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "put",
				Usage:     "Write one JSON document (argument or stdin) and print its key",
				ArgsUsage: "[json|-]",
				Action:    putCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "key",
						Aliases: []string{"k"},
						Usage:   "Entry key; generated when omitted",
					},
					&cli.TimestampFlag{
						Name:   "created",
						Usage:  "Creation time for new entries (RFC 3339)",
						Layout: time.RFC3339,
					},
				},
			},
			{
				Name:   "import",
				Usage:  "Write newline-delimited JSON documents from stdin in one transaction",
				Action: importCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "key-field",
						Usage: "Document field holding the entry key; keys are generated when empty",
					},
				},
			},
			{
				Name:      "get",
				Usage:     "Print an entry",
				ArgsUsage: "<key>",
				Action:    getCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "metadata",
						Usage: "Also print the tags and metrics derived from the entry",
					},
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete entries by key",
				ArgsUsage: "<key>...",
				Action:    deleteCommand,
			},
			{
				Name:   "query",
				Usage:  "List entries carrying every given tag",
				Action: queryCommand,
				Flags: append(tagFilterFlags(),
					&cli.StringFlag{
						Name:  "order-by",
						Usage: "Metric to order results by",
					},
					&cli.BoolFlag{
						Name:  "desc",
						Usage: "Order descending",
					},
					&cli.IntFlag{
						Name:  "offset",
						Usage: "Skip this many results",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Return at most this many results (0 for all)",
					},
					&cli.BoolFlag{
						Name:  "keys-only",
						Usage: "Print keys instead of documents",
					},
				),
			},
			{
				Name:   "count",
				Usage:  "Count entries carrying every given tag",
				Action: countCommand,
				Flags:  tagFilterFlags(),
			},
			{
				Name:   "tags",
				Usage:  "List tag prefixes, or the tags under one prefix",
				Action: tagsCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "prefix",
						Usage: "Prefix label to list tags for (case-insensitive)",
					},
				},
			},
			{
				Name:   "metrics",
				Usage:  "List metric keys",
				Action: metricsCommand,
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild every entry's tags and metrics from the current field flags",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of entries written per transaction",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N entries",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Derivation workers (0 for one per CPU)",
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Print store metrics in Prometheus text format",
				Action: statsCommand,
			},
		},
	}
}

func tagFilterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "tag",
			Usage: "Required tag key prefix:value (repeatable)",
		},
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	errWriter := c.App.ErrWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(errWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
