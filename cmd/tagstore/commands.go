package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/poiesic/tagstore"
	"github.com/poiesic/tagstore/reindex"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/urfave/cli/v2"
)

// maxLineSize bounds a single document read by import.
const maxLineSize = 16 << 20

type entryView struct {
	Key       string             `json:"key"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
	Data      document           `json:"data"`
	Tags      []string           `json:"tags,omitempty"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

func putCommand(c *cli.Context) error {
	ctx := context.Background()

	raw, err := readDocumentArg(c)
	if err != nil {
		return err
	}
	doc, err := parseDocument(raw)
	if err != nil {
		return err
	}

	var createdAt time.Time
	if ts := c.Timestamp("created"); ts != nil {
		createdAt = *ts
	}

	s, err := openStore(ctx, c, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	entry, err := s.WriteEntryData(ctx, doc, c.String("key"), createdAt)
	if err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}
	fmt.Fprintln(c.App.Writer, entry.Key)
	return nil
}

func importCommand(c *cli.Context) error {
	ctx := context.Background()
	keyField := c.String("key-field")

	type keyedDoc struct {
		key string
		doc document
	}
	var docs []keyedDoc
	scanner := bufio.NewScanner(c.App.Reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		doc, err := parseDocument([]byte(text))
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		key, err := documentKey(doc, keyField)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		docs = append(docs, keyedDoc{key: key, doc: doc})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	s, err := openStore(ctx, c, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	changed := 0
	unsubscribe := s.Subscribe(tagstore.ListenerFuncs{
		OnEntryChanged: func(string) { changed++ },
	})
	defer unsubscribe()

	before := s.Len()
	outcome, err := s.RunTransaction(ctx, func(ctx context.Context) error {
		for i, d := range docs {
			if _, err := s.WriteEntryData(ctx, d.doc, d.key, time.Time{}); err != nil {
				return fmt.Errorf("document %d: %w", i+1, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("import %s: %w", outcome, err)
	}

	fmt.Fprintf(c.App.Writer, "Imported %d documents (%d new, %d changed)\n",
		len(docs), s.Len()-before, changed)
	return nil
}

func getCommand(c *cli.Context) error {
	ctx := context.Background()
	key := c.Args().First()
	if key == "" {
		return fmt.Errorf("entry key is required")
	}

	s, err := openStore(ctx, c, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	entry, err := s.ToEntryGivenKey(ctx, key)
	if err != nil {
		return err
	}

	view := entryView{
		Key:       entry.Key,
		CreatedAt: entry.CreatedAt,
		UpdatedAt: entry.UpdatedAt,
		Data:      entry.Data,
	}
	if c.Bool("metadata") {
		md, err := s.DeriveMetadata(entry)
		if err != nil {
			return err
		}
		view.Tags = md.TagKeys
		view.Metrics = md.Metrics
	}
	return writeJSON(c.App.Writer, view, true)
}

func deleteCommand(c *cli.Context) error {
	ctx := context.Background()
	if c.NArg() == 0 {
		return fmt.Errorf("at least one entry key is required")
	}

	s, err := openStore(ctx, c, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, key := range c.Args().Slice() {
		if err := s.DeleteEntryKey(ctx, key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}
	fmt.Fprintf(c.App.Writer, "Deleted %d entries\n", c.NArg())
	return nil
}

func queryCommand(c *cli.Context) error {
	ctx := context.Background()

	opts := tagstore.QueryOptions{
		RequireTagKeys: c.StringSlice("tag"),
		Offset:         c.Int("offset"),
		Limit:          c.Int("limit"),
	}
	if metric := c.String("order-by"); metric != "" {
		order := &tagstore.MetricOrder{Key: metric, Direction: tagstore.Ascending}
		if c.Bool("desc") {
			order.Direction = tagstore.Descending
		}
		opts.OrderByMetric = order
	}

	s, err := openStore(ctx, c, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if c.Bool("keys-only") {
		keys, err := s.ToEntryKeys(ctx, opts)
		if err != nil {
			return err
		}
		for _, key := range keys {
			fmt.Fprintln(c.App.Writer, key)
		}
		return nil
	}

	entries, err := s.ToEntries(ctx, opts)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		view := entryView{Key: entry.Key, CreatedAt: entry.CreatedAt, UpdatedAt: entry.UpdatedAt, Data: entry.Data}
		if err := writeJSON(c.App.Writer, view, false); err != nil {
			return err
		}
	}
	return nil
}

func countCommand(c *cli.Context) error {
	ctx := context.Background()

	s, err := openStore(ctx, c, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	n, err := s.ToEntryCount(ctx, c.StringSlice("tag"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, n)
	return nil
}

func tagsCommand(c *cli.Context) error {
	ctx := context.Background()

	s, err := openStore(ctx, c, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	if label := c.String("prefix"); label != "" {
		keys, err := s.TagKeysGivenPrefixLabel(ctx, label)
		if err != nil {
			return err
		}
		for _, key := range keys {
			n, err := s.ToEntryCount(ctx, []string{key})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "%s\t%d\n", key, n)
		}
		return nil
	}

	prefixes, err := s.TagPrefixes(ctx)
	if err != nil {
		return err
	}
	for _, prefix := range prefixes {
		fmt.Fprintln(c.App.Writer, prefix.Label)
	}
	return nil
}

func metricsCommand(c *cli.Context) error {
	ctx := context.Background()

	s, err := openStore(ctx, c, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	for _, key := range s.MetricKeys() {
		fmt.Fprintln(c.App.Writer, key)
	}
	return nil
}

func reindexCommand(c *cli.Context) error {
	ctx := context.Background()

	config := &reindex.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		PoolSize:       c.Int("workers"),
	}
	if config.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if config.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if config.PoolSize < 0 {
		return fmt.Errorf("workers must not be negative")
	}

	s, err := openStore(ctx, c, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	reindexer, err := reindex.NewReindexer(s, config, c.App.ErrWriter)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Database: %s (%s)\n", c.String("db"), c.String("engine"))
	fmt.Fprintf(c.App.ErrWriter, "Schema: %s\n", describeSchema(schemaFrom(c)))
	fmt.Fprintln(c.App.ErrWriter)

	result, err := reindexer.Run(ctx)
	if err != nil {
		return fmt.Errorf("reindex failed after %d entries: %w", result.Entries, err)
	}
	fmt.Fprintf(c.App.Writer, "Reindexed %d entries in %d batches\n", result.Entries, result.Batches)
	return nil
}

func statsCommand(c *cli.Context) error {
	ctx := context.Background()
	reg := prometheus.NewRegistry()

	s, err := openStore(ctx, c, reg)
	if err != nil {
		return err
	}
	defer s.Close()

	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	return writeFamilies(c.App.Writer, families)
}

func writeFamilies(w io.Writer, families []*dto.MetricFamily) error {
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			return fmt.Errorf("failed to write %s: %w", family.GetName(), err)
		}
	}
	return nil
}

func readDocumentArg(c *cli.Context) ([]byte, error) {
	arg := c.Args().First()
	if arg != "" && arg != "-" {
		return []byte(arg), nil
	}
	raw, err := io.ReadAll(c.App.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return raw, nil
}

func parseDocument(raw []byte) (document, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("invalid JSON document: expected an object")
	}
	return doc, nil
}

// documentKey reads the entry key from field. An absent or null field means
// the key is generated; any other non-string value is an error.
func documentKey(doc document, field string) (string, error) {
	if field == "" {
		return "", nil
	}
	switch v := doc[field].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		return "", fmt.Errorf("key field %q must be a string, got %T", field, v)
	}
}

func writeJSON(w io.Writer, v any, indent bool) error {
	enc := json.NewEncoder(w)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
