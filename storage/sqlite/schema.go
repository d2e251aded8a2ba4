package sqlite

import (
	"context"
	"fmt"
)

// schemaStatements creates every table and index. All statements are idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS entries (
		"key" TEXT PRIMARY KEY NOT NULL,
		data BLOB,
		createdAt INTEGER NOT NULL,
		updatedAt INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tagPrefixes (
		"key" TEXT PRIMARY KEY NOT NULL,
		label TEXT NOT NULL,
		normalizedLabel TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		"key" TEXT PRIMARY KEY NOT NULL,
		tagPrefixKey TEXT NOT NULL REFERENCES tagPrefixes("key"),
		label TEXT NOT NULL,
		normalizedLabel TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS tagEntries (
		tagKey TEXT NOT NULL REFERENCES tags("key"),
		entryKey TEXT NOT NULL REFERENCES entries("key"),
		UNIQUE(tagKey, entryKey)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tagEntries_tagKey ON tagEntries(tagKey)`,
	`CREATE INDEX IF NOT EXISTS idx_tagEntries_entryKey ON tagEntries(entryKey)`,
	`CREATE TABLE IF NOT EXISTS metrics (
		"key" TEXT PRIMARY KEY NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS metricValues (
		metricKey TEXT NOT NULL REFERENCES metrics("key"),
		entryKey TEXT NOT NULL REFERENCES entries("key"),
		metricValue REAL,
		UNIQUE(metricKey, entryKey)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_metricValues_metricKey ON metricValues(metricKey)`,
	`CREATE INDEX IF NOT EXISTS idx_metricValues_entryKey ON metricValues(entryKey)`,
	`CREATE INDEX IF NOT EXISTS idx_metricValues_metricValue ON metricValues(metricValue)`,
}

// Entry statements.
const (
	selectEntrySQL     = `SELECT "key", data, createdAt, updatedAt FROM entries WHERE "key" = ?`
	upsertEntrySQL     = `INSERT INTO entries ("key", data, createdAt, updatedAt) VALUES (?, ?, ?, ?) ON CONFLICT("key") DO UPDATE SET data = excluded.data, updatedAt = excluded.updatedAt`
	deleteEntrySQL     = `DELETE FROM entries WHERE "key" = ?`
	selectEntryKeysSQL = `SELECT "key" FROM entries ORDER BY "key"`
)

// Tag statements.
const (
	insertTagPrefixSQL          = `INSERT OR IGNORE INTO tagPrefixes ("key", label, normalizedLabel) VALUES (?, ?, ?)`
	insertTagSQL                = `INSERT OR IGNORE INTO tags ("key", tagPrefixKey, label, normalizedLabel) VALUES (?, ?, ?, ?)`
	selectTagMembersSQL         = `SELECT entryKey FROM tagEntries WHERE tagKey = ?`
	insertTagEntrySQL           = `INSERT OR IGNORE INTO tagEntries (tagKey, entryKey) VALUES (?, ?)`
	deleteTagEntrySQL           = `DELETE FROM tagEntries WHERE tagKey = ? AND entryKey = ?`
	selectTagPrefixesSQL        = `SELECT "key", label, normalizedLabel FROM tagPrefixes ORDER BY "key"`
	selectTagsSQL               = `SELECT "key", tagPrefixKey, label, normalizedLabel FROM tags ORDER BY "key"`
	selectTagsForEntrySQL       = `SELECT tagKey FROM tagEntries WHERE entryKey = ? ORDER BY tagKey`
	selectUnnormalizedPrefixSQL = `SELECT "key", label FROM tagPrefixes WHERE normalizedLabel IS NULL OR normalizedLabel = ''`
	selectUnnormalizedTagSQL    = `SELECT "key", label FROM tags WHERE normalizedLabel IS NULL OR normalizedLabel = ''`
	updatePrefixNormalizedSQL   = `UPDATE tagPrefixes SET normalizedLabel = ? WHERE "key" = ?`
	updateTagNormalizedSQL      = `UPDATE tags SET normalizedLabel = ? WHERE "key" = ?`
)

// Metric statements.
const (
	insertMetricSQL          = `INSERT OR IGNORE INTO metrics ("key") VALUES (?)`
	selectMetricValuesSQL    = `SELECT entryKey, metricValue FROM metricValues WHERE metricKey = ?`
	upsertMetricValueSQL     = `INSERT INTO metricValues (metricKey, entryKey, metricValue) VALUES (?, ?, ?) ON CONFLICT(metricKey, entryKey) DO UPDATE SET metricValue = excluded.metricValue`
	deleteMetricValueSQL     = `DELETE FROM metricValues WHERE metricKey = ? AND entryKey = ?`
	selectMetricsSQL         = `SELECT "key" FROM metrics ORDER BY "key"`
	selectMetricsForEntrySQL = `SELECT metricKey FROM metricValues WHERE entryKey = ? ORDER BY metricKey`
)

// hotStatements are prepared right after the schema exists so that the first
// write inside a transaction already finds them in the cache.
var hotStatements = []string{
	selectEntrySQL, upsertEntrySQL, deleteEntrySQL,
	insertTagPrefixSQL, insertTagSQL, selectTagMembersSQL, insertTagEntrySQL, deleteTagEntrySQL,
	selectTagsForEntrySQL,
	insertMetricSQL, selectMetricValuesSQL, upsertMetricValueSQL, deleteMetricValueSQL,
	selectMetricsForEntrySQL,
}

func ensureSchema(ctx context.Context, e *Engine) error {
	err := e.RunTransaction(ctx, func(ctx context.Context) error {
		tx := txFromContext(ctx)
		for _, stmt := range schemaStatements {
			// DDL runs once; no point caching it
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, query := range hotStatements {
		if _, err := e.PrepareCached(ctx, query); err != nil {
			return err
		}
	}
	return nil
}
