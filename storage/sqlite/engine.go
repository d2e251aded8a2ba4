package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/poiesic/tagstore/storage"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Journal modes accepted by Config.JournalMode.
const (
	JournalModeWAL    = "WAL"
	JournalModeDELETE = "DELETE"
)

// Config holds connection settings for the SQLite engine.
type Config struct {
	// JournalMode is WAL or DELETE. Ignored for in-memory databases.
	// Default: WAL
	JournalMode string

	// BusyTimeout is how long a statement waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration

	// Synchronous is the PRAGMA synchronous level (OFF, NORMAL, FULL).
	// Default: NORMAL
	Synchronous string
}

// DefaultConfig returns the settings used when Open is given a nil config.
func DefaultConfig() *Config {
	return &Config{
		JournalMode: JournalModeWAL,
		BusyTimeout: 5 * time.Second,
		Synchronous: "NORMAL",
	}
}

// Validate checks that the configuration names supported modes.
func (c *Config) Validate() error {
	switch c.JournalMode {
	case JournalModeWAL, JournalModeDELETE:
	default:
		return fmt.Errorf("sqlite config: unsupported journal mode %q", c.JournalMode)
	}
	switch c.Synchronous {
	case "OFF", "NORMAL", "FULL":
	default:
		return fmt.Errorf("sqlite config: unsupported synchronous level %q", c.Synchronous)
	}
	if c.BusyTimeout < 0 {
		return errors.New("sqlite config: BusyTimeout cannot be negative")
	}
	return nil
}

type txKey struct{}

// Engine is the SQL execution substrate: parameterized statements, a cache of
// prepared statements keyed by SQL text, and a transaction wrapper.
//
// The engine pins a single connection. In-memory databases live and die with
// that connection, and SQLite serializes writers anyway.
type Engine struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	stmts  map[string]*sql.Stmt
	closed bool
}

// OpenEngine opens (creating if needed) the database at path.
// Use MemoryPath for a throwaway in-memory database.
func OpenEngine(path string, cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	inMemory := path == MemoryPath
	if !inMemory {
		// Ensure parent directory exists
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := enablePragmas(db, cfg, inMemory); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	return &Engine{
		db:     db,
		path:   path,
		logger: slog.Default(),
		stmts:  make(map[string]*sql.Stmt),
	}, nil
}

// enablePragmas sets SQLite pragmas for performance and safety.
func enablePragmas(db *sql.DB, cfg *Config, inMemory bool) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout.Milliseconds()),
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=" + cfg.Synchronous,
	}
	if !inMemory {
		pragmas = append(pragmas, "PRAGMA journal_mode="+cfg.JournalMode)
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

// Path returns the database path the engine was opened with.
func (e *Engine) Path() string {
	return e.path
}

// Close releases cached statements and closes the database.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	for query, stmt := range e.stmts {
		if err := stmt.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(e.stmts, query)
	}
	if err := e.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// PrepareCached returns the prepared statement for query, preparing it on first use.
//
// Inside a transaction an uncached statement is prepared on the transaction
// itself: the pinned connection is busy, so preparing on the pool would block.
func (e *Engine) PrepareCached(ctx context.Context, query string) (*sql.Stmt, error) {
	stmt, _, err := e.prepare(ctx, query)
	return stmt, err
}

// prepare is PrepareCached that also reports whether the statement already
// belongs to the context's transaction.
func (e *Engine) prepare(ctx context.Context, query string) (stmt *sql.Stmt, txBound bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, false, storage.ErrStorageClosed
	}

	if stmt, ok := e.stmts[query]; ok {
		return stmt, false, nil
	}
	if tx := txFromContext(ctx); tx != nil {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return nil, false, fmt.Errorf("prepare %q: %w", query, err)
		}
		return stmt, true, nil
	}

	stmt, err = e.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, false, fmt.Errorf("prepare %q: %w", query, err)
	}
	e.stmts[query] = stmt
	return stmt, false, nil
}

// stmtFor resolves the statement to run for query, bound to the context's transaction if any.
func (e *Engine) stmtFor(ctx context.Context, query string) (*sql.Stmt, error) {
	stmt, txBound, err := e.prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	if tx := txFromContext(ctx); tx != nil && !txBound {
		return tx.StmtContext(ctx, stmt), nil
	}
	return stmt, nil
}

// Exec runs a statement that returns no rows.
func (e *Engine) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	stmt, err := e.stmtFor(ctx, query)
	if err != nil {
		return nil, err
	}
	return stmt.ExecContext(ctx, args...)
}

// QueryAll runs a query and returns every row.
func (e *Engine) QueryAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	stmt, err := e.stmtFor(ctx, query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result []Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		result = append(result, Row{columns: columns, values: values})
	}
	return result, rows.Err()
}

// QueryFirst runs a query and returns its first row, or nil when there is none.
func (e *Engine) QueryFirst(ctx context.Context, query string, args ...any) (*Row, error) {
	rows, err := e.QueryAll(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// RunTransaction executes fn atomically.
// The context passed to fn carries the transaction; Exec and the Query methods
// called with it run inside the transaction. A context that already carries a
// transaction joins it instead of starting a new one.
func (e *Engine) RunTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", storage.ErrTransactionFailed, err)
	}

	finished := false
	defer func() {
		if !finished {
			// fn panicked
			_ = tx.Rollback()
		}
	}()

	if fnErr := fn(context.WithValue(ctx, txKey{}, tx)); fnErr != nil {
		finished = true
		if rbErr := tx.Rollback(); rbErr != nil {
			e.logger.Error("rollback failed", "err", rbErr)
			return errors.Join(fnErr, fmt.Errorf("%w: rollback: %w", storage.ErrTransactionFailed, rbErr))
		}
		return fnErr
	}

	finished = true
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %w", storage.ErrTransactionFailed, err)
	}
	return nil
}

func txFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}
