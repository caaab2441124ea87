package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/wikitab/wikitab/internal/session"
)

// Config carries the engine-level settings. Zero values are replaced by the
// legacy defaults in New.
type Config struct {
	// LockStaleness is the window after which an unreleased lock becomes
	// reassignable to another requester.
	LockStaleness time.Duration

	// LogRetention bounds the age of change log entries. Pruning runs
	// opportunistically on log writes against embedded backends only.
	LogRetention time.Duration

	// YearPivot resolves two-digit years: values at or below the pivot
	// belong to the 2000s.
	YearPivot int

	// PagerRadius is the number of page buttons shown on each side of
	// the current page.
	PagerRadius int

	// PageSizes are the offered page size options, ascending.
	PageSizes []int

	// MaxUploadSize bounds attached files, in bytes.
	MaxUploadSize int64

	// CustomViews enables free-text SELECT passthrough: the view table
	// option and related column types. Off by default since the SQL
	// comes from page content.
	CustomViews bool

	// Aliasing enables columns backed by SQL expressions.
	Aliasing bool

	// CheckMailDomains enables DNS validation of email column input.
	CheckMailDomains bool
}

func (c Config) withDefaults() Config {
	if c.LockStaleness <= 0 {
		c.LockStaleness = time.Hour
	}
	if c.LogRetention <= 0 {
		c.LogRetention = 30 * 24 * time.Hour
	}
	if c.YearPivot == 0 {
		c.YearPivot = DefaultYearPivot
	}
	if c.PagerRadius <= 0 {
		c.PagerRadius = 3
	}
	if len(c.PageSizes) == 0 {
		c.PageSizes = []int{10, 20, 50, 100, 200}
	}
	if c.MaxUploadSize <= 0 {
		c.MaxUploadSize = 2 << 20
	}
	return c
}

// Engine drives all table blocks against one backing store.
type Engine struct {
	db       *sql.DB
	dialect  Dialect
	cfg      Config
	codec    *codec
	sessions session.Store
	now      func() time.Time
}

// New creates an engine on an opened database. Migrate must be called once
// before processing requests.
func New(db *sql.DB, dialect Dialect, sessions session.Store, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		db:       db,
		dialect:  dialect,
		cfg:      cfg,
		codec:    newCodec(cfg),
		sessions: sessions,
		now:      time.Now,
	}
}

// Config returns the effective engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Dialect returns the backend dialect in use.
func (e *Engine) Dialect() Dialect { return e.dialect }

// DB exposes the backing store for read-only host surfaces (exports,
// admin console).
func (e *Engine) DB() *sql.DB { return e.db }

// Sessions returns the session store.
func (e *Engine) Sessions() session.Store { return e.sessions }

// exec runs a statement after rebinding placeholders for the dialect.
func (e *Engine) exec(ctx context.Context, tx DBTX, query string, args ...any) (sql.Result, error) {
	return tx.ExecContext(ctx, e.dialect.Rebind(query), args...)
}

// query runs a query after rebinding placeholders for the dialect.
func (e *Engine) query(ctx context.Context, tx DBTX, query string, args ...any) (*sql.Rows, error) {
	return tx.QueryContext(ctx, e.dialect.Rebind(query), args...)
}

// queryRow runs a single-row query after rebinding placeholders.
func (e *Engine) queryRow(ctx context.Context, tx DBTX, query string, args ...any) *sql.Row {
	return tx.QueryRowContext(ctx, e.dialect.Rebind(query), args...)
}

// withTx runs fn inside a transaction, rolling back on error.
func (e *Engine) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return storagef("begin", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return storagef("commit", err)
	}
	return nil
}
