package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	dberrors "github.com/FocuswithJustin/attachdb/core/errors"
	"github.com/FocuswithJustin/attachdb/internal/logging"
)

// Engine adapts a *sql.DB into the statement and catalog services the
// resolver layers consume. Every engine failure is returned as a
// *errors.SQLError carrying the statement and the driver message.
//
// Engine also owns the connection's serialized write section: mutating
// operations hold the write lock, introspection holds the read lock.
type Engine struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewEngine wraps db. The caller keeps ownership of db.
func NewEngine(db *sql.DB) *Engine {
	return &Engine{db: db}
}

// DB returns the underlying database handle.
func (e *Engine) DB() *sql.DB {
	return e.db
}

// WriteLock enters the serialized write section.
func (e *Engine) WriteLock() { e.mu.Lock() }

// WriteUnlock leaves the serialized write section.
func (e *Engine) WriteUnlock() { e.mu.Unlock() }

// ReadLock enters a shared read section.
func (e *Engine) ReadLock() { e.mu.RLock() }

// ReadUnlock leaves a shared read section.
func (e *Engine) ReadUnlock() { e.mu.RUnlock() }

// Exec runs a statement that returns no rows.
func (e *Engine) Exec(ctx context.Context, stmt string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := e.db.ExecContext(ctx, stmt, args...)
	logging.Statement(ctx, stmt, time.Since(start), err)
	if err != nil {
		return nil, dberrors.NewSQL(stmt, err)
	}
	return res, nil
}

// Query runs a statement that returns rows. The caller must close the rows
// before issuing another statement: the connection is pinned to a single
// physical SQLite handle.
func (e *Engine) Query(ctx context.Context, stmt string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := e.db.QueryContext(ctx, stmt, args...)
	logging.Statement(ctx, stmt, time.Since(start), err)
	if err != nil {
		return nil, dberrors.NewSQL(stmt, err)
	}
	return rows, nil
}

// ScanRow runs a single-row query and scans it into dest. sql.ErrNoRows is
// returned unwrapped so callers can test for it directly.
func (e *Engine) ScanRow(ctx context.Context, stmt string, args []any, dest ...any) error {
	start := time.Now()
	err := e.db.QueryRowContext(ctx, stmt, args...).Scan(dest...)
	logging.Statement(ctx, stmt, time.Since(start), err)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return dberrors.NewSQL(stmt, err)
	}
	return nil
}
