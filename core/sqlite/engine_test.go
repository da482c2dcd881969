package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	dberrors "github.com/FocuswithJustin/attachdb/core/errors"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := Open(MemoryPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	t.Cleanup(func() { db.Close() })
	return NewEngine(db)
}

func TestEngineExecAndQuery(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	if _, err := e.Exec(ctx, `CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)`); err != nil {
		t.Fatalf("Exec(create) error = %v", err)
	}
	res, err := e.Exec(ctx, `INSERT INTO t (v) VALUES (?), (?)`, "a", "b")
	if err != nil {
		t.Fatalf("Exec(insert) error = %v", err)
	}
	if n, _ := res.RowsAffected(); n != 2 {
		t.Errorf("RowsAffected = %d, want 2", n)
	}

	rows, err := e.Query(ctx, `SELECT v FROM t ORDER BY id`)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	var got []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
		got = append(got, v)
	}
	rows.Close()
	if strings.Join(got, ",") != "a,b" {
		t.Errorf("rows = %v", got)
	}

	var count int
	if err := e.ScanRow(ctx, `SELECT count(*) FROM t`, nil, &count); err != nil || count != 2 {
		t.Errorf("ScanRow() = %d, %v", count, err)
	}
}

func TestEngineErrorsAreSQLErrors(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	_, err := e.Exec(ctx, `DROP TABLE missing`)
	var sqlErr *dberrors.SQLError
	if !errors.As(err, &sqlErr) {
		t.Fatalf("Exec() error = %v, want SQLError", err)
	}
	if sqlErr.Statement != `DROP TABLE missing` {
		t.Errorf("statement = %q", sqlErr.Statement)
	}
	if !strings.Contains(err.Error(), "missing") {
		t.Errorf("engine message lost: %v", err)
	}

	if _, err := e.Query(ctx, `SELECT * FROM nowhere`); !errors.Is(err, dberrors.ErrSQL) {
		t.Errorf("Query() error = %v, want ErrSQL", err)
	}
}

func TestEngineScanRowNoRows(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	var name string
	err := e.ScanRow(ctx, `SELECT name FROM sqlite_master WHERE name = ?`, []any{"none"}, &name)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("ScanRow() error = %v, want sql.ErrNoRows", err)
	}
	if errors.Is(err, dberrors.ErrSQL) {
		t.Error("ErrNoRows should not be reported as an engine error")
	}
}

func TestEngineAttachSharesConnection(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "aux.db")

	if _, err := e.Exec(ctx, `ATTACH DATABASE ? AS aux`, path); err != nil {
		t.Fatalf("attach error = %v", err)
	}
	if _, err := e.Exec(ctx, `CREATE TABLE aux.t (x)`); err != nil {
		t.Fatalf("create in aux error = %v", err)
	}
	var n int
	if err := e.ScanRow(ctx, `SELECT count(*) FROM aux.sqlite_master WHERE name = 't'`, nil, &n); err != nil || n != 1 {
		t.Errorf("aux catalog count = %d, %v", n, err)
	}
}

func TestEngineLocks(t *testing.T) {
	e := newTestEngine(t)

	e.ReadLock()
	e.ReadLock()
	e.ReadUnlock()
	e.ReadUnlock()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.WriteLock()
			counter++
			e.WriteUnlock()
		}()
	}
	wg.Wait()
	if counter != 8 {
		t.Errorf("counter = %d, want 8", counter)
	}
}
