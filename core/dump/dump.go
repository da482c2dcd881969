// Package dump writes the schema of one attached database as an
// xz-compressed SQL script and verifies it on the way back in.
package dump

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/attachdb/core/conn"
	dberrors "github.com/FocuswithJustin/attachdb/core/errors"
	"github.com/FocuswithJustin/attachdb/core/ident"
	"github.com/FocuswithJustin/attachdb/internal/logging"
)

// Injectable functions for testing.
var (
	xzNewWriter = xz.NewWriter
	xzNewReader = xz.NewReader
	ioReadAll   = io.ReadAll
)

// ErrDigestMismatch is returned by Read when the script does not hash to the
// expected digest.
var ErrDigestMismatch = errors.New("dump digest mismatch")

// Manifest describes a written dump.
type Manifest struct {
	Schema  string   `json:"schema"`
	Tables  []string `json:"tables"`
	Indexes []string `json:"indexes"`
	BLAKE3  string   `json:"blake3"` // Hex digest of the uncompressed script
	Bytes   int      `json:"bytes"`  // Length of the uncompressed script
}

// Write dumps the CREATE statements of the tables and then the indexes of
// schema to w. SQLite's internal objects and the automatic indexes behind
// UNIQUE and PRIMARY KEY constraints are skipped.
func Write(ctx context.Context, c *conn.Conn, schema string, w io.Writer) (*Manifest, error) {
	ctx = c.Context(ctx)

	canonical, err := c.Resolver().Schema(schema)
	if err != nil {
		return nil, err
	}

	m := &Manifest{Schema: canonical}
	stmts, err := collect(ctx, c, m)
	if err != nil {
		return nil, err
	}
	return write(ctx, w, m, stmts)
}

func collect(ctx context.Context, c *conn.Conn, m *Manifest) ([]string, error) {
	c.Engine().ReadLock()
	defer c.Engine().ReadUnlock()

	tables, tableSQL, err := objects(ctx, c, m.Schema, "table")
	if err != nil {
		return nil, err
	}
	indexes, indexSQL, err := objects(ctx, c, m.Schema, "index")
	if err != nil {
		return nil, err
	}
	m.Tables = tables
	m.Indexes = indexes
	return append(tableSQL, indexSQL...), nil
}

func objects(ctx context.Context, c *conn.Conn, schema, kind string) ([]string, []string, error) {
	stmt := "SELECT name, sql FROM " + ident.Quote(schema) + ".sqlite_master WHERE type = ? AND sql IS NOT NULL AND name NOT LIKE 'sqlite\\_%' ESCAPE '\\' ORDER BY name"
	rows, err := c.Engine().Query(ctx, stmt, kind)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	names := []string{}
	var stmts []string
	for rows.Next() {
		var name, sql string
		if err := rows.Scan(&name, &sql); err != nil {
			return nil, nil, dberrors.NewSQL(stmt, err)
		}
		names = append(names, name)
		stmts = append(stmts, sql)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, dberrors.NewSQL(stmt, err)
	}
	return names, stmts, nil
}

func write(ctx context.Context, w io.Writer, m *Manifest, stmts []string) (*Manifest, error) {
	var script bytes.Buffer
	for _, s := range stmts {
		script.WriteString(s)
		script.WriteString(";\n")
	}
	sum := blake3.Sum256(script.Bytes())
	m.BLAKE3 = hex.EncodeToString(sum[:])
	m.Bytes = script.Len()

	xw, err := xzNewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("failed to create xz writer: %w", err)
	}
	if _, err := xw.Write(script.Bytes()); err != nil {
		xw.Close()
		return nil, fmt.Errorf("failed to write dump: %w", err)
	}
	if err := xw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish dump: %w", err)
	}

	logging.InfoContext(ctx, "schema_dumped",
		"schema", m.Schema,
		"tables", len(m.Tables),
		"indexes", len(m.Indexes),
		"blake3", m.BLAKE3,
	)
	return m, nil
}

// Read decompresses a dump and returns its script. A non-empty wantDigest
// must match the BLAKE3 digest of the script.
func Read(r io.Reader, wantDigest string) (string, error) {
	xr, err := xzNewReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to create xz reader: %w", err)
	}
	data, err := ioReadAll(xr)
	if err != nil {
		return "", fmt.Errorf("failed to read dump: %w", err)
	}
	if wantDigest != "" {
		sum := blake3.Sum256(data)
		if got := hex.EncodeToString(sum[:]); got != wantDigest {
			return "", fmt.Errorf("%w: got %s, want %s", ErrDigestMismatch, got, wantDigest)
		}
	}
	return string(data), nil
}
