// Package record is a small write-through record layer over resolved tables.
//
// A Store may be bound to a target schema. Bare table names then go to that
// schema; without a target they are resolved with the usual first-match
// precedence, so a name present in both temp and a later attachment lands in
// temp. Qualified names are always used as given.
package record

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/FocuswithJustin/attachdb/core/catalog"
	"github.com/FocuswithJustin/attachdb/core/errors"
	"github.com/FocuswithJustin/attachdb/core/ident"
	"github.com/FocuswithJustin/attachdb/core/resolver"
)

// Engine runs record statements. *sqlite.Engine satisfies it.
type Engine interface {
	catalog.Querier
	Exec(ctx context.Context, stmt string, args ...any) (sql.Result, error)
	WriteLock()
	WriteUnlock()
	ReadLock()
	ReadUnlock()
}

// Row is one record keyed by column name.
type Row map[string]any

// Store reads and writes rows of resolved tables.
type Store struct {
	eng    Engine
	res    *resolver.Resolver
	schema string
}

// New creates a store. schema is the target for bare table names; empty
// means bare names are resolved.
func New(eng Engine, res *resolver.Resolver, schema string) *Store {
	return &Store{eng: eng, res: res, schema: schema}
}

// Schema returns the configured target schema, empty if none.
func (s *Store) Schema() string {
	return s.schema
}

// Table resolves name the way every Store operation does and requires the
// table to exist.
func (s *Store) Table(ctx context.Context, name string) (resolver.Object, error) {
	q, err := ident.Parse(name)
	if err != nil {
		return resolver.Object{}, err
	}
	if !q.HasSchema() && s.schema != "" {
		q.Schema = s.schema
	}
	obj, err := s.res.Resolve(ctx, q, resolver.KindTable)
	if err != nil {
		return resolver.Object{}, err
	}
	found, err := s.res.Exists(ctx, obj)
	if err != nil {
		return resolver.Object{}, err
	}
	if !found {
		return resolver.Object{}, errors.NewNotFound(string(resolver.KindTable), obj.Schema, obj.Name)
	}
	return obj, nil
}

// Insert writes row into table and returns the new rowid.
func (s *Store) Insert(ctx context.Context, table string, row Row) (int64, error) {
	s.eng.WriteLock()
	defer s.eng.WriteUnlock()

	obj, err := s.Table(ctx, table)
	if err != nil {
		return 0, err
	}

	if len(row) == 0 {
		res, err := s.eng.Exec(ctx, "INSERT INTO "+obj.String()+" DEFAULT VALUES")
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}

	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	vals := make([]any, len(cols))
	for i, col := range cols {
		vals[i] = row[col]
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		obj,
		ident.QuoteList(cols),
		strings.TrimRight(strings.Repeat("?,", len(cols)), ","),
	)
	res, err := s.eng.Exec(ctx, stmt, vals...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Count returns the number of rows in table.
func (s *Store) Count(ctx context.Context, table string) (int64, error) {
	s.eng.ReadLock()
	defer s.eng.ReadUnlock()

	obj, err := s.Table(ctx, table)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.eng.ScanRow(ctx, "SELECT count(*) FROM "+obj.String(), nil, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// All returns every row of table in storage order. Text comes back as
// string, never []byte.
func (s *Store) All(ctx context.Context, table string) ([]Row, error) {
	s.eng.ReadLock()
	defer s.eng.ReadUnlock()

	obj, err := s.Table(ctx, table)
	if err != nil {
		return nil, err
	}
	stmt := "SELECT * FROM " + obj.String()
	rows, err := s.eng.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.NewSQL(stmt, err)
	}

	out := []Row{}
	for rows.Next() {
		vals := make([]any, len(columns))
		valPtrs := make([]any, len(columns))
		for i := range columns {
			valPtrs[i] = &vals[i]
		}
		if err := rows.Scan(valPtrs...); err != nil {
			return nil, errors.NewSQL(stmt, err)
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			if b, ok := vals[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewSQL(stmt, err)
	}
	return out, nil
}
