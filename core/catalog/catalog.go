// Package catalog answers per-schema questions about tables and indexes:
// existence, primary keys, unique keys, indexes and foreign keys.
//
// Each Introspector call resolves the table name first and then queries
// exactly one schema through sqlite_master and the pragma table-valued
// functions, so objects of a same-named table in another schema never leak
// into a result.
package catalog

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/FocuswithJustin/attachdb/core/errors"
	"github.com/FocuswithJustin/attachdb/core/ident"
	"github.com/FocuswithJustin/attachdb/core/resolver"
)

// Querier runs catalog queries. *sqlite.Engine satisfies it.
type Querier interface {
	Query(ctx context.Context, stmt string, args ...any) (*sql.Rows, error)
	ScanRow(ctx context.Context, stmt string, args []any, dest ...any) error
}

// Engine is a Querier that also guards reads against concurrent writers.
type Engine interface {
	Querier
	ReadLock()
	ReadUnlock()
}

// Column describes one table column.
type Column struct {
	Name      string
	Type      string // Declared type, may be empty
	NotNull   bool
	Default   string // Default expression as written, empty if none
	PKOrdinal int    // 1-based position in the primary key, 0 if not a key column
}

// TableInfo describes a table in one schema.
type TableInfo struct {
	Schema     string
	Name       string
	PrimaryKey []string // Declared key columns in key order
	Columns    []Column
}

// Index origins as reported by SQLite.
const (
	OriginCreate     = "c"  // CREATE INDEX
	OriginUnique     = "u"  // UNIQUE constraint
	OriginPrimaryKey = "pk" // PRIMARY KEY constraint
)

// IndexInfo describes one index, explicit or implicit.
type IndexInfo struct {
	Schema  string
	Name    string
	Table   string
	Columns []string // Indexed columns in index order; empty entries are expressions
	Unique  bool
	Origin  string
	Partial bool
}

// Implicit reports whether SQLite created the index to back a constraint.
func (i IndexInfo) Implicit() bool {
	return i.Origin != OriginCreate
}

// ForeignKeyInfo describes one column mapping of a foreign key.
type ForeignKeyInfo struct {
	ID        int // Constraint id; multi-column keys share it
	Seq       int // Column position within the constraint
	Column    string
	RefTable  string
	RefColumn string // Empty when the parent's primary key is implied
	OnUpdate  string
	OnDelete  string
	Match     string
}

// ObjectExists reports whether schema holds an object of the given kind
// and name. It takes no locks.
func ObjectExists(ctx context.Context, q Querier, schema, name string, kind resolver.Kind) (bool, error) {
	stmt := "SELECT count(*) FROM " + ident.Quote(schema) + ".sqlite_master WHERE type = ? AND name = ? COLLATE NOCASE"
	var n int
	if err := q.ScanRow(ctx, stmt, []any{string(kind), name}, &n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// NameTaken reports whether schema holds a table or view called name.
func NameTaken(ctx context.Context, q Querier, schema, name string) (bool, error) {
	stmt := "SELECT count(*) FROM " + ident.Quote(schema) + ".sqlite_master WHERE type IN ('table', 'view') AND name = ? COLLATE NOCASE"
	var n int
	if err := q.ScanRow(ctx, stmt, []any{name}, &n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Lookup adapts q into the resolver's per-schema probe.
func Lookup(q Querier) resolver.Lookup {
	return func(ctx context.Context, schema, name string, kind resolver.Kind) (bool, error) {
		return ObjectExists(ctx, q, schema, name, kind)
	}
}

// Introspector answers catalog questions for possibly-qualified names.
type Introspector struct {
	eng Engine
	res *resolver.Resolver
}

// New creates an introspector reading through eng and resolving with res.
func New(eng Engine, res *resolver.Resolver) *Introspector {
	return &Introspector{eng: eng, res: res}
}

// TableExists reports whether the resolved table exists. An absent table is
// not an error.
func (c *Introspector) TableExists(ctx context.Context, name string) (bool, error) {
	c.eng.ReadLock()
	defer c.eng.ReadUnlock()

	obj, err := c.res.ResolveRaw(ctx, name, resolver.KindTable)
	if err != nil {
		return false, err
	}
	return ObjectExists(ctx, c.eng, obj.Schema, obj.Name, resolver.KindTable)
}

// IndexExists reports whether the resolved index exists.
func (c *Introspector) IndexExists(ctx context.Context, name string) (bool, error) {
	c.eng.ReadLock()
	defer c.eng.ReadUnlock()

	obj, err := c.res.ResolveRaw(ctx, name, resolver.KindIndex)
	if err != nil {
		return false, err
	}
	return ObjectExists(ctx, c.eng, obj.Schema, obj.Name, resolver.KindIndex)
}

// PrimaryKey returns the table with its declared primary key, or nil when
// the table declares none. The implicit rowid does not count as a key.
func (c *Introspector) PrimaryKey(ctx context.Context, name string) (*TableInfo, error) {
	info, err := c.Columns(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(info.PrimaryKey) == 0 {
		return nil, nil
	}
	return info, nil
}

// Columns returns the full column list of the resolved table.
func (c *Introspector) Columns(ctx context.Context, name string) (*TableInfo, error) {
	c.eng.ReadLock()
	defer c.eng.ReadUnlock()

	obj, err := c.res.ResolveExisting(ctx, name, resolver.KindTable)
	if err != nil {
		return nil, err
	}
	return TableColumns(ctx, c.eng, obj.Schema, obj.Name)
}

// HasUniqueKey reports whether some index or the declared primary key of
// the resolved table enforces uniqueness over exactly columns. Column order
// and case are ignored.
func (c *Introspector) HasUniqueKey(ctx context.Context, name string, columns []string) (bool, error) {
	c.eng.ReadLock()
	defer c.eng.ReadUnlock()

	obj, err := c.res.ResolveExisting(ctx, name, resolver.KindTable)
	if err != nil {
		return false, err
	}
	want := columnSet(columns)
	if len(want) == 0 {
		return false, nil
	}

	info, err := TableColumns(ctx, c.eng, obj.Schema, obj.Name)
	if err != nil {
		return false, err
	}
	if sameSet(want, columnSet(info.PrimaryKey)) {
		return true, nil
	}

	indexes, err := TableIndexes(ctx, c.eng, obj.Schema, obj.Name)
	if err != nil {
		return false, err
	}
	for _, idx := range indexes {
		if idx.Unique && !idx.Partial && sameSet(want, columnSet(idx.Columns)) {
			return true, nil
		}
	}
	return false, nil
}

// Indexes returns every index on the resolved table, sorted by name.
func (c *Introspector) Indexes(ctx context.Context, name string) ([]IndexInfo, error) {
	c.eng.ReadLock()
	defer c.eng.ReadUnlock()

	obj, err := c.res.ResolveExisting(ctx, name, resolver.KindTable)
	if err != nil {
		return nil, err
	}
	return TableIndexes(ctx, c.eng, obj.Schema, obj.Name)
}

// ForeignKeys returns the foreign keys declared on the resolved table. The
// result is empty, not nil, when there are none.
func (c *Introspector) ForeignKeys(ctx context.Context, name string) ([]ForeignKeyInfo, error) {
	c.eng.ReadLock()
	defer c.eng.ReadUnlock()

	obj, err := c.res.ResolveExisting(ctx, name, resolver.KindTable)
	if err != nil {
		return nil, err
	}
	return TableForeignKeys(ctx, c.eng, obj.Schema, obj.Name)
}

// Tables lists the user tables of a registered schema, sorted by name.
func (c *Introspector) Tables(ctx context.Context, schema string) ([]string, error) {
	c.eng.ReadLock()
	defer c.eng.ReadUnlock()

	canonical, err := c.res.Schema(schema)
	if err != nil {
		return nil, err
	}
	return ListObjects(ctx, c.eng, canonical, resolver.KindTable)
}

// ListObjects returns the names of all user objects of kind in schema,
// skipping SQLite's internal objects. It takes no locks.
func ListObjects(ctx context.Context, q Querier, schema string, kind resolver.Kind) ([]string, error) {
	stmt := "SELECT name FROM " + ident.Quote(schema) + ".sqlite_master WHERE type = ? AND name NOT LIKE 'sqlite\\_%' ESCAPE '\\' ORDER BY name"
	rows, err := q.Query(ctx, stmt, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.NewSQL(stmt, err)
		}
		names = append(names, name)
	}
	return names, errors.NewSQL(stmt, rows.Err())
}

// TableColumns reads the columns of schema.table. It takes no locks.
func TableColumns(ctx context.Context, q Querier, schema, table string) (*TableInfo, error) {
	const stmt = `SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?, ?) ORDER BY cid`
	rows, err := q.Query(ctx, stmt, table, schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	info := &TableInfo{Schema: schema, Name: table}
	for rows.Next() {
		var (
			col     Column
			notNull int
			dflt    sql.NullString
		)
		if err := rows.Scan(&col.Name, &col.Type, &notNull, &dflt, &col.PKOrdinal); err != nil {
			return nil, errors.NewSQL(stmt, err)
		}
		col.NotNull = notNull != 0
		col.Default = dflt.String
		info.Columns = append(info.Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewSQL(stmt, err)
	}

	var keyCols []Column
	for _, col := range info.Columns {
		if col.PKOrdinal > 0 {
			keyCols = append(keyCols, col)
		}
	}
	sort.Slice(keyCols, func(i, j int) bool {
		return keyCols[i].PKOrdinal < keyCols[j].PKOrdinal
	})
	for _, col := range keyCols {
		info.PrimaryKey = append(info.PrimaryKey, col.Name)
	}
	return info, nil
}

// TableIndexes reads every index of schema.table. It takes no locks.
func TableIndexes(ctx context.Context, q Querier, schema, table string) ([]IndexInfo, error) {
	const stmt = `SELECT name, "unique", origin, partial FROM pragma_index_list(?, ?)`
	rows, err := q.Query(ctx, stmt, table, schema)
	if err != nil {
		return nil, err
	}

	indexes := []IndexInfo{}
	for rows.Next() {
		var (
			idx             IndexInfo
			unique, partial int
		)
		if err := rows.Scan(&idx.Name, &unique, &idx.Origin, &partial); err != nil {
			rows.Close()
			return nil, errors.NewSQL(stmt, err)
		}
		idx.Schema = schema
		idx.Table = table
		idx.Unique = unique != 0
		idx.Partial = partial != 0
		indexes = append(indexes, idx)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, errors.NewSQL(stmt, err)
	}

	// Column lookups run after the index list is closed; the connection
	// serves one statement at a time.
	for i := range indexes {
		cols, err := indexColumns(ctx, q, schema, indexes[i].Name)
		if err != nil {
			return nil, err
		}
		indexes[i].Columns = cols
	}

	sort.Slice(indexes, func(i, j int) bool {
		return indexes[i].Name < indexes[j].Name
	})
	return indexes, nil
}

func indexColumns(ctx context.Context, q Querier, schema, index string) ([]string, error) {
	const stmt = `SELECT coalesce(name, '') FROM pragma_index_info(?, ?) ORDER BY seqno`
	rows, err := q.Query(ctx, stmt, index, schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.NewSQL(stmt, err)
		}
		cols = append(cols, name)
	}
	return cols, errors.NewSQL(stmt, rows.Err())
}

// TableForeignKeys reads the foreign keys of schema.table. It takes no locks.
func TableForeignKeys(ctx context.Context, q Querier, schema, table string) ([]ForeignKeyInfo, error) {
	const stmt = `SELECT id, seq, "table", "from", coalesce("to", ''), on_update, on_delete, "match" FROM pragma_foreign_key_list(?, ?) ORDER BY id, seq`
	rows, err := q.Query(ctx, stmt, table, schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fks := []ForeignKeyInfo{}
	for rows.Next() {
		var fk ForeignKeyInfo
		if err := rows.Scan(&fk.ID, &fk.Seq, &fk.RefTable, &fk.Column, &fk.RefColumn, &fk.OnUpdate, &fk.OnDelete, &fk.Match); err != nil {
			return nil, errors.NewSQL(stmt, err)
		}
		fks = append(fks, fk)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewSQL(stmt, err)
	}
	return fks, nil
}

func columnSet(columns []string) map[string]struct{} {
	set := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		set[strings.ToLower(c)] = struct{}{}
	}
	return set
}

func sameSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
