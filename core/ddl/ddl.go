// Package ddl builds and executes schema-qualified DDL for tables and
// indexes. Every statement names its schema explicitly, so the engine's own
// search order never decides where an object lands.
package ddl

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/FocuswithJustin/attachdb/core/catalog"
	"github.com/FocuswithJustin/attachdb/core/errors"
	"github.com/FocuswithJustin/attachdb/core/ident"
	"github.com/FocuswithJustin/attachdb/core/registry"
	"github.com/FocuswithJustin/attachdb/core/resolver"
)

// Engine executes statements inside the connection's write section.
// *sqlite.Engine satisfies it.
type Engine interface {
	catalog.Querier
	Exec(ctx context.Context, stmt string, args ...any) (sql.Result, error)
	WriteLock()
	WriteUnlock()
}

// Reference is the target of a column-level foreign key.
type Reference struct {
	Table  string
	Column string // Empty to reference the parent's primary key
}

// ColumnSpec declares one column of a new table.
type ColumnSpec struct {
	Name       string
	Type       string
	PrimaryKey bool
	NotNull    bool
	Unique     bool
	Default    string // SQL expression, used verbatim
	References *Reference
}

// SQL renders the column definition.
func (c ColumnSpec) SQL() string {
	var b strings.Builder
	b.WriteString(ident.Quote(c.Name))
	if c.Type != "" {
		b.WriteString(" " + c.Type)
	}
	if c.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
	}
	if c.NotNull {
		b.WriteString(" NOT NULL")
	}
	if c.Unique {
		b.WriteString(" UNIQUE")
	}
	if c.Default != "" {
		b.WriteString(" DEFAULT " + c.Default)
	}
	if c.References != nil {
		b.WriteString(" REFERENCES " + ident.Quote(c.References.Table))
		if c.References.Column != "" {
			b.WriteString("(" + ident.Quote(c.References.Column) + ")")
		}
	}
	return b.String()
}

// Alteration is one ALTER TABLE action.
type Alteration interface {
	clause() string
}

// AddColumn appends a column.
type AddColumn struct {
	Column ColumnSpec
}

func (a AddColumn) clause() string {
	return "ADD COLUMN " + a.Column.SQL()
}

// RenameColumn renames an existing column.
type RenameColumn struct {
	From string
	To   string
}

func (a RenameColumn) clause() string {
	return "RENAME COLUMN " + ident.Quote(a.From) + " TO " + ident.Quote(a.To)
}

// DropColumn removes a column.
type DropColumn struct {
	Name string
}

func (a DropColumn) clause() string {
	return "DROP COLUMN " + ident.Quote(a.Name)
}

// IndexOptions tunes CreateIndex.
type IndexOptions struct {
	Unique bool
	Where  string // Partial index predicate, used verbatim
}

// Executor runs DDL against resolved, schema-qualified names.
type Executor struct {
	eng Engine
	res *resolver.Resolver
}

// New creates an executor over eng resolving names with res.
func New(eng Engine, res *resolver.Resolver) *Executor {
	return &Executor{eng: eng, res: res}
}

// CreateTable creates a table in the explicit schema of name, or in main
// when name is bare.
func (x *Executor) CreateTable(ctx context.Context, name string, columns []ColumnSpec, constraints ...string) (resolver.Object, error) {
	x.eng.WriteLock()
	defer x.eng.WriteUnlock()

	q, err := ident.Parse(name)
	if err != nil {
		return resolver.Object{}, err
	}
	schema := registry.Main
	if q.HasSchema() {
		if schema, err = x.res.Schema(q.Schema); err != nil {
			return resolver.Object{}, err
		}
	}

	taken, err := catalog.NameTaken(ctx, x.eng, schema, q.Name)
	if err != nil {
		return resolver.Object{}, err
	}
	if taken {
		return resolver.Object{}, errors.NewDuplicate(string(resolver.KindTable), schema, q.Name)
	}

	defs := make([]string, 0, len(columns)+len(constraints))
	for _, col := range columns {
		defs = append(defs, col.SQL())
	}
	defs = append(defs, constraints...)

	obj := resolver.Object{Schema: schema, Name: q.Name, Kind: resolver.KindTable}
	stmt := fmt.Sprintf("CREATE TABLE %s (%s)", obj, strings.Join(defs, ", "))
	if _, err := x.eng.Exec(ctx, stmt); err != nil {
		return resolver.Object{}, err
	}
	return obj, nil
}

// AlterTable applies alt to the resolved table.
func (x *Executor) AlterTable(ctx context.Context, name string, alt Alteration) error {
	x.eng.WriteLock()
	defer x.eng.WriteUnlock()

	obj, err := x.res.ResolveExisting(ctx, name, resolver.KindTable)
	if err != nil {
		return err
	}
	_, err = x.eng.Exec(ctx, "ALTER TABLE "+obj.String()+" "+alt.clause())
	return err
}

// RenameTable renames the resolved table within its schema. newName may be
// qualified, but only with the source table's own schema.
func (x *Executor) RenameTable(ctx context.Context, name, newName string) (resolver.Object, error) {
	x.eng.WriteLock()
	defer x.eng.WriteUnlock()

	src, err := x.res.ResolveExisting(ctx, name, resolver.KindTable)
	if err != nil {
		return resolver.Object{}, err
	}
	target, err := ident.Parse(newName)
	if err != nil {
		return resolver.Object{}, err
	}
	if target.HasSchema() {
		schema, err := x.res.Schema(target.Schema)
		if err != nil {
			return resolver.Object{}, err
		}
		if !strings.EqualFold(schema, src.Schema) {
			return resolver.Object{}, &errors.CrossSchemaRenameError{
				Name:         src.Name,
				SourceSchema: src.Schema,
				TargetSchema: schema,
			}
		}
	}

	taken, err := catalog.NameTaken(ctx, x.eng, src.Schema, target.Name)
	if err != nil {
		return resolver.Object{}, err
	}
	// Names compare without case, so a case-only rename collides with the
	// source table itself.
	if taken {
		return resolver.Object{}, errors.NewDuplicate(string(resolver.KindTable), src.Schema, target.Name)
	}

	if _, err := x.eng.Exec(ctx, "ALTER TABLE "+src.String()+" RENAME TO "+ident.Quote(target.Name)); err != nil {
		return resolver.Object{}, err
	}
	return resolver.Object{Schema: src.Schema, Name: target.Name, Kind: resolver.KindTable}, nil
}

// DropTable drops the resolved table.
func (x *Executor) DropTable(ctx context.Context, name string) error {
	return x.drop(ctx, name, resolver.KindTable)
}

// DropIndex drops the resolved index.
func (x *Executor) DropIndex(ctx context.Context, name string) error {
	return x.drop(ctx, name, resolver.KindIndex)
}

func (x *Executor) drop(ctx context.Context, name string, kind resolver.Kind) error {
	x.eng.WriteLock()
	defer x.eng.WriteUnlock()

	obj, err := x.res.ResolveExisting(ctx, name, kind)
	if err != nil {
		return err
	}
	_, err = x.eng.Exec(ctx, "DROP "+strings.ToUpper(string(kind))+" "+obj.String())
	return err
}

// CreateIndex creates an index on onTable. A bare index name is placed in
// the schema of the resolved table; a qualified one must name that schema.
func (x *Executor) CreateIndex(ctx context.Context, name, onTable string, columns []string, opts IndexOptions) (resolver.Object, error) {
	x.eng.WriteLock()
	defer x.eng.WriteUnlock()

	table, err := x.res.ResolveExisting(ctx, onTable, resolver.KindTable)
	if err != nil {
		return resolver.Object{}, err
	}
	q, err := ident.Parse(name)
	if err != nil {
		return resolver.Object{}, err
	}
	if q.HasSchema() {
		schema, err := x.res.Schema(q.Schema)
		if err != nil {
			return resolver.Object{}, err
		}
		if !strings.EqualFold(schema, table.Schema) {
			return resolver.Object{}, &errors.CrossSchemaIndexError{
				Index:       q.Name,
				IndexSchema: schema,
				TableSchema: table.Schema,
			}
		}
	}

	obj := resolver.Object{Schema: table.Schema, Name: q.Name, Kind: resolver.KindIndex}
	exists, err := catalog.ObjectExists(ctx, x.eng, obj.Schema, obj.Name, resolver.KindIndex)
	if err != nil {
		return resolver.Object{}, err
	}
	if exists {
		return resolver.Object{}, errors.NewDuplicate(string(resolver.KindIndex), obj.Schema, obj.Name)
	}

	var b strings.Builder
	b.WriteString("CREATE ")
	if opts.Unique {
		b.WriteString("UNIQUE ")
	}
	// The indexed table is named bare: SQLite takes it from the index's schema.
	fmt.Fprintf(&b, "INDEX %s ON %s (%s)", obj, ident.Quote(table.Name), ident.QuoteList(columns))
	if opts.Where != "" {
		b.WriteString(" WHERE " + opts.Where)
	}
	if _, err := x.eng.Exec(ctx, b.String()); err != nil {
		return resolver.Object{}, err
	}
	return obj, nil
}
