package ddl_test

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/FocuswithJustin/attachdb/core/conn"
	"github.com/FocuswithJustin/attachdb/core/ddl"
	"github.com/FocuswithJustin/attachdb/core/errors"
)

func openAttached(t *testing.T) *conn.Conn {
	t.Helper()
	ctx := context.Background()
	c, err := conn.Open(ctx, conn.DefaultConfig())
	if err != nil {
		t.Fatalf("conn.Open() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	if err := c.Attach(ctx, filepath.Join(t.TempDir(), "attached.db"), "attached"); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	return c
}

var idColumn = []ddl.ColumnSpec{{Name: "id", Type: "INTEGER", PrimaryKey: true}}

func TestColumnSpecSQL(t *testing.T) {
	tests := []struct {
		name string
		col  ddl.ColumnSpec
		want string
	}{
		{"bare", ddl.ColumnSpec{Name: "v"}, `"v"`},
		{"typed key", ddl.ColumnSpec{Name: "id", Type: "INTEGER", PrimaryKey: true}, `"id" INTEGER PRIMARY KEY`},
		{"constraints", ddl.ColumnSpec{Name: "code", Type: "TEXT", NotNull: true, Unique: true, Default: "'x'"}, `"code" TEXT NOT NULL UNIQUE DEFAULT 'x'`},
		{"reference", ddl.ColumnSpec{Name: "pid", Type: "INTEGER", References: &ddl.Reference{Table: "parent", Column: "id"}}, `"pid" INTEGER REFERENCES "parent"("id")`},
		{"implied key", ddl.ColumnSpec{Name: "pid", References: &ddl.Reference{Table: "parent"}}, `"pid" REFERENCES "parent"`},
		{"quoted name", ddl.ColumnSpec{Name: `we"ird`}, `"we""ird"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.col.SQL(); got != tt.want {
				t.Errorf("SQL() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCreateTable(t *testing.T) {
	ctx := context.Background()
	c := openAttached(t)
	x := c.DDL()

	obj, err := x.CreateTable(ctx, "bare", idColumn)
	if err != nil {
		t.Fatalf("CreateTable(bare) error = %v", err)
	}
	if obj.Schema != "main" {
		t.Errorf("bare table created in %s, want main", obj.Schema)
	}

	obj, err = x.CreateTable(ctx, "ATTACHED.test", idColumn, `CHECK (id > 0)`)
	if err != nil {
		t.Fatalf("CreateTable(attached.test) error = %v", err)
	}
	if obj.Schema != "attached" || obj.Name != "test" {
		t.Errorf("CreateTable = %+v", obj)
	}
	if ok, _ := c.Catalog().TableExists(ctx, "attached.test"); !ok {
		t.Error("attached.test does not exist")
	}
	if ok, _ := c.Catalog().TableExists(ctx, "main.test"); ok {
		t.Error("main.test exists")
	}

	_, err = x.CreateTable(ctx, "attached.TEST", idColumn)
	var dup *errors.DuplicateObjectError
	if !errors.As(err, &dup) {
		t.Fatalf("duplicate CreateTable error = %v, want DuplicateObjectError", err)
	}
	if dup.Schema != "attached" {
		t.Errorf("DuplicateObjectError.Schema = %q", dup.Schema)
	}

	// Same name in another schema is fine.
	if _, err := x.CreateTable(ctx, "temp.test", idColumn); err != nil {
		t.Errorf("CreateTable(temp.test) error = %v", err)
	}

	if _, err := x.CreateTable(ctx, "nosuch.t", idColumn); !errors.Is(err, errors.ErrUnknownSchema) {
		t.Errorf("CreateTable(nosuch.t) error = %v, want ErrUnknownSchema", err)
	}
	if _, err := x.CreateTable(ctx, "a.b.c", idColumn); !errors.Is(err, errors.ErrMalformedIdentifier) {
		t.Errorf("CreateTable(a.b.c) error = %v, want ErrMalformedIdentifier", err)
	}

	_, err = x.CreateTable(ctx, "broken", []ddl.ColumnSpec{{Name: "id"}}, "NOT A CONSTRAINT")
	var sqlErr *errors.SQLError
	if !errors.As(err, &sqlErr) {
		t.Errorf("CreateTable(broken) error = %v, want SQLError", err)
	}
}

func TestAlterTable(t *testing.T) {
	ctx := context.Background()
	c := openAttached(t)
	x := c.DDL()
	if _, err := x.CreateTable(ctx, "attached.t", idColumn); err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}

	steps := []struct {
		alt  ddl.Alteration
		want []string
	}{
		{ddl.AddColumn{Column: ddl.ColumnSpec{Name: "v", Type: "TEXT"}}, []string{"id", "v"}},
		{ddl.RenameColumn{From: "v", To: "w"}, []string{"id", "w"}},
		{ddl.DropColumn{Name: "w"}, []string{"id"}},
	}
	for _, step := range steps {
		if err := x.AlterTable(ctx, "t", step.alt); err != nil {
			t.Fatalf("AlterTable(%T) error = %v", step.alt, err)
		}
		info, err := c.Catalog().Columns(ctx, "attached.t")
		if err != nil {
			t.Fatalf("Columns() error = %v", err)
		}
		var got []string
		for _, col := range info.Columns {
			got = append(got, col.Name)
		}
		if !reflect.DeepEqual(got, step.want) {
			t.Errorf("after %T columns = %v, want %v", step.alt, got, step.want)
		}
	}

	if err := x.AlterTable(ctx, "missing", ddl.DropColumn{Name: "x"}); !errors.Is(err, errors.ErrObjectNotFound) {
		t.Errorf("AlterTable(missing) error = %v, want ErrObjectNotFound", err)
	}
}

func TestRenameTable(t *testing.T) {
	ctx := context.Background()
	c := openAttached(t)
	x := c.DDL()
	for _, name := range []string{"temp.test", "attached.test", "attached.other"} {
		if _, err := x.CreateTable(ctx, name, idColumn); err != nil {
			t.Fatalf("CreateTable(%s) error = %v", name, err)
		}
	}

	obj, err := x.RenameTable(ctx, "temp.test", "temp.test_renamed")
	if err != nil {
		t.Fatalf("RenameTable(temp) error = %v", err)
	}
	if obj.Schema != "temp" || obj.Name != "test_renamed" {
		t.Errorf("RenameTable = %+v", obj)
	}
	if ok, _ := c.Catalog().TableExists(ctx, "temp.test_renamed"); !ok {
		t.Error("temp.test_renamed does not exist")
	}

	_, err = x.RenameTable(ctx, "temp.test_renamed", "attached.test_renamed")
	var cross *errors.CrossSchemaRenameError
	if !errors.As(err, &cross) {
		t.Fatalf("cross-schema rename error = %v, want CrossSchemaRenameError", err)
	}
	if cross.SourceSchema != "temp" || cross.TargetSchema != "attached" {
		t.Errorf("CrossSchemaRenameError = %+v", cross)
	}
	if ok, _ := c.Catalog().TableExists(ctx, "temp.test_renamed"); !ok {
		t.Error("failed rename changed temp.test_renamed")
	}

	// Bare source resolves to attached, the only schema holding it.
	obj, err = x.RenameTable(ctx, "test", "test2")
	if err != nil {
		t.Fatalf("RenameTable(test) error = %v", err)
	}
	if obj.Schema != "attached" {
		t.Errorf("bare rename landed in %s, want attached", obj.Schema)
	}

	if _, err := x.RenameTable(ctx, "attached.test2", "other"); !errors.Is(err, errors.ErrDuplicateObject) {
		t.Errorf("rename onto existing error = %v, want ErrDuplicateObject", err)
	}
	if _, err := x.RenameTable(ctx, "attached.test2", "TEST2"); !errors.Is(err, errors.ErrDuplicateObject) {
		t.Errorf("case-only rename error = %v, want ErrDuplicateObject", err)
	}
	if _, err := x.RenameTable(ctx, "attached.TEST2", "nosuch.x"); !errors.Is(err, errors.ErrUnknownSchema) {
		t.Errorf("rename into unknown schema error = %v, want ErrUnknownSchema", err)
	}
	if _, err := x.RenameTable(ctx, "missing", "x"); !errors.Is(err, errors.ErrObjectNotFound) {
		t.Errorf("rename of missing table error = %v, want ErrObjectNotFound", err)
	}
}

func TestCreateAndDropIndex(t *testing.T) {
	ctx := context.Background()
	c := openAttached(t)
	x := c.DDL()
	if _, err := x.CreateTable(ctx, "attached.test", []ddl.ColumnSpec{{Name: "id", Type: "INTEGER"}, {Name: "v", Type: "TEXT"}}); err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}

	obj, err := x.CreateIndex(ctx, "test_index", "attached.test", []string{"id"}, ddl.IndexOptions{})
	if err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}
	if obj.Schema != "attached" {
		t.Errorf("index created in %s, want attached", obj.Schema)
	}
	if ok, _ := c.Catalog().IndexExists(ctx, "attached.test_index"); !ok {
		t.Error("attached.test_index does not exist")
	}
	if ok, _ := c.Catalog().IndexExists(ctx, "main.test_index"); ok {
		t.Error("main.test_index exists")
	}

	if _, err := x.CreateIndex(ctx, "test_index", "attached.test", []string{"v"}, ddl.IndexOptions{}); !errors.Is(err, errors.ErrDuplicateObject) {
		t.Errorf("duplicate CreateIndex error = %v, want ErrDuplicateObject", err)
	}

	if err := x.DropIndex(ctx, "attached.test_index"); err != nil {
		t.Fatalf("DropIndex() error = %v", err)
	}
	idx, err := c.Catalog().Indexes(ctx, "attached.test")
	if err != nil {
		t.Fatalf("Indexes() error = %v", err)
	}
	if len(idx) != 0 {
		t.Errorf("Indexes after drop = %+v, want none", idx)
	}

	if err := x.DropIndex(ctx, "attached.test_index"); !errors.Is(err, errors.ErrObjectNotFound) {
		t.Errorf("second DropIndex error = %v, want ErrObjectNotFound", err)
	}
}

func TestCreateIndexOptions(t *testing.T) {
	ctx := context.Background()
	c := openAttached(t)
	x := c.DDL()
	if _, err := x.CreateTable(ctx, "attached.t", []ddl.ColumnSpec{{Name: "a"}, {Name: "b"}}); err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}

	if _, err := x.CreateIndex(ctx, "attached.t_ab", "t", []string{"a", "b"}, ddl.IndexOptions{Unique: true}); err != nil {
		t.Fatalf("CreateIndex(unique) error = %v", err)
	}
	if ok, _ := c.Catalog().HasUniqueKey(ctx, "t", []string{"b", "a"}); !ok {
		t.Error("unique index not reported as unique key")
	}

	if _, err := x.CreateIndex(ctx, "t_b", "t", []string{"b"}, ddl.IndexOptions{Unique: true, Where: "b IS NOT NULL"}); err != nil {
		t.Fatalf("CreateIndex(partial) error = %v", err)
	}
	idx, err := c.Catalog().Indexes(ctx, "t")
	if err != nil {
		t.Fatalf("Indexes() error = %v", err)
	}
	if len(idx) != 2 || idx[1].Name != "t_b" || !idx[1].Partial {
		t.Errorf("Indexes = %+v", idx)
	}
}

func TestCreateIndexCrossSchema(t *testing.T) {
	ctx := context.Background()
	c := openAttached(t)
	x := c.DDL()
	if _, err := x.CreateTable(ctx, "attached.t", idColumn); err != nil {
		t.Fatalf("CreateTable() error = %v", err)
	}

	_, err := x.CreateIndex(ctx, "main.t_id", "attached.t", []string{"id"}, ddl.IndexOptions{})
	var cross *errors.CrossSchemaIndexError
	if !errors.As(err, &cross) {
		t.Fatalf("CreateIndex error = %v, want CrossSchemaIndexError", err)
	}
	if cross.IndexSchema != "main" || cross.TableSchema != "attached" {
		t.Errorf("CrossSchemaIndexError = %+v", cross)
	}

	if _, err := x.CreateIndex(ctx, "i", "missing", []string{"id"}, ddl.IndexOptions{}); !errors.Is(err, errors.ErrObjectNotFound) {
		t.Errorf("CreateIndex on missing table error = %v, want ErrObjectNotFound", err)
	}
}

func TestDropTable(t *testing.T) {
	ctx := context.Background()
	c := openAttached(t)
	x := c.DDL()
	for _, name := range []string{"main.test", "attached.test"} {
		if _, err := x.CreateTable(ctx, name, idColumn); err != nil {
			t.Fatalf("CreateTable(%s) error = %v", name, err)
		}
	}

	// Bare name drops the first match only.
	if err := x.DropTable(ctx, "test"); err != nil {
		t.Fatalf("DropTable(test) error = %v", err)
	}
	if ok, _ := c.Catalog().TableExists(ctx, "main.test"); ok {
		t.Error("main.test still exists")
	}
	if ok, _ := c.Catalog().TableExists(ctx, "attached.test"); !ok {
		t.Error("attached.test was dropped")
	}

	err := x.DropTable(ctx, "main.test")
	var nf *errors.ObjectNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("DropTable(absent) error = %v, want ObjectNotFoundError", err)
	}
	if nf.Kind != "table" || nf.Schema != "main" {
		t.Errorf("ObjectNotFoundError = %+v", nf)
	}
}
