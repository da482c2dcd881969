// Command attachdb inspects and edits SQLite databases that have other
// databases attached, resolving every name to exactly one schema.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/attachdb/core/conn"
	"github.com/FocuswithJustin/attachdb/core/ddl"
	"github.com/FocuswithJustin/attachdb/core/dump"
	"github.com/FocuswithJustin/attachdb/core/sqlite"
	"github.com/FocuswithJustin/attachdb/internal/logging"
)

const version = "0.1.0"

// stdout receives command output. Tests replace it.
var stdout io.Writer = os.Stdout

// Globals are the flags shared by every command.
type Globals struct {
	DB          string   `name:"db" help:"Main database file" default:":memory:"`
	Attach      []string `name:"attach" short:"a" help:"Attach a database as NAME=PATH (repeatable)" placeholder:"NAME=PATH" sep:"none"`
	ReadOnly    bool     `name:"read-only" help:"Open the main database read-only"`
	ForeignKeys bool     `name:"foreign-keys" help:"Enforce foreign keys" default:"true" negatable:""`
	LogLevel    string   `name:"log-level" help:"Log level" enum:"debug,info,warn,error" default:"warn"`
	LogFormat   string   `name:"log-format" help:"Log format" enum:"json,text" default:"text"`
}

// Config maps the flags onto a connection configuration.
func (g *Globals) Config() (conn.Config, error) {
	cfg := conn.DefaultConfig()
	if g.DB != "" {
		cfg.Path = g.DB
	}
	cfg.ReadOnly = g.ReadOnly
	cfg.ForeignKeys = g.ForeignKeys
	for _, a := range g.Attach {
		name, path, ok := strings.Cut(a, "=")
		if !ok || name == "" {
			return conn.Config{}, fmt.Errorf("invalid --attach %q: want NAME=PATH", a)
		}
		cfg.Attachments = append(cfg.Attachments, conn.Attachment{Name: name, Path: path})
	}
	return cfg, nil
}

func (g *Globals) open(ctx context.Context) (*conn.Conn, error) {
	cfg, err := g.Config()
	if err != nil {
		return nil, err
	}
	return conn.Open(ctx, cfg)
}

// withConn opens the configured connection, runs fn and closes it.
func (g *Globals) withConn(fn func(ctx context.Context, c *conn.Conn) error) error {
	ctx := context.Background()
	c, err := g.open(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c.Context(ctx), c)
}

// CLI defines the command-line interface for attachdb.
type CLI struct {
	Globals

	Schemas     SchemasCmd     `cmd:"" help:"List registered schemas in resolution order"`
	Tables      TablesCmd      `cmd:"" help:"List tables of one or all schemas"`
	Exists      ExistsCmd      `cmd:"" help:"Resolve a table or index name and report whether it exists"`
	PK          PKCmd          `cmd:"" name:"pk" help:"Show the primary key of a table"`
	Unique      UniqueCmd      `cmd:"" help:"Report whether columns form a unique key of a table"`
	Indexes     IndexesCmd     `cmd:"" help:"List the indexes of a table"`
	FKs         FKsCmd         `cmd:"" name:"fks" help:"List the foreign keys of a table"`
	CreateTable CreateTableCmd `cmd:"" name:"create-table" help:"Create a table"`
	Rename      RenameCmd      `cmd:"" help:"Rename a table within its schema"`
	DropTable   DropTableCmd   `cmd:"" name:"drop-table" help:"Drop a table"`
	CreateIndex CreateIndexCmd `cmd:"" name:"create-index" help:"Create an index in the schema of its table"`
	DropIndex   DropIndexCmd   `cmd:"" name:"drop-index" help:"Drop an index"`
	Dump        DumpCmd        `cmd:"" help:"Write the schema of one database as an xz-compressed SQL script"`
	Version     VersionCmd     `cmd:"" help:"Print version information"`
}

// SchemasCmd lists the registry.
type SchemasCmd struct{}

func (c *SchemasCmd) Run(g *Globals) error {
	return g.withConn(func(ctx context.Context, db *conn.Conn) error {
		for _, e := range db.Registry().Entries() {
			path := e.Path
			if path == "" || sqlite.IsMemory(path) {
				path = "(memory)"
			}
			fmt.Fprintf(stdout, "%s\t%s\n", e.Name, path)
		}
		return nil
	})
}

// TablesCmd lists tables.
type TablesCmd struct {
	Schema string `arg:"" optional:"" help:"Schema to list (default: all)"`
}

func (c *TablesCmd) Run(g *Globals) error {
	return g.withConn(func(ctx context.Context, db *conn.Conn) error {
		schemas := db.Schemas()
		if c.Schema != "" {
			schemas = []string{c.Schema}
		}
		for _, s := range schemas {
			tables, err := db.Catalog().Tables(ctx, s)
			if err != nil {
				return err
			}
			for _, t := range tables {
				fmt.Fprintf(stdout, "%s.%s\n", s, t)
			}
		}
		return nil
	})
}

// ExistsCmd resolves a name.
type ExistsCmd struct {
	Name  string `arg:"" help:"Table or index name, optionally schema-qualified"`
	Index bool   `help:"Resolve NAME as an index"`
}

func (c *ExistsCmd) Run(g *Globals) error {
	return g.withConn(func(ctx context.Context, db *conn.Conn) error {
		var (
			found bool
			err   error
		)
		kind := "table"
		if c.Index {
			kind = "index"
			found, err = db.Catalog().IndexExists(ctx, c.Name)
		} else {
			found, err = db.Catalog().TableExists(ctx, c.Name)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s %s: %t\n", kind, c.Name, found)
		return nil
	})
}

// PKCmd prints a primary key.
type PKCmd struct {
	Table string `arg:"" help:"Table name"`
}

func (c *PKCmd) Run(g *Globals) error {
	return g.withConn(func(ctx context.Context, db *conn.Conn) error {
		info, err := db.Catalog().PrimaryKey(ctx, c.Table)
		if err != nil {
			return err
		}
		if info == nil {
			fmt.Fprintln(stdout, "(none)")
			return nil
		}
		fmt.Fprintf(stdout, "%s.%s (%s)\n", info.Schema, info.Name, strings.Join(info.PrimaryKey, ", "))
		return nil
	})
}

// UniqueCmd checks for a unique key.
type UniqueCmd struct {
	Table   string   `arg:"" help:"Table name"`
	Columns []string `arg:"" help:"Key columns"`
}

func (c *UniqueCmd) Run(g *Globals) error {
	return g.withConn(func(ctx context.Context, db *conn.Conn) error {
		ok, err := db.Catalog().HasUniqueKey(ctx, c.Table, c.Columns)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%t\n", ok)
		return nil
	})
}

// IndexesCmd lists indexes.
type IndexesCmd struct {
	Table string `arg:"" help:"Table name"`
}

func (c *IndexesCmd) Run(g *Globals) error {
	return g.withConn(func(ctx context.Context, db *conn.Conn) error {
		indexes, err := db.Catalog().Indexes(ctx, c.Table)
		if err != nil {
			return err
		}
		for _, idx := range indexes {
			flags := idx.Origin
			if idx.Unique {
				flags += ",unique"
			}
			if idx.Partial {
				flags += ",partial"
			}
			fmt.Fprintf(stdout, "%s.%s\t%s\t%s\n", idx.Schema, idx.Name, strings.Join(idx.Columns, ", "), flags)
		}
		return nil
	})
}

// FKsCmd lists foreign keys.
type FKsCmd struct {
	Table string `arg:"" help:"Table name"`
}

func (c *FKsCmd) Run(g *Globals) error {
	return g.withConn(func(ctx context.Context, db *conn.Conn) error {
		fks, err := db.Catalog().ForeignKeys(ctx, c.Table)
		if err != nil {
			return err
		}
		for _, fk := range fks {
			ref := fk.RefTable
			if fk.RefColumn != "" {
				ref += "(" + fk.RefColumn + ")"
			}
			fmt.Fprintf(stdout, "%d\t%s -> %s\ton update %s\ton delete %s\n", fk.ID, fk.Column, ref, fk.OnUpdate, fk.OnDelete)
		}
		return nil
	})
}

// CreateTableCmd creates a table from column definitions of the form
// name[:type[:flag...]] where flags are pk, notnull and unique.
type CreateTableCmd struct {
	Name    string   `arg:"" help:"Table name, optionally schema-qualified"`
	Columns []string `arg:"" help:"Column definitions NAME[:TYPE[:pk|notnull|unique...]]"`
}

func (c *CreateTableCmd) Run(g *Globals) error {
	columns := make([]ddl.ColumnSpec, 0, len(c.Columns))
	for _, def := range c.Columns {
		col, err := parseColumn(def)
		if err != nil {
			return err
		}
		columns = append(columns, col)
	}
	return g.withConn(func(ctx context.Context, db *conn.Conn) error {
		obj, err := db.DDL().CreateTable(ctx, c.Name, columns)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "created %s\n", obj)
		return nil
	})
}

func parseColumn(def string) (ddl.ColumnSpec, error) {
	parts := strings.Split(def, ":")
	col := ddl.ColumnSpec{Name: parts[0]}
	if col.Name == "" {
		return col, fmt.Errorf("invalid column %q: empty name", def)
	}
	if len(parts) > 1 {
		col.Type = parts[1]
	}
	for _, flag := range parts[min(len(parts), 2):] {
		switch strings.ToLower(flag) {
		case "pk":
			col.PrimaryKey = true
		case "notnull":
			col.NotNull = true
		case "unique":
			col.Unique = true
		default:
			return col, fmt.Errorf("invalid column %q: unknown flag %q", def, flag)
		}
	}
	return col, nil
}

// RenameCmd renames a table.
type RenameCmd struct {
	Table string `arg:"" help:"Table name"`
	To    string `arg:"" help:"New name, optionally qualified with the same schema"`
}

func (c *RenameCmd) Run(g *Globals) error {
	return g.withConn(func(ctx context.Context, db *conn.Conn) error {
		obj, err := db.DDL().RenameTable(ctx, c.Table, c.To)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "renamed to %s\n", obj)
		return nil
	})
}

// DropTableCmd drops a table.
type DropTableCmd struct {
	Table string `arg:"" help:"Table name"`
}

func (c *DropTableCmd) Run(g *Globals) error {
	return g.withConn(func(ctx context.Context, db *conn.Conn) error {
		return db.DDL().DropTable(ctx, c.Table)
	})
}

// CreateIndexCmd creates an index.
type CreateIndexCmd struct {
	Name    string   `arg:"" help:"Index name"`
	On      string   `required:"" help:"Table to index"`
	Columns []string `arg:"" help:"Indexed columns"`
	Unique  bool     `help:"Create a unique index"`
	Where   string   `help:"Partial index predicate"`
}

func (c *CreateIndexCmd) Run(g *Globals) error {
	return g.withConn(func(ctx context.Context, db *conn.Conn) error {
		obj, err := db.DDL().CreateIndex(ctx, c.Name, c.On, c.Columns, ddl.IndexOptions{Unique: c.Unique, Where: c.Where})
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "created %s\n", obj)
		return nil
	})
}

// DropIndexCmd drops an index.
type DropIndexCmd struct {
	Name string `arg:"" help:"Index name"`
}

func (c *DropIndexCmd) Run(g *Globals) error {
	return g.withConn(func(ctx context.Context, db *conn.Conn) error {
		return db.DDL().DropIndex(ctx, c.Name)
	})
}

// DumpCmd writes a schema dump and prints its manifest as JSON.
type DumpCmd struct {
	Schema string `arg:"" help:"Schema to dump"`
	Out    string `required:"" short:"o" help:"Output file (.sql.xz)" type:"path"`
}

func (c *DumpCmd) Run(g *Globals) error {
	return g.withConn(func(ctx context.Context, db *conn.Conn) error {
		f, err := os.Create(c.Out)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		m, err := dump.Write(ctx, db, c.Schema, f)
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close output: %w", cerr)
		}
		if err != nil {
			os.Remove(c.Out)
			return err
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	})
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	info := sqlite.GetInfo()
	fmt.Fprintf(stdout, "attachdb version %s\n", version)
	fmt.Fprintf(stdout, "sqlite driver: %s (%s, %s)\n", info.DriverName, info.DriverType, info.Package)
	return nil
}

func initLogging(g *Globals) error {
	level, err := logging.ParseLevel(g.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(g.LogFormat)
	if err != nil {
		return err
	}
	logging.InitLogger(level, format)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("attachdb"),
		kong.Description("Schema-aware tooling for SQLite databases with attachments"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	ctx.FatalIfErrorf(initLogging(&cli.Globals))
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}
