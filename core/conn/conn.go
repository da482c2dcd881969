// Package conn owns one engine connection together with its schema
// registry, and hands out the resolver, catalog, DDL and record services
// bound to it.
//
// SQLite keeps attachments and the temp schema per physical connection, so
// the underlying *sql.DB is pinned to exactly one connection for its whole
// life.
package conn

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/attachdb/core/catalog"
	"github.com/FocuswithJustin/attachdb/core/ddl"
	"github.com/FocuswithJustin/attachdb/core/errors"
	"github.com/FocuswithJustin/attachdb/core/ident"
	"github.com/FocuswithJustin/attachdb/core/record"
	"github.com/FocuswithJustin/attachdb/core/registry"
	"github.com/FocuswithJustin/attachdb/core/resolver"
	"github.com/FocuswithJustin/attachdb/core/sqlite"
	"github.com/FocuswithJustin/attachdb/internal/logging"
	"github.com/FocuswithJustin/attachdb/internal/validation"
)

// Attachment is a schema to attach when the connection opens.
type Attachment struct {
	Name string
	Path string
}

// Config configures Open.
type Config struct {
	Path        string        // Main database file; empty or ":memory:" for in-memory
	ReadOnly    bool          // Open main read-only
	ForeignKeys bool          // Enforce foreign keys
	BusyTimeout time.Duration // How long to wait on a locked database file
	Attachments []Attachment  // Attached in order after main is open
}

// DefaultConfig returns an in-memory configuration with foreign keys
// enforced and a five second busy timeout.
func DefaultConfig() Config {
	return Config{
		Path:        sqlite.MemoryPath,
		ForeignKeys: true,
		BusyTimeout: 5 * time.Second,
	}
}

// Conn is an open engine connection and its registry.
type Conn struct {
	id  string
	db  *sql.DB
	eng *sqlite.Engine
	reg *registry.Registry
	res *resolver.Resolver

	catalog *catalog.Introspector
	ddl     *ddl.Executor
}

// Open opens the main database described by cfg and attaches the
// configured schemas. On any failure the connection is closed.
func Open(ctx context.Context, cfg Config) (*Conn, error) {
	memory := sqlite.IsMemory(cfg.Path)
	if !memory {
		if err := validation.ValidatePath(cfg.Path); err != nil {
			return nil, fmt.Errorf("invalid database path: %w", err)
		}
	}

	var (
		db  *sql.DB
		err error
	)
	if cfg.ReadOnly && !memory {
		db, err = sqlite.OpenReadOnly(cfg.Path)
	} else {
		db, err = sqlite.Open(cfg.Path)
	}
	if err != nil {
		return nil, errors.Wrap(errors.NewSQL("", err), "open database")
	}

	// One physical connection for the life of the Conn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	c := newConn(db, cfg.Path)
	ctx = c.Context(ctx)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(errors.NewSQL("", err), "open database")
	}
	if err := c.configure(ctx, cfg); err != nil {
		db.Close()
		return nil, err
	}
	logging.ConnectionOpened(ctx, cfg.Path, sqlite.DriverType(), "read_only", cfg.ReadOnly)

	for _, a := range cfg.Attachments {
		if err := c.Attach(ctx, a.Path, a.Name); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "attach %s", a.Name)
		}
	}
	return c, nil
}

func newConn(db *sql.DB, mainPath string) *Conn {
	eng := sqlite.NewEngine(db)
	reg := registry.New(mainPath)
	res := resolver.New(reg, catalog.Lookup(eng))
	return &Conn{
		id:      uuid.New().String(),
		db:      db,
		eng:     eng,
		reg:     reg,
		res:     res,
		catalog: catalog.New(eng, res),
		ddl:     ddl.New(eng, res),
	}
}

func (c *Conn) configure(ctx context.Context, cfg Config) error {
	fk := "OFF"
	if cfg.ForeignKeys {
		fk = "ON"
	}
	if _, err := c.eng.Exec(ctx, "PRAGMA foreign_keys = "+fk); err != nil {
		return err
	}
	if cfg.BusyTimeout > 0 {
		stmt := fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds())
		if _, err := c.eng.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Context returns ctx carrying the connection id for log correlation.
func (c *Conn) Context(ctx context.Context) context.Context {
	if logging.GetConnID(ctx) == c.id {
		return ctx
	}
	return logging.WithConnID(ctx, c.id)
}

// Attach attaches the database file at path under name. An empty path or
// ":memory:" attaches a private database. The registry changes only after
// the engine has accepted the attachment.
func (c *Conn) Attach(ctx context.Context, path, name string) error {
	ctx = c.Context(ctx)

	if err := validation.ValidateSchemaName(name); err != nil {
		return &errors.MalformedIdentifierError{Raw: name, Reason: "invalid schema name", Err: err}
	}
	if err := validation.ValidateAttachPath(path); err != nil {
		return fmt.Errorf("invalid attach path: %w", err)
	}

	c.eng.WriteLock()
	defer c.eng.WriteUnlock()

	if c.reg.Contains(name) {
		return &errors.DuplicateSchemaError{Schema: name}
	}
	if _, err := c.eng.Exec(ctx, "ATTACH DATABASE ? AS "+ident.Quote(name), path); err != nil {
		return err
	}
	if err := c.reg.Attach(name, path); err != nil {
		// Keep engine and registry in step.
		c.eng.Exec(ctx, "DETACH DATABASE "+ident.Quote(name))
		return err
	}
	logging.SchemaAttached(ctx, name, path)
	return nil
}

// Detach detaches a previously attached schema. main and temp cannot be
// detached.
func (c *Conn) Detach(ctx context.Context, name string) error {
	ctx = c.Context(ctx)

	c.eng.WriteLock()
	defer c.eng.WriteUnlock()

	if err := c.reg.CheckDetach(name); err != nil {
		return err
	}
	canonical, _ := c.reg.Canonical(name)
	if _, err := c.eng.Exec(ctx, "DETACH DATABASE "+ident.Quote(canonical)); err != nil {
		return err
	}
	if err := c.reg.Detach(canonical); err != nil {
		return err
	}
	logging.SchemaDetached(ctx, canonical)
	return nil
}

// ID returns the connection id used in log records.
func (c *Conn) ID() string { return c.id }

// Registry returns the connection's schema registry.
func (c *Conn) Registry() *registry.Registry { return c.reg }

// Resolver returns the name resolver bound to the registry.
func (c *Conn) Resolver() *resolver.Resolver { return c.res }

// Catalog returns the catalog introspector.
func (c *Conn) Catalog() *catalog.Introspector { return c.catalog }

// DDL returns the DDL executor.
func (c *Conn) DDL() *ddl.Executor { return c.ddl }

// Engine returns the statement engine.
func (c *Conn) Engine() *sqlite.Engine { return c.eng }

// DB returns the underlying database handle.
func (c *Conn) DB() *sql.DB { return c.db }

// Schemas lists the registered schema names in resolution order.
func (c *Conn) Schemas() []string { return c.reg.List() }

// Records returns a record store. A non-empty schema becomes the target for
// bare table names.
func (c *Conn) Records(schema string) *record.Store {
	return record.New(c.eng, c.res, schema)
}

// Close closes the connection. Attachments and temp objects are lost.
func (c *Conn) Close() error {
	return c.db.Close()
}
