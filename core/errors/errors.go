// Package errors provides the error kinds reported by the schema resolver and catalog.
//
// Every typed error unwraps to a sentinel so callers can match the kind with
// errors.Is and recover the details with errors.As.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per error kind.
var (
	// ErrMalformedIdentifier indicates an identifier that could not be parsed
	ErrMalformedIdentifier = errors.New("malformed identifier")
	// ErrUnknownSchema indicates a schema name that is not attached
	ErrUnknownSchema = errors.New("unknown schema")
	// ErrDuplicateSchema indicates an attach of an already registered schema name
	ErrDuplicateSchema = errors.New("duplicate schema")
	// ErrProtectedSchema indicates an attempt to detach main or temp
	ErrProtectedSchema = errors.New("protected schema")
	// ErrObjectNotFound indicates a table or index missing from its resolved schema
	ErrObjectNotFound = errors.New("object not found")
	// ErrDuplicateObject indicates a create of an object that already exists
	ErrDuplicateObject = errors.New("duplicate object")
	// ErrCrossSchemaRename indicates a rename whose target names another schema
	ErrCrossSchemaRename = errors.New("cross-schema rename")
	// ErrCrossSchemaIndex indicates an index whose schema differs from its table's
	ErrCrossSchemaIndex = errors.New("cross-schema index")
	// ErrSQL indicates the engine rejected a statement
	ErrSQL = errors.New("sql error")
)

// MalformedIdentifierError reports an identifier with unbalanced quoting,
// stray separators or an empty segment.
type MalformedIdentifierError struct {
	Raw    string // Input as supplied by the caller
	Reason string // What was wrong with it
	Err    error  // Underlying lexer or parser error, if any
}

func (e *MalformedIdentifierError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("malformed identifier %q: %s", e.Raw, e.Reason)
	}
	return fmt.Sprintf("malformed identifier %q", e.Raw)
}

func (e *MalformedIdentifierError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedIdentifier, e.Err}
	}
	return []error{ErrMalformedIdentifier}
}

// UnknownSchemaError reports a schema name that is not in the registry.
type UnknownSchemaError struct {
	Schema string
}

func (e *UnknownSchemaError) Error() string {
	return fmt.Sprintf("unknown schema: %s", e.Schema)
}

func (e *UnknownSchemaError) Unwrap() error {
	return ErrUnknownSchema
}

// DuplicateSchemaError reports an attach of a name that is already registered.
type DuplicateSchemaError struct {
	Schema string
}

func (e *DuplicateSchemaError) Error() string {
	return fmt.Sprintf("schema already attached: %s", e.Schema)
}

func (e *DuplicateSchemaError) Unwrap() error {
	return ErrDuplicateSchema
}

// ProtectedSchemaError reports a detach of main or temp.
type ProtectedSchemaError struct {
	Schema string
}

func (e *ProtectedSchemaError) Error() string {
	return fmt.Sprintf("schema cannot be detached: %s", e.Schema)
}

func (e *ProtectedSchemaError) Unwrap() error {
	return ErrProtectedSchema
}

// ObjectNotFoundError reports a table or index that does not exist in the
// schema it was resolved to.
type ObjectNotFoundError struct {
	Kind   string // "table" or "index"
	Schema string
	Name   string
}

func (e *ObjectNotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s.%s", e.Kind, e.Schema, e.Name)
}

func (e *ObjectNotFoundError) Unwrap() error {
	return ErrObjectNotFound
}

// DuplicateObjectError reports a create of an object that already exists.
type DuplicateObjectError struct {
	Kind   string
	Schema string
	Name   string
}

func (e *DuplicateObjectError) Error() string {
	return fmt.Sprintf("%s already exists: %s.%s", e.Kind, e.Schema, e.Name)
}

func (e *DuplicateObjectError) Unwrap() error {
	return ErrDuplicateObject
}

// CrossSchemaRenameError reports a rename whose target schema differs from
// the schema of the source table.
type CrossSchemaRenameError struct {
	Name         string // Source table
	SourceSchema string
	TargetSchema string
}

func (e *CrossSchemaRenameError) Error() string {
	return fmt.Sprintf("cannot rename %s.%s into schema %s", e.SourceSchema, e.Name, e.TargetSchema)
}

func (e *CrossSchemaRenameError) Unwrap() error {
	return ErrCrossSchemaRename
}

// CrossSchemaIndexError reports an index name qualified with a schema other
// than the one holding its table.
type CrossSchemaIndexError struct {
	Index       string
	IndexSchema string
	TableSchema string
}

func (e *CrossSchemaIndexError) Error() string {
	return fmt.Sprintf("index %s.%s must live in table schema %s", e.IndexSchema, e.Index, e.TableSchema)
}

func (e *CrossSchemaIndexError) Unwrap() error {
	return ErrCrossSchemaIndex
}

// SQLError wraps an error reported by the engine. The engine message is
// preserved verbatim in Error().
type SQLError struct {
	Statement string // Statement that failed, if known
	Err       error  // Driver error
}

func (e *SQLError) Error() string {
	if e.Statement != "" {
		return fmt.Sprintf("sql error: %v (statement: %s)", e.Err, e.Statement)
	}
	return fmt.Sprintf("sql error: %v", e.Err)
}

func (e *SQLError) Unwrap() []error {
	return []error{ErrSQL, e.Err}
}

// Helper functions for creating common errors

// NewMalformed creates a MalformedIdentifierError
func NewMalformed(raw, reason string) *MalformedIdentifierError {
	return &MalformedIdentifierError{Raw: raw, Reason: reason}
}

// NewUnknownSchema creates an UnknownSchemaError
func NewUnknownSchema(schema string) *UnknownSchemaError {
	return &UnknownSchemaError{Schema: schema}
}

// NewNotFound creates an ObjectNotFoundError
func NewNotFound(kind, schema, name string) *ObjectNotFoundError {
	return &ObjectNotFoundError{Kind: kind, Schema: schema, Name: name}
}

// NewDuplicate creates a DuplicateObjectError
func NewDuplicate(kind, schema, name string) *DuplicateObjectError {
	return &DuplicateObjectError{Kind: kind, Schema: schema, Name: name}
}

// NewSQL wraps an engine error. If err is nil, returns nil. An error that is
// already a SQLError is returned unchanged.
func NewSQL(statement string, err error) error {
	if err == nil {
		return nil
	}
	var sqlErr *SQLError
	if errors.As(err, &sqlErr) {
		return err
	}
	return &SQLError{Statement: statement, Err: err}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
