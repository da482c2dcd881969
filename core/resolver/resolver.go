// Package resolver decides which attached schema an object name refers to.
//
// A name with an explicit schema resolves to exactly that schema, provided
// it is registered. A bare name resolves to the first schema, in registry
// order (main, temp, then attachments in attach order), that holds an
// object of that name and kind; when no schema holds one, main is chosen as
// the target for creation. Resolution is computed on every call and never
// cached, since the attached set can change between calls.
package resolver

import (
	"context"
	"strings"

	"github.com/FocuswithJustin/attachdb/core/errors"
	"github.com/FocuswithJustin/attachdb/core/ident"
	"github.com/FocuswithJustin/attachdb/core/registry"
	"github.com/FocuswithJustin/attachdb/internal/logging"
)

// Kind is the kind of catalog object being resolved.
type Kind string

const (
	KindTable Kind = "table"
	KindIndex Kind = "index"
)

// Object is the result of resolution: the single schema chosen to hold or
// locate the named object.
type Object struct {
	Schema string
	Name   string
	Kind   Kind
}

// Qualified returns the object as a QualifiedName.
func (o Object) Qualified() ident.QualifiedName {
	return ident.QualifiedName{Schema: o.Schema, Name: o.Name}
}

// String renders the object as a quoted schema-qualified identifier.
func (o Object) String() string {
	return ident.Format(o.Schema, o.Name)
}

// Lookup reports whether schema holds an object of the given name and kind.
type Lookup func(ctx context.Context, schema, name string, kind Kind) (bool, error)

// Resolve picks the schema for q among schemas, which must be in registry
// enumeration order.
func Resolve(ctx context.Context, q ident.QualifiedName, kind Kind, schemas []string, lookup Lookup) (Object, error) {
	if q.HasSchema() {
		schema, ok := canonical(schemas, q.Schema)
		if !ok {
			return Object{}, errors.NewUnknownSchema(q.Schema)
		}
		obj := Object{Schema: schema, Name: q.Name, Kind: kind}
		logging.Resolved(ctx, string(kind), q.Name, schema, true)
		return obj, nil
	}

	for _, schema := range schemas {
		found, err := lookup(ctx, schema, q.Name, kind)
		if err != nil {
			return Object{}, errors.Wrapf(errors.NewSQL("", err), "resolve %s %s", kind, q.Name)
		}
		if found {
			logging.Resolved(ctx, string(kind), q.Name, schema, false)
			return Object{Schema: schema, Name: q.Name, Kind: kind}, nil
		}
	}

	logging.Resolved(ctx, string(kind), q.Name, registry.Main, false)
	return Object{Schema: registry.Main, Name: q.Name, Kind: kind}, nil
}

func canonical(schemas []string, name string) (string, bool) {
	for _, s := range schemas {
		if strings.EqualFold(s, name) {
			return s, true
		}
	}
	return "", false
}

// Resolver resolves names against a live registry. Each call takes a fresh
// snapshot of the registry.
type Resolver struct {
	reg    *registry.Registry
	lookup Lookup
}

// New creates a resolver over reg using lookup to probe schemas.
func New(reg *registry.Registry, lookup Lookup) *Resolver {
	return &Resolver{reg: reg, lookup: lookup}
}

// Registry returns the registry the resolver reads.
func (r *Resolver) Registry() *registry.Registry {
	return r.reg
}

// Resolve resolves q against the current registry snapshot.
func (r *Resolver) Resolve(ctx context.Context, q ident.QualifiedName, kind Kind) (Object, error) {
	return Resolve(ctx, q, kind, r.reg.List(), r.lookup)
}

// ResolveRaw parses raw and resolves it.
func (r *Resolver) ResolveRaw(ctx context.Context, raw string, kind Kind) (Object, error) {
	q, err := ident.Parse(raw)
	if err != nil {
		return Object{}, err
	}
	return r.Resolve(ctx, q, kind)
}

// Exists reports whether obj is present in its resolved schema.
func (r *Resolver) Exists(ctx context.Context, obj Object) (bool, error) {
	found, err := r.lookup(ctx, obj.Schema, obj.Name, obj.Kind)
	if err != nil {
		return false, errors.NewSQL("", err)
	}
	return found, nil
}

// ResolveExisting resolves raw and fails with an ObjectNotFoundError when
// the chosen schema does not hold the object.
func (r *Resolver) ResolveExisting(ctx context.Context, raw string, kind Kind) (Object, error) {
	obj, err := r.ResolveRaw(ctx, raw, kind)
	if err != nil {
		return Object{}, err
	}
	found, err := r.Exists(ctx, obj)
	if err != nil {
		return Object{}, err
	}
	if !found {
		return Object{}, errors.NewNotFound(string(kind), obj.Schema, obj.Name)
	}
	return obj, nil
}

// Schema returns the canonical spelling of a registered schema name.
func (r *Resolver) Schema(name string) (string, error) {
	schema, ok := r.reg.Canonical(name)
	if !ok {
		return "", errors.NewUnknownSchema(name)
	}
	return schema, nil
}
