// Package registry tracks the schemas attached to one engine connection.
//
// The registry always holds main and temp, followed by attached schemas in
// the order they were attached. Names compare case-insensitively, as SQLite
// schema names do; the spelling used at attach time is kept as the canonical
// form. It is safe for concurrent use.
package registry

import (
	"strings"
	"sync"
	"time"

	"github.com/FocuswithJustin/attachdb/core/errors"
)

// Reserved schema names.
const (
	Main = "main"
	Temp = "temp"
)

// Entry describes one registered schema.
type Entry struct {
	Name       string    // Canonical schema name
	Path       string    // File the schema was attached from; empty for main and temp
	AttachedAt time.Time // Zero for main and temp
}

// Protected reports whether the entry is main or temp.
func (e Entry) Protected() bool {
	return IsProtected(e.Name)
}

// Registry is the ordered set of schemas bound to a connection.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
}

// New creates a registry holding main and temp. mainPath is recorded as the
// file backing main and may be empty for an in-memory database.
func New(mainPath string) *Registry {
	return &Registry{
		entries: []Entry{
			{Name: Main, Path: mainPath},
			{Name: Temp},
		},
	}
}

// IsProtected reports whether name is main or temp.
func IsProtected(name string) bool {
	return strings.EqualFold(name, Main) || strings.EqualFold(name, Temp)
}

// Attach registers name as an attached schema backed by path.
func (r *Registry) Attach(name, path string) error {
	if strings.TrimSpace(name) == "" {
		return errors.NewMalformed(name, "empty schema name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexOf(name) >= 0 {
		return &errors.DuplicateSchemaError{Schema: name}
	}
	r.entries = append(r.entries, Entry{
		Name:       name,
		Path:       path,
		AttachedAt: time.Now().UTC(),
	})
	return nil
}

// CheckDetach reports the error Detach would return for name without
// changing the registry.
func (r *Registry) CheckDetach(name string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.checkDetach(name)
}

func (r *Registry) checkDetach(name string) error {
	if IsProtected(name) {
		return &errors.ProtectedSchemaError{Schema: name}
	}
	if r.indexOf(name) < 0 {
		return errors.NewUnknownSchema(name)
	}
	return nil
}

// Detach removes name from the registry.
func (r *Registry) Detach(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkDetach(name); err != nil {
		return err
	}
	i := r.indexOf(name)
	r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
	return nil
}

// List returns the registered schema names: main, temp, then attachments
// in attachment order. The slice is a copy.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Name
	}
	return names
}

// Entries returns a copy of all registry entries in enumeration order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Contains reports whether name is registered.
func (r *Registry) Contains(name string) bool {
	_, ok := r.Canonical(name)
	return ok
}

// Canonical returns the registered spelling of name.
func (r *Registry) Canonical(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.indexOf(name)
	if i < 0 {
		return "", false
	}
	return r.entries[i].Name, true
}

// Len returns the number of registered schemas, main and temp included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// indexOf must be called with r.mu held.
func (r *Registry) indexOf(name string) int {
	for i, e := range r.entries {
		if strings.EqualFold(e.Name, name) {
			return i
		}
	}
	return -1
}
