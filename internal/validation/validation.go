// Package validation checks user-supplied database paths and schema names
// before they reach the engine.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// Limits on user input.
const (
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
	// MaxSchemaNameLength is the maximum allowed schema name length.
	MaxSchemaNameLength = 128
)

// Common validation errors.
var (
	ErrPathTooLong       = errors.New("path too long")
	ErrInvalidCharacter  = errors.New("invalid character")
	ErrEmptyPath         = errors.New("path cannot be empty")
	ErrEmptySchemaName   = errors.New("schema name cannot be empty")
	ErrSchemaNameTooLong = errors.New("schema name too long")
)

// ValidatePath checks a database file path for emptiness, excessive length
// and embedded control characters.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}

	// Check length
	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}

	// Check for null bytes
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidCharacter)
	}

	// Check for control characters
	for _, r := range path {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
		}
	}

	return nil
}

// ValidateAttachPath is ValidatePath, except that the empty path (a private
// temporary database) and ":memory:" are accepted.
func ValidateAttachPath(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	return ValidatePath(path)
}

// ValidateSchemaName checks a schema name given to attach.
func ValidateSchemaName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptySchemaName
	}
	if len(name) > MaxSchemaNameLength {
		return ErrSchemaNameTooLong
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed in schema name", ErrInvalidCharacter)
		}
	}
	return nil
}
