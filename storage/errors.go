package storage

import (
	"errors"
	"strings"
)

// Common storage errors.
var (
	// ErrNotFound is returned when an entity is not found.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a write violates a unique index
	// (duplicate e-mail, role name or state name).
	ErrConflict = errors.New("entity already exists")
)

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
