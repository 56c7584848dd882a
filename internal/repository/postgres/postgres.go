// Package postgres implements row-level persistence for all BlueSender
// entities against PostgreSQL. The hosted database itself (schema,
// migrations, row-change feed) is managed outside this codebase; these
// repositories only consume its tables.
package postgres

import "errors"

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")
