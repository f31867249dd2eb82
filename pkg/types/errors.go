package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Storage operation errors.
var (
	ErrNotFound        = errors.New("record not found")
	ErrInvalidID       = errors.New("invalid record ID")
	ErrInvalidData     = errors.New("invalid record data")
	ErrInvalidFilter   = errors.New("invalid filter value type")
	ErrDatasetNotFound = errors.New("dataset not found")
)

// Registry and lifecycle errors.
var (
	ErrAdapterUnknown   = errors.New("unknown adapter type")
	ErrAdapterAmbiguous = errors.New("ambiguous adapter client match")
	ErrNoDatabase       = errors.New("no database has been configured")
	ErrAlreadyAttached  = errors.New("database is already attached")
	ErrDetached         = errors.New("database is detached")
	ErrRegistryFrozen   = errors.New("registry is frozen")
)

// Config validation errors.
var (
	ErrBackendEmpty   = errors.New("backend must not be empty")
	ErrBackendUnknown = errors.New("unknown backend")
)

// InvalidModelError reports a failed validation pass. Errors maps attribute
// names to the messages of every violated constraint.
type InvalidModelError struct {
	Model  string
	Errors map[string][]string
}

func (e *InvalidModelError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fmt.Sprintf("%s could not be saved because the following fields were invalid: %s",
		e.Model, strings.Join(fields, ", "))
}

// UniquenessError reports that another persisted record matches this one on
// the type's uniqueness key set but carries a different identity.
type UniquenessError struct {
	Model    string
	UniqueBy []string
}

func (e *UniquenessError) Error() string {
	return fmt.Sprintf("another %s already exists with the same attributes (%s)",
		e.Model, strings.Join(e.UniqueBy, ", "))
}

// InvalidAssociationError reports a relationship that references a field the
// target type does not declare. Raised at call time, not registration time,
// since the target type may not exist yet when the relationship is declared.
type InvalidAssociationError struct {
	From  string
	To    string
	Field string
}

func (e *InvalidAssociationError) Error() string {
	return fmt.Sprintf("%s does not have an attribute named %s and cannot be associated with %s",
		e.To, e.Field, e.From)
}

// AdapterError wraps a backend-specific failure. The wrapped error is opaque
// to the core; Unwrap exposes it for callers that know the backend.
type AdapterError struct {
	Backend string
	Op      string
	Err     error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("%s adapter: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }
