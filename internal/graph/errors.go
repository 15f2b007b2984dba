package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreConnection reports that the backing store is unreachable.
	// Ingestion aborts when a unit fails with this error.
	ErrStoreConnection = errors.New("graph store connection lost")

	// ErrSchemaConflict reports that a constraint or index already exists
	// in an equivalent form. InitSchema treats it as success.
	ErrSchemaConflict = errors.New("schema element already exists")

	// ErrMissingEndpoint reports a relationship whose start or end node
	// does not exist.
	ErrMissingEndpoint = errors.New("relationship endpoint not found")

	// ErrUnknownSchema reports a label, relationship type, property, or
	// endpoint pair that the schema does not declare.
	ErrUnknownSchema = errors.New("not declared in schema")
)

// IsSchemaConflict reports whether err is an "already exists" schema error.
func IsSchemaConflict(err error) bool {
	return errors.Is(err, ErrSchemaConflict)
}

// WriteError is a failed store write together with the statement that
// caused it. The statement is the backend command (Cypher) where one exists,
// or an operation description for the in-memory store.
type WriteError struct {
	Command string
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write failed (%s): %v", e.Command, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// commandOf extracts the failing command from err, if any.
func commandOf(err error) string {
	var we *WriteError
	if errors.As(err, &we) {
		return we.Command
	}
	return ""
}
