package table

import (
	"errors"
	"fmt"
)

// SchemaViolationError reports an operation that would produce a
// malformed table: a strict row receiving an undeclared column, or a
// row whose width does not match the declared header.
//
// Schema violations are fatal. Silently padding or truncating would
// corrupt every downstream row, so the error is raised at the call
// that detects it, never deferred to persistence time.
type SchemaViolationError struct {
	// Column is the offending column name, when the violation is an
	// undeclared key.
	Column string

	// Want and Got carry the expected and actual widths, when the
	// violation is a width mismatch.
	Want, Got int

	// Message is a human-readable description.
	Message string
}

func (e *SchemaViolationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("schema violation: %s (column %q)", e.Message, e.Column)
	}
	if e.Want != 0 || e.Got != 0 {
		return fmt.Sprintf("schema violation: %s (want %d fields, got %d)", e.Message, e.Want, e.Got)
	}
	return fmt.Sprintf("schema violation: %s", e.Message)
}

// IsSchemaViolation reports whether err is a SchemaViolationError.
// Uses errors.As to handle wrapped errors.
func IsSchemaViolation(err error) bool {
	var sv *SchemaViolationError
	return errors.As(err, &sv)
}

// newUndeclaredColumnError creates a SchemaViolationError for a strict
// row rejecting an unknown key.
func newUndeclaredColumnError(column string) *SchemaViolationError {
	return &SchemaViolationError{
		Column:  column,
		Message: "row is not ad-hoc and column was not declared",
	}
}

// newWidthMismatchError creates a SchemaViolationError for a row whose
// field count does not match the header.
func newWidthMismatchError(want, got int) *SchemaViolationError {
	return &SchemaViolationError{
		Want:    want,
		Got:     got,
		Message: "row width does not match header",
	}
}
