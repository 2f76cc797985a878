package query

import (
	"errors"
	"fmt"
)

// Static errors for err113 compliance.
var (
	ErrUnknownField       = errors.New("unknown field label")
	ErrUnsupportedType    = errors.New("unsupported value type")
	ErrUnsupportedOp      = errors.New("unsupported operator")
	ErrIncompatibleValue  = errors.New("value is not compatible with operator")
	ErrMissingTimezone    = errors.New("date-time value has no timezone offset")
	ErrInvalidDate        = errors.New("invalid date literal")
	ErrNonFiniteNumber    = errors.New("number is not finite")
	ErrEmptyList          = errors.New("list value is empty")
	ErrNestedList         = errors.New("list values cannot be nested")
	ErrListSeparator      = errors.New("list element contains the list separator")
	ErrUnterminatedString = errors.New("string literal is not quoted")
	ErrDanglingEscape     = errors.New("string literal ends with an escape character")
)

// EncodingError reports a value that has no safe encoding in the formula
// query grammar.
type EncodingError struct {
	Value    any
	Operator Operator
	Err      error
}

// Error implements the error interface.
func (e *EncodingError) Error() string {
	if e.Operator != "" {
		return fmt.Sprintf("encoding %#v for %s: %v", e.Value, e.Operator, e.Err)
	}

	return fmt.Sprintf("encoding %#v: %v", e.Value, e.Err)
}

// Unwrap returns the underlying cause.
func (e *EncodingError) Unwrap() error {
	return e.Err
}

// RenderError reports an expression that could not be rendered. Label names
// the offending field.
type RenderError struct {
	Label    string
	Operator Operator
	Err      error
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	if e.Operator != "" {
		return fmt.Sprintf("rendering query: field %q (%s): %v", e.Label, e.Operator, e.Err)
	}

	return fmt.Sprintf("rendering query: field %q: %v", e.Label, e.Err)
}

// Unwrap returns the underlying cause.
func (e *RenderError) Unwrap() error {
	return e.Err
}

// IsEncodingError reports whether err carries an EncodingError.
func IsEncodingError(err error) bool {
	encErr := &EncodingError{}

	return errors.As(err, &encErr)
}

// IsRenderError reports whether err carries a RenderError.
func IsRenderError(err error) bool {
	renderErr := &RenderError{}

	return errors.As(err, &renderErr)
}
