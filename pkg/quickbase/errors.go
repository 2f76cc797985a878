package quickbase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/fivetwenty-io/qbclient/pkg/query"
)

// Static errors for err113 compliance.
var (
	ErrConfigRequired        = errors.New("config is required")
	ErrRealmHostnameRequired = errors.New("realm hostname is required")
	ErrUserTokenRequired     = errors.New("user token is required")
	ErrAppNotConfigured      = errors.New("app is not configured")
	ErrTableNotFound         = errors.New("table not found")
	ErrFieldNotFound         = errors.New("field not found")
	ErrDuplicateLabel        = errors.New("field label is not unique")
	ErrAmbiguousName         = errors.New("name matches more than one entry")
	ErrIncompleteResult      = errors.New("query returned fewer records than it reported")
)

// ErrorKind classifies a TransportError.
type ErrorKind int

// Transport failure kinds.
const (
	// KindNetwork is a connection level failure that was not retried.
	KindNetwork ErrorKind = iota
	// KindStatus is a non-retryable HTTP status.
	KindStatus
	// KindRetryExhausted means every attempt hit a transient failure.
	KindRetryExhausted
	// KindDecode is a successful response whose body is not valid JSON.
	KindDecode
	// KindCancelled means the caller's context ended first.
	KindCancelled
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindStatus:
		return "status"
	case KindRetryExhausted:
		return "retry exhausted"
	case KindDecode:
		return "decode"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// APIError is the error body returned by the Quickbase API.
type APIError struct {
	Message     string `json:"message"     yaml:"message"`
	Description string `json:"description" yaml:"description"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Description == "" {
		return e.Message
	}

	return e.Message + ": " + e.Description
}

// TransportError is returned by every failed API call.
type TransportError struct {
	Kind       ErrorKind
	Method     string
	Path       string
	StatusCode int
	Attempts   int
	API        *APIError
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	var builder strings.Builder

	fmt.Fprintf(&builder, "%s %s: %s", e.Method, e.Path, e.Kind)

	if e.StatusCode != 0 {
		fmt.Fprintf(&builder, " (status %d)", e.StatusCode)
	}

	if e.Kind == KindRetryExhausted {
		fmt.Fprintf(&builder, " after %d attempts", e.Attempts)
	}

	if e.API != nil && e.API.Message != "" {
		builder.WriteString(": ")
		builder.WriteString(e.API.Error())
	}

	if e.Err != nil {
		builder.WriteString(": ")
		builder.WriteString(e.Err.Error())
	}

	return builder.String()
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the call later may succeed.
func (e *TransportError) Temporary() bool {
	switch e.Kind {
	case KindNetwork, KindRetryExhausted:
		return true
	case KindStatus:
		return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
	case KindDecode, KindCancelled:
		return false
	default:
		return false
	}
}

// LookupKind classifies a LookupError.
type LookupKind string

// Lookup targets.
const (
	LookupApp   LookupKind = "app"
	LookupTable LookupKind = "table"
	LookupField LookupKind = "field"
)

// LookupError reports a name that could not be resolved against remote
// metadata. Available lists known names to help diagnose typos.
type LookupError struct {
	Kind      LookupKind
	Name      string
	Scope     string
	Available []string
	Err       error
}

// Error implements the error interface.
func (e *LookupError) Error() string {
	msg := fmt.Sprintf("%s %q", e.Kind, e.Name)
	if e.Scope != "" {
		msg += " in " + e.Scope
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

// Unwrap returns the underlying cause.
func (e *LookupError) Unwrap() error {
	return e.Err
}

// Is lets a missing field match query.ErrUnknownField, the error a static
// query.FieldMap reports for the same condition.
func (e *LookupError) Is(target error) bool {
	return target == query.ErrUnknownField && e.Kind == LookupField && errors.Is(e.Err, ErrFieldNotFound)
}

// IsNotFound checks if the error is a 404 response or an unresolved name.
func IsNotFound(err error) bool {
	transportErr := &TransportError{}
	if errors.As(err, &transportErr) {
		return transportErr.Kind == KindStatus && transportErr.StatusCode == http.StatusNotFound
	}

	lookupErr := &LookupError{}
	if errors.As(err, &lookupErr) {
		return errors.Is(lookupErr, ErrTableNotFound) ||
			errors.Is(lookupErr, ErrFieldNotFound) ||
			errors.Is(lookupErr, ErrAppNotConfigured)
	}

	return false
}

// IsRateLimited checks if the error carries a 429 status.
func IsRateLimited(err error) bool {
	transportErr := &TransportError{}
	if errors.As(err, &transportErr) {
		return transportErr.StatusCode == http.StatusTooManyRequests
	}

	return false
}

// IsRetryExhausted checks if the transport gave up after its attempt budget.
func IsRetryExhausted(err error) bool {
	transportErr := &TransportError{}
	if errors.As(err, &transportErr) {
		return transportErr.Kind == KindRetryExhausted
	}

	return false
}

// IsCancelled checks if the call was aborted by its context.
func IsCancelled(err error) bool {
	transportErr := &TransportError{}
	if errors.As(err, &transportErr) && transportErr.Kind == KindCancelled {
		return true
	}

	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IsLookupError checks if the error is a LookupError.
func IsLookupError(err error) bool {
	lookupErr := &LookupError{}

	return errors.As(err, &lookupErr)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	transportErr := &TransportError{}
	if errors.As(err, &transportErr) {
		return transportErr.StatusCode
	}

	return 0
}
