package store

import (
	"errors"
	"fmt"
)

// Validation and configuration errors.
var (
	// ErrInvalidTopK is returned when a query asks for fewer than one result.
	ErrInvalidTopK = errors.New("top_k must be at least 1")

	// ErrUnscopedDelete is returned when delete is called without ids or filters.
	ErrUnscopedDelete = errors.New("delete requires ids or filters")

	// ErrDimensionMismatch is returned when a vector or an existing table does
	// not match the configured dimensionality.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrInvalidNamespace is returned for a namespace the adapter cannot key unambiguously.
	ErrInvalidNamespace = errors.New("invalid namespace")

	// ErrReservedKey is returned when metadata uses a key the adapter reserves.
	ErrReservedKey = errors.New("metadata key is reserved")

	// ErrUnsupportedFilter is returned for filter values the engine cannot match exactly.
	ErrUnsupportedFilter = errors.New("unsupported filter value")

	// ErrUnknownBackend is returned by the factory for an unrecognized backend name.
	ErrUnknownBackend = errors.New("unknown store backend")

	// ErrClosed is returned when an operation is attempted on a closed store.
	ErrClosed = errors.New("store is closed")
)

// OpError wraps an engine error with the backend and operation that produced it.
type OpError struct {
	Backend string
	Op      string
	Err     error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// WrapError wraps err with operation context. A nil err stays nil.
func WrapError(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &OpError{Backend: backend, Op: op, Err: err}
}

// IsValidation reports whether err is one of the validation errors that are
// raised before any engine I/O.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidTopK) ||
		errors.Is(err, ErrUnscopedDelete) ||
		errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrInvalidNamespace) ||
		errors.Is(err, ErrReservedKey) ||
		errors.Is(err, ErrUnsupportedFilter)
}
