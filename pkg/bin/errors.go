package bin

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a failure. The transport layer maps each kind to a status
// code in one place.
type Kind int

const (
	// KindInternal is any failure that is not otherwise classified.
	KindInternal Kind = iota

	// KindNotFound means no bin exists for the public code.
	KindNotFound

	// KindExpired means the bin exists but its lifetime has passed.
	KindExpired

	// KindLimitExceeded means the bin reached its MaxRequests quota.
	KindLimitExceeded

	// KindRateLimited means the caller's token bucket is empty.
	KindRateLimited

	// KindAllocationExhausted means no unique public code could be generated.
	KindAllocationExhausted

	// KindValidation means the caller supplied invalid parameters.
	KindValidation

	// KindStorage means the storage backend failed.
	KindStorage
)

var kindNames = map[Kind]string{
	KindInternal:            "internal_error",
	KindNotFound:            "bin_not_found",
	KindExpired:             "bin_expired",
	KindLimitExceeded:       "bin_limit_exceeded",
	KindRateLimited:         "rate_limit_exceeded",
	KindAllocationExhausted: "allocation_exhausted",
	KindValidation:          "validation_failed",
	KindStorage:             "storage_error",
}

// String returns the stable machine-readable reason for the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the domain error returned by bin operations.
type Error struct {
	Kind    Kind
	Code    string // public code of the bin involved, if any
	Message string

	// Populated for KindLimitExceeded.
	Max     int
	Current int

	// Populated for KindExpired.
	ExpiresAt time.Time

	// Populated for KindRateLimited.
	RetryAfter time.Duration

	// Populated for KindValidation.
	Fields []FieldError

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so errors.Is(err, ErrNotFound)
// works for any not-found error regardless of its detail fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Code == "" && t.Message == ""
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrExpired             = &Error{Kind: KindExpired}
	ErrLimitExceeded       = &Error{Kind: KindLimitExceeded}
	ErrRateLimited         = &Error{Kind: KindRateLimited}
	ErrAllocationExhausted = &Error{Kind: KindAllocationExhausted}
	ErrValidation          = &Error{Kind: KindValidation}
)

// KindOf returns the kind of err. Storage errors map to KindStorage and any
// other error to KindInternal.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	var se *StorageError
	if errors.As(err, &se) {
		return KindStorage
	}
	return KindInternal
}

// NotFound returns a KindNotFound error for the given public code.
func NotFound(code string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    code,
		Message: fmt.Sprintf("bin not found: %s", code),
	}
}

// Expired returns a KindExpired error for a bin.
func Expired(b *Bin) *Error {
	return &Error{
		Kind:      KindExpired,
		Code:      b.PublicCode,
		Message:   fmt.Sprintf("bin %s expired at %s", b.PublicCode, b.ExpiresAt.UTC().Format(time.RFC3339)),
		ExpiresAt: b.ExpiresAt,
	}
}

// LimitExceeded returns a KindLimitExceeded error carrying the quota state.
func LimitExceeded(b *Bin) *Error {
	return &Error{
		Kind:    KindLimitExceeded,
		Code:    b.PublicCode,
		Message: fmt.Sprintf("bin %s reached its limit of %d requests", b.PublicCode, b.MaxRequests),
		Max:     b.MaxRequests,
		Current: b.RequestCount,
	}
}

// RateLimited returns a KindRateLimited error.
func RateLimited(policy string, retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Message:    fmt.Sprintf("rate limit exceeded for %s", policy),
		RetryAfter: retryAfter,
	}
}

// Validation returns a KindValidation error for the given field errors.
func Validation(fields ...FieldError) *Error {
	msg := "invalid input parameters"
	if len(fields) == 1 {
		msg = fmt.Sprintf("%s: %s", fields[0].Field, fields[0].Message)
	}
	return &Error{
		Kind:    KindValidation,
		Message: msg,
		Fields:  fields,
	}
}

// StorageError represents an error from the storage backend.
type StorageError struct {
	Backend   string // "sqlite", "memory"
	Operation string // "create_bin", "reserve_slot", ...
	Cause     error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}
