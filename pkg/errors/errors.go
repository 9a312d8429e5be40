// Package errors provides the structured error system for OSFFS with typed
// failure categories and a retryability classification derived from the OSF
// API response.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode identifies a failure category.
type ErrorCode string

const (
	// HTTP-mapped categories
	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED" // 401
	ErrCodePermissionDenied     ErrorCode = "PERMISSION_DENIED"     // 403
	ErrCodeNotFound             ErrorCode = "NOT_FOUND"             // 404
	ErrCodeConflict             ErrorCode = "CONFLICT"              // 409
	ErrCodeQuotaExceeded        ErrorCode = "QUOTA_EXCEEDED"        // 413
	ErrCodeFileLocked           ErrorCode = "FILE_LOCKED"           // 423
	ErrCodeRateLimited          ErrorCode = "RATE_LIMITED"          // 429
	ErrCodeServerTransient      ErrorCode = "SERVER_TRANSIENT"      // 5xx
	ErrCodeClientError          ErrorCode = "CLIENT_ERROR"          // other 4xx

	// Transport-level categories
	ErrCodeNetworkError     ErrorCode = "NETWORK_ERROR"
	ErrCodeOperationTimeout ErrorCode = "OPERATION_TIMEOUT"

	// Locally detected categories
	ErrCodeIntegrityMismatch    ErrorCode = "INTEGRITY_MISMATCH"
	ErrCodeUnsupportedOperation ErrorCode = "UNSUPPORTED_OPERATION"
	ErrCodePreconditionFailed   ErrorCode = "PRECONDITION_FAILED"
	ErrCodeInvalidConfig        ErrorCode = "INVALID_CONFIG"
)

// OSFError is a structured error carrying a failure category, the operation
// and path involved, and a retryability flag consumed by the retry layer.
//
// Messages must never contain the access token; the transport is the only
// component that sees it and never copies it into an error.
type OSFError struct {
	Code       ErrorCode
	Message    string
	Op         string // operation attempted, e.g. "stat", "upload", "copy"
	Path       string // remote path(s) involved
	HTTPStatus int    // zero when the failure never reached the API
	Retryable  bool

	// RetryAfter carries the server's explicit wait hint from a 429
	// response. Zero means no hint was given.
	RetryAfter time.Duration

	Cause error
}

// Error implements the error interface.
func (e *OSFError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	switch {
	case e.Op != "" && e.Path != "":
		return fmt.Sprintf("%s %s: %s: %s", e.Op, e.Path, e.Code, msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
	default:
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *OSFError) Unwrap() error {
	return e.Cause
}

// Is matches two OSFErrors by code so sentinel-style comparisons work.
func (e *OSFError) Is(target error) bool {
	if t, ok := target.(*OSFError); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates an OSFError with the default retryability for its code.
func New(code ErrorCode, message string) *OSFError {
	return &OSFError{
		Code:      code,
		Message:   message,
		Retryable: retryableByDefault(code),
	}
}

// Wrap creates an OSFError around an underlying cause.
func Wrap(code ErrorCode, message string, cause error) *OSFError {
	e := New(code, message)
	e.Cause = cause
	return e
}

// WithOp attaches the attempted operation.
func (e *OSFError) WithOp(op string) *OSFError {
	e.Op = op
	return e
}

// WithPath attaches the remote path involved.
func (e *OSFError) WithPath(path string) *OSFError {
	e.Path = path
	return e
}

// FromStatusCode classifies an OSF API response status into an error
// category. detail is the server-supplied message, already stripped of any
// credential material by the transport.
func FromStatusCode(status int, detail string) *OSFError {
	code := classify(status)
	if detail == "" {
		detail = fmt.Sprintf("OSF API returned status %d", status)
	}
	e := New(code, detail)
	e.HTTPStatus = status
	return e
}

func classify(status int) ErrorCode {
	switch status {
	case 401:
		return ErrCodeAuthenticationFailed
	case 403:
		return ErrCodePermissionDenied
	case 404, 410:
		return ErrCodeNotFound
	case 409:
		return ErrCodeConflict
	case 413:
		return ErrCodeQuotaExceeded
	case 423:
		return ErrCodeFileLocked
	case 429:
		return ErrCodeRateLimited
	}
	if status >= 500 {
		return ErrCodeServerTransient
	}
	return ErrCodeClientError
}

// retryableByDefault keeps the retry policy decoupled from the error's
// nominal type: only transient server failures, throttling, and
// transport-level network/timeout failures are worth another attempt.
func retryableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeServerTransient, ErrCodeRateLimited,
		ErrCodeNetworkError, ErrCodeOperationTimeout:
		return true
	}
	return false
}

// CodeOf extracts the category from an error chain, or the empty string when
// the chain holds no OSFError.
func CodeOf(err error) ErrorCode {
	var e *OSFError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsRetryable reports whether err should be retried.
func IsRetryable(err error) bool {
	var e *OSFError
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// IsNotFound reports whether err classifies as NotFound.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsConflict reports whether err classifies as Conflict.
func IsConflict(err error) bool {
	return CodeOf(err) == ErrCodeConflict
}

// IsRateLimited reports whether err classifies as RateLimited.
func IsRateLimited(err error) bool {
	return CodeOf(err) == ErrCodeRateLimited
}

// RetryAfterHint extracts the server wait hint from an error chain. Zero
// means the server gave none.
func RetryAfterHint(err error) time.Duration {
	var e *OSFError
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}
