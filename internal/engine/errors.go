package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/veil/internal/namespace"
)

// InterceptError describes an engine-side failure.
//
// Intercept errors never reach callers of intercepted functions. They are
// recorded on the affected rule, journalled, and logged in debug mode.
// Callers of public engine operations see a bool.
type InterceptError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Path is the rule path the error relates to.
	Path string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes intercept errors.
type ErrorCode string

const (
	// ErrCodeInvalidRule indicates a registration with an unusable path.
	ErrCodeInvalidRule ErrorCode = "INVALID_RULE"

	// ErrCodePathNotFound indicates a path segment was absent or not a container.
	ErrCodePathNotFound ErrorCode = "PATH_NOT_FOUND"

	// ErrCodeNotCallable indicates the resolved value cannot be wrapped.
	ErrCodeNotCallable ErrorCode = "NOT_CALLABLE"

	// ErrCodeObserverFailure indicates an observer returned an error or panicked.
	ErrCodeObserverFailure ErrorCode = "OBSERVER_FAILURE"

	// ErrCodeReentrant indicates a path was mutated while it was being applied.
	ErrCodeReentrant ErrorCode = "REENTRANT"
)

// Error implements the error interface.
func (e *InterceptError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Path != "" {
		msg = fmt.Sprintf("%s (path=%s)", msg, e.Path)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *InterceptError) Unwrap() error {
	return e.Err
}

func newInterceptError(code ErrorCode, path, message string, cause error) *InterceptError {
	return &InterceptError{Code: code, Path: path, Message: message, Err: cause}
}

func hasCode(err error, code ErrorCode) bool {
	var ie *InterceptError
	if errors.As(err, &ie) {
		return ie.Code == code
	}
	return false
}

// IsInvalidRule reports whether err is an INVALID_RULE error.
func IsInvalidRule(err error) bool { return hasCode(err, ErrCodeInvalidRule) }

// IsPathNotFound reports whether err is a PATH_NOT_FOUND error.
func IsPathNotFound(err error) bool { return hasCode(err, ErrCodePathNotFound) }

// IsNotCallable reports whether err is a NOT_CALLABLE error.
func IsNotCallable(err error) bool { return hasCode(err, ErrCodeNotCallable) }

// IsObserverFailure reports whether err is an OBSERVER_FAILURE error.
func IsObserverFailure(err error) bool { return hasCode(err, ErrCodeObserverFailure) }

// IsReentrant reports whether err is a REENTRANT error.
func IsReentrant(err error) bool { return hasCode(err, ErrCodeReentrant) }

// IsInvalidInvocation reports whether err is the error a constructible
// returns when called without construction. Wrapped constructibles return
// the same error type as native ones.
func IsInvalidInvocation(err error) bool {
	return namespace.IsInvocationError(err)
}

// PanicError carries a value recovered from an observer panic.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("observer panicked: %v", e.Value)
}
