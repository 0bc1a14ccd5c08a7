package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures so callers can branch on them
// without string-matching error messages.
type ErrorKind string

const (
	KindInvalidURL         ErrorKind = "InvalidUrl"
	KindNetworkError       ErrorKind = "NetworkError"
	KindProbeFailed        ErrorKind = "ProbeFailed"
	KindIOError            ErrorKind = "IoError"
	KindOutOfSpace         ErrorKind = "OutOfSpace"
	KindPermissionDenied   ErrorKind = "PermissionDenied"
	KindCancelled          ErrorKind = "Cancelled"
	KindPauseRequested     ErrorKind = "PauseRequested"
	KindRetryExhausted     ErrorKind = "RetryExhausted"
	KindStoreCorrupt       ErrorKind = "StoreCorrupt"
	KindUnsupportedPlatform ErrorKind = "UnsupportedPlatform"
	KindResourceChanged    ErrorKind = "ResourceChanged"
)

// EngineError is the wrapped error type surfaced across package boundaries.
// Transient marks NetworkError instances from connection, read, or stall
// failures, as opposed to an unexpected HTTP status; it is meaningless for
// other kinds. The scheduler retries every failed worker pass regardless.
type EngineError struct {
	Kind       ErrorKind
	Status     int // HTTP status for ProbeFailed, 0 otherwise
	Transient  bool
	Err        error
}

func (e *EngineError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *EngineError) Unwrap() error { return e.Err }

func NewError(kind ErrorKind, err error) *EngineError {
	return &EngineError{Kind: kind, Err: err}
}

func NewProbeFailed(status int) *EngineError {
	return &EngineError{Kind: KindProbeFailed, Status: status, Err: fmt.Errorf("unexpected status %d", status)}
}

func NewTransientNetworkError(err error) *EngineError {
	return &EngineError{Kind: KindNetworkError, Transient: true, Err: err}
}

func NewFatalNetworkError(err error) *EngineError {
	return &EngineError{Kind: KindNetworkError, Transient: false, Err: err}
}

// NewResourceChanged wraps err for a resume whose re-probe found the
// server's resource no longer matches what was persisted (different size
// or ETag), per §4.7's resume_interrupted(id) identity check.
func NewResourceChanged(err error) *EngineError {
	return &EngineError{Kind: KindResourceChanged, Err: err}
}

// Sentinel signals for normal suspend/terminal paths. These are not failures.
var (
	ErrCancelled      = errors.New("cancelled")
	ErrPauseRequested = errors.New("pause requested")
)

// IsTransient reports whether err is a NetworkError marked Transient.
func IsTransient(err error) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind == KindNetworkError && ee.Transient
	}
	return false
}

// Kind extracts the ErrorKind from err, or "" if err isn't an *EngineError.
func Kind(err error) ErrorKind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}
