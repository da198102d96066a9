// Package errors defines the error taxonomy used across the poller.
// AppError carries a kind so callers can decide between retrying, recording and aborting.
package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError represents a classified failure
type AppError struct {
	Kind    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error kinds
const (
	KindConfigInvalid   = "CONFIG_INVALID"
	KindTransientRemote = "TRANSIENT_REMOTE"
	KindPermanentRemote = "PERMANENT_REMOTE"
	KindFilesystem      = "FILESYSTEM"
	KindCycle           = "CYCLE"
)

// New creates a new AppError
func New(kind, message string, cause error) *AppError {
	return &AppError{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error. These are fatal at startup.
func NewConfigError(message string, cause error) *AppError {
	return New(KindConfigInvalid, message, cause)
}

// NewTransientRemoteError creates an error for a retryable remote status (429, 503)
func NewTransientRemoteError(status int, cause error) *AppError {
	return New(KindTransientRemote, fmt.Sprintf("remote returned status %d", status), cause)
}

// NewPermanentRemoteError creates an error for a non-retryable remote failure
func NewPermanentRemoteError(message string, cause error) *AppError {
	return New(KindPermanentRemote, message, cause)
}

// NewFilesystemError creates a filesystem error for the given path
func NewFilesystemError(path string, cause error) *AppError {
	return New(KindFilesystem, fmt.Sprintf("filesystem operation failed on %s", path), cause)
}

// NewCycleError creates an error for a failed cycle
func NewCycleError(message string, cause error) *AppError {
	return New(KindCycle, message, cause)
}

// IsKind reports whether any error in err's chain is an AppError of the given kind
func IsKind(err error, kind string) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}
