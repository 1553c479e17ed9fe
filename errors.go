package dblk

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// Sub-operation results follow the errno convention used on the wire:
// a non-negative value is a byte count, a negative value is -errno.

// ResultExists is the benign-duplicate sentinel (-EEXIST). A backend
// reports it when a sub-operation was already satisfied; it never
// latches as the request error.
const ResultExists = -int64(unix.EEXIST)

// ErrnoResult converts an errno into a negative result value.
func ErrnoResult(errno syscall.Errno) int64 {
	return -int64(errno)
}

// ResultErrno extracts the errno from a negative result value.
// Returns 0 for non-negative results.
func ResultErrno(r int64) syscall.Errno {
	if r >= 0 {
		return 0
	}
	return syscall.Errno(-r)
}

// ResultToErr maps a signed result value to an error. Non-negative
// results map to nil.
func ResultToErr(op string, r int64) error {
	if r >= 0 {
		return nil
	}
	errno := ResultErrno(r)
	return &Error{
		Op:    op,
		Code:  mapErrnoToCode(errno),
		Errno: errno,
		Msg:   errno.Error(),
	}
}

// Error represents a structured dblk error with context and errno mapping
type Error struct {
	Op    string        // Operation that failed (e.g., "read", "open")
	Image string        // Image name ("" if not applicable)
	Code  ErrorCode     // High-level error category
	Errno syscall.Errno // Wire errno (0 if not applicable)
	Msg   string        // Human-readable message
	Inner error         // Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	switch {
	case e.Op != "" && e.Image != "":
		return fmt.Sprintf("dblk: %s (op=%s image=%s)", msg, e.Op, e.Image)
	case e.Op != "":
		return fmt.Sprintf("dblk: %s (op=%s)", msg, e.Op)
	default:
		return fmt.Sprintf("dblk: %s", msg)
	}
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support for code and errno comparison
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}

	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}

	if errno, ok := target.(syscall.Errno); ok {
		return e.Errno == errno
	}

	return false
}

// ErrorCode represents high-level error categories
type ErrorCode string

const (
	ErrCodeInvalidParameters ErrorCode = "invalid parameters"
	ErrCodeOutOfRange        ErrorCode = "request beyond image bounds"
	ErrCodeImageClosed       ErrorCode = "image closed"
	ErrCodeCompareMismatch   ErrorCode = "compare-and-write mismatch"
	ErrCodeIOError           ErrorCode = "I/O error"
	ErrCodeShuttingDown      ErrorCode = "shutting down"
)

// NewError creates a new structured error
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{
		Op:   op,
		Code: code,
		Msg:  msg,
	}
}

// NewImageError creates a new image-specific error
func NewImageError(op, image string, code ErrorCode, msg string) *Error {
	return &Error{
		Op:    op,
		Image: image,
		Code:  code,
		Msg:   msg,
	}
}

// WrapError wraps an existing error with dblk context
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	// If it's already a structured error, just update the operation
	if de, ok := inner.(*Error); ok {
		return &Error{
			Op:    op,
			Image: de.Image,
			Code:  de.Code,
			Errno: de.Errno,
			Msg:   de.Msg,
			Inner: de.Inner,
		}
	}

	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{
			Op:    op,
			Code:  mapErrnoToCode(errno),
			Errno: errno,
			Msg:   errno.Error(),
			Inner: inner,
		}
	}

	return &Error{
		Op:    op,
		Code:  ErrCodeIOError,
		Msg:   inner.Error(),
		Inner: inner,
	}
}

// mapErrnoToCode maps wire errnos to dblk error codes
func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case unix.EINVAL, unix.E2BIG:
		return ErrCodeInvalidParameters
	case unix.ERANGE:
		return ErrCodeOutOfRange
	case unix.ESHUTDOWN, unix.ENODEV:
		return ErrCodeImageClosed
	case unix.EILSEQ:
		return ErrCodeCompareMismatch
	default:
		return ErrCodeIOError
	}
}
