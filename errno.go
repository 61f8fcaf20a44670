package tcp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"syscall"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrorCode is the closed taxonomy of errors a socket operation can report.
// Unlike a native errno, this set is intentionally small: callers branch on
// it directly instead of comparing against platform-specific constants.
type ErrorCode uint8

const (
	Unknown ErrorCode = iota
	AccessDenied
	NotSupported
	InvalidArgument
	OutOfMemory
	Timeout
	ConcurrencyConflict
	NotInProgress
	WouldBlock
	InvalidState
	NewSocketLimit
	AddressNotBindable
	AddressInUse
	RemoteUnreachable
	ConnectionRefused
	ConnectionReset
	ConnectionAborted
	DatagramTooLarge
)

var errorCodeNames = [...]string{
	Unknown:             "unknown",
	AccessDenied:        "access-denied",
	NotSupported:        "not-supported",
	InvalidArgument:     "invalid-argument",
	OutOfMemory:         "out-of-memory",
	Timeout:             "timeout",
	ConcurrencyConflict: "concurrency-conflict",
	NotInProgress:       "not-in-progress",
	WouldBlock:          "would-block",
	InvalidState:        "invalid-state",
	NewSocketLimit:      "new-socket-limit",
	AddressNotBindable:  "address-not-bindable",
	AddressInUse:        "address-in-use",
	RemoteUnreachable:   "remote-unreachable",
	ConnectionRefused:   "connection-refused",
	ConnectionReset:     "connection-reset",
	ConnectionAborted:   "connection-aborted",
	DatagramTooLarge:    "datagram-too-large",
}

func (c ErrorCode) String() string {
	if int(c) < len(errorCodeNames) {
		return errorCodeNames[c]
	}
	return fmt.Sprintf("ErrorCode(%d)", uint8(c))
}

// Error wraps an ErrorCode with the underlying cause, when one is known.
// Guest-facing operations report the Code; the cause is kept for logging
// and for %w-based unwrapping in tests.
type Error struct {
	Code  ErrorCode
	cause error
}

func NewError(code ErrorCode) *Error { return &Error{Code: code} }

func wrapError(code ErrorCode, cause error) *Error { return &Error{Code: code, cause: cause} }

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.cause)
	}
	return e.Code.String()
}

func (e *Error) Unwrap() error { return e.cause }

// Is allows errors.Is(err, SomeErrorCode) style comparisons by treating a
// bare ErrorCode value as a sentinel.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case ErrorCode:
		return e.Code == t
	case *Error:
		return e.Code == t.Code
	default:
		return false
	}
}

func (c ErrorCode) Error() string { return c.String() }

// asError is a small type-assertion helper shared by the unix socket
// backend and by tests: errors crossing the SystemSocket
// boundary are always already-wrapped *Error values by the time a caller
// wants to branch on their Code, never a raw errno.
func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if ok {
		*target = e
	}
	return ok
}

// debugLogger receives a structured record whenever an error could not be
// classified more precisely than Unknown. It defaults to a no-op logger;
// embedders wire in their own sink with SetDebugLogger.
var debugLogger = zap.NewNop()

func SetDebugLogger(l *zap.Logger) {
	if l != nil {
		debugLogger = l
	}
}

// errorFromIOError converts a generic Go error - anything that might come
// back from a syscall, from the standard net package, or from context
// cancellation - into the closed ErrorCode taxonomy. Conditions that don't
// match any known mapping fall through to Unknown, with a stack trace
// recorded at debug level so the gap can be diagnosed without panicking the
// caller over a single unrecognized errno.
func errorFromIOError(err error) *Error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}

	var sysErrno syscall.Errno
	if errors.As(err, &sysErrno) {
		return wrapError(errnoToErrorCode(sysErrno), err)
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return wrapError(Timeout, err)
	case errors.Is(err, net.ErrClosed), errors.Is(err, fs.ErrClosed):
		return wrapError(InvalidState, err)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errorFromIOError(opErr.Err)
	}

	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return wrapError(Timeout, err)
	}

	traced := pkgerrors.WithStack(err)
	debugLogger.Debug("socket error fell through to Unknown", zap.Error(traced))
	return wrapError(Unknown, err)
}
