package clamd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

// Error codes for machine-readable error classification.
const (
	CodeConnectTimeout = "connect_timeout"
	CodeTimeout        = "timeout"
	CodeTransport      = "transport_error"
	CodeAborted        = "aborted_scan"
	CodeInvalidTarget  = "invalid_target"
	CodeFileSystem     = "filesystem_error"
	CodeProtocol       = "protocol_error"
	CodeValidation     = "validation_error"
)

// Error is the base error type for all SDK errors.
type Error struct {
	// Code is a machine-readable error code.
	Code string
	// Message is a human-readable error description.
	Message string
	// Path is the file or directory the error relates to, if any.
	Path string
	// Reply holds whatever the daemon sent before an aborted scan.
	Reply []byte
	// Cause is the underlying error, if any.
	Cause error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	msg := e.Message
	if e.Code == CodeAborted {
		msg = fmt.Sprintf("%s. Reply from server: %s", msg, e.Reply)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for use with errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewConnectTimeoutError creates an error indicating no connection was made within the timeout.
func NewConnectTimeoutError(msg string, cause error) *Error {
	return &Error{
		Code:    CodeConnectTimeout,
		Message: msg,
		Cause:   cause,
	}
}

// NewTimeoutError creates an error indicating the exchange went idle for longer than the timeout.
func NewTimeoutError(msg string, cause error) *Error {
	return &Error{
		Code:    CodeTimeout,
		Message: msg,
		Cause:   cause,
	}
}

// NewTransportError creates an error indicating a socket level failure.
func NewTransportError(msg string, cause error) *Error {
	return &Error{
		Code:    CodeTransport,
		Message: msg,
		Cause:   cause,
	}
}

// NewAbortedError creates an error indicating the daemon closed the session
// before the local stream was complete. reply is the partial reply received.
func NewAbortedError(reply []byte) *Error {
	return &Error{
		Code:    CodeAborted,
		Message: "scan aborted",
		Reply:   reply,
	}
}

// NewInvalidTargetError creates an error for a scan root that is neither a
// regular file nor a directory.
func NewInvalidTargetError(path string) *Error {
	return &Error{
		Code:    CodeInvalidTarget,
		Message: fmt.Sprintf("%s is not a regular file or directory", path),
		Path:    path,
	}
}

// NewFileSystemError creates an error for a stat, open or read failure.
func NewFileSystemError(msg, path string, cause error) *Error {
	return &Error{
		Code:    CodeFileSystem,
		Message: msg,
		Path:    path,
		Cause:   cause,
	}
}

// NewProtocolError creates an error for data that cannot be put on the wire.
func NewProtocolError(msg string, cause error) *Error {
	return &Error{
		Code:    CodeProtocol,
		Message: msg,
		Cause:   cause,
	}
}

// NewValidationError creates an error indicating invalid input.
func NewValidationError(msg string, cause error) *Error {
	return &Error{
		Code:    CodeValidation,
		Message: msg,
		Cause:   cause,
	}
}

func hasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsConnectTimeoutError reports whether err is or wraps a connect timeout error.
func IsConnectTimeoutError(err error) bool { return hasCode(err, CodeConnectTimeout) }

// IsTimeoutError reports whether err is or wraps an idle timeout error.
func IsTimeoutError(err error) bool { return hasCode(err, CodeTimeout) }

// IsTransportError reports whether err is or wraps a transport error.
func IsTransportError(err error) bool { return hasCode(err, CodeTransport) }

// IsAbortedError reports whether err is or wraps an aborted scan error.
func IsAbortedError(err error) bool { return hasCode(err, CodeAborted) }

// IsInvalidTargetError reports whether err is or wraps an invalid target error.
func IsInvalidTargetError(err error) bool { return hasCode(err, CodeInvalidTarget) }

// IsFileSystemError reports whether err is or wraps a filesystem error.
func IsFileSystemError(err error) bool { return hasCode(err, CodeFileSystem) }

// IsProtocolError reports whether err is or wraps a protocol error.
func IsProtocolError(err error) bool { return hasCode(err, CodeProtocol) }

// IsValidationError reports whether err is or wraps a validation error.
func IsValidationError(err error) bool { return hasCode(err, CodeValidation) }

// classifyDialError maps errors returned while connecting.
func classifyDialError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return NewConnectTimeoutError("timeout connecting to server", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewConnectTimeoutError("timeout connecting to server", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewTransportError("connect canceled", err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return NewTransportError("DNS resolution failed", err)
	}
	return NewTransportError("connection failed", err)
}

// classifyIOError maps errors returned by reads and writes on an established session.
func classifyIOError(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return NewTimeoutError("session idle timeout", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewTimeoutError("session idle timeout", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NewTransportError("session canceled", err)
	}
	return NewTransportError("session failed", err)
}
