package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Error types shared by the bootstrap, captive and update subsystems

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a station connection timeout or access point start failure
	ErrTypeNetwork ErrorType = iota
	// ErrTypeCapture indicates the captive DNS responder could not bind
	ErrTypeCapture
	// ErrTypeUploadProtocol indicates a malformed or out-of-order firmware upload
	ErrTypeUploadProtocol
	// ErrTypeStorage indicates an open/write/finalize failure from the flash region
	ErrTypeStorage
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeCapture:
		return "Capture Error"
	case ErrTypeUploadProtocol:
		return "Upload Protocol Error"
	case ErrTypeStorage:
		return "Storage Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Error is the single error type surfaced by the device core.
type Error struct {
	Type    ErrorType // Category of error
	Op      string    // Operation that failed (e.g. "open", "finalize", "connect")
	Message string    // Human-readable error message
	Err     error     // Underlying error (if any)

	// Status is the HTTP status an upload handler should answer with.
	// Zero means 500.
	Status int
}

// Error implements the error interface
func (e *Error) Error() string {
	prefix := e.Type.String()
	if e.Op != "" {
		prefix += " (" + e.Op + ")"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the status code a handler should reply with for this error.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}

// NewNetworkError creates a network-level error
func NewNetworkError(op, message string, err error) *Error {
	return &Error{Type: ErrTypeNetwork, Op: op, Message: message, Err: err}
}

// NewCaptureError creates a captive DNS error
func NewCaptureError(message string, err error) *Error {
	return &Error{Type: ErrTypeCapture, Op: "dns", Message: message, Err: err}
}

// NewProtocolError creates an upload protocol error answered with the given HTTP status
func NewProtocolError(status int, message string) *Error {
	return &Error{Type: ErrTypeUploadProtocol, Op: "upload", Message: message, Status: status}
}

// NewStorageError creates a flash storage error
func NewStorageError(op, message string, err error) *Error {
	return &Error{Type: ErrTypeStorage, Op: op, Message: message, Err: err}
}

// TypeOf reports the ErrorType of err and whether err carries one.
func TypeOf(err error) (ErrorType, bool) {
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Type, true
	}
	return 0, false
}

// IsNetworkError checks if an error is a network error
func IsNetworkError(err error) bool {
	t, ok := TypeOf(err)
	return ok && t == ErrTypeNetwork
}

// IsCaptureError checks if an error is a captive DNS error
func IsCaptureError(err error) bool {
	t, ok := TypeOf(err)
	return ok && t == ErrTypeCapture
}

// IsProtocolError checks if an error is an upload protocol error
func IsProtocolError(err error) bool {
	t, ok := TypeOf(err)
	return ok && t == ErrTypeUploadProtocol
}

// IsStorageError checks if an error is a storage error
func IsStorageError(err error) bool {
	t, ok := TypeOf(err)
	return ok && t == ErrTypeStorage
}

// StatusFor maps any error to the HTTP status a handler should answer with.
func StatusFor(err error) int {
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}
