package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error
	ErrTypeNetwork ErrorType = iota
	// ErrTypeAuth indicates an authentication failure (invalid credentials)
	ErrTypeAuth
	// ErrTypeHTTP indicates the device answered with an error status
	ErrTypeHTTP
	// ErrTypeParse indicates a malformed response
	ErrTypeParse
	// ErrTypeValidation indicates a request rejected before it was sent
	ErrTypeValidation
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates the device refused the connection
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
)

// NetworkErrorSubtype provides more specific network error classification
type NetworkErrorSubtype int

const (
	NetworkErrorGeneral NetworkErrorSubtype = iota
	NetworkErrorHostUnreachable
	NetworkErrorNetworkUnreachable
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeAuth:
		return "Authentication Error"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeParse:
		return "Parse Error"
	case ErrTypeValidation:
		return "Validation Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// DeviceError is an error talking to a devadmin device
type DeviceError struct {
	Type           ErrorType
	Message        string
	StatusCode     int    // HTTP status code (if applicable)
	Remote         string // error reported by the device, e.g. "Upload Protocol Error"
	Err            error
	NetworkSubtype NetworkErrorSubtype
	Host           string
	Retryable      bool
}

// Error implements the error interface
func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError analyzes a transport error
func ClassifyNetworkError(err error, host string) *DeviceError {
	if err == nil {
		return nil
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}

	de := &DeviceError{Type: ErrTypeNetwork, Message: "network error occurred", Err: err, Host: host, Retryable: true}

	var dnsErr *net.DNSError
	var opErr *net.OpError
	switch {
	case os.IsTimeout(err):
		de.Type = ErrTypeTimeout
		de.Message = "request timed out"
	case errors.As(err, &dnsErr):
		de.Type = ErrTypeDNS
		de.Message = "DNS resolution failed for " + dnsErr.Name
		de.Retryable = false
	case errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ECONNREFUSED):
		de.Type = ErrTypeConnectionRefused
		de.Message = "device refused connection"
	case errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.EHOSTUNREACH):
		de.Message = "host unreachable"
		de.NetworkSubtype = NetworkErrorHostUnreachable
	case errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ENETUNREACH):
		de.Message = "network unreachable"
		de.NetworkSubtype = NetworkErrorNetworkUnreachable
	}
	return de
}

// NewNetworkError creates a network-level error with automatic classification
func NewNetworkError(message string, err error) *DeviceError {
	classified := ClassifyNetworkError(err, "")
	if classified == nil {
		return &DeviceError{Type: ErrTypeNetwork, Message: message, Retryable: true}
	}
	classified.Message = message + ": " + classified.Message
	return classified
}

// NewAuthError creates an authentication error
func NewAuthError(message string) *DeviceError {
	return &DeviceError{Type: ErrTypeAuth, Message: message, StatusCode: 401}
}

// NewHTTPError creates an error for a non-success response. body is the
// device's JSON error document, if any.
func NewHTTPError(statusCode int, body []byte) *DeviceError {
	de := &DeviceError{
		Type:       ErrTypeHTTP,
		Message:    fmt.Sprintf("unexpected status code: %d", statusCode),
		StatusCode: statusCode,
		Retryable:  statusCode == 502 || statusCode == 503 || statusCode == 504,
	}
	var doc struct {
		Error string `json:"error"`
		Type  string `json:"type"`
	}
	if json.Unmarshal(body, &doc) == nil && doc.Error != "" {
		de.Message = doc.Error
		de.Remote = doc.Type
	} else if text := strings.TrimSpace(string(body)); text != "" {
		de.Message = text
	}
	return de
}

// NewParseError creates a parsing error
func NewParseError(message string, err error) *DeviceError {
	return &DeviceError{Type: ErrTypeParse, Message: message, Err: err}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *DeviceError {
	return &DeviceError{Type: ErrTypeValidation, Message: message}
}

func typeOf(err error) (ErrorType, bool) {
	var de *DeviceError
	if errors.As(err, &de) {
		return de.Type, true
	}
	return 0, false
}

// IsNetworkError reports a transport failure of any kind
func IsNetworkError(err error) bool {
	t, ok := typeOf(err)
	return ok && (t == ErrTypeNetwork || t == ErrTypeTimeout || t == ErrTypeConnectionRefused || t == ErrTypeDNS)
}

// IsAuthError checks if an error is an authentication error
func IsAuthError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeAuth
}

// IsHTTPError checks if an error is an HTTP error
func IsHTTPError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrTypeHTTP
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	var de *DeviceError
	return errors.As(err, &de) && de.Retryable
}

// GetTroubleshootingHint returns user-friendly troubleshooting advice for an error
func GetTroubleshootingHint(err error) string {
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		return "An unexpected error occurred. Please try again."
	}

	switch devErr.Type {
	case ErrTypeTimeout:
		return strings.Join([]string{
			"The device did not respond in time.",
			"Troubleshooting:",
			"  • Check that the device is powered on",
			"  • If it just restarted, give it a few seconds to rejoin the network",
			"  • Try increasing the timeout duration",
		}, "\n")

	case ErrTypeConnectionRefused:
		return strings.Join([]string{
			"The device refused the connection.",
			"Troubleshooting:",
			"  • The admin server may still be bringing up the network",
			"  • Verify the port number (default is 80)",
			"  • Check the devadmin-server service on the device",
		}, "\n")

	case ErrTypeDNS:
		return strings.Join([]string{
			"Could not resolve the device hostname.",
			"Troubleshooting:",
			"  • Use the IP address instead of the hostname",
			"  • Run 'devadmin-cfg scan' to find devices over mDNS",
		}, "\n")

	case ErrTypeAuth:
		return strings.Join([]string{
			"Authentication failed.",
			"Troubleshooting:",
			"  • Pass --user and --password matching http.username on the device",
			"  • The credentials live in the device's devadmin.yaml",
		}, "\n")

	case ErrTypeNetwork:
		hint := []string{"Network communication failed."}
		switch devErr.NetworkSubtype {
		case NetworkErrorHostUnreachable:
			hint = append(hint, "The device is not reachable on the network.",
				"Troubleshooting:",
				"  • Verify the device address is correct",
				"  • A device that could not join its network starts its own access point; connect to it")
		case NetworkErrorNetworkUnreachable:
			hint = append(hint, "Your computer cannot reach the device's network.",
				"Troubleshooting:",
				"  • Connect to the device's access point (<hostname>-XXXX)",
				"  • Verify WiFi is enabled on your computer")
		default:
			hint = append(hint, "Troubleshooting:",
				"  • Check your network connection",
				"  • Verify the device is powered on")
		}
		return strings.Join(hint, "\n")

	case ErrTypeHTTP:
		switch devErr.StatusCode {
		case 409:
			return "Another firmware upload is already in progress on the device. Wait for it to finish."
		case 413:
			return "The image is larger than the device accepts. Check firmware.capacity in the device config."
		}
		if devErr.StatusCode >= 500 {
			return fmt.Sprintf("The device reported an internal error (HTTP %d). Check its logs.", devErr.StatusCode)
		}
		return fmt.Sprintf("The device rejected the request (HTTP %d).", devErr.StatusCode)

	case ErrTypeParse:
		return "Failed to parse the device's response. The client and server versions may differ."

	case ErrTypeValidation:
		return "The request is invalid. Check the error message for details."

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	var devErr *DeviceError
	if !errors.As(err, &devErr) {
		return err.Error()
	}

	switch devErr.Type {
	case ErrTypeTimeout:
		return "Device not responding (timeout)"
	case ErrTypeConnectionRefused:
		return "Device refused connection"
	case ErrTypeDNS:
		return "Cannot resolve device hostname"
	case ErrTypeAuth:
		return "Authentication failed - check credentials"
	case ErrTypeNetwork:
		switch devErr.NetworkSubtype {
		case NetworkErrorHostUnreachable:
			return "Device unreachable - check network connection"
		case NetworkErrorNetworkUnreachable:
			return "Network unreachable - check WiFi connection"
		default:
			return "Network error - check connection"
		}
	case ErrTypeHTTP:
		return fmt.Sprintf("Device error (HTTP %d): %s", devErr.StatusCode, devErr.Message)
	default:
		return devErr.Message
	}
}
