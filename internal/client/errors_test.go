package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
	"testing"
)

func asDeviceError(err error, target **DeviceError) bool {
	return errors.As(err, target)
}

func TestClassifyNetworkError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantType  ErrorType
		wantSub   NetworkErrorSubtype
		retryable bool
	}{
		{
			name:      "timeout",
			err:       &url.Error{Op: "Get", URL: "http://dev", Err: context.DeadlineExceeded},
			wantType:  ErrTypeTimeout,
			retryable: true,
		},
		{
			name:     "dns",
			err:      &url.Error{Op: "Get", URL: "http://dev", Err: &net.DNSError{Name: "dev.local", Err: "no such host"}},
			wantType: ErrTypeDNS,
		},
		{
			name:      "refused",
			err:       &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED},
			wantType:  ErrTypeConnectionRefused,
			retryable: true,
		},
		{
			name:      "host unreachable",
			err:       &net.OpError{Op: "dial", Net: "tcp", Err: syscall.EHOSTUNREACH},
			wantType:  ErrTypeNetwork,
			wantSub:   NetworkErrorHostUnreachable,
			retryable: true,
		},
		{
			name:      "network unreachable",
			err:       &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ENETUNREACH},
			wantType:  ErrTypeNetwork,
			wantSub:   NetworkErrorNetworkUnreachable,
			retryable: true,
		},
		{
			name:      "other",
			err:       fmt.Errorf("boom"),
			wantType:  ErrTypeNetwork,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			de := ClassifyNetworkError(tt.err, "dev:80")
			if de.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", de.Type, tt.wantType)
			}
			if de.NetworkSubtype != tt.wantSub {
				t.Errorf("NetworkSubtype = %v, want %v", de.NetworkSubtype, tt.wantSub)
			}
			if de.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", de.Retryable, tt.retryable)
			}
			if de.Host != "dev:80" {
				t.Errorf("Host = %s", de.Host)
			}
			if !IsNetworkError(de) {
				t.Error("IsNetworkError() = false")
			}
		})
	}

	if ClassifyNetworkError(nil, "") != nil {
		t.Error("ClassifyNetworkError(nil) should be nil")
	}
}

func TestNewHTTPError(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantMsg    string
		wantRemote string
		retryable  bool
	}{
		{"json body", 400, `{"error":"upload size missing or zero","type":"Upload Protocol Error"}`, "upload size missing or zero", "Upload Protocol Error", false},
		{"text body", 404, "404 page not found", "404 page not found", "", false},
		{"empty body", 503, "", "unexpected status code: 503", "", true},
		{"internal", 500, `{"error":"x","type":"Storage Error"}`, "x", "Storage Error", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			de := NewHTTPError(tt.status, []byte(tt.body))
			if de.Message != tt.wantMsg || de.Remote != tt.wantRemote || de.Retryable != tt.retryable {
				t.Errorf("NewHTTPError() = %+v", de)
			}
			if !IsHTTPError(de) {
				t.Error("IsHTTPError() = false")
			}
		})
	}
}

func TestDeviceErrorUnwrap(t *testing.T) {
	cause := errors.New("cause")
	err := fmt.Errorf("wrapped: %w", NewParseError("bad json", cause))

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if !strings.Contains(err.Error(), "Parse Error: bad json") {
		t.Errorf("Error() = %s", err)
	}
}

func TestHints(t *testing.T) {
	tests := []struct {
		err       error
		wantHint  string
		wantShort string
	}{
		{NewAuthError("denied"), "Authentication failed", "Authentication failed"},
		{&DeviceError{Type: ErrTypeTimeout}, "did not respond", "timeout"},
		{&DeviceError{Type: ErrTypeNetwork, NetworkSubtype: NetworkErrorNetworkUnreachable}, "access point", "WiFi"},
		{NewHTTPError(413, nil), "larger than the device accepts", "HTTP 413"},
		{errors.New("plain"), "unexpected error", "plain"},
	}
	for _, tt := range tests {
		if hint := GetTroubleshootingHint(tt.err); !strings.Contains(hint, tt.wantHint) {
			t.Errorf("GetTroubleshootingHint(%v) = %q, want %q", tt.err, hint, tt.wantHint)
		}
		if short := GetShortErrorMessage(tt.err); !strings.Contains(short, tt.wantShort) {
			t.Errorf("GetShortErrorMessage(%v) = %q, want %q", tt.err, short, tt.wantShort)
		}
	}
}
