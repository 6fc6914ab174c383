package client

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zeebo/blake3"

	"github.com/muurk/devadmin/internal/core"
	"github.com/muurk/devadmin/internal/ota"
)

const statusDoc = `{"hostname":"testdev","version":"1.2.3","mode":"access_point","address":"192.168.4.1","uptime_seconds":42,"upload":{"state":"idle"},"image_digest":"abc","captive_dns":true,"subscribers":1}`

func TestNewClient(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"192.168.4.1", "http://192.168.4.1"},
		{"192.168.4.1:8080", "http://192.168.4.1:8080"},
		{"https://dev.local/", "https://dev.local"},
	}
	for _, tt := range tests {
		c := NewClient(tt.in)
		if c.BaseURL != tt.want {
			t.Errorf("NewClient(%q).BaseURL = %s, want %s", tt.in, c.BaseURL, tt.want)
		}
		if c.HTTPClient == nil || c.HTTPClient.Timeout != DefaultTimeout {
			t.Errorf("NewClient(%q) has unexpected HTTP client", tt.in)
		}
	}
}

func TestSetters(t *testing.T) {
	c := NewClient("dev")
	c.SetTimeout(5 * time.Second)
	c.SetAuth("admin", "secret")
	c.SetRetry(7, time.Millisecond)

	if c.HTTPClient.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", c.HTTPClient.Timeout)
	}
	if c.Username != "admin" || c.Password != "secret" {
		t.Errorf("auth = %s/%s", c.Username, c.Password)
	}
	if c.MaxRetries != 7 || c.RetryDelay != time.Millisecond {
		t.Errorf("retry = %d/%v", c.MaxRetries, c.RetryDelay)
	}
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, statusDoc)
	}))
	defer srv.Close()

	st, err := NewClient(srv.URL).Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Hostname != "testdev" || st.Mode != core.ModeAccessPointFallback {
		t.Errorf("Status() = %+v", st)
	}
	if st.Upload.State != ota.StateIdle {
		t.Errorf("Upload.State = %v, want idle", st.Upload.State)
	}
	if !st.CaptiveDNS || st.UptimeSeconds != 42 {
		t.Errorf("Status() = %+v", st)
	}
}

func TestStatusRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, statusDoc)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.SetRetry(3, time.Millisecond)

	if _, err := c.Status(context.Background()); err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestStatusNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.SetRetry(3, time.Millisecond)

	_, err := c.Status(context.Background())
	if !IsAuthError(err) {
		t.Fatalf("Status() error = %v, want auth error", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestBasicAuthSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != "admin" || p != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"networks":[{"ssid":"home","signal":70,"security":"WPA2","bssid":"aa","channel":6}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.SetAuth("admin", "secret")

	nets, err := c.Networks(context.Background())
	if err != nil {
		t.Fatalf("Networks() error = %v", err)
	}
	if len(nets) != 1 || nets[0].SSID != "home" || nets[0].Signal != 70 {
		t.Errorf("Networks() = %+v", nets)
	}
}

func TestConnect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/connect" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		if r.PostForm.Get("ssid") != "home" || r.PostForm.Get("password") != "pw" || r.PostForm.Get("timeout") != "3000" {
			t.Errorf("form = %v", r.PostForm)
		}
		_ = json.NewEncoder(w).Encode(ConnectResult{SSID: "home", Address: "10.0.0.7", Saved: true})
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL).Connect(context.Background(), "home", "pw", 3*time.Second)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if res.Address != "10.0.0.7" || !res.Saved {
		t.Errorf("Connect() = %+v", res)
	}
}

func TestConnectErrors(t *testing.T) {
	if _, err := NewClient("dev").Connect(context.Background(), "", "", 0); err == nil {
		t.Error("Connect() with empty ssid should fail")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"connect: timed out joining \"home\"","type":"Network Error"}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Connect(context.Background(), "home", "pw", time.Second)
	var de *DeviceError
	if !asDeviceError(err, &de) {
		t.Fatalf("Connect() error = %v, want DeviceError", err)
	}
	if de.Type != ErrTypeHTTP || de.StatusCode != 500 || de.Remote != "Network Error" {
		t.Errorf("error = %+v", de)
	}
	if !strings.Contains(de.Message, "timed out") {
		t.Errorf("Message = %q", de.Message)
	}
}

func writeImage(t *testing.T, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i * 7)
	}
	path := filepath.Join(t.TempDir(), "fw.bin")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path, data
}

func TestUpload(t *testing.T) {
	path, data := writeImage(t, 40000)

	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/update" || r.URL.Query().Get("size") != strconv.Itoa(len(data)) {
			t.Errorf("request = %s", r.URL)
		}
		if r.Header.Get(uploadSizeHeader) != strconv.Itoa(len(data)) {
			t.Errorf("size header = %q", r.Header.Get(uploadSizeHeader))
		}
		f, hdr, err := r.FormFile("image")
		if err != nil {
			t.Errorf("FormFile() error = %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		if hdr.Filename != "fw.bin" {
			t.Errorf("filename = %s", hdr.Filename)
		}
		received, _ = io.ReadAll(f)
		_ = json.NewEncoder(w).Encode(ota.Progress{SessionID: "s1", State: ota.StateCompleted, Written: int64(len(received)), Declared: int64(len(data)), RestartPending: true})
	}))
	defer srv.Close()

	var lastSent, lastTotal int64
	res, err := NewClient(srv.URL).Upload(context.Background(), path, func(sent, total int64) {
		lastSent, lastTotal = sent, total
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if string(received) != string(data) {
		t.Errorf("server received %d bytes, want %d", len(received), len(data))
	}
	if lastSent != int64(len(data)) || lastTotal != int64(len(data)) {
		t.Errorf("progress = %d/%d", lastSent, lastTotal)
	}

	sum := blake3.Sum256(data)
	if res.Digest != hex.EncodeToString(sum[:]) {
		t.Errorf("Digest = %s", res.Digest)
	}
	if res.Progress.State != ota.StateCompleted || !res.Progress.RestartPending {
		t.Errorf("Progress = %+v", res.Progress)
	}
}

func TestUploadRejected(t *testing.T) {
	path, _ := writeImage(t, 100)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"error":"another firmware upload is already in progress","type":"Upload Protocol Error"}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Upload(context.Background(), path, nil)
	if !IsHTTPError(err) {
		t.Fatalf("Upload() error = %v, want HTTP error", err)
	}
	if hint := GetTroubleshootingHint(err); !strings.Contains(hint, "already in progress") {
		t.Errorf("hint = %q", hint)
	}
}

func TestUploadMissingFile(t *testing.T) {
	_, err := NewClient("dev").Upload(context.Background(), filepath.Join(t.TempDir(), "none.bin"), nil)
	var de *DeviceError
	if !asDeviceError(err, &de) || de.Type != ErrTypeValidation {
		t.Errorf("Upload() error = %v, want validation error", err)
	}
}

func TestWaitForImage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := Status{Hostname: "testdev", ImageDigest: "new"}
		switch n := calls.Add(1); {
		case n == 1:
			st.ImageDigest = "old"
		case n < 4:
			st.Upload.Last = &ota.Progress{State: ota.StateCompleted, RestartPending: true}
		}
		_ = json.NewEncoder(w).Encode(st)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := NewClient(srv.URL).WaitForImage(ctx, "new", 5*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForImage() error = %v", err)
	}
	if st.ImageDigest != "new" || st.Upload.Last != nil {
		t.Errorf("WaitForImage() = %+v", st)
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("calls = %d, want 4", got)
	}
}

func TestWaitForImageRestartFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := Status{ImageDigest: "new"}
		st.Upload.Last = &ota.Progress{State: ota.StateCompleted, RestartError: "operation not permitted"}
		_ = json.NewEncoder(w).Encode(st)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := NewClient(srv.URL).WaitForImage(ctx, "new", 5*time.Millisecond)
	var devErr *DeviceError
	if !asDeviceError(err, &devErr) {
		t.Fatalf("WaitForImage() error = %v, want DeviceError", err)
	}
	if !strings.Contains(devErr.Message, "operation not permitted") {
		t.Errorf("Message = %q, want the restart failure", devErr.Message)
	}
}

func TestWaitForImageTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Status{ImageDigest: "old"})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := NewClient(srv.URL).WaitForImage(ctx, "new", 5*time.Millisecond); !IsNetworkError(err) {
		t.Errorf("WaitForImage() error = %v, want network error", err)
	}
}

func TestUnreachableDevice(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := NewClient(addr)
	c.SetRetry(0, time.Millisecond)

	_, err := c.Status(context.Background())
	if !IsNetworkError(err) {
		t.Fatalf("Status() error = %v, want network error", err)
	}
}
