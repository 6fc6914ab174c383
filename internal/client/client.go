package client

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/muurk/devadmin/internal/core"
	"github.com/muurk/devadmin/internal/fsbrowser"
	"github.com/muurk/devadmin/internal/logging"
	"github.com/muurk/devadmin/internal/netboot"
	"github.com/muurk/devadmin/internal/ota"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 10 * time.Second

	// DefaultMaxRetries is the default number of retry attempts for failed requests
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the default delay between retry attempts
	DefaultRetryDelay = 1 * time.Second

	// DefaultMaxRetryDelay is the maximum delay for exponential backoff
	DefaultMaxRetryDelay = 30 * time.Second

	// DefaultPollInterval is how often WaitForImage checks the device
	DefaultPollInterval = 2 * time.Second

	uploadSizeHeader = "X-Update-Size"
)

// Client talks to the admin server of a devadmin device
type Client struct {
	// BaseURL is the base URL for the device (e.g., "http://192.168.4.1")
	BaseURL string

	// Username and Password are sent as HTTP Basic Auth when Username is set
	Username string
	Password string

	// HTTPClient is the underlying HTTP client. Its Timeout does not apply
	// to firmware uploads.
	HTTPClient *http.Client

	// MaxRetries is the maximum number of retry attempts for idempotent requests
	MaxRetries int

	// RetryDelay is the initial delay between retry attempts
	RetryDelay time.Duration

	// MaxRetryDelay is the maximum delay for exponential backoff
	MaxRetryDelay time.Duration

	// UseExponentialBackoff enables exponential backoff for retries
	UseExponentialBackoff bool

	Logger *zap.Logger
}

// NewClient creates a client for the device at baseURL. A bare host or
// host:port is given the http scheme.
func NewClient(baseURL string) *Client {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		BaseURL:               strings.TrimRight(baseURL, "/"),
		HTTPClient:            &http.Client{Timeout: DefaultTimeout},
		MaxRetries:            DefaultMaxRetries,
		RetryDelay:            DefaultRetryDelay,
		MaxRetryDelay:         DefaultMaxRetryDelay,
		UseExponentialBackoff: true,
	}
}

// SetTimeout sets the HTTP request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// SetAuth sets HTTP Basic Auth credentials
func (c *Client) SetAuth(username, password string) {
	c.Username = username
	c.Password = password
}

// SetRetry configures retry behavior
func (c *Client) SetRetry(maxRetries int, retryDelay time.Duration) {
	c.MaxRetries = maxRetries
	c.RetryDelay = retryDelay
}

// Status mirrors the document served by GET /status
type Status struct {
	Hostname      string                     `json:"hostname"`
	Version       string                     `json:"version,omitempty"`
	Mode          core.NetworkMode           `json:"mode"`
	Address       string                     `json:"address,omitempty"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Filesystem    *fsbrowser.Usage           `json:"filesystem,omitempty"`
	Upload        ota.Status                 `json:"upload"`
	ImageDigest   string                     `json:"image_digest,omitempty"`
	AccessPoint   *netboot.AccessPointConfig `json:"access_point,omitempty"`
	CaptiveDNS    bool                       `json:"captive_dns"`
	Pending       *PendingAttempt            `json:"pending,omitempty"`
	Subscribers   int                        `json:"subscribers"`
}

// PendingAttempt is a station connection still in flight on the device
type PendingAttempt struct {
	SSID     string    `json:"ssid"`
	Deadline time.Time `json:"deadline"`
}

// ConnectResult is the answer to a successful Connect
type ConnectResult struct {
	SSID    string `json:"ssid"`
	Address string `json:"address"`
	Saved   bool   `json:"saved"`
}

// UploadResult describes a delivered firmware image
type UploadResult struct {
	Progress ota.Progress

	// Digest is the BLAKE3 digest of the bytes sent, hex encoded
	Digest string
	Size   int64
}

// ProgressFunc is called as upload bytes are handed to the transport
type ProgressFunc func(sent, total int64)

// Status fetches the device status document
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.getJSON(ctx, "/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Networks lists the wireless networks the device can see
func (c *Client) Networks(ctx context.Context) ([]netboot.Network, error) {
	var doc struct {
		Networks []netboot.Network `json:"networks"`
	}
	if err := c.getJSON(ctx, "/scan", &doc); err != nil {
		return nil, err
	}
	return doc.Networks, nil
}

// Connect asks the device to join a station network. The call blocks until
// the device reports the outcome, so the HTTP timeout is stretched to cover
// the join timeout. A zero timeout uses the device default.
func (c *Client) Connect(ctx context.Context, ssid, passphrase string, timeout time.Duration) (*ConnectResult, error) {
	if ssid == "" {
		return nil, NewValidationError("ssid is required")
	}
	form := url.Values{"ssid": {ssid}, "password": {passphrase}}
	if timeout > 0 {
		form.Set("timeout", strconv.FormatInt(timeout.Milliseconds(), 10))
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/connect", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	hc := *c.HTTPClient
	if hc.Timeout > 0 {
		wait := timeout
		if wait <= 0 {
			wait = netboot.DefaultConnectTimeout
		}
		hc.Timeout += wait
	}

	body, err := c.do(&hc, req)
	if err != nil {
		return nil, err
	}
	var res ConnectResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, NewParseError("failed to parse connect response", err)
	}
	return &res, nil
}

// Upload streams the image at path to the device's update endpoint as a
// multipart body. It is never retried: a failed upload leaves nothing
// committed and must be started again from the first byte.
func (c *Client) Upload(ctx context.Context, path string, progress ProgressFunc) (*UploadResult, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, NewValidationError("cannot open image: " + err.Error())
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, NewValidationError("cannot stat image: " + err.Error())
	}
	if info.Size() == 0 {
		return nil, NewValidationError("image " + path + " is empty")
	}
	size := info.Size()

	hasher := blake3.New()
	src := io.TeeReader(&countingReader{r: f, total: size, progress: progress}, hasher)

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("image", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, src)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/update?size="+strconv.FormatInt(size, 10), pr)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(uploadSizeHeader, strconv.FormatInt(size, 10))

	hc := *c.HTTPClient
	hc.Timeout = 0

	logging.OrNop(c.Logger).Info("uploading firmware",
		zap.String("device", c.BaseURL),
		zap.String("image", path),
		zap.Int64("size", size),
	)

	body, err := c.do(&hc, req)
	_ = pr.Close()
	if err != nil {
		return nil, err
	}

	res := &UploadResult{Digest: hex.EncodeToString(hasher.Sum(nil)), Size: size}
	if err := json.Unmarshal(body, &res.Progress); err != nil {
		return nil, NewParseError("failed to parse update response", err)
	}
	return res, nil
}

// WaitForImage polls the device until it reports digest as its active
// image with no restart pending. The device restarts after an update, so
// transport errors in between are expected and only logged.
func (c *Client) WaitForImage(ctx context.Context, digest string, interval time.Duration) (*Status, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	logger := logging.OrNop(c.Logger)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		st, err := c.status(ctx)
		switch {
		case err == nil && st.ImageDigest == digest && restartError(st) != "":
			return st, &DeviceError{
				Type:    ErrTypeHTTP,
				Message: "image committed but the device failed to restart: " + restartError(st),
			}
		case err == nil && st.ImageDigest == digest && !restartPending(st):
			return st, nil
		case err != nil && !IsNetworkError(err):
			return nil, err
		case err != nil:
			logger.Debug("device not reachable yet", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, NewNetworkError("device did not come back with the new image", ctx.Err())
		case <-ticker.C:
		}
	}
}

func restartPending(st *Status) bool {
	return st.Upload.Last != nil && st.Upload.Last.RestartPending
}

func restartError(st *Status) string {
	if st.Upload.Last == nil {
		return ""
	}
	return st.Upload.Last.RestartError
}

// status fetches /status once, without retries.
func (c *Client) status(ctx context.Context) (*Status, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/status", nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(c.HTTPClient, req)
	if err != nil {
		return nil, err
	}
	var st Status
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, NewParseError("failed to parse status", err)
	}
	return &st, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	var lastErr error
	delay := c.RetryDelay

	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return NewNetworkError("request cancelled", ctx.Err())
			case <-time.After(delay):
			}
			if c.UseExponentialBackoff {
				delay *= 2
				if c.MaxRetryDelay > 0 && delay > c.MaxRetryDelay {
					delay = c.MaxRetryDelay
				}
			}
		}

		req, err := c.newRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		body, err := c.do(c.HTTPClient, req)
		if err != nil {
			lastErr = err
			if !IsRetryable(err) {
				return err
			}
			logging.OrNop(c.Logger).Debug("request failed, retrying",
				zap.String("path", path),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}

		if err := json.Unmarshal(body, v); err != nil {
			return NewParseError("failed to parse "+path+" response", err)
		}
		return nil
	}

	return lastErr
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("invalid request %s %s: %v", method, path, err))
	}
	if c.Username != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(hc *http.Client, req *http.Request) ([]byte, error) {
	resp, err := hc.Do(req)
	if err != nil {
		return nil, ClassifyNetworkError(err, req.URL.Host)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewNetworkError("failed to read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, NewAuthError("device rejected credentials")
	case resp.StatusCode >= 300:
		return nil, NewHTTPError(resp.StatusCode, bytes.TrimSpace(body))
	}
	return body, nil
}

type countingReader struct {
	r        io.Reader
	sent     int64
	total    int64
	progress ProgressFunc
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.sent += int64(n)
	if n > 0 && cr.progress != nil {
		cr.progress(cr.sent, cr.total)
	}
	return n, err
}
