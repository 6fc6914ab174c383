package captive

import (
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/devadmin/internal/core"
	"github.com/muurk/devadmin/internal/logging"
)

// Redirect is the response the portal sends instead of routing a request.
type Redirect struct {
	Location string
	Status   int
}

// Redirector sends every request for a foreign host to the setup page
// while the device is in access point mode. Connectivity probes from
// phones and laptops rely on this happening for any host, not only the
// well-known probe URLs.
type Redirector struct {
	dev    *core.Device
	opts   RedirectorOptions
	logger *zap.Logger
}

// RedirectorOptions configures where redirects point.
type RedirectorOptions struct {
	// TargetHost returns the host redirects point at. Nil or an empty
	// result uses the device address.
	TargetHost func() string

	// Listen is the HTTP listen address, e.g. ":8080". Its port is added
	// to the redirect unless it is the scheme's default or 0.
	Listen string

	// TLS selects https redirects
	TLS bool
}

// NewRedirector creates a redirector for dev.
func NewRedirector(dev *core.Device, opts RedirectorOptions, logger *zap.Logger) *Redirector {
	return &Redirector{dev: dev, opts: opts, logger: logging.OrNop(logger)}
}

// Intercept returns the redirect for req, if any.
func (r *Redirector) Intercept(req *http.Request) (Redirect, bool) {
	st := r.dev.State()
	if st.Mode != core.ModeAccessPointFallback || st.Address == nil {
		return Redirect{}, false
	}
	if r.dev.IsOwnHost(req.Host) {
		return Redirect{}, false
	}

	host := st.Address.String()
	if r.opts.TargetHost != nil {
		if target := r.opts.TargetHost(); target != "" {
			host = target
		}
	}
	if sameHost(req.Host, host) {
		return Redirect{}, false
	}

	return Redirect{
		Location: r.base(host) + r.dev.SetupPath,
		Status:   http.StatusMovedPermanently,
	}, true
}

func (r *Redirector) base(host string) string {
	scheme, defaultPort := "http", "80"
	if r.opts.TLS {
		scheme, defaultPort = "https", "443"
	}
	if _, port, err := net.SplitHostPort(r.opts.Listen); err == nil && port != "" && port != "0" && port != defaultPort {
		host = net.JoinHostPort(host, port)
	}
	return scheme + "://" + host
}

func sameHost(reqHost, target string) bool {
	if h, _, err := net.SplitHostPort(reqHost); err == nil {
		reqHost = h
	}
	return strings.EqualFold(strings.TrimSuffix(reqHost, "."), target)
}

// Middleware applies Intercept in front of next.
func (r *Redirector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if rd, ok := r.Intercept(req); ok {
			r.logger.Debug("captive redirect",
				zap.String("host", req.Host),
				zap.String("path", req.URL.Path),
				zap.String("location", rd.Location),
			)
			w.Header().Set("Cache-Control", "no-store")
			http.Redirect(w, req, rd.Location, rd.Status)
			return
		}
		next.ServeHTTP(w, req)
	})
}
