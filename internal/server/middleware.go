package server

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/muurk/devadmin/internal/logging"
)

// requestLogger logs every request with its final status
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.Host, r.URL.Path, status)
	})
}

// authGate returns the basic auth middleware, or a pass-through when no
// credentials are configured.
func (s *AdminServer) authGate() func(http.Handler) http.Handler {
	if s.cfg.HTTP.Username == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.BasicAuth(s.device.Hostname, map[string]string{
		s.cfg.HTTP.Username: s.cfg.HTTP.Password,
	})
}
