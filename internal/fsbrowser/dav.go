package fsbrowser

import (
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/net/webdav"

	"github.com/muurk/devadmin/internal/logging"
)

// DAVHandler serves the root over WebDAV under prefix (e.g. "/dav").
func (b *Browser) DAVHandler(prefix string, logger *zap.Logger) http.Handler {
	logger = logging.OrNop(logger)
	return &webdav.Handler{
		Prefix:     prefix,
		FileSystem: webdav.Dir(b.Root),
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				logger.Debug("webdav request failed",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
			}
		},
	}
}
