package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const davPrefix = "/dav"

func init() {
	for _, m := range []string{"PROPFIND", "PROPPATCH", "MKCOL", "COPY", "MOVE", "LOCK", "UNLOCK"} {
		chi.RegisterMethod(m)
	}
}

func (s *AdminServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(s.redirector.Middleware)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, s.device.SetupPath, http.StatusFound)
	})
	r.Get("/status", s.handleStatus)
	r.Get("/scan", s.handleScan)
	r.Handle("/ws", s.hub)

	r.Group(func(r chi.Router) {
		r.Use(s.authGate())

		r.Route(s.device.SetupPath, func(r chi.Router) {
			r.Get("/", s.handleSetupPage)
			r.Post("/", s.handleSetupSave)
			r.Delete("/", s.handleSetupClear)
		})
		r.Post("/connect", s.handleConnect)
		r.Post("/update", s.handleUpdate)

		r.Get("/list", s.handleList)
		r.Route("/edit", func(r chi.Router) {
			r.Get("/", s.handleFileGet)
			r.Put("/", s.handleFileCreate)
			r.Post("/", s.handleFileUpload)
			r.Delete("/", s.handleFileDelete)
			r.Patch("/", s.handleFileRename)
		})

		if s.cfg.Filesystem.WebDAV {
			dav := s.files.DAVHandler(davPrefix, s.logger.Named("webdav"))
			r.Handle(davPrefix, dav)
			r.Handle(davPrefix+"/*", dav)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.respondJSON(w, http.StatusNotFound, errorBody{Error: "not found: " + r.URL.Path})
	})
	return r
}
