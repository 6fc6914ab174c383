package server

import (
	"embed"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/muurk/devadmin/internal/options"
)

//go:embed templates/setup.html
var templateFS embed.FS

var setupTemplate = template.Must(template.ParseFS(templateFS, "templates/setup.html"))

type setupPage struct {
	Title     string
	Hostname  string
	Version   string
	Mode      string
	Address   string
	SetupPath string
	Saved     bool
	Options   []options.Option
}

func (s *AdminServer) handleSetupPage(w http.ResponseWriter, r *http.Request) {
	title := s.cfg.Device.Title
	if title == "" {
		title = s.device.Hostname
	}
	page := setupPage{
		Title:     title,
		Hostname:  s.device.Hostname,
		Version:   s.device.FirmwareVersion,
		Mode:      s.device.Mode().String(),
		SetupPath: s.device.SetupPath,
		Saved:     r.URL.Query().Get("saved") != "",
		Options:   s.store.List(),
	}
	if addr := s.device.Address(); addr != nil {
		page.Address = addr.String()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := setupTemplate.Execute(w, page); err != nil {
		s.logger.Error("failed to render setup page", zap.Error(err))
	}
}

func (s *AdminServer) handleSetupSave(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.badRequest(w, "invalid form: "+err.Error())
		return
	}
	if err := s.store.SetForm(r.PostForm); err != nil {
		s.badRequest(w, err.Error())
		return
	}
	if err := s.store.Save(); err != nil {
		s.respondError(w, fileError("save", err))
		return
	}
	s.hub.Broadcast("options saved")
	http.Redirect(w, r, s.device.SetupPath+"?saved=1", http.StatusSeeOther)
}

// handleSetupClear removes the option document and restores defaults
func (s *AdminServer) handleSetupClear(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Clear(); err != nil {
		s.respondError(w, fileError("clear", err))
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}
