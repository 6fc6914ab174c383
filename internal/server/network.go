package server

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/devadmin/internal/core"
	"github.com/muurk/devadmin/internal/netboot"
)

type scanResponse struct {
	Networks []netboot.Network `json:"networks"`
}

func (s *AdminServer) handleScan(w http.ResponseWriter, r *http.Request) {
	networks, err := s.boot.Scan(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	if networks == nil {
		networks = []netboot.Network{}
	}
	s.respondJSON(w, http.StatusOK, scanResponse{Networks: networks})
}

type connectResponse struct {
	SSID    string `json:"ssid"`
	Address string `json:"address"`
	Saved   bool   `json:"saved"`
}

// handleConnect joins the submitted network without access point fallback.
// On success the credentials are saved. On failure the startup bootstrap
// runs again so the device stays reachable.
func (s *AdminServer) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.badRequest(w, "invalid form: "+err.Error())
		return
	}
	ssid := r.PostForm.Get("ssid")
	if ssid == "" {
		s.badRequest(w, "ssid is required")
		return
	}
	passphrase := r.PostForm.Get("password")

	timeout := s.cfg.Network.ConnectTimeout
	if raw := r.PostForm.Get("timeout"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			s.badRequest(w, "timeout must be a positive number of milliseconds")
			return
		}
		timeout = time.Duration(ms) * time.Millisecond
	}

	var res netboot.Result
	select {
	case r2, ok := <-s.boot.ConnectNoFallback(ssid, passphrase, timeout):
		if !ok {
			s.respondError(w, core.NewNetworkError("connect", "connection attempt was superseded", nil))
			return
		}
		res = r2
	case <-r.Context().Done():
		return
	}

	if res.Err != nil {
		s.logger.Warn("connect from setup failed, restoring network", zap.String("ssid", ssid))
		s.bootstrap()
		s.respondError(w, res.Err)
		return
	}

	saved := s.saveStation(ssid, passphrase)
	s.respondJSON(w, http.StatusOK, connectResponse{
		SSID:    ssid,
		Address: res.Address.String(),
		Saved:   saved,
	})
}

func (s *AdminServer) saveStation(ssid, passphrase string) bool {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()

	s.cfg.SetStation(ssid, passphrase)
	if s.configPath == "" {
		return false
	}
	if err := s.cfg.Save(s.configPath); err != nil {
		s.logger.Error("failed to save station credentials", zap.Error(err))
		return false
	}
	return true
}
