package server

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/devadmin/internal/core"
	"github.com/muurk/devadmin/internal/fsbrowser"
	"github.com/muurk/devadmin/internal/netboot"
	"github.com/muurk/devadmin/internal/ota"
)

// StatusResponse is the document served by GET /status
type StatusResponse struct {
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

// PendingAttempt describes a station connection still in flight
type PendingAttempt struct {
	SSID     string    `json:"ssid"`
	Deadline time.Time `json:"deadline"`
}

type digester interface {
	ActiveDigest() string
}

func (s *AdminServer) status() StatusResponse {
	st := StatusResponse{
		Hostname:      s.device.Hostname,
		Version:       s.device.FirmwareVersion,
		Mode:          s.device.Mode(),
		UptimeSeconds: int64(s.device.Uptime() / time.Second),
		Upload:        s.channel.Snapshot(),
		CaptiveDNS:    s.boot.CaptiveDNSActive(),
		Subscribers:   s.hub.Subscribers(),
	}
	if addr := s.device.Address(); addr != nil {
		st.Address = addr.String()
	}
	if usage, err := s.files.Usage(); err == nil {
		st.Filesystem = &usage
	} else {
		s.logger.Debug("filesystem usage unavailable", zap.Error(err))
	}
	if d, ok := s.flash.(digester); ok {
		st.ImageDigest = d.ActiveDigest()
	}
	if ap, ok := s.boot.AccessPoint(); ok {
		st.AccessPoint = &ap
	}
	if a, ok := s.boot.Pending(); ok {
		st.Pending = &PendingAttempt{SSID: a.SSID, Deadline: a.Deadline}
	}
	return st
}

func (s *AdminServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	s.respondJSON(w, http.StatusOK, s.status())
}
