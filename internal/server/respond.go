package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"

	"go.uber.org/zap"

	"github.com/muurk/devadmin/internal/core"
	"github.com/muurk/devadmin/internal/fsbrowser"
)

type errorBody struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

func (s *AdminServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// respondError answers with the status carried by a *core.Error, or 500.
func (s *AdminServer) respondError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	if t, ok := core.TypeOf(err); ok {
		body.Type = t.String()
	}
	s.respondJSON(w, core.StatusFor(err), body)
}

func (s *AdminServer) badRequest(w http.ResponseWriter, msg string) {
	s.respondJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// fileError maps browser errors onto storage errors with a fitting status.
func fileError(op string, err error) *core.Error {
	ce := core.NewStorageError(op, op+" failed", err)
	switch {
	case errors.Is(err, fsbrowser.ErrOutsideRoot):
		ce.Status = http.StatusBadRequest
	case errors.Is(err, fsbrowser.ErrRoot):
		ce.Status = http.StatusForbidden
	case errors.Is(err, fsbrowser.ErrExists):
		ce.Status = http.StatusConflict
	case errors.Is(err, fs.ErrNotExist):
		ce.Status = http.StatusNotFound
	}
	return ce
}
