package server

import (
	"net/http"
	"path"

	"github.com/muurk/devadmin/internal/fsbrowser"
)

type listResponse struct {
	Dir     string           `json:"dir"`
	Entries []fsbrowser.Entry `json:"entries"`
}

func (s *AdminServer) handleList(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("dir")
	entries, err := s.files.List(dir)
	if err != nil {
		s.respondError(w, fileError("list", err))
		return
	}
	s.respondJSON(w, http.StatusOK, listResponse{Dir: slashPath(dir), Entries: entries})
}

// handleFileGet downloads one file
func (s *AdminServer) handleFileGet(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	f, info, err := s.files.Open(p)
	if err != nil {
		s.respondError(w, fileError("read", err))
		return
	}
	defer func() { _ = f.Close() }()

	if r.URL.Query().Get("download") != "" {
		w.Header().Set("Content-Disposition", "attachment; filename=\""+info.Name()+"\"")
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// handleFileCreate creates an empty file, or a directory with type=dir
func (s *AdminServer) handleFileCreate(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if fsbrowser.CleanRelPath(p) == "" {
		s.badRequest(w, "path is required")
		return
	}

	var err error
	if r.URL.Query().Get("type") == "dir" {
		err = s.files.CreateDir(p)
	} else {
		err = s.files.CreateFile(p)
	}
	if err != nil {
		s.respondError(w, fileError("create", err))
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": slashPath(p)})
}

// handleFileUpload writes a file. A multipart body stores each file part
// under the directory given by path; any other body replaces the file at
// path.
func (s *AdminServer) handleFileUpload(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("path")

	if !isMultipart(r) {
		if fsbrowser.CleanRelPath(target) == "" {
			s.badRequest(w, "path is required")
			return
		}
		n, err := s.files.Write(target, r.Body)
		if err != nil {
			s.respondError(w, fileError("write", err))
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]any{"path": slashPath(target), "size": n})
		return
	}

	mr, err := r.MultipartReader()
	if err != nil {
		s.badRequest(w, "malformed multipart body: "+err.Error())
		return
	}
	written := make(map[string]int64)
	for {
		part, err := mr.NextPart()
		if err != nil {
			break
		}
		name := part.FileName()
		if name == "" {
			continue
		}
		p := path.Join(slashPath(target), path.Base(name))
		n, err := s.files.Write(p, part)
		if err != nil {
			s.respondError(w, fileError("write", err))
			return
		}
		written[p] = n
	}
	if len(written) == 0 {
		s.badRequest(w, "multipart body has no file part")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"written": written})
}

func (s *AdminServer) handleFileDelete(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if err := s.files.Delete(p); err != nil {
		s.respondError(w, fileError("delete", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *AdminServer) handleFileRename(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	if from == "" || to == "" {
		s.badRequest(w, "from and to are required")
		return
	}
	if err := s.files.Rename(from, to); err != nil {
		s.respondError(w, fileError("rename", err))
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"path": slashPath(to)})
}

// slashPath renders a client path the way listings report it
func slashPath(p string) string {
	return "/" + fsbrowser.CleanRelPath(p)
}
