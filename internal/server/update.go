package server

import (
	"bufio"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/devadmin/internal/core"
	"github.com/muurk/devadmin/internal/logging"
	"github.com/muurk/devadmin/internal/ota"
)

const (
	// UpdateSizeHeader carries the declared image size of an upload
	UpdateSizeHeader = "X-Update-Size"

	uploadChunkSize = 16 << 10
)

// handleUpdate streams a firmware image into the update channel. The body
// is either multipart with the image as the first file part, or the raw
// image. The restart is only scheduled after the response was flushed.
func (s *AdminServer) handleUpdate(w http.ResponseWriter, r *http.Request) {
	declared, err := declaredSize(r)
	if err != nil {
		s.respondError(w, err)
		return
	}

	src, err := uploadSource(r)
	if err != nil {
		s.respondError(w, err)
		return
	}

	progress, err := s.streamUpload(src, declared)
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, progress)
	if err := http.NewResponseController(w).Flush(); err != nil {
		s.logger.Debug("update response flush failed", zap.Error(err))
	}
	s.channel.ConfirmDelivered()
}

// declaredSize reads the image size from the X-Update-Size header or the
// size query parameter. A raw body may rely on Content-Length instead.
func declaredSize(r *http.Request) (int64, error) {
	raw := r.Header.Get(UpdateSizeHeader)
	if raw == "" {
		raw = r.URL.Query().Get("size")
	}
	if raw == "" {
		if !isMultipart(r) && r.ContentLength > 0 {
			return r.ContentLength, nil
		}
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, core.NewProtocolError(http.StatusBadRequest, "invalid update size "+strconv.Quote(raw))
	}
	return n, nil
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && strings.HasPrefix(mediaType, "multipart/")
}

func uploadSource(r *http.Request) (io.Reader, error) {
	if !isMultipart(r) {
		return r.Body, nil
	}
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, core.NewProtocolError(http.StatusBadRequest, "malformed multipart body: "+err.Error())
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, core.NewProtocolError(http.StatusBadRequest, "multipart body has no file part")
		}
		if err != nil {
			return nil, core.NewProtocolError(http.StatusBadRequest, "malformed multipart body: "+err.Error())
		}
		if part.FileName() != "" {
			return part, nil
		}
	}
}

// streamUpload cuts src into sequential chunks. One chunk of read-ahead
// tells the channel which chunk is final.
func (s *AdminServer) streamUpload(src io.Reader, declared int64) (ota.Progress, error) {
	br := bufio.NewReaderSize(src, uploadChunkSize)
	buf := make([]byte, uploadChunkSize)

	var (
		offset   int64
		progress ota.Progress
	)
	for {
		n, readErr := io.ReadFull(br, buf)
		final := false
		switch {
		case readErr == io.EOF || errors.Is(readErr, io.ErrUnexpectedEOF):
			final = true
		case readErr != nil:
			s.channel.Abandon(progress.SessionID)
			return progress, core.NewProtocolError(http.StatusBadRequest, "reading upload: "+readErr.Error())
		default:
			if _, peekErr := br.Peek(1); peekErr == io.EOF {
				final = true
			}
		}

		var err error
		progress, err = s.channel.HandleChunk(ota.Chunk{Offset: offset, Data: buf[:n], Final: final}, declared)
		if err != nil {
			return progress, err
		}
		offset += int64(n)
		logging.LogUploadProgress(progress.SessionID, progress.Written, progress.Declared)

		if final {
			return progress, nil
		}
	}
}
