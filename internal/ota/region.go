package ota

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/muurk/devadmin/internal/core"
	"github.com/muurk/devadmin/internal/logging"
)

// DigestSuffix is appended to the image path for the committed image's BLAKE3 digest
const DigestSuffix = ".b3"

// RegionConfig describes a file-backed firmware region.
type RegionConfig struct {
	// ImagePath is the active image the bootloader reads (e.g. /boot/firmware.bin)
	ImagePath string

	// StagingPath receives the upload. Defaults to ImagePath + ".staging"
	StagingPath string

	// Capacity is the largest image the region accepts, in bytes
	Capacity int64

	// Magic, when set, must prefix every image (e.g. 0xE9 for ESP images)
	Magic []byte

	Logger *zap.Logger
}

// FileRegion is a FlashWriter backed by a staging file and an atomic
// rename over the active image.
type FileRegion struct {
	cfg    RegionConfig
	logger *zap.Logger

	mu       sync.Mutex
	f        *os.File
	expected int64
	written  int64
	head     []byte
	hasher   hash.Hash
}

// NewFileRegion creates a region. The image directory must exist.
func NewFileRegion(cfg RegionConfig) *FileRegion {
	if cfg.StagingPath == "" {
		cfg.StagingPath = cfg.ImagePath + ".staging"
	}
	return &FileRegion{
		cfg:    cfg,
		logger: logging.OrNop(cfg.Logger),
	}
}

// Capacity implements FlashWriter
func (r *FileRegion) Capacity() int64 {
	return r.cfg.Capacity
}

// Open implements FlashWriter
func (r *FileRegion) Open(expectedTotal int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f != nil {
		return core.NewStorageError("open", "firmware region busy", nil)
	}
	if expectedTotal > r.cfg.Capacity {
		return core.NewStorageError("open",
			fmt.Sprintf("image of %d bytes exceeds region capacity %d", expectedTotal, r.cfg.Capacity), nil)
	}

	f, err := os.OpenFile(r.cfg.StagingPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return core.NewStorageError("open", "cannot create staging image", err)
	}

	r.f = f
	r.expected = expectedTotal
	r.written = 0
	r.head = r.head[:0]
	r.hasher = blake3.New()

	r.logger.Debug("firmware region opened",
		zap.String("staging", r.cfg.StagingPath),
		zap.Int64("expected", expectedTotal),
	)
	return nil
}

// WriteChunk implements FlashWriter
func (r *FileRegion) WriteChunk(p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil {
		return core.NewStorageError("write", "firmware region not open", nil)
	}
	if r.written+int64(len(p)) > r.expected {
		return core.NewStorageError("write", "write past expected image size", nil)
	}

	if need := len(r.cfg.Magic) - len(r.head); need > 0 {
		if need > len(p) {
			need = len(p)
		}
		r.head = append(r.head, p[:need]...)
	}

	n, err := r.f.Write(p)
	r.written += int64(n)
	if err != nil {
		return core.NewStorageError("write", "flash write failed", err)
	}
	r.hasher.Write(p)
	return nil
}

// Finalize implements FlashWriter. The staged image is validated, synced
// and renamed over the active image; nothing before the rename is visible
// to the bootloader.
func (r *FileRegion) Finalize() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil {
		return core.NewStorageError("finalize", "firmware region not open", nil)
	}

	if r.written != r.expected {
		return core.NewStorageError("finalize",
			fmt.Sprintf("image size %d does not match expected %d", r.written, r.expected), nil)
	}
	if len(r.cfg.Magic) > 0 && !bytes.Equal(r.head, r.cfg.Magic) {
		return core.NewStorageError("finalize",
			fmt.Sprintf("bad image magic %x (want %x)", r.head, r.cfg.Magic), nil)
	}

	if err := r.f.Sync(); err != nil {
		return core.NewStorageError("finalize", "sync staged image", err)
	}
	if err := r.f.Close(); err != nil {
		r.f = nil
		return core.NewStorageError("finalize", "close staged image", err)
	}
	r.f = nil

	if err := os.Rename(r.cfg.StagingPath, r.cfg.ImagePath); err != nil {
		return core.NewStorageError("finalize", "commit image", err)
	}

	digest := hex.EncodeToString(r.hasher.Sum(nil))
	if err := os.WriteFile(r.cfg.ImagePath+DigestSuffix, []byte(digest+"\n"), 0644); err != nil {
		// The image is already committed; only the status report loses its digest.
		r.logger.Warn("failed to record image digest", zap.Error(err))
	}

	r.logger.Info("firmware image committed",
		zap.String("image", r.cfg.ImagePath),
		zap.Int64("size", r.written),
		zap.String("blake3", digest),
	)
	return nil
}

// Abort implements FlashWriter. Safe to call when nothing is open.
func (r *FileRegion) Abort() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f == nil {
		return nil
	}
	_ = r.f.Close()
	r.f = nil

	if err := os.Remove(r.cfg.StagingPath); err != nil && !os.IsNotExist(err) {
		return core.NewStorageError("abort", "remove staged image", err)
	}
	r.logger.Info("firmware staging discarded", zap.Int64("written", r.written))
	return nil
}

// ActiveDigest returns the recorded BLAKE3 digest of the active image, or "".
func (r *FileRegion) ActiveDigest() string {
	data, err := os.ReadFile(r.cfg.ImagePath + DigestSuffix)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// DigestFile computes the BLAKE3 digest of a file the same way the region does.
func DigestFile(path string) (string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
