package fsbrowser

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	// ErrOutsideRoot is returned for paths that escape the browser root
	ErrOutsideRoot = errors.New("path escapes filesystem root")

	// ErrRoot is returned when an operation would remove or move the root itself
	ErrRoot = errors.New("operation not allowed on filesystem root")

	// ErrExists is returned when a create or rename target already exists
	ErrExists = errors.New("target already exists")
)

// Entry is one item of a directory listing.
type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Type    string    `json:"type"` // "file" or "dir"
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mtime"`
}

// Usage is the capacity of the filesystem holding the root.
type Usage struct {
	Total uint64 `json:"total"`
	Used  uint64 `json:"used"`
	Free  uint64 `json:"free"`
}

// Browser gives CRUD access to the files under Root. Every path argument is
// relative to Root and may use forward slashes with or without a leading
// one; none can reach outside Root.
type Browser struct {
	Root string
}

// New creates a browser, creating root if it does not exist.
func New(root string) (*Browser, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("creating filesystem root: %w", err)
	}
	return &Browser{Root: abs}, nil
}

// CleanRelPath normalises a client path to a slash-separated path relative
// to the root, with "" meaning the root itself.
func CleanRelPath(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimPrefix(p, "/")
}

// Resolve maps a client path to an absolute path inside Root.
func (b *Browser) Resolve(p string) (string, error) {
	rel := CleanRelPath(p)
	abs := filepath.Join(b.Root, filepath.FromSlash(rel))

	back, err := filepath.Rel(b.Root, abs)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return abs, nil
}

// List returns the entries of a directory, directories first.
func (b *Browser) List(dir string) ([]Entry, error) {
	abs, err := b.Resolve(dir)
	if err != nil {
		return nil, err
	}
	ents, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}

	rel := CleanRelPath(dir)
	items := make([]Entry, 0, len(ents))
	for _, e := range ents {
		info, err := e.Info()
		if err != nil {
			continue
		}
		it := Entry{
			Name:    e.Name(),
			Path:    "/" + path.Join(rel, e.Name()),
			Type:    "file",
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		if e.IsDir() {
			it.Type = "dir"
			it.Size = 0
		}
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Type != items[j].Type {
			return items[i].Type == "dir"
		}
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
	return items, nil
}

// Open opens a regular file for reading.
func (b *Browser) Open(p string) (*os.File, fs.FileInfo, error) {
	abs, err := b.Resolve(p)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(abs)
	if err != nil {
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%s is a directory", p)
	}
	return f, info, nil
}

// CreateDir creates a directory and any missing parents.
func (b *Browser) CreateDir(p string) error {
	abs, err := b.Resolve(p)
	if err != nil {
		return err
	}
	return os.MkdirAll(abs, 0755)
}

// CreateFile creates a new empty file. It fails if the file exists.
func (b *Browser) CreateFile(p string) error {
	abs, err := b.Resolve(p)
	if err != nil {
		return err
	}
	if abs == b.Root {
		return ErrRoot
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(abs, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if errors.Is(err, fs.ErrExist) {
		return ErrExists
	}
	if err != nil {
		return err
	}
	return f.Close()
}

// Write stores r at p, replacing any existing file atomically.
func (b *Browser) Write(p string, r io.Reader) (int64, error) {
	abs, err := b.Resolve(p)
	if err != nil {
		return 0, err
	}
	if abs == b.Root {
		return 0, ErrRoot
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(abs), ".upload-*")
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return n, err
	}
	if err := os.Rename(tmp.Name(), abs); err != nil {
		_ = os.Remove(tmp.Name())
		return n, err
	}
	return n, nil
}

// Delete removes a file or a directory tree.
func (b *Browser) Delete(p string) error {
	abs, err := b.Resolve(p)
	if err != nil {
		return err
	}
	if abs == b.Root {
		return ErrRoot
	}
	if _, err := os.Lstat(abs); err != nil {
		return err
	}
	return os.RemoveAll(abs)
}

// Rename moves from to to, creating the target's parent directories.
func (b *Browser) Rename(from, to string) error {
	src, err := b.Resolve(from)
	if err != nil {
		return err
	}
	dst, err := b.Resolve(to)
	if err != nil {
		return err
	}
	if src == b.Root || dst == b.Root {
		return ErrRoot
	}
	if _, err := os.Lstat(dst); err == nil {
		return ErrExists
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.Rename(src, dst)
}
