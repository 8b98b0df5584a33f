// Package blob resolves source paths named in workflow configuration to
// readable bytes and stores uploaded files.
package blob

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/jack-wz/utest/internal/apperr"
)

// ErrOutsideRoot is returned for paths that escape the provider root.
var ErrOutsideRoot = errors.New("path escapes blob root")

// AllowedExtensions lists the upload types accepted by Save.
var AllowedExtensions = map[string]bool{
	".pdf": true, ".md": true, ".txt": true, ".json": true, ".csv": true,
	".docx": true, ".html": true,
}

// Object describes a stored file.
type Object struct {
	Path     string `json:"file_path"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Hash     string `json:"hash"`
}

// Provider reads and writes files under a single root of an afero filesystem.
type Provider struct {
	fs   afero.Fs
	root string
}

// NewProvider roots p at dir on fsys. A nil fsys means the OS filesystem.
func NewProvider(fsys afero.Fs, dir string) *Provider {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if dir == "" {
		dir = "./uploads"
	}
	return &Provider{fs: fsys, root: filepath.Clean(dir)}
}

// Root returns the directory the provider is rooted at.
func (p *Provider) Root() string { return p.root }

// Resolve maps a configured source path to a path inside the root. Relative
// paths are joined to the root; absolute paths must already lie under it.
func (p *Provider) Resolve(name string) (string, error) {
	if name == "" {
		return "", apperr.Validation("source path is required")
	}
	var full string
	if filepath.IsAbs(name) {
		full = filepath.Clean(name)
	} else {
		full = filepath.Join(p.root, filepath.Clean(name))
	}
	rel, err := filepath.Rel(p.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, name)
	}
	return full, nil
}

// Read returns the full contents of the named source. A missing file is a
// NotFoundError.
func (p *Provider) Read(name string) ([]byte, error) {
	full, err := p.Resolve(name)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(p.fs, full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.NotFound("file", name)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// Save stores r under a UUID-prefixed copy of filename and returns the
// stored object. Object.Path is relative to the root, so it reads back
// through Read and works as a datasource file_path. Unsupported extensions
// are rejected before anything is written.
func (p *Provider) Save(filename string, r io.Reader) (*Object, error) {
	base := path.Base(filepath.ToSlash(filename))
	ext := strings.ToLower(filepath.Ext(base))
	if !AllowedExtensions[ext] {
		return nil, &apperr.ValidationError{Field: "file", Msg: fmt.Sprintf("unsupported file type %q", ext)}
	}

	if err := p.fs.MkdirAll(p.root, 0o750); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s", uuid.New().String(), base)
	stored := filepath.Join(p.root, name)
	dst, err := p.fs.Create(stored)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", stored, err)
	}
	defer dst.Close()

	hash := sha256.New()
	n, err := io.Copy(io.MultiWriter(dst, hash), r)
	if err != nil {
		_ = p.fs.Remove(stored)
		return nil, fmt.Errorf("write %s: %w", stored, err)
	}

	return &Object{
		Path:     name,
		Filename: base,
		Size:     n,
		Hash:     fmt.Sprintf("%x", hash.Sum(nil)),
	}, nil
}
