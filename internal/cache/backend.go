package cache

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Ext is appended to the dataset name to form the storage key.
const Ext = ".data"

var ErrInvalidKey = errors.New("cache: invalid dataset name")

// Backend stores serialized datasets under a key.
type Backend interface {
	Has(key string) (bool, error)
	Read(key string) ([]byte, error)
	Write(key string, data []byte) error
}

// FSBackend keeps one file per key in a directory of an afero filesystem.
type FSBackend struct {
	fs  afero.Fs
	dir string
}

// NewFSBackend returns a backend rooted at dir. The directory is created on
// first write.
func NewFSBackend(fs afero.Fs, dir string) *FSBackend {
	return &FSBackend{fs: fs, dir: dir}
}

// Dir returns the backend directory.
func (b *FSBackend) Dir() string { return b.dir }

func (b *FSBackend) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(b.dir, key), nil
}

func (b *FSBackend) Has(key string) (bool, error) {
	p, err := b.path(key)
	if err != nil {
		return false, err
	}
	return afero.Exists(b.fs, p)
}

func (b *FSBackend) Read(key string) ([]byte, error) {
	p, err := b.path(key)
	if err != nil {
		return nil, err
	}
	return afero.ReadFile(b.fs, p)
}

// Write replaces key atomically: data goes to a temporary file in the same
// directory which is then renamed over the old entry.
func (b *FSBackend) Write(key string, data []byte) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := b.fs.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("cache: mkdir %s: %w", b.dir, err)
	}
	tmp, err := afero.TempFile(b.fs, b.dir, "."+key+".tmp-*")
	if err != nil {
		return fmt.Errorf("cache: create temp for %s: %w", key, err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		b.fs.Remove(name)
		return fmt.Errorf("cache: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		b.fs.Remove(name)
		return fmt.Errorf("cache: close %s: %w", key, err)
	}
	if err := b.fs.Rename(name, p); err != nil {
		b.fs.Remove(name)
		return fmt.Errorf("cache: rename %s: %w", key, err)
	}
	return nil
}
