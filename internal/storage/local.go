package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sakif/foodgram/internal/imagedata"
)

var _ ImageStore = (*LocalStore)(nil)

// LocalStore keeps images under a directory on disk.
type LocalStore struct {
	root    string
	baseURL string
	newKey  func(prefix, ext string) string
}

// maxKeyAttempts bounds retries when a generated name is already taken.
const maxKeyAttempts = 5

// NewLocalStore creates root if needed. baseURL is the public prefix the
// directory is served under, e.g. "http://localhost:8080/media".
func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating media root %s: %w", root, err)
	}
	return &LocalStore{root: root, baseURL: baseURL, newKey: newKey}, nil
}

// Save never overwrites: an existing file with the generated name makes it
// try a fresh name.
func (s *LocalStore) Save(_ context.Context, prefix string, img *imagedata.Image) (string, error) {
	for range maxKeyAttempts {
		key := s.newKey(prefix, img.Ext)
		err := s.create(key, img.Data)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		return key, nil
	}
	return "", fmt.Errorf("storage: no free name under %s after %d attempts", prefix, maxKeyAttempts)
}

func (s *LocalStore) create(key string, data []byte) error {
	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("storage: creating %s: %w", filepath.Dir(path), err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("storage: creating %s: %w", key, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("storage: writing %s: %w", key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("storage: writing %s: %w", key, err)
	}
	return nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	if key == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: deleting %s: %w", key, err)
	}
	return nil
}

func (s *LocalStore) URL(key string) string {
	return joinURL(s.baseURL, key)
}

// Root is the directory served under /media/.
func (s *LocalStore) Root() string {
	return s.root
}
