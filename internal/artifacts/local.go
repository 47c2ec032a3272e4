package artifacts

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"overdub/internal/services"
)

// LocalStore keeps artifacts on disk under a sharded directory tree
// (<root>/<first two key bytes>/<rest>).
type LocalStore struct {
	root string
}

// NewLocal creates a disk-backed store rooted at dir.
func NewLocal(dir string) (*LocalStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, services.Wrap(services.ErrValidation, "", "artifact store", "artifacts directory is required", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts dir: %w", err)
	}
	return &LocalStore{root: dir}, nil
}

func (s *LocalStore) pathFor(ref string) (string, error) {
	cleaned := strings.TrimSpace(ref)
	if len(cleaned) < 3 || strings.ContainsAny(cleaned, "/\\.") {
		return "", services.Wrap(services.ErrValidation, "", "artifact store", "malformed artifact ref "+ref, nil)
	}
	return filepath.Join(s.root, cleaned[:2], cleaned[2:]), nil
}

// Put writes data under key, atomically via a temp file and rename. When the
// key already exists the stored copy wins and the incoming data is discarded.
func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	dest, err := s.pathFor(key)
	if err != nil {
		return "", err
	}
	if _, statErr := os.Stat(dest); statErr == nil {
		return key, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("create shard dir: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(dest), ".put-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := f.Name()
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("commit artifact: %w", err)
	}
	return key, nil
}

// Open returns a reader for the stored ref.
func (s *LocalStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	path, err := s.pathFor(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, services.Wrap(services.ErrNotFound, "", "artifact store", "artifact "+ref, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("open artifact %s: %w", ref, err)
	}
	return f, nil
}

// Exists reports whether the ref is stored.
func (s *LocalStore) Exists(ctx context.Context, ref string) (bool, error) {
	path, err := s.pathFor(ref)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("stat artifact %s: %w", ref, err)
	}
	return true, nil
}
