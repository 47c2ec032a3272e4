package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"overdub/internal/config"
	"overdub/internal/services"
)

// Store persists stage outputs under content-addressed keys. Writes are
// idempotent: putting the same key twice keeps the first copy, so a resumed
// job or a second job with identical inputs reuses the stored bytes.
type Store interface {
	// Put streams data under key and returns the ref to record in the job
	// database. Putting an existing key is a no-op that returns the same ref.
	Put(ctx context.Context, key string, r io.Reader) (string, error)
	// Open returns a reader for a previously stored ref.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	// Exists reports whether a ref is already stored.
	Exists(ctx context.Context, ref string) (bool, error)
}

// StageKey derives the content-addressed key for a stage output from the
// stage name, the refs of its inputs, and the job configuration values that
// influence the result. Identical inputs always produce the same key, which
// is what makes cross-job artifact reuse safe.
func StageKey(stage string, inputRefs []string, configValues map[string]string) string {
	h := sha256.New()
	io.WriteString(h, stage)
	h.Write([]byte{0})
	for _, ref := range inputRefs {
		io.WriteString(h, ref)
		h.Write([]byte{0})
	}
	keys := make([]string, 0, len(configValues))
	for k := range configValues {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		io.WriteString(h, k)
		h.Write([]byte{0})
		io.WriteString(h, configValues[k])
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FileKey hashes a local file's contents, prefixed by a label, producing the
// key for source uploads.
func FileKey(label, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	io.WriteString(h, label)
	h.Write([]byte{0})
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// New builds the configured artifact store backend.
func New(cfg *config.Config) (Store, error) {
	switch cfg.ArtifactStore.Backend {
	case config.BackendLocal, "":
		return NewLocal(cfg.Paths.ArtifactsDir)
	case config.BackendS3:
		return NewS3(cfg.ArtifactStore)
	default:
		return nil, services.Wrap(services.ErrValidation, "", "artifact store",
			"unknown backend "+cfg.ArtifactStore.Backend, nil)
	}
}

// PutFile stores a local file under key.
func PutFile(ctx context.Context, store Store, key, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return store.Put(ctx, key, f)
}

// PutString stores a text payload under key.
func PutString(ctx context.Context, store Store, key, data string) (string, error) {
	return store.Put(ctx, key, strings.NewReader(data))
}

// ReadAll fetches a ref entirely into memory. Intended for small payloads
// such as transcripts and caption tracks, not media files.
func ReadAll(ctx context.Context, store Store, ref string) ([]byte, error) {
	rc, err := store.Open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", ref, err)
	}
	return data, nil
}

// Materialize copies a stored ref to a named file inside dir so external
// tools like ffmpeg can read it from disk.
func Materialize(ctx context.Context, store Store, ref, dir, filename string) (string, error) {
	rc, err := store.Open(ctx, ref)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	dest := filepath.Join(dir, filename)
	f, err := os.CreateTemp(dir, ".materialize-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := f.Name()
	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("copy artifact %s: %w", ref, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rename to %s: %w", dest, err)
	}
	return dest, nil
}
