package artifacts_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"overdub/internal/artifacts"
	"overdub/internal/services"
)

func newLocal(t *testing.T) *artifacts.LocalStore {
	t.Helper()
	store, err := artifacts.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("new local store: %v", err)
	}
	return store
}

func TestStageKeyDeterministic(t *testing.T) {
	a := artifacts.StageKey("transcribe", []string{"ref-audio"}, map[string]string{"source_language": "en"})
	b := artifacts.StageKey("transcribe", []string{"ref-audio"}, map[string]string{"source_language": "en"})
	if a != b {
		t.Fatal("same inputs must produce the same key")
	}
	if len(a) != 64 {
		t.Fatalf("expected sha256 hex key, got %q", a)
	}
}

func TestStageKeyVariesWithInputs(t *testing.T) {
	base := artifacts.StageKey("translate", []string{"ref-a"}, map[string]string{"target_language": "hi"})
	cases := map[string]string{
		"stage":  artifacts.StageKey("synthesize", []string{"ref-a"}, map[string]string{"target_language": "hi"}),
		"input":  artifacts.StageKey("translate", []string{"ref-b"}, map[string]string{"target_language": "hi"}),
		"config": artifacts.StageKey("translate", []string{"ref-a"}, map[string]string{"target_language": "ta"}),
	}
	for name, key := range cases {
		if key == base {
			t.Errorf("changing %s must change the key", name)
		}
	}
}

func TestLocalPutOpenRoundTrip(t *testing.T) {
	store := newLocal(t)
	ctx := context.Background()

	key := artifacts.StageKey("extract", []string{"src"}, nil)
	ref, err := store.Put(ctx, key, strings.NewReader("audio bytes"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if ref != key {
		t.Fatalf("ref should equal key, got %q", ref)
	}

	data, err := artifacts.ReadAll(ctx, store, ref)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "audio bytes" {
		t.Fatalf("unexpected payload %q", data)
	}
}

func TestLocalPutIsIdempotent(t *testing.T) {
	store := newLocal(t)
	ctx := context.Background()

	key := artifacts.StageKey("extract", []string{"src"}, nil)
	if _, err := store.Put(ctx, key, strings.NewReader("first")); err != nil {
		t.Fatalf("first put: %v", err)
	}
	if _, err := store.Put(ctx, key, strings.NewReader("second")); err != nil {
		t.Fatalf("second put: %v", err)
	}

	data, err := artifacts.ReadAll(ctx, store, key)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "first" {
		t.Fatalf("first write must win, got %q", data)
	}
}

func TestLocalOpenMissingRef(t *testing.T) {
	store := newLocal(t)
	key := artifacts.StageKey("extract", []string{"nothing"}, nil)
	_, err := store.Open(context.Background(), key)
	if !services.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLocalRejectsMalformedRef(t *testing.T) {
	store := newLocal(t)
	for _, ref := range []string{"", "ab", "../../etc/passwd", "a/b"} {
		if _, err := store.Open(context.Background(), ref); services.ClassifyKind(err) != services.KindValidation {
			t.Errorf("ref %q should be rejected, got %v", ref, err)
		}
	}
}

func TestLocalExists(t *testing.T) {
	store := newLocal(t)
	ctx := context.Background()

	key := artifacts.StageKey("remux", []string{"a", "b"}, nil)
	if exists, err := store.Exists(ctx, key); err != nil || exists {
		t.Fatalf("expected missing, got exists=%v err=%v", exists, err)
	}
	if _, err := store.Put(ctx, key, strings.NewReader("video")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if exists, err := store.Exists(ctx, key); err != nil || !exists {
		t.Fatalf("expected stored, got exists=%v err=%v", exists, err)
	}
}

func TestFileKeyAndPutFile(t *testing.T) {
	store := newLocal(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "input.mp4")
	if err := os.WriteFile(path, []byte("video-bytes"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	key, err := artifacts.FileKey("source", path)
	if err != nil {
		t.Fatalf("file key: %v", err)
	}
	again, err := artifacts.FileKey("source", path)
	if err != nil || key != again {
		t.Fatalf("file key must be stable, got %q vs %q (%v)", key, again, err)
	}

	ref, err := artifacts.PutFile(ctx, store, key, path)
	if err != nil {
		t.Fatalf("put file: %v", err)
	}
	data, err := artifacts.ReadAll(ctx, store, ref)
	if err != nil || string(data) != "video-bytes" {
		t.Fatalf("round trip failed: %q (%v)", data, err)
	}
}

func TestMaterialize(t *testing.T) {
	store := newLocal(t)
	ctx := context.Background()

	key := artifacts.StageKey("synthesize", []string{"translation"}, nil)
	if _, err := store.Put(ctx, key, strings.NewReader("dubbed audio")); err != nil {
		t.Fatalf("put: %v", err)
	}

	dir := t.TempDir()
	path, err := artifacts.Materialize(ctx, store, key, dir, "dubbed.wav")
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if filepath.Base(path) != "dubbed.wav" {
		t.Fatalf("unexpected filename %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "dubbed audio" {
		t.Fatalf("materialized content mismatch: %q (%v)", data, err)
	}
}
