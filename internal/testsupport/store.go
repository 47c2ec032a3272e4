package testsupport

import (
	"context"
	"testing"

	"overdub/internal/config"
	"overdub/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob creates a queued dubbing job for tests using the provided store.
func NewJob(t testing.TB, store *queue.Store, sourceFile string) *queue.Job {
	t.Helper()

	job, err := store.CreateJob(context.Background(), queue.JobConfig{
		SourceFile:     sourceFile,
		FileName:       "test.mp4",
		SourceLanguage: "en",
		TargetLanguage: "hi",
	})
	if err != nil {
		t.Fatalf("store.CreateJob: %v", err)
	}
	return job
}
