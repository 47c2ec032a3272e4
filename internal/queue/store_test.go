package queue_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"overdub/internal/queue"
	"overdub/internal/services"
)

func openStore(t *testing.T) *queue.Store {
	t.Helper()
	store, err := queue.OpenPath(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createJob(t *testing.T, store *queue.Store) *queue.Job {
	t.Helper()
	job, err := store.CreateJob(context.Background(), queue.JobConfig{
		SourceFile:     "/tmp/staging/input.mp4",
		FileName:       "input.mp4",
		SourceLanguage: "en",
		TargetLanguage: "hi",
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func TestCreateJobNormalizesConfig(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	job, err := store.CreateJob(ctx, queue.JobConfig{
		SourceFile:     "/tmp/staging/talk.mp4",
		FileName:       "talk.mp4",
		SourceLanguage: "English",
		TargetLanguage: "hi-IN",
		VoiceStyle:     "",
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if job.SourceLanguage != "en" || job.TargetLanguage != "hi" {
		t.Fatalf("expected normalized languages, got %s -> %s", job.SourceLanguage, job.TargetLanguage)
	}
	if job.VoiceStyle != "natural" {
		t.Fatalf("expected default voice style, got %q", job.VoiceStyle)
	}
	if job.Status != queue.StatusQueued {
		t.Fatalf("expected queued, got %s", job.Status)
	}

	fetched, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if fetched.FileName != "talk.mp4" || fetched.Status != queue.StatusQueued {
		t.Fatalf("unexpected fetched job: %+v", fetched)
	}
}

func TestCreateJobRejectsUnsupportedLanguage(t *testing.T) {
	store := openStore(t)
	_, err := store.CreateJob(context.Background(), queue.JobConfig{
		SourceFile:     "/tmp/staging/input.mp4",
		SourceLanguage: "en",
		TargetLanguage: "de",
	})
	if services.ClassifyKind(err) != services.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestGetJobNotFound(t *testing.T) {
	store := openStore(t)
	_, err := store.GetJob(context.Background(), "missing")
	if !services.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNextQueuedReturnsOldest(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	first := createJob(t, store)
	time.Sleep(5 * time.Millisecond)
	createJob(t, store)

	next, err := store.NextQueued(ctx)
	if err != nil {
		t.Fatalf("next queued: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("expected oldest job %s, got %+v", first.ID, next)
	}
}

func TestNextQueuedEmptyQueue(t *testing.T) {
	store := openStore(t)
	next, err := store.NextQueued(context.Background())
	if err != nil {
		t.Fatalf("next queued: %v", err)
	}
	if next != nil {
		t.Fatalf("expected nil job, got %+v", next)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	running := createJob(t, store)
	createJob(t, store)
	if err := store.Transition(ctx, running.ID, queue.StatusQueued, queue.StatusRunning); err != nil {
		t.Fatalf("transition: %v", err)
	}

	jobs, err := store.List(ctx, queue.StatusRunning)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != running.ID {
		t.Fatalf("expected only the running job, got %d jobs", len(jobs))
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(all))
	}
}

func TestHealthCounts(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	createJob(t, store)
	running := createJob(t, store)
	if err := store.Transition(ctx, running.ID, queue.StatusQueued, queue.StatusRunning); err != nil {
		t.Fatalf("transition: %v", err)
	}

	summary, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if summary.Total != 2 || summary.Queued != 1 || summary.Running != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestRecordArtifactWriteOnce(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	job := createJob(t, store)

	if err := store.RecordArtifact(ctx, job.ID, "audio", "sha256/ab/cdef"); err != nil {
		t.Fatalf("record artifact: %v", err)
	}
	err := store.RecordArtifact(ctx, job.ID, "audio", "sha256/ff/0000")
	if !services.IsConflict(err) {
		t.Fatalf("expected conflict on duplicate artifact, got %v", err)
	}

	ref, err := store.ArtifactRef(ctx, job.ID, "audio")
	if err != nil {
		t.Fatalf("artifact ref: %v", err)
	}
	if ref != "sha256/ab/cdef" {
		t.Fatalf("first write must win, got %q", ref)
	}
}

func TestRecordArtifactUnknownJob(t *testing.T) {
	store := openStore(t)
	err := store.RecordArtifact(context.Background(), "missing", "audio", "ref")
	if !services.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestArtifactsOrderedAndScoped(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	job := createJob(t, store)
	other := createJob(t, store)

	for _, stage := range []string{"audio", "transcript", "translation"} {
		if err := store.RecordArtifact(ctx, job.ID, stage, "ref-"+stage); err != nil {
			t.Fatalf("record %s: %v", stage, err)
		}
	}
	if err := store.RecordArtifact(ctx, other.ID, "audio", "other-audio"); err != nil {
		t.Fatalf("record other: %v", err)
	}

	artifacts, err := store.Artifacts(ctx, job.ID)
	if err != nil {
		t.Fatalf("artifacts: %v", err)
	}
	if len(artifacts) != 3 {
		t.Fatalf("expected 3 artifacts, got %d", len(artifacts))
	}
	wantOrder := []string{"audio", "transcript", "translation"}
	for i, artifact := range artifacts {
		if artifact.Stage != wantOrder[i] {
			t.Fatalf("expected %s at position %d, got %s", wantOrder[i], i, artifact.Stage)
		}
	}
}

func TestClearTerminalKeepsActiveJobs(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	active := createJob(t, store)
	doneJob := createJob(t, store)
	if err := store.Transition(ctx, doneJob.ID, queue.StatusQueued, queue.StatusRunning); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := store.Transition(ctx, doneJob.ID, queue.StatusRunning, queue.StatusDone); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := store.RecordArtifact(ctx, doneJob.ID, "video", "final-ref"); err != nil {
		t.Fatalf("record artifact: %v", err)
	}

	removed, err := store.ClearTerminal(ctx, queue.StatusDone, queue.StatusFailed)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := store.GetJob(ctx, active.ID); err != nil {
		t.Fatalf("active job should survive clear: %v", err)
	}
	if _, err := store.GetJob(ctx, doneJob.ID); !services.IsNotFound(err) {
		t.Fatalf("done job should be gone, got %v", err)
	}
	if artifacts, err := store.Artifacts(ctx, doneJob.ID); err != nil || len(artifacts) != 0 {
		t.Fatalf("artifacts should cascade on delete, got %d (%v)", len(artifacts), err)
	}
}

func TestClearTerminalIgnoresNonTerminal(t *testing.T) {
	store := openStore(t)
	createJob(t, store)
	removed, err := store.ClearTerminal(context.Background(), queue.StatusQueued)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if removed != 0 {
		t.Fatalf("queued jobs must not be cleared, removed %d", removed)
	}
}
