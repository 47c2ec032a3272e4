package api_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"overdub/internal/api"
	"overdub/internal/artifacts"
	"overdub/internal/captions"
	"overdub/internal/config"
	"overdub/internal/events"
	"overdub/internal/logging"
	"overdub/internal/notifications"
	"overdub/internal/queue"
	"overdub/internal/services"
	"overdub/internal/testsupport"
)

type serviceFixture struct {
	svc       *api.JobService
	store     *queue.Store
	artifacts artifacts.Store
	bus       *events.Bus
}

func newService(t *testing.T) *serviceFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	artifactStore, err := artifacts.NewLocal(cfg.Paths.ArtifactsDir)
	if err != nil {
		t.Fatalf("artifact store: %v", err)
	}
	bus := events.NewBus(128)
	svc := api.NewJobService(cfg, store, artifactStore, bus,
		notifications.NewService(&config.Config{}), logging.NewNop())
	return &serviceFixture{svc: svc, store: store, artifacts: artifactStore, bus: bus}
}

func submitJob(t *testing.T, fx *serviceFixture) *queue.Job {
	t.Helper()
	job, err := fx.svc.Submit(context.Background(), api.SubmitRequest{
		Video:            strings.NewReader("not really a video"),
		FileName:         "movie.mp4",
		SourceLanguage:   "en",
		TargetLanguage:   "hi",
		VoiceStyle:       "natural",
		GenerateCaptions: true,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return job
}

func TestSubmitQueuesJobWithSourceArtifact(t *testing.T) {
	fx := newService(t)
	ctx := context.Background()
	job := submitJob(t, fx)

	if job.Status != queue.StatusQueued {
		t.Fatalf("expected queued, got %s", job.Status)
	}
	ref, err := fx.store.ArtifactRef(ctx, job.ID, "source")
	if err != nil {
		t.Fatalf("source artifact not recorded: %v", err)
	}
	exists, err := fx.artifacts.Exists(ctx, ref)
	if err != nil || !exists {
		t.Fatalf("source artifact %s not stored: exists=%v err=%v", ref, exists, err)
	}

	evts := fx.bus.JobEvents(job.ID, 0)
	if len(evts) != 1 || evts[0].Type != events.TypeJobQueued {
		t.Fatalf("expected one job_queued event, got %+v", evts)
	}
}

func TestSubmitRequiresVideo(t *testing.T) {
	fx := newService(t)
	_, err := fx.svc.Submit(context.Background(), api.SubmitRequest{
		SourceLanguage: "en",
		TargetLanguage: "hi",
		VoiceStyle:     "natural",
	})
	if services.ClassifyKind(err) != services.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmitRejectsUnsupportedLanguage(t *testing.T) {
	fx := newService(t)
	_, err := fx.svc.Submit(context.Background(), api.SubmitRequest{
		Video:          strings.NewReader("payload"),
		FileName:       "movie.mp4",
		SourceLanguage: "en",
		TargetLanguage: "xx",
		VoiceStyle:     "natural",
	})
	if services.ClassifyKind(err) != services.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	jobs, listErr := fx.svc.List(context.Background())
	if listErr != nil || len(jobs) != 0 {
		t.Fatalf("no job should be created on invalid config, got %d (%v)", len(jobs), listErr)
	}
}

func TestGetReturnsArtifacts(t *testing.T) {
	fx := newService(t)
	job := submitJob(t, fx)

	detail, err := fx.svc.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if detail.ID != job.ID || detail.Status != "queued" {
		t.Fatalf("unexpected detail %+v", detail.JobSummary)
	}
	if len(detail.Artifacts) != 1 || detail.Artifacts[0].Stage != "source" {
		t.Fatalf("expected recorded source artifact, got %+v", detail.Artifacts)
	}
}

func TestResultAssemblesDownloadAndCaptions(t *testing.T) {
	fx := newService(t)
	ctx := context.Background()
	job := submitJob(t, fx)

	srt := captions.RenderSRT(captions.Track{Cues: []captions.Cue{
		{Start: 0, End: 1.5, Text: "नमस्ते"},
		{Start: 1.5, End: 3, Text: "दुनिया"},
	}})
	capKey := artifacts.StageKey("align", []string{"transcript-ref"}, nil)
	capRef, err := artifacts.PutString(ctx, fx.artifacts, capKey, srt)
	if err != nil {
		t.Fatalf("store captions: %v", err)
	}
	if err := fx.store.RecordArtifact(ctx, job.ID, "captions", capRef); err != nil {
		t.Fatalf("record captions: %v", err)
	}
	videoKey := artifacts.StageKey("remux", []string{"source-ref"}, nil)
	videoRef, err := artifacts.PutString(ctx, fx.artifacts, videoKey, "dubbed video bytes")
	if err != nil {
		t.Fatalf("store video: %v", err)
	}
	if err := fx.store.RecordArtifact(ctx, job.ID, "video", videoRef); err != nil {
		t.Fatalf("record video: %v", err)
	}
	if err := fx.store.Transition(ctx, job.ID, queue.StatusQueued, queue.StatusRunning); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := fx.store.Transition(ctx, job.ID, queue.StatusRunning, queue.StatusDone); err != nil {
		t.Fatalf("finish: %v", err)
	}

	data, err := fx.svc.Result(ctx, job.ID)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if data.DubbedVideo != videoRef {
		t.Fatalf("expected dubbed video ref %s, got %s", videoRef, data.DubbedVideo)
	}
	if !strings.HasPrefix(data.DownloadURL, "/download/"+videoRef) {
		t.Fatalf("unexpected download url %s", data.DownloadURL)
	}
	if data.FileName != "movie.hi.dubbed.mp4" {
		t.Fatalf("unexpected file name %s", data.FileName)
	}
	if len(data.Captions) != 2 {
		t.Fatalf("expected 2 captions, got %d", len(data.Captions))
	}
	for _, entry := range data.Captions {
		if entry.Start >= entry.End {
			t.Fatalf("caption timing inverted: %+v", entry)
		}
	}
}

func TestResultRejectsUnfinishedJob(t *testing.T) {
	fx := newService(t)
	job := submitJob(t, fx)
	_, err := fx.svc.Result(context.Background(), job.ID)
	if services.ClassifyKind(err) != services.KindConflict {
		t.Fatalf("expected conflict for queued job, got %v", err)
	}
}

func TestCancelQueuedJobPublishesEvent(t *testing.T) {
	fx := newService(t)
	job := submitJob(t, fx)

	status, err := fx.svc.Cancel(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if status != queue.StatusCanceled {
		t.Fatalf("expected canceled, got %s", status)
	}
	evts := fx.svc.Events(job.ID, 0)
	found := false
	for _, evt := range evts {
		if evt.Type == events.TypeJobCanceled {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected job_canceled event, got %+v", evts)
	}
}

func TestWaitForTerminalReturnsOnceDone(t *testing.T) {
	fx := newService(t)
	ctx := context.Background()
	job := submitJob(t, fx)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = fx.store.Transition(ctx, job.ID, queue.StatusQueued, queue.StatusRunning)
		_ = fx.store.Transition(ctx, job.ID, queue.StatusRunning, queue.StatusDone)
		fx.bus.Publish(events.Event{Type: events.TypeJobDone, JobID: job.ID})
	}()

	fresh, err := fx.svc.WaitForTerminal(ctx, job.ID, 10*time.Second)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if fresh.Status != queue.StatusDone {
		t.Fatalf("expected done, got %s", fresh.Status)
	}
}

func TestWaitForTerminalHonorsBudget(t *testing.T) {
	fx := newService(t)
	job := submitJob(t, fx)

	start := time.Now()
	fresh, err := fx.svc.WaitForTerminal(context.Background(), job.ID, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if fresh.Status != queue.StatusQueued {
		t.Fatalf("expected still queued, got %s", fresh.Status)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("wait overran its budget: %s", elapsed)
	}
}
