package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"overdub/internal/artifacts"
	"overdub/internal/captions"
	"overdub/internal/config"
	"overdub/internal/events"
	"overdub/internal/logging"
	"overdub/internal/notifications"
	"overdub/internal/queue"
	"overdub/internal/services"
	"overdub/internal/stage"
)

// terminalPollInterval bounds how long WaitForTerminal can lag behind a
// terminal transition that produced no bus event.
const terminalPollInterval = 500 * time.Millisecond

// JobService owns job submission and lookup on behalf of the HTTP server,
// the IPC surface, and the CLI.
type JobService struct {
	cfg       *config.Config
	store     *queue.Store
	artifacts artifacts.Store
	bus       *events.Bus
	notifier  notifications.Service
	logger    *slog.Logger
}

// NewJobService wires the service around the shared job store and artifact
// backend.
func NewJobService(
	cfg *config.Config,
	store *queue.Store,
	artifactStore artifacts.Store,
	bus *events.Bus,
	notifier notifications.Service,
	logger *slog.Logger,
) *JobService {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &JobService{
		cfg:       cfg,
		store:     store,
		artifacts: artifactStore,
		bus:       bus,
		notifier:  notifier,
		logger:    logging.NewComponentLogger(logger, "api"),
	}
}

// SubmitRequest carries an uploaded video and its dubbing parameters.
type SubmitRequest struct {
	Video            io.Reader
	FileName         string
	SourceLanguage   string
	TargetLanguage   string
	VoiceStyle       string
	GenerateCaptions bool
}

// Submit stages the uploaded video, stores it as the job's source artifact,
// and queues a new job. The upload is read exactly once.
func (s *JobService) Submit(ctx context.Context, req SubmitRequest) (*queue.Job, error) {
	if req.Video == nil {
		return nil, services.Wrap(services.ErrValidation, "", "submit", "video file is required", nil)
	}

	staged, err := s.stageUpload(req.Video, req.FileName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.Remove(staged) }()

	key, err := artifacts.FileKey(stage.ArtifactSource, staged)
	if err != nil {
		return nil, err
	}
	ref, err := artifacts.PutFile(ctx, s.artifacts, key, staged)
	if err != nil {
		return nil, err
	}

	job, err := s.store.CreateJob(ctx, queue.JobConfig{
		SourceFile:       ref,
		FileName:         req.FileName,
		SourceLanguage:   req.SourceLanguage,
		TargetLanguage:   req.TargetLanguage,
		VoiceStyle:       req.VoiceStyle,
		GenerateCaptions: req.GenerateCaptions,
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.RecordArtifact(ctx, job.ID, stage.ArtifactSource, ref); err != nil {
		return nil, err
	}

	s.bus.Publish(events.Event{Type: events.TypeJobQueued, JobID: job.ID})
	s.logger.Info("job queued",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("file", job.FileName),
		logging.String("target_language", job.TargetLanguage),
		logging.String(logging.FieldEventType, "job_queued"))
	if err := s.notifier.NotifyJobQueued(ctx, job.FileName, job.SourceLanguage, job.TargetLanguage); err != nil {
		s.logger.Warn("queued notification failed", logging.Error(err))
	}
	return job, nil
}

// SubmitFile queues a dubbing job for a video already on local disk.
func (s *JobService) SubmitFile(ctx context.Context, path string, req SubmitRequest) (*queue.Job, error) {
	resolved, err := config.ExpandPath(strings.TrimSpace(path))
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "", "submit", "video file "+resolved+" not readable", err)
	}
	if info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "", "submit", resolved+" is a directory", nil)
	}

	f, err := os.Open(resolved)
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	defer f.Close()

	req.Video = f
	if strings.TrimSpace(req.FileName) == "" {
		req.FileName = filepath.Base(resolved)
	}
	return s.Submit(ctx, req)
}

func (s *JobService) stageUpload(video io.Reader, fileName string) (string, error) {
	dir := s.cfg.Paths.StagingDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	f, err := os.CreateTemp(dir, "upload-*"+filepath.Ext(fileName))
	if err != nil {
		return "", fmt.Errorf("create staging file: %w", err)
	}
	name := f.Name()
	if _, err := io.Copy(f, video); err != nil {
		_ = f.Close()
		_ = os.Remove(name)
		return "", fmt.Errorf("stage upload: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("close staging file: %w", err)
	}
	return name, nil
}

// Get returns a job with its recorded artifacts.
func (s *JobService) Get(ctx context.Context, id string) (*JobDetail, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	records, err := s.store.Artifacts(ctx, id)
	if err != nil {
		return nil, err
	}
	return &JobDetail{JobSummary: FromJob(job), Artifacts: FromArtifacts(records)}, nil
}

// List returns jobs filtered by the given statuses, newest last.
func (s *JobService) List(ctx context.Context, statuses ...queue.Status) ([]JobSummary, error) {
	jobs, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromJobs(jobs), nil
}

// Cancel requests cancellation and reports the resulting job status.
func (s *JobService) Cancel(ctx context.Context, id string) (queue.Status, error) {
	status, err := s.store.RequestCancel(ctx, id)
	if err != nil {
		return "", err
	}
	if status == queue.StatusCanceled {
		s.bus.Publish(events.Event{Type: events.TypeJobCanceled, JobID: id})
	}
	return status, nil
}

// Retry requeues failed jobs. With no ids, every failed job is requeued.
func (s *JobService) Retry(ctx context.Context, ids ...string) (int64, error) {
	return s.store.RetryFailed(ctx, ids...)
}

// Events returns buffered progress events for a job after the given sequence.
func (s *JobService) Events(jobID string, since int64) []events.Event {
	return s.bus.JobEvents(jobID, since)
}

// SubscribeEvents returns the replay of buffered events after since plus a
// live channel. The cancel function must be called to release the
// subscription.
func (s *JobService) SubscribeEvents(since int64, buffer int) ([]events.Event, <-chan events.Event, func()) {
	ch, cancel := s.bus.Subscribe(buffer)
	replay := s.bus.Since(since)
	return replay, ch, cancel
}

// OpenArtifact streams a stored artifact by ref.
func (s *JobService) OpenArtifact(ctx context.Context, ref string) (io.ReadCloser, error) {
	return s.artifacts.Open(ctx, ref)
}

// Result assembles the upload response payload for a completed job.
func (s *JobService) Result(ctx context.Context, id string) (*UploadData, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != queue.StatusDone {
		return nil, services.Wrap(services.ErrConflict, "", "result", "job "+id+" is "+string(job.Status)+", not done", nil)
	}
	videoRef, err := s.store.ArtifactRef(ctx, id, stage.ArtifactVideo)
	if err != nil {
		return nil, err
	}

	data := &UploadData{
		OriginalVideo: job.FileName,
		DubbedVideo:   videoRef,
		DownloadURL:   "/download/" + videoRef + "?name=" + dubbedFileName(job),
		FileName:      dubbedFileName(job),
		Captions:      []CaptionEntry{},
	}
	if job.GenerateCaptions {
		entries, err := s.captionEntries(ctx, id)
		if err != nil {
			return nil, err
		}
		data.Captions = entries
	}
	return data, nil
}

func (s *JobService) captionEntries(ctx context.Context, id string) ([]CaptionEntry, error) {
	ref, err := s.store.ArtifactRef(ctx, id, stage.ArtifactCaptions)
	if services.IsNotFound(err) {
		return []CaptionEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	raw, err := artifacts.ReadAll(ctx, s.artifacts, ref)
	if err != nil {
		return nil, err
	}
	track, err := captions.ParseSRT(string(raw))
	if err != nil {
		return nil, err
	}
	entries := make([]CaptionEntry, 0, len(track.Cues))
	for _, cue := range track.Cues {
		entries = append(entries, CaptionEntry{Start: cue.Start, End: cue.End, Text: cue.Text})
	}
	return entries, nil
}

// WaitForTerminal blocks until the job reaches a terminal state, the wait
// budget runs out, or the context is canceled. It returns the freshest job
// either way; callers inspect the status.
func (s *JobService) WaitForTerminal(ctx context.Context, id string, wait time.Duration) (*queue.Job, error) {
	waitCtx := ctx
	if wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}

	ch, unsubscribe := s.bus.Subscribe(64)
	defer unsubscribe()

	for {
		job, err := s.store.GetJob(waitCtx, id)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}

		select {
		case <-waitCtx.Done():
			return job, nil
		case evt, ok := <-ch:
			if !ok {
				return job, nil
			}
			if evt.JobID != id {
				continue
			}
		case <-time.After(terminalPollInterval):
		}
	}
}

func dubbedFileName(job *queue.Job) string {
	base := strings.TrimSuffix(job.FileName, filepath.Ext(job.FileName))
	if base == "" {
		base = "dubbed"
	}
	return base + "." + job.TargetLanguage + ".dubbed.mp4"
}
