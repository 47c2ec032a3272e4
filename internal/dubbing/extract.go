package dubbing

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"overdub/internal/artifacts"
	"overdub/internal/logging"
	"overdub/internal/media"
	"overdub/internal/queue"
	"overdub/internal/stage"
)

// Extract pulls the audio track out of the uploaded video.
type Extract struct {
	store   artifacts.Store
	tools   *media.Tools
	workDir string
	ffmpeg  string
	logger  *slog.Logger
}

// NewExtract builds the audio extraction stage.
func NewExtract(store artifacts.Store, tools *media.Tools, workDir, ffmpegBinary string, logger *slog.Logger) *Extract {
	return &Extract{
		store:   store,
		tools:   tools,
		workDir: workDir,
		ffmpeg:  ffmpegBinary,
		logger:  logging.NewComponentLogger(logger, "extract"),
	}
}

func (e *Extract) Descriptor() stage.Descriptor {
	return stage.Descriptor{
		Name:   "extract",
		Inputs: []string{stage.ArtifactSource},
		Output: stage.ArtifactAudio,
	}
}

func (e *Extract) Execute(ctx context.Context, job *queue.Job, inputs map[string]string) (string, error) {
	sourceRef := inputs[stage.ArtifactSource]
	key := artifacts.StageKey("extract", []string{sourceRef}, nil)
	if exists, err := e.store.Exists(ctx, key); err == nil && exists {
		e.logger.Info("reusing cached audio track", logging.String(logging.FieldJobID, job.ID))
		return key, nil
	}

	dir := filepath.Join(e.workDir, job.ID)
	defer func() { _ = os.RemoveAll(dir) }()

	videoPath, err := artifacts.Materialize(ctx, e.store, sourceRef, dir, "source"+filepath.Ext(job.FileName))
	if err != nil {
		return "", err
	}
	audioPath := filepath.Join(dir, "audio.wav")
	if err := e.tools.ExtractAudio(ctx, videoPath, audioPath); err != nil {
		return "", err
	}
	return artifacts.PutFile(ctx, e.store, key, audioPath)
}

func (e *Extract) HealthCheck(ctx context.Context) stage.Health {
	if _, err := exec.LookPath(e.ffmpeg); err != nil {
		return stage.Unhealthy("extract", "ffmpeg not found in PATH")
	}
	return stage.Healthy("extract")
}
