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

// Remux replaces the source video's audio with the dubbed track and, when the
// job produced captions, muxes them in as a soft-subtitle stream.
type Remux struct {
	store   artifacts.Store
	tools   *media.Tools
	workDir string
	ffmpeg  string
	logger  *slog.Logger
}

// NewRemux builds the final remux stage.
func NewRemux(store artifacts.Store, tools *media.Tools, workDir, ffmpegBinary string, logger *slog.Logger) *Remux {
	return &Remux{
		store:   store,
		tools:   tools,
		workDir: workDir,
		ffmpeg:  ffmpegBinary,
		logger:  logging.NewComponentLogger(logger, "remux"),
	}
}

func (r *Remux) Descriptor() stage.Descriptor {
	return stage.Descriptor{
		Name:     "remux",
		Inputs:   []string{stage.ArtifactSource, stage.ArtifactDubbedAudio},
		Optional: []string{stage.ArtifactCaptions},
		Output:   stage.ArtifactVideo,
	}
}

func (r *Remux) Execute(ctx context.Context, job *queue.Job, inputs map[string]string) (string, error) {
	sourceRef := inputs[stage.ArtifactSource]
	audioRef := inputs[stage.ArtifactDubbedAudio]
	captionsRef := inputs[stage.ArtifactCaptions]

	keyInputs := []string{sourceRef, audioRef}
	if captionsRef != "" {
		keyInputs = append(keyInputs, captionsRef)
	}
	key := artifacts.StageKey("remux", keyInputs, nil)
	if exists, err := r.store.Exists(ctx, key); err == nil && exists {
		r.logger.Info("reusing cached dubbed video", logging.String(logging.FieldJobID, job.ID))
		return key, nil
	}

	dir := filepath.Join(r.workDir, job.ID)
	defer func() { _ = os.RemoveAll(dir) }()

	videoPath, err := artifacts.Materialize(ctx, r.store, sourceRef, dir, "source"+filepath.Ext(job.FileName))
	if err != nil {
		return "", err
	}
	audioPath, err := artifacts.Materialize(ctx, r.store, audioRef, dir, "dubbed.wav")
	if err != nil {
		return "", err
	}

	dubbedPath := filepath.Join(dir, "dubbed.mp4")
	if err := r.tools.Remux(ctx, videoPath, audioPath, dubbedPath); err != nil {
		return "", err
	}

	finalPath := dubbedPath
	if captionsRef != "" {
		srtPath, err := artifacts.Materialize(ctx, r.store, captionsRef, dir, "captions.srt")
		if err != nil {
			return "", err
		}
		captionedPath := filepath.Join(dir, "captioned.mp4")
		if err := r.tools.MuxCaptions(ctx, dubbedPath, srtPath, captionedPath, job.TargetLanguage); err != nil {
			return "", err
		}
		finalPath = captionedPath
	}

	ref, err := artifacts.PutFile(ctx, r.store, key, finalPath)
	if err != nil {
		return "", err
	}
	r.logger.Info("remux complete",
		logging.String(logging.FieldJobID, job.ID),
		logging.Bool("captions", captionsRef != ""))
	return ref, nil
}

func (r *Remux) HealthCheck(ctx context.Context) stage.Health {
	if _, err := exec.LookPath(r.ffmpeg); err != nil {
		return stage.Unhealthy("remux", "ffmpeg not found in PATH")
	}
	return stage.Healthy("remux")
}
