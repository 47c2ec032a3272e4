package dubbing

import (
	"context"
	"log/slog"
	"strings"

	"overdub/internal/artifacts"
	"overdub/internal/logging"
	"overdub/internal/queue"
	"overdub/internal/services/stt"
	"overdub/internal/stage"
)

// Transcribe turns the extracted audio into a timed transcript.
type Transcribe struct {
	store   artifacts.Store
	client  *stt.Client
	baseURL string
	logger  *slog.Logger
}

// NewTranscribe builds the transcription stage.
func NewTranscribe(store artifacts.Store, client *stt.Client, baseURL string, logger *slog.Logger) *Transcribe {
	return &Transcribe{
		store:   store,
		client:  client,
		baseURL: strings.TrimSpace(baseURL),
		logger:  logging.NewComponentLogger(logger, "transcribe"),
	}
}

func (t *Transcribe) Descriptor() stage.Descriptor {
	return stage.Descriptor{
		Name:   "transcribe",
		Inputs: []string{stage.ArtifactAudio},
		Output: stage.ArtifactTranscript,
	}
}

func (t *Transcribe) Execute(ctx context.Context, job *queue.Job, inputs map[string]string) (string, error) {
	audioRef := inputs[stage.ArtifactAudio]
	key := artifacts.StageKey("transcribe", []string{audioRef}, map[string]string{
		"source_language": job.SourceLanguage,
	})
	if exists, err := t.store.Exists(ctx, key); err == nil && exists {
		t.logger.Info("reusing cached transcript", logging.String(logging.FieldJobID, job.ID))
		return key, nil
	}

	audio, err := t.store.Open(ctx, audioRef)
	if err != nil {
		return "", err
	}
	defer func() { _ = audio.Close() }()

	transcript, err := t.client.Transcribe(ctx, audio, job.SourceLanguage)
	if err != nil {
		return "", err
	}
	t.logger.Info("transcription complete",
		logging.String(logging.FieldJobID, job.ID),
		logging.Int("segments", len(transcript.Segments)))
	return storeJSON(ctx, t.store, key, transcript)
}

func (t *Transcribe) HealthCheck(ctx context.Context) stage.Health {
	if t.baseURL == "" {
		return stage.Unhealthy("transcribe", "speech-to-text URL not configured")
	}
	return stage.Healthy("transcribe")
}
