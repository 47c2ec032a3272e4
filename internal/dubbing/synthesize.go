package dubbing

import (
	"context"
	"log/slog"
	"strings"

	"overdub/internal/artifacts"
	"overdub/internal/logging"
	"overdub/internal/queue"
	"overdub/internal/services/tts"
	"overdub/internal/stage"
)

// Synthesize renders the translated segments as the dubbed speech track.
type Synthesize struct {
	store   artifacts.Store
	client  *tts.Client
	baseURL string
	logger  *slog.Logger
}

// NewSynthesize builds the speech synthesis stage.
func NewSynthesize(store artifacts.Store, client *tts.Client, baseURL string, logger *slog.Logger) *Synthesize {
	return &Synthesize{
		store:   store,
		client:  client,
		baseURL: strings.TrimSpace(baseURL),
		logger:  logging.NewComponentLogger(logger, "synthesize"),
	}
}

func (s *Synthesize) Descriptor() stage.Descriptor {
	return stage.Descriptor{
		Name:   "synthesize",
		Inputs: []string{stage.ArtifactTranslation},
		Output: stage.ArtifactDubbedAudio,
	}
}

func (s *Synthesize) Execute(ctx context.Context, job *queue.Job, inputs map[string]string) (string, error) {
	translationRef := inputs[stage.ArtifactTranslation]
	key := artifacts.StageKey("synthesize", []string{translationRef}, map[string]string{
		"target_language": job.TargetLanguage,
		"voice_style":     job.VoiceStyle,
	})
	if exists, err := s.store.Exists(ctx, key); err == nil && exists {
		s.logger.Info("reusing cached dubbed audio", logging.String(logging.FieldJobID, job.ID))
		return key, nil
	}

	doc, err := loadTranslation(ctx, s.store, translationRef)
	if err != nil {
		return "", err
	}

	audio, err := s.client.Synthesize(ctx, job.TargetLanguage, job.VoiceStyle, doc.Segments)
	if err != nil {
		return "", err
	}
	defer func() { _ = audio.Close() }()

	ref, err := s.store.Put(ctx, key, audio)
	if err != nil {
		return "", err
	}
	s.logger.Info("synthesis complete",
		logging.String(logging.FieldJobID, job.ID),
		logging.Int("segments", len(doc.Segments)))
	return ref, nil
}

func (s *Synthesize) HealthCheck(ctx context.Context) stage.Health {
	if s.baseURL == "" {
		return stage.Unhealthy("synthesize", "text-to-speech URL not configured")
	}
	return stage.Healthy("synthesize")
}
