package dubbing

import (
	"context"
	"log/slog"
	"strings"

	"overdub/internal/artifacts"
	"overdub/internal/logging"
	"overdub/internal/queue"
	"overdub/internal/services/mt"
	"overdub/internal/services/tts"
	"overdub/internal/stage"
)

// Translate converts the transcript into the target language, preserving
// segment timing.
type Translate struct {
	store   artifacts.Store
	client  *mt.Client
	baseURL string
	logger  *slog.Logger
}

// NewTranslate builds the translation stage.
func NewTranslate(store artifacts.Store, client *mt.Client, baseURL string, logger *slog.Logger) *Translate {
	return &Translate{
		store:   store,
		client:  client,
		baseURL: strings.TrimSpace(baseURL),
		logger:  logging.NewComponentLogger(logger, "translate"),
	}
}

func (t *Translate) Descriptor() stage.Descriptor {
	return stage.Descriptor{
		Name:   "translate",
		Inputs: []string{stage.ArtifactTranscript},
		Output: stage.ArtifactTranslation,
	}
}

func (t *Translate) Execute(ctx context.Context, job *queue.Job, inputs map[string]string) (string, error) {
	transcriptRef := inputs[stage.ArtifactTranscript]
	key := artifacts.StageKey("translate", []string{transcriptRef}, map[string]string{
		"source_language": job.SourceLanguage,
		"target_language": job.TargetLanguage,
	})
	if exists, err := t.store.Exists(ctx, key); err == nil && exists {
		t.logger.Info("reusing cached translation", logging.String(logging.FieldJobID, job.ID))
		return key, nil
	}

	transcript, err := loadTranscript(ctx, t.store, transcriptRef)
	if err != nil {
		return "", err
	}

	texts := make([]string, len(transcript.Segments))
	for i, seg := range transcript.Segments {
		texts[i] = seg.Text
	}
	translated, err := t.client.Translate(ctx, job.SourceLanguage, job.TargetLanguage, texts)
	if err != nil {
		return "", err
	}

	doc := translationDoc{
		SourceLanguage: job.SourceLanguage,
		TargetLanguage: job.TargetLanguage,
		Segments:       make([]tts.TimedText, len(translated)),
	}
	for i, text := range translated {
		doc.Segments[i] = tts.TimedText{
			Start: transcript.Segments[i].Start,
			End:   transcript.Segments[i].End,
			Text:  text,
		}
	}
	t.logger.Info("translation complete",
		logging.String(logging.FieldJobID, job.ID),
		logging.Int("segments", len(doc.Segments)))
	return storeJSON(ctx, t.store, key, doc)
}

func (t *Translate) HealthCheck(ctx context.Context) stage.Health {
	if t.baseURL == "" {
		return stage.Unhealthy("translate", "translation URL not configured")
	}
	return stage.Healthy("translate")
}
