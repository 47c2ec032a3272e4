package dubbing

import (
	"context"
	"log/slog"

	"overdub/internal/artifacts"
	"overdub/internal/captions"
	"overdub/internal/logging"
	"overdub/internal/queue"
	"overdub/internal/stage"
)

// AlignCaptions builds a validated SRT caption track from the translated
// segments. Jobs that didn't request captions skip this stage.
type AlignCaptions struct {
	store  artifacts.Store
	logger *slog.Logger
}

// NewAlignCaptions builds the caption alignment stage.
func NewAlignCaptions(store artifacts.Store, logger *slog.Logger) *AlignCaptions {
	return &AlignCaptions{
		store:  store,
		logger: logging.NewComponentLogger(logger, "align-captions"),
	}
}

func (a *AlignCaptions) Descriptor() stage.Descriptor {
	return stage.Descriptor{
		Name:   "align-captions",
		Inputs: []string{stage.ArtifactTranslation},
		Output: stage.ArtifactCaptions,
	}
}

func (a *AlignCaptions) Execute(ctx context.Context, job *queue.Job, inputs map[string]string) (string, error) {
	if !job.GenerateCaptions {
		return "", stage.ErrSkipped
	}

	translationRef := inputs[stage.ArtifactTranslation]
	key := artifacts.StageKey("align-captions", []string{translationRef}, nil)
	if exists, err := a.store.Exists(ctx, key); err == nil && exists {
		a.logger.Info("reusing cached captions", logging.String(logging.FieldJobID, job.ID))
		return key, nil
	}

	doc, err := loadTranslation(ctx, a.store, translationRef)
	if err != nil {
		return "", err
	}

	track := captions.Track{Cues: make([]captions.Cue, len(doc.Segments))}
	for i, seg := range doc.Segments {
		track.Cues[i] = captions.Cue{Start: seg.Start, End: seg.End, Text: seg.Text}
	}
	track = track.Normalize()
	if err := track.Validate(); err != nil {
		return "", err
	}

	a.logger.Info("captions aligned",
		logging.String(logging.FieldJobID, job.ID),
		logging.Int("cues", len(track.Cues)))
	return artifacts.PutString(ctx, a.store, key, captions.RenderSRT(track))
}

func (a *AlignCaptions) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy("align-captions")
}
