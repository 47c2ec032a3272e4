package stage

import (
	"context"
	"errors"

	"overdub/internal/queue"
)

// ErrSkipped is returned by Execute when a stage does not apply to the job,
// such as caption alignment for a job that didn't request captions. The
// executor records no artifact and moves on.
var ErrSkipped = errors.New("stage skipped")

// Artifact names produced by the pipeline stages.
const (
	ArtifactSource      = "source"
	ArtifactAudio       = "audio"
	ArtifactTranscript  = "transcript"
	ArtifactTranslation = "translation"
	ArtifactDubbedAudio = "dubbed_audio"
	ArtifactCaptions    = "captions"
	ArtifactVideo       = "video"
)

// Descriptor names a stage and declares the artifacts it consumes and
// produces. The executor uses it to assemble inputs, skip stages whose output
// already exists, and order the pipeline.
type Descriptor struct {
	Name     string
	Inputs   []string
	Optional []string
	Output   string
}

// Handler describes the contract the workflow manager needs from each stage.
// Execute receives the refs of the stage's declared inputs and returns the
// ref of its stored output.
type Handler interface {
	Descriptor() Descriptor
	Execute(ctx context.Context, job *queue.Job, inputs map[string]string) (string, error)
	HealthCheck(ctx context.Context) Health
}
