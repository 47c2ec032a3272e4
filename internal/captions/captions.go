package captions

import (
	"fmt"
	"sort"
	"strings"

	"overdub/internal/services"
)

// Cue is a single timed caption. Start and End are offsets in seconds from
// the beginning of the video.
type Cue struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Track is an ordered set of caption cues.
type Track struct {
	Cues []Cue
}

// Validate checks the structural invariants of a track: non-negative starts,
// end strictly after start, non-empty text, ascending order, and no overlap
// between adjacent cues.
func (t Track) Validate() error {
	for i, cue := range t.Cues {
		if cue.Start < 0 {
			return services.Wrap(services.ErrValidation, "align-captions", "validate",
				fmt.Sprintf("cue %d starts before zero", i+1), nil)
		}
		if cue.End <= cue.Start {
			return services.Wrap(services.ErrValidation, "align-captions", "validate",
				fmt.Sprintf("cue %d ends at or before its start", i+1), nil)
		}
		if strings.TrimSpace(cue.Text) == "" {
			return services.Wrap(services.ErrValidation, "align-captions", "validate",
				fmt.Sprintf("cue %d has empty text", i+1), nil)
		}
		if i > 0 && cue.Start < t.Cues[i-1].End {
			return services.Wrap(services.ErrValidation, "align-captions", "validate",
				fmt.Sprintf("cue %d overlaps cue %d", i+1, i), nil)
		}
	}
	return nil
}

// Normalize sorts cues by start time and clamps overlapping ends so adjacent
// cues never bleed into each other. Empty cues are dropped.
func (t Track) Normalize() Track {
	cues := make([]Cue, 0, len(t.Cues))
	for _, cue := range t.Cues {
		if strings.TrimSpace(cue.Text) == "" || cue.End <= cue.Start {
			continue
		}
		if cue.Start < 0 {
			cue.Start = 0
		}
		cue.Text = strings.TrimSpace(cue.Text)
		cues = append(cues, cue)
	}
	sort.SliceStable(cues, func(i, j int) bool { return cues[i].Start < cues[j].Start })
	for i := 1; i < len(cues); i++ {
		if cues[i].Start < cues[i-1].End {
			cues[i-1].End = cues[i].Start
		}
	}
	// Clamping can zero out a cue entirely; drop those.
	kept := cues[:0]
	for _, cue := range cues {
		if cue.End > cue.Start {
			kept = append(kept, cue)
		}
	}
	return Track{Cues: kept}
}

// Duration returns the end offset of the last cue.
func (t Track) Duration() float64 {
	if len(t.Cues) == 0 {
		return 0
	}
	return t.Cues[len(t.Cues)-1].End
}
