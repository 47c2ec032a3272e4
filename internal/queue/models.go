package queue

import (
	"strings"
	"time"

	"overdub/internal/language"
	"overdub/internal/services"
)

// Status represents the lifecycle of a dubbing job.
type Status string

const (
	StatusQueued   Status = "queued"
	StatusRunning  Status = "running"
	StatusDone     Status = "done"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

var allStatuses = []Status{
	StatusQueued,
	StatusRunning,
	StatusDone,
	StatusFailed,
	StatusCanceled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// legalTransitions is the monotonic job state machine. Terminal states are
// sticky: nothing leaves done, failed, or canceled, and no job re-enters
// queued after leaving it except through an explicit retry or stale reclaim.
var legalTransitions = map[Status][]Status{
	StatusQueued:  {StatusRunning, StatusCanceled},
	StatusRunning: {StatusDone, StatusFailed, StatusCanceled},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

func transitionAllowed(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrorRecord captures why a job failed, naming the stage and classified kind.
type ErrorRecord struct {
	Stage   string
	Kind    string
	Message string
}

// Job represents a dubbing job persisted in SQLite.
type Job struct {
	ID               string
	SourceFile       string
	FileName         string
	SourceLanguage   string
	TargetLanguage   string
	VoiceStyle       string
	GenerateCaptions bool
	Status           Status
	CurrentStage     string
	CancelRequested  bool
	Error            *ErrorRecord
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastHeartbeat    *time.Time
}

// Artifact is a write-once stage output reference for a job.
type Artifact struct {
	JobID     string
	Stage     string
	Ref       string
	CreatedAt time.Time
}

// JobConfig is the immutable configuration supplied when a job is created.
type JobConfig struct {
	SourceFile       string
	FileName         string
	SourceLanguage   string
	TargetLanguage   string
	VoiceStyle       string
	GenerateCaptions bool
}

// Validate normalizes the config in place and rejects unsupported values.
func (c *JobConfig) Validate() error {
	if strings.TrimSpace(c.SourceFile) == "" {
		return services.Wrap(services.ErrValidation, "", "create job", "video file is required", nil)
	}
	src := language.Normalize(c.SourceLanguage)
	if src == "" {
		return services.Wrap(services.ErrValidation, "", "create job", "unsupported source language "+strings.TrimSpace(c.SourceLanguage), nil)
	}
	tgt := language.Normalize(c.TargetLanguage)
	if tgt == "" {
		return services.Wrap(services.ErrValidation, "", "create job", "unsupported target language "+strings.TrimSpace(c.TargetLanguage), nil)
	}
	style := language.NormalizeVoiceStyle(c.VoiceStyle)
	if style == "" {
		return services.Wrap(services.ErrValidation, "", "create job", "unknown voice style "+strings.TrimSpace(c.VoiceStyle), nil)
	}
	c.SourceLanguage = src
	c.TargetLanguage = tgt
	c.VoiceStyle = style
	if strings.TrimSpace(c.FileName) == "" {
		c.FileName = "upload"
	}
	return nil
}

// HealthSummary describes aggregated job counts per lifecycle state.
type HealthSummary struct {
	Total    int
	Queued   int
	Running  int
	Done     int
	Failed   int
	Canceled int
}
