package api

import (
	"sort"
	"time"

	"overdub/internal/queue"
	"overdub/internal/workflow"
)

// FromJob converts a queue job into its API representation.
func FromJob(job *queue.Job) JobSummary {
	if job == nil {
		return JobSummary{}
	}
	summary := JobSummary{
		ID:               job.ID,
		FileName:         job.FileName,
		SourceLanguage:   job.SourceLanguage,
		TargetLanguage:   job.TargetLanguage,
		VoiceStyle:       job.VoiceStyle,
		GenerateCaptions: job.GenerateCaptions,
		Status:           string(job.Status),
		CurrentStage:     job.CurrentStage,
		CreatedAt:        formatTimestamp(job.CreatedAt),
		UpdatedAt:        formatTimestamp(job.UpdatedAt),
	}
	if job.Error != nil {
		summary.ErrorStage = job.Error.Stage
		summary.ErrorKind = job.Error.Kind
		summary.ErrorMessage = job.Error.Message
	}
	return summary
}

// FromJobs converts a slice of queue jobs.
func FromJobs(jobs []*queue.Job) []JobSummary {
	out := make([]JobSummary, 0, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		out = append(out, FromJob(job))
	}
	return out
}

// FromArtifacts converts recorded artifacts, preserving insertion order.
func FromArtifacts(records []queue.Artifact) []ArtifactEntry {
	out := make([]ArtifactEntry, 0, len(records))
	for _, record := range records {
		out = append(out, ArtifactEntry{
			Stage:     record.Stage,
			Ref:       record.Ref,
			CreatedAt: formatTimestamp(record.CreatedAt),
		})
	}
	return out
}

// FromWorkflowStatus converts an executor snapshot, with stage health sorted
// by name for stable output.
func FromWorkflowStatus(status workflow.Status) WorkflowStatus {
	out := WorkflowStatus{
		Running:   status.Running,
		Workers:   status.Workers,
		LastError: status.LastErr,
		QueueStats: map[string]int{
			string(queue.StatusQueued):   status.Queue.Queued,
			string(queue.StatusRunning):  status.Queue.Running,
			string(queue.StatusDone):     status.Queue.Done,
			string(queue.StatusFailed):   status.Queue.Failed,
			string(queue.StatusCanceled): status.Queue.Canceled,
		},
	}
	out.StageHealth = make([]StageHealth, 0, len(status.Stages))
	for _, health := range status.Stages {
		out.StageHealth = append(out.StageHealth, StageHealth{
			Name:   health.Name,
			Ready:  health.Ready,
			Detail: health.Detail,
		})
	}
	sort.Slice(out.StageHealth, func(i, j int) bool {
		return out.StageHealth[i].Name < out.StageHealth[j].Name
	})
	return out
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateTimeFormat)
}
