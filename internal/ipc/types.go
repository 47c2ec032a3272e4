package ipc

import "overdub/internal/api"

// JobSummary mirrors the HTTP API job DTO for IPC callers.
type JobSummary = api.JobSummary

// JobDetail mirrors the HTTP API job detail DTO.
type JobDetail = api.JobDetail

// StageHealth describes readiness of a pipeline stage.
type StageHealth = api.StageHealth

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon/workflow status information.
type StatusResponse struct {
	Running     bool           `json:"running"`
	PID         int            `json:"pid"`
	Workers     int            `json:"workers"`
	QueueStats  map[string]int `json:"queue_stats"`
	LastError   string         `json:"last_error"`
	LockPath    string         `json:"lock_path"`
	JobDBPath   string         `json:"job_db_path"`
	StageHealth []StageHealth  `json:"stage_health"`
}

// SubmitRequest queues a dubbing job for a video file on local disk.
type SubmitRequest struct {
	Path             string `json:"path"`
	SourceLanguage   string `json:"source_language"`
	TargetLanguage   string `json:"target_language"`
	VoiceStyle       string `json:"voice_style"`
	GenerateCaptions bool   `json:"generate_captions"`
}

// SubmitResponse reports the queued job.
type SubmitResponse struct {
	Job JobSummary `json:"job"`
}

// JobListRequest filters job listing by status.
type JobListRequest struct {
	Statuses []string `json:"statuses"`
}

// JobListResponse contains job entries.
type JobListResponse struct {
	Jobs []JobSummary `json:"jobs"`
}

// JobDescribeRequest fetches a single job by id.
type JobDescribeRequest struct {
	ID string `json:"id"`
}

// JobDescribeResponse contains a single job with artifacts.
type JobDescribeResponse struct {
	Job JobDetail `json:"job"`
}

// JobCancelRequest requests cancellation of a job.
type JobCancelRequest struct {
	ID string `json:"id"`
}

// JobCancelResponse reports the job status after the cancel request.
type JobCancelResponse struct {
	Status string `json:"status"`
}

// JobRetryRequest requeues failed jobs. Empty list means all failed jobs.
type JobRetryRequest struct {
	IDs []string `json:"ids"`
}

// JobRetryResponse reports number of requeued jobs.
type JobRetryResponse struct {
	Updated int64 `json:"updated"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
