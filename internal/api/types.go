package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// JobSummary describes a dubbing job in a transport-friendly format.
type JobSummary struct {
	ID               string `json:"id"`
	FileName         string `json:"fileName"`
	SourceLanguage   string `json:"sourceLanguage"`
	TargetLanguage   string `json:"targetLanguage"`
	VoiceStyle       string `json:"voiceStyle"`
	GenerateCaptions bool   `json:"generateCaptions"`
	Status           string `json:"status"`
	CurrentStage     string `json:"currentStage,omitempty"`
	ErrorStage       string `json:"errorStage,omitempty"`
	ErrorKind        string `json:"errorKind,omitempty"`
	ErrorMessage     string `json:"errorMessage,omitempty"`
	CreatedAt        string `json:"createdAt,omitempty"`
	UpdatedAt        string `json:"updatedAt,omitempty"`
}

// ArtifactEntry names a recorded stage output for a job.
type ArtifactEntry struct {
	Stage     string `json:"stage"`
	Ref       string `json:"ref"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// JobDetail extends JobSummary with the recorded artifacts.
type JobDetail struct {
	JobSummary
	Artifacts []ArtifactEntry `json:"artifacts"`
}

// CaptionEntry is one aligned caption in a dubbing result.
type CaptionEntry struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// UploadData is the payload of a successful synchronous upload.
type UploadData struct {
	OriginalVideo string         `json:"originalVideo"`
	DubbedVideo   string         `json:"dubbedVideo"`
	DownloadURL   string         `json:"downloadUrl"`
	FileName      string         `json:"fileName"`
	Captions      []CaptionEntry `json:"captions"`
}

// UploadResponse is the envelope returned by POST /upload.
type UploadResponse struct {
	Success bool        `json:"success"`
	JobID   string      `json:"jobId,omitempty"`
	Data    *UploadData `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// StageHealth mirrors readiness reporting for pipeline stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// WorkflowStatus summarizes executor state for API consumers.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	Workers     int            `json:"workers"`
	QueueStats  map[string]int `json:"queueStats"`
	LastError   string         `json:"lastError,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// DaemonStatus aggregates daemon runtime information.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	JobDBPath    string         `json:"jobDbPath"`
	LockFilePath string         `json:"lockFilePath"`
	Workflow     WorkflowStatus `json:"workflow"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []JobSummary `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job JobDetail `json:"job"`
}

// CancelResponse reports the job status after a cancel request.
type CancelResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

// RetryResponse reports how many failed jobs were requeued.
type RetryResponse struct {
	Updated int64 `json:"updated"`
}
