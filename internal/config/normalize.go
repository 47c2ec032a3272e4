package config

import "strings"

func (c *Config) normalize() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return err
	}
	if c.Paths.ArtifactsDir, err = expandPath(c.Paths.ArtifactsDir); err != nil {
		return err
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return err
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return err
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)

	c.Services.SpeechToTextURL = strings.TrimRight(strings.TrimSpace(c.Services.SpeechToTextURL), "/")
	c.Services.TranslateURL = strings.TrimRight(strings.TrimSpace(c.Services.TranslateURL), "/")
	c.Services.TextToSpeechURL = strings.TrimRight(strings.TrimSpace(c.Services.TextToSpeechURL), "/")
	c.Services.SpeechToTextAPIKey = strings.TrimSpace(c.Services.SpeechToTextAPIKey)
	c.Services.TranslateAPIKey = strings.TrimSpace(c.Services.TranslateAPIKey)
	c.Services.TextToSpeechAPIKey = strings.TrimSpace(c.Services.TextToSpeechAPIKey)

	c.ArtifactStore.Backend = strings.ToLower(strings.TrimSpace(c.ArtifactStore.Backend))
	if c.ArtifactStore.Backend == "" {
		c.ArtifactStore.Backend = BackendLocal
	}
	c.ArtifactStore.Endpoint = strings.TrimSpace(c.ArtifactStore.Endpoint)
	c.ArtifactStore.Bucket = strings.TrimSpace(c.ArtifactStore.Bucket)

	if c.Workflow.Workers <= 0 {
		c.Workflow.Workers = defaultWorkers
	}
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		c.Workflow.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Workflow.StageRetries <= 0 {
		c.Workflow.StageRetries = defaultStageRetries
	}
	if c.Workflow.RetryBackoffInitial <= 0 {
		c.Workflow.RetryBackoffInitial = defaultRetryBackoffInitial
	}
	if c.Workflow.RetryBackoffMax < c.Workflow.RetryBackoffInitial {
		c.Workflow.RetryBackoffMax = defaultRetryBackoffMax
	}
	if c.API.SyncWaitSeconds <= 0 {
		c.API.SyncWaitSeconds = defaultSyncWaitSeconds
	}
	if c.API.MaxUploadMiB <= 0 {
		c.API.MaxUploadMiB = defaultMaxUploadMiB
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
	if c.Services.RequestTimeout <= 0 {
		c.Services.RequestTimeout = defaultServiceRequestTimeout
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}

	return nil
}
