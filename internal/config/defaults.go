package config

// Artifact store backends.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

const (
	defaultStagingDir   = "~/.local/share/overdub/staging"
	defaultArtifactsDir = "~/.local/share/overdub/artifacts"
	defaultLogDir       = "~/.local/share/overdub/logs"
	defaultSocketPath   = "~/.local/share/overdub/overdub.sock"
	defaultAPIBind      = "127.0.0.1:8196"

	defaultServiceRequestTimeout = 120

	defaultWorkers             = 2
	defaultQueuePollInterval   = 5
	defaultErrorRetryInterval  = 10
	defaultHeartbeatInterval   = 15
	defaultHeartbeatTimeout    = 120
	defaultStageTimeout        = 600
	defaultStageRetries        = 3
	defaultRetryBackoffInitial = 2
	defaultRetryBackoffMax     = 30

	defaultSyncWaitSeconds = 900
	defaultMaxUploadMiB    = 2048

	defaultNotifyRequestTimeout = 10

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir:   defaultStagingDir,
			ArtifactsDir: defaultArtifactsDir,
			LogDir:       defaultLogDir,
			SocketPath:   defaultSocketPath,
			APIBind:      defaultAPIBind,
		},
		Services: Services{
			RequestTimeout: defaultServiceRequestTimeout,
		},
		ArtifactStore: ArtifactStore{
			Backend: BackendLocal,
			UseSSL:  true,
		},
		Workflow: Workflow{
			Workers:             defaultWorkers,
			QueuePollInterval:   defaultQueuePollInterval,
			ErrorRetryInterval:  defaultErrorRetryInterval,
			HeartbeatInterval:   defaultHeartbeatInterval,
			HeartbeatTimeout:    defaultHeartbeatTimeout,
			StageTimeout:        defaultStageTimeout,
			StageRetries:        defaultStageRetries,
			RetryBackoffInitial: defaultRetryBackoffInitial,
			RetryBackoffMax:     defaultRetryBackoffMax,
		},
		API: API{
			SyncWaitSeconds: defaultSyncWaitSeconds,
			MaxUploadMiB:    defaultMaxUploadMiB,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobCompleted:   true,
			JobFailed:      true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
