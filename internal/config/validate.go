package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		problems = append(problems, "paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		problems = append(problems, "paths.log_dir must be set")
	}

	switch c.ArtifactStore.Backend {
	case BackendLocal:
		if strings.TrimSpace(c.Paths.ArtifactsDir) == "" {
			problems = append(problems, "paths.artifacts_dir must be set for the local artifact store")
		}
	case BackendS3:
		if c.ArtifactStore.Endpoint == "" {
			problems = append(problems, "artifact_store.endpoint must be set for the s3 backend")
		}
		if c.ArtifactStore.Bucket == "" {
			problems = append(problems, "artifact_store.bucket must be set for the s3 backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("artifact_store.backend must be %q or %q, got %q", BackendLocal, BackendS3, c.ArtifactStore.Backend))
	}

	if c.Workflow.HeartbeatTimeout > 0 && c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		problems = append(problems, "workflow.heartbeat_timeout must exceed workflow.heartbeat_interval")
	}
	if c.Workflow.StageTimeout < 0 {
		problems = append(problems, "workflow.stage_timeout must not be negative")
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format must be console or json, got %q", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
