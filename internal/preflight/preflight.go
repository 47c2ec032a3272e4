package preflight

import (
	"context"

	"overdub/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// minFreeBytes is the artifact store headroom required before accepting
// uploads. Remux output can approach the source size, so a few GiB is the
// floor for real use.
const minFreeBytes = 1 << 30

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckBinary("FFmpeg", cfg.FFmpegBinary(), "required for audio extraction and remuxing"),
		CheckBinary("FFprobe", cfg.FFprobeBinary(), "required for media inspection"),
	}

	if cfg.ArtifactStore.Backend == config.BackendLocal {
		results = append(results,
			CheckDirectoryAccess("Artifacts directory", cfg.Paths.ArtifactsDir),
			CheckDiskSpace("Artifacts disk space", cfg.Paths.ArtifactsDir, minFreeBytes),
		)
	}

	results = append(results,
		CheckServiceURL("Speech-to-text service", cfg.Services.SpeechToTextURL),
		CheckServiceURL("Translation service", cfg.Services.TranslateURL),
		CheckServiceURL("Text-to-speech service", cfg.Services.TextToSpeechURL),
	)
	return results
}

// AllPassed reports whether every check succeeded.
func AllPassed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	return true
}
