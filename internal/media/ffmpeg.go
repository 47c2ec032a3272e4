package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"overdub/internal/services"
)

var commandContext = exec.CommandContext

// Tools wraps the ffmpeg and ffprobe binaries used by the pipeline stages.
type Tools struct {
	ffmpeg  string
	ffprobe string
}

// Option configures the media tools.
type Option func(*Tools)

// WithFFmpeg overrides the ffmpeg binary name.
func WithFFmpeg(binary string) Option {
	return func(t *Tools) {
		if binary != "" {
			t.ffmpeg = binary
		}
	}
}

// WithFFprobe overrides the ffprobe binary name.
func WithFFprobe(binary string) Option {
	return func(t *Tools) {
		if binary != "" {
			t.ffprobe = binary
		}
	}
}

// NewTools constructs media tooling using defaults.
func NewTools(opts ...Option) *Tools {
	tools := &Tools{ffmpeg: "ffmpeg", ffprobe: "ffprobe"}
	for _, opt := range opts {
		opt(tools)
	}
	return tools
}

// ExtractAudio pulls the audio track out of a video as 16 kHz mono PCM, the
// format the speech recognizer expects.
func (t *Tools) ExtractAudio(ctx context.Context, videoPath, audioPath string) error {
	if videoPath == "" || audioPath == "" {
		return services.Wrap(services.ErrValidation, "extract", "ffmpeg", "video and audio paths required", nil)
	}
	args := []string{
		"-y", "-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		audioPath,
	}
	return t.run(ctx, "extract", t.ffmpeg, args...)
}

// Remux replaces the video's audio track with the dubbed one without
// re-encoding the video stream.
func (t *Tools) Remux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	if videoPath == "" || audioPath == "" || outputPath == "" {
		return services.Wrap(services.ErrValidation, "remux", "ffmpeg", "video, audio, and output paths required", nil)
	}
	args := []string{
		"-y", "-i", videoPath, "-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-shortest",
		outputPath,
	}
	return t.run(ctx, "remux", t.ffmpeg, args...)
}

// MuxCaptions embeds an SRT caption track into the remuxed video as a
// soft-subtitle stream.
func (t *Tools) MuxCaptions(ctx context.Context, videoPath, srtPath, outputPath, languageCode string) error {
	if videoPath == "" || srtPath == "" || outputPath == "" {
		return services.Wrap(services.ErrValidation, "remux", "ffmpeg", "video, caption, and output paths required", nil)
	}
	args := []string{
		"-y", "-i", videoPath, "-i", srtPath,
		"-map", "0",
		"-map", "1:s:0",
		"-c", "copy",
		"-c:s", "mov_text",
	}
	if languageCode != "" {
		args = append(args, "-metadata:s:s:0", "language="+languageCode)
	}
	args = append(args, outputPath)
	return t.run(ctx, "remux", t.ffmpeg, args...)
}

// Duration probes a media file's length in seconds.
func (t *Tools) Duration(ctx context.Context, path string) (float64, error) {
	if path == "" {
		return 0, services.Wrap(services.ErrValidation, "", "ffprobe", "path required", nil)
	}
	cmd := commandContext(ctx, t.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return 0, classifyExec(ctx, "", "ffprobe", err, stderr.Bytes())
	}
	value := strings.TrimSpace(string(output))
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, services.Wrap(services.ErrPermanent, "", "ffprobe", "unparseable duration "+value, err)
	}
	return seconds, nil
}

func (t *Tools) run(ctx context.Context, stage, binary string, args ...string) error {
	cmd := commandContext(ctx, binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return classifyExec(ctx, stage, binary, err, stderr.Bytes())
	}
	return nil
}

func classifyExec(ctx context.Context, stage, binary string, err error, stderr []byte) error {
	if ctx.Err() != nil {
		return services.Wrap(services.ErrTimeout, stage, binary, "command interrupted", ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return services.Wrap(services.ErrPermanent, stage, binary,
			fmt.Sprintf("exit %d: %s", exitErr.ExitCode(), stderrTail(stderr)), nil)
	}
	return services.Wrap(services.ErrPermanent, stage, binary, "command failed", err)
}

func stderrTail(stderr []byte) string {
	text := strings.TrimSpace(string(stderr))
	if text == "" {
		return "no diagnostic output"
	}
	lines := strings.Split(text, "\n")
	if len(lines) > 4 {
		lines = lines[len(lines)-4:]
	}
	return strings.Join(lines, " | ")
}
