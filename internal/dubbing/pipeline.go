package dubbing

import (
	"log/slog"
	"net/http"
	"time"

	"overdub/internal/artifacts"
	"overdub/internal/config"
	"overdub/internal/media"
	"overdub/internal/services/mt"
	"overdub/internal/services/stt"
	"overdub/internal/services/tts"
	"overdub/internal/stage"
)

// Pipeline returns the ordered stage handlers for a dubbing job:
// extract, transcribe, translate, synthesize, align-captions, remux.
func Pipeline(cfg *config.Config, store artifacts.Store, logger *slog.Logger) []stage.Handler {
	tools := media.NewTools(
		media.WithFFmpeg(cfg.FFmpegBinary()),
		media.WithFFprobe(cfg.FFprobeBinary()),
	)

	timeout := time.Duration(cfg.Services.RequestTimeout) * time.Second
	var httpClient *http.Client
	if timeout > 0 {
		httpClient = &http.Client{Timeout: timeout}
	}

	sttOpts := []stt.Option{}
	if cfg.Services.SpeechToTextModel != "" {
		sttOpts = append(sttOpts, stt.WithModel(cfg.Services.SpeechToTextModel))
	}
	if httpClient != nil {
		sttOpts = append(sttOpts, stt.WithHTTPClient(httpClient))
	}
	sttClient := stt.NewClient(cfg.Services.SpeechToTextURL, cfg.Services.SpeechToTextAPIKey, sttOpts...)

	mtOpts := []mt.Option{}
	if cfg.Services.TranslateModel != "" {
		mtOpts = append(mtOpts, mt.WithModel(cfg.Services.TranslateModel))
	}
	if httpClient != nil {
		mtOpts = append(mtOpts, mt.WithHTTPClient(httpClient))
	}
	mtClient := mt.NewClient(cfg.Services.TranslateURL, cfg.Services.TranslateAPIKey, mtOpts...)

	ttsOpts := []tts.Option{}
	if httpClient != nil {
		ttsOpts = append(ttsOpts, tts.WithHTTPClient(httpClient))
	}
	ttsClient := tts.NewClient(cfg.Services.TextToSpeechURL, cfg.Services.TextToSpeechAPIKey, ttsOpts...)

	return []stage.Handler{
		NewExtract(store, tools, cfg.Paths.StagingDir, cfg.FFmpegBinary(), logger),
		NewTranscribe(store, sttClient, cfg.Services.SpeechToTextURL, logger),
		NewTranslate(store, mtClient, cfg.Services.TranslateURL, logger),
		NewSynthesize(store, ttsClient, cfg.Services.TextToSpeechURL, logger),
		NewAlignCaptions(store, logger),
		NewRemux(store, tools, cfg.Paths.StagingDir, cfg.FFmpegBinary(), logger),
	}
}
