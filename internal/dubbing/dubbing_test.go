package dubbing_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"overdub/internal/artifacts"
	"overdub/internal/dubbing"
	"overdub/internal/logging"
	"overdub/internal/media"
	"overdub/internal/queue"
	"overdub/internal/services/mt"
	"overdub/internal/services/stt"
	"overdub/internal/services/tts"
	"overdub/internal/stage"
	"overdub/internal/testsupport"
)

func newStore(t *testing.T) artifacts.Store {
	t.Helper()
	store, err := artifacts.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func testJob(generateCaptions bool) *queue.Job {
	return &queue.Job{
		ID:               "job-1",
		FileName:         "talk.mp4",
		SourceLanguage:   "en",
		TargetLanguage:   "hi",
		VoiceStyle:       "natural",
		GenerateCaptions: generateCaptions,
		Status:           queue.StatusRunning,
	}
}

func TestTranscribeStoresTranscript(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	audioKey := artifacts.StageKey("extract", []string{"src"}, nil)
	if _, err := store.Put(ctx, audioKey, strings.NewReader("wav-bytes")); err != nil {
		t.Fatalf("put audio: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"language":"en","segments":[{"start":0,"end":2,"text":"hello"}]}`))
	}))
	defer server.Close()

	handler := dubbing.NewTranscribe(store, stt.NewClient(server.URL, ""), server.URL, logging.NewNop())
	ref, err := handler.Execute(ctx, testJob(false), map[string]string{stage.ArtifactAudio: audioKey})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	data, err := artifacts.ReadAll(ctx, store, ref)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	var doc stt.Transcript
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode transcript: %v", err)
	}
	if len(doc.Segments) != 1 || doc.Segments[0].Text != "hello" {
		t.Fatalf("unexpected transcript %+v", doc)
	}
}

func TestTranslatePreservesTiming(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	transcript := stt.Transcript{Language: "en", Segments: []stt.Segment{
		{Start: 0, End: 2, Text: "hello"},
		{Start: 2, End: 4, Text: "world"},
	}}
	encoded, _ := json.Marshal(transcript)
	transcriptKey := artifacts.StageKey("transcribe", []string{"audio"}, nil)
	if _, err := artifacts.PutString(ctx, store, transcriptKey, string(encoded)); err != nil {
		t.Fatalf("put transcript: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Segments []string `json:"segments"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		out := make([]string, len(req.Segments))
		for i, seg := range req.Segments {
			out[i] = "hi:" + seg
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"segments": out})
	}))
	defer server.Close()

	handler := dubbing.NewTranslate(store, mt.NewClient(server.URL, ""), server.URL, logging.NewNop())
	ref, err := handler.Execute(ctx, testJob(false), map[string]string{stage.ArtifactTranscript: transcriptKey})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	data, err := artifacts.ReadAll(ctx, store, ref)
	if err != nil {
		t.Fatalf("read translation: %v", err)
	}
	var doc struct {
		TargetLanguage string          `json:"targetLanguage"`
		Segments       []tts.TimedText `json:"segments"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode translation: %v", err)
	}
	if doc.TargetLanguage != "hi" || len(doc.Segments) != 2 {
		t.Fatalf("unexpected translation %+v", doc)
	}
	if doc.Segments[1].Start != 2 || doc.Segments[1].End != 4 || doc.Segments[1].Text != "hi:world" {
		t.Fatalf("timing not preserved: %+v", doc.Segments[1])
	}
}

func putTranslation(t *testing.T, store artifacts.Store, key string) {
	t.Helper()
	doc := map[string]any{
		"sourceLanguage": "en",
		"targetLanguage": "hi",
		"segments": []tts.TimedText{
			{Start: 0, End: 2, Text: "namaste"},
			{Start: 2, End: 4, Text: "duniya"},
		},
	}
	encoded, _ := json.Marshal(doc)
	if _, err := artifacts.PutString(context.Background(), store, key, string(encoded)); err != nil {
		t.Fatalf("put translation: %v", err)
	}
}

func TestSynthesizeStoresAudio(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	translationKey := artifacts.StageKey("translate", []string{"transcript"}, nil)
	putTranslation(t, store, translationKey)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("RIFF-dubbed"))
	}))
	defer server.Close()

	handler := dubbing.NewSynthesize(store, tts.NewClient(server.URL, ""), server.URL, logging.NewNop())
	ref, err := handler.Execute(ctx, testJob(false), map[string]string{stage.ArtifactTranslation: translationKey})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	data, err := artifacts.ReadAll(ctx, store, ref)
	if err != nil || string(data) != "RIFF-dubbed" {
		t.Fatalf("unexpected audio %q (%v)", data, err)
	}
}

func TestAlignCaptionsRendersSRT(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	translationKey := artifacts.StageKey("translate", []string{"transcript"}, nil)
	putTranslation(t, store, translationKey)

	handler := dubbing.NewAlignCaptions(store, logging.NewNop())
	ref, err := handler.Execute(ctx, testJob(true), map[string]string{stage.ArtifactTranslation: translationKey})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	data, err := artifacts.ReadAll(ctx, store, ref)
	if err != nil {
		t.Fatalf("read captions: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "00:00:00,000 --> 00:00:02,000") || !strings.Contains(text, "namaste") {
		t.Fatalf("unexpected srt:\n%s", text)
	}
}

func TestAlignCaptionsSkipsWhenNotRequested(t *testing.T) {
	store := newStore(t)
	handler := dubbing.NewAlignCaptions(store, logging.NewNop())
	_, err := handler.Execute(context.Background(), testJob(false), map[string]string{stage.ArtifactTranslation: "x"})
	if !errors.Is(err, stage.ErrSkipped) {
		t.Fatalf("expected skip, got %v", err)
	}
}

func TestExtractReusesCachedOutput(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	sourceRef := artifacts.StageKey("source", []string{"upload"}, nil)
	cachedKey := artifacts.StageKey("extract", []string{sourceRef}, nil)
	if _, err := store.Put(ctx, cachedKey, strings.NewReader("cached-wav")); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	// The ffmpeg binary is intentionally bogus: a cache hit must not shell out.
	handler := dubbing.NewExtract(store, media.NewTools(media.WithFFmpeg("/nonexistent/ffmpeg")), t.TempDir(), "/nonexistent/ffmpeg", logging.NewNop())
	ref, err := handler.Execute(ctx, testJob(false), map[string]string{stage.ArtifactSource: sourceRef})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if ref != cachedKey {
		t.Fatalf("expected cached ref, got %q", ref)
	}
}

func TestRemuxReusesCachedOutput(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	sourceRef := artifacts.StageKey("source", []string{"upload"}, nil)
	audioRef := artifacts.StageKey("synthesize", []string{"translation"}, nil)
	cachedKey := artifacts.StageKey("remux", []string{sourceRef, audioRef}, nil)
	if _, err := store.Put(ctx, cachedKey, strings.NewReader("cached-video")); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	handler := dubbing.NewRemux(store, media.NewTools(media.WithFFmpeg("/nonexistent/ffmpeg")), t.TempDir(), "/nonexistent/ffmpeg", logging.NewNop())
	ref, err := handler.Execute(ctx, testJob(false), map[string]string{
		stage.ArtifactSource:      sourceRef,
		stage.ArtifactDubbedAudio: audioRef,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if ref != cachedKey {
		t.Fatalf("expected cached ref, got %q", ref)
	}
}

func TestPipelineOrder(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := newStore(t)
	handlers := dubbing.Pipeline(cfg, store, logging.NewNop())

	want := []string{"extract", "transcribe", "translate", "synthesize", "align-captions", "remux"}
	if len(handlers) != len(want) {
		t.Fatalf("expected %d stages, got %d", len(want), len(handlers))
	}
	for i, handler := range handlers {
		if handler.Descriptor().Name != want[i] {
			t.Fatalf("stage %d: expected %s, got %s", i, want[i], handler.Descriptor().Name)
		}
	}
}
