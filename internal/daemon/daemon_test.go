package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"overdub/internal/api"
	"overdub/internal/artifacts"
	"overdub/internal/captions"
	"overdub/internal/config"
	"overdub/internal/events"
	"overdub/internal/logging"
	"overdub/internal/notifications"
	"overdub/internal/queue"
	"overdub/internal/stage"
	"overdub/internal/testsupport"
	"overdub/internal/workflow"
)

type stubStage struct {
	name     string
	inputs   []string
	optional []string
	output   string
	execute  func(ctx context.Context, job *queue.Job, inputs map[string]string) (string, error)
}

func (s *stubStage) Descriptor() stage.Descriptor {
	return stage.Descriptor{Name: s.name, Inputs: s.inputs, Optional: s.optional, Output: s.output}
}

func (s *stubStage) Execute(ctx context.Context, job *queue.Job, inputs map[string]string) (string, error) {
	if s.execute != nil {
		return s.execute(ctx, job, inputs)
	}
	return "ref-" + s.output, nil
}

func (s *stubStage) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy(s.name)
}

// stubPipeline mirrors the real stage sequence but fakes the media and
// service work, writing only the artifacts the API reads back.
func stubPipeline(store artifacts.Store) []stage.Handler {
	return []stage.Handler{
		&stubStage{name: "extract", inputs: []string{stage.ArtifactSource}, output: stage.ArtifactAudio},
		&stubStage{name: "transcribe", inputs: []string{stage.ArtifactAudio}, output: stage.ArtifactTranscript},
		&stubStage{name: "translate", inputs: []string{stage.ArtifactTranscript}, output: stage.ArtifactTranslation},
		&stubStage{name: "synthesize", inputs: []string{stage.ArtifactTranslation}, output: stage.ArtifactDubbedAudio},
		&stubStage{name: "align-captions", inputs: []string{stage.ArtifactTranslation}, output: stage.ArtifactCaptions,
			execute: func(ctx context.Context, job *queue.Job, _ map[string]string) (string, error) {
				if !job.GenerateCaptions {
					return "", stage.ErrSkipped
				}
				srt := captions.RenderSRT(captions.Track{Cues: []captions.Cue{
					{Start: 0, End: 2, Text: "नमस्ते दुनिया"},
				}})
				key := artifacts.StageKey("align-captions", []string{job.ID}, nil)
				return artifacts.PutString(ctx, store, key, srt)
			}},
		&stubStage{name: "remux", inputs: []string{stage.ArtifactSource, stage.ArtifactDubbedAudio},
			optional: []string{stage.ArtifactCaptions}, output: stage.ArtifactVideo,
			execute: func(ctx context.Context, job *queue.Job, _ map[string]string) (string, error) {
				key := artifacts.StageKey("remux", []string{job.ID}, nil)
				return artifacts.PutString(ctx, store, key, "dubbed video bytes")
			}},
	}
}

type daemonFixture struct {
	daemon  *Daemon
	cfg     *config.Config
	store   *queue.Store
	baseURL string
}

func newDaemonFixture(t *testing.T, stages func(artifacts.Store) []stage.Handler) *daemonFixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.Workers = 1
	cfg.Workflow.QueuePollInterval = 1
	cfg.Workflow.RetryBackoffInitial = 0
	cfg.Workflow.RetryBackoffMax = 0
	cfg.API.SyncWaitSeconds = 30

	store := testsupport.MustOpenStore(t, cfg)
	artifactStore, err := artifacts.NewLocal(cfg.Paths.ArtifactsDir)
	if err != nil {
		t.Fatalf("artifact store: %v", err)
	}
	bus := events.NewBus(256)
	notifier := notifications.NewService(&config.Config{})
	logger := logging.NewNop()
	jobs := api.NewJobService(cfg, store, artifactStore, bus, notifier, logger)
	manager := workflow.NewManager(cfg, store, artifactStore, bus, notifier, logger, stages(artifactStore))

	d, err := New(cfg, store, logger, manager, jobs)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	t.Cleanup(d.Stop)

	return &daemonFixture{daemon: d, cfg: cfg, store: store, baseURL: "http://" + d.APIAddr()}
}

func uploadBody(t *testing.T, includeVideo bool, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if includeVideo {
		part, err := writer.CreateFormFile("video", "movie.mp4")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte("fake video payload")); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field %s: %v", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func dubbingFields() map[string]string {
	return map[string]string{
		"sourceLanguage":   "en",
		"targetLanguage":   "hi",
		"voiceStyle":       "natural",
		"generateCaptions": "true",
	}
}

func decodeUpload(t *testing.T, resp *http.Response) api.UploadResponse {
	t.Helper()
	defer resp.Body.Close()
	var payload api.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	return payload
}

func TestUploadMissingVideoReturns400(t *testing.T) {
	fx := newDaemonFixture(t, stubPipeline)
	body, contentType := uploadBody(t, false, dubbingFields())

	resp, err := http.Post(fx.baseURL+"/upload", contentType, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	payload := decodeUpload(t, resp)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if payload.Success || payload.Message == "" {
		t.Fatalf("expected failure envelope with message, got %+v", payload)
	}

	jobs, err := fx.daemon.Jobs().List(context.Background())
	if err != nil || len(jobs) != 0 {
		t.Fatalf("no job may exist after rejected upload, got %d (%v)", len(jobs), err)
	}
}

func TestUploadInvalidLanguageReturns400(t *testing.T) {
	fx := newDaemonFixture(t, stubPipeline)
	fields := dubbingFields()
	fields["targetLanguage"] = "xx"
	body, contentType := uploadBody(t, true, fields)

	resp, err := http.Post(fx.baseURL+"/upload", contentType, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	payload := decodeUpload(t, resp)
	if resp.StatusCode != http.StatusBadRequest || payload.Success {
		t.Fatalf("expected 400 failure, got %d %+v", resp.StatusCode, payload)
	}
}

func TestUploadSyncDubsEndToEnd(t *testing.T) {
	fx := newDaemonFixture(t, stubPipeline)
	body, contentType := uploadBody(t, true, dubbingFields())

	resp, err := http.Post(fx.baseURL+"/upload", contentType, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	payload := decodeUpload(t, resp)
	if resp.StatusCode != http.StatusOK || !payload.Success {
		t.Fatalf("expected 200 success, got %d %+v", resp.StatusCode, payload)
	}
	if payload.Data == nil || payload.Data.DownloadURL == "" {
		t.Fatalf("expected download url, got %+v", payload.Data)
	}
	if payload.Data.FileName != "movie.hi.dubbed.mp4" {
		t.Fatalf("unexpected file name %s", payload.Data.FileName)
	}
	if len(payload.Data.Captions) < 1 {
		t.Fatal("expected at least one caption")
	}
	for _, entry := range payload.Data.Captions {
		if entry.Start >= entry.End {
			t.Fatalf("caption timing inverted: %+v", entry)
		}
	}

	download, err := http.Get(fx.baseURL + payload.Data.DownloadURL)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	defer download.Body.Close()
	if download.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 download, got %d", download.StatusCode)
	}
	if got := download.Header.Get("Content-Disposition"); !strings.Contains(got, payload.Data.FileName) {
		t.Fatalf("unexpected content disposition %q", got)
	}
	data, err := io.ReadAll(download.Body)
	if err != nil || string(data) != "dubbed video bytes" {
		t.Fatalf("unexpected download body %q (%v)", data, err)
	}
}

func TestUploadAsyncReturns202AndJobCompletes(t *testing.T) {
	fx := newDaemonFixture(t, stubPipeline)
	body, contentType := uploadBody(t, true, dubbingFields())

	resp, err := http.Post(fx.baseURL+"/upload?async=1", contentType, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	payload := decodeUpload(t, resp)
	if resp.StatusCode != http.StatusAccepted || !payload.Success || payload.JobID == "" {
		t.Fatalf("expected 202 with job id, got %d %+v", resp.StatusCode, payload)
	}

	job := waitForStatus(t, fx, payload.JobID, queue.StatusDone)
	if job.Status != queue.StatusDone {
		t.Fatalf("expected done, got %s", job.Status)
	}

	evtResp, err := http.Get(fx.baseURL + "/api/jobs/" + payload.JobID + "/events?since=0")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	defer evtResp.Body.Close()
	var evtPayload struct {
		Events []events.Event `json:"events"`
	}
	if err := json.NewDecoder(evtResp.Body).Decode(&evtPayload); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(evtPayload.Events) == 0 || evtPayload.Events[0].Type != events.TypeJobQueued {
		t.Fatalf("expected job_queued first, got %+v", evtPayload.Events)
	}
}

func TestJobEndpoints(t *testing.T) {
	fx := newDaemonFixture(t, stubPipeline)
	body, contentType := uploadBody(t, true, dubbingFields())

	resp, err := http.Post(fx.baseURL+"/upload?async=1", contentType, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	payload := decodeUpload(t, resp)
	waitForStatus(t, fx, payload.JobID, queue.StatusDone)

	listResp, err := http.Get(fx.baseURL + "/api/jobs?status=done")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer listResp.Body.Close()
	var list api.JobListResponse
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Jobs) != 1 || list.Jobs[0].ID != payload.JobID {
		t.Fatalf("unexpected job list %+v", list.Jobs)
	}

	detailResp, err := http.Get(fx.baseURL + "/api/jobs/" + payload.JobID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	defer detailResp.Body.Close()
	var detail api.JobResponse
	if err := json.NewDecoder(detailResp.Body).Decode(&detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.Job.Status != string(queue.StatusDone) || len(detail.Job.Artifacts) == 0 {
		t.Fatalf("unexpected detail %+v", detail.Job)
	}

	missingResp, err := http.Get(fx.baseURL + "/api/jobs/does-not-exist")
	if err != nil {
		t.Fatalf("missing: %v", err)
	}
	missingResp.Body.Close()
	if missingResp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", missingResp.StatusCode)
	}
}

func TestCancelThroughAPI(t *testing.T) {
	release := make(chan struct{})
	blocking := func(store artifacts.Store) []stage.Handler {
		return []stage.Handler{
			&stubStage{name: "extract", inputs: []string{stage.ArtifactSource}, output: stage.ArtifactAudio,
				execute: func(ctx context.Context, _ *queue.Job, _ map[string]string) (string, error) {
					select {
					case <-release:
					case <-ctx.Done():
						return "", ctx.Err()
					}
					return "ref-audio", nil
				}},
			&stubStage{name: "transcribe", inputs: []string{stage.ArtifactAudio}, output: stage.ArtifactTranscript},
		}
	}
	fx := newDaemonFixture(t, blocking)
	body, contentType := uploadBody(t, true, dubbingFields())

	resp, err := http.Post(fx.baseURL+"/upload?async=1", contentType, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	payload := decodeUpload(t, resp)
	waitForStatus(t, fx, payload.JobID, queue.StatusRunning)

	cancelResp, err := http.Post(fx.baseURL+"/api/jobs/"+payload.JobID+"/cancel", "application/json", nil)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	cancelResp.Body.Close()
	if cancelResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 cancel, got %d", cancelResp.StatusCode)
	}
	close(release)

	job := waitForStatus(t, fx, payload.JobID, queue.StatusCanceled)
	if job.Status != queue.StatusCanceled {
		t.Fatalf("expected canceled, got %s", job.Status)
	}
}

func TestEventsWebsocketStreamsProgress(t *testing.T) {
	fx := newDaemonFixture(t, stubPipeline)
	body, contentType := uploadBody(t, true, dubbingFields())

	resp, err := http.Post(fx.baseURL+"/upload?async=1", contentType, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	payload := decodeUpload(t, resp)
	waitForStatus(t, fx, payload.JobID, queue.StatusDone)

	wsURL := "ws" + strings.TrimPrefix(fx.baseURL, "http") + "/api/events/ws?since=0"
	conn, wsResp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	if wsResp != nil {
		wsResp.Body.Close()
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var first events.Event
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if first.Type != events.TypeJobQueued || first.JobID != payload.JobID {
		t.Fatalf("expected job_queued replay, got %+v", first)
	}
}

func TestStatusEndpoint(t *testing.T) {
	fx := newDaemonFixture(t, stubPipeline)

	resp, err := http.Get(fx.baseURL + "/api/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	defer resp.Body.Close()
	var status api.DaemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running || !status.Workflow.Running {
		t.Fatalf("expected running daemon, got %+v", status)
	}
	if len(status.Workflow.StageHealth) != 6 {
		t.Fatalf("expected six stages, got %+v", status.Workflow.StageHealth)
	}
}

func TestSecondInstanceRejected(t *testing.T) {
	fx := newDaemonFixture(t, stubPipeline)

	bus := events.NewBus(16)
	notifier := notifications.NewService(&config.Config{})
	logger := logging.NewNop()
	artifactStore, err := artifacts.NewLocal(fx.cfg.Paths.ArtifactsDir)
	if err != nil {
		t.Fatalf("artifact store: %v", err)
	}
	jobs := api.NewJobService(fx.cfg, fx.store, artifactStore, bus, notifier, logger)
	manager := workflow.NewManager(fx.cfg, fx.store, artifactStore, bus, notifier, logger, stubPipeline(artifactStore))
	second, err := New(fx.cfg, fx.store, logger, manager, jobs)
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second instance to be rejected by the lock")
	}
}

func waitForStatus(t *testing.T, fx *daemonFixture, jobID string, want queue.Status) *queue.Job {
	t.Helper()
	deadline := time.After(20 * time.Second)
	for {
		job, err := fx.store.GetJob(context.Background(), jobID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job.Status == want || (job.Status.Terminal() && want != queue.StatusRunning) {
			return job
		}
		select {
		case <-deadline:
			t.Fatalf("job %s never reached %s, currently %s", jobID, want, job.Status)
		case <-time.After(50 * time.Millisecond):
		}
	}
}
