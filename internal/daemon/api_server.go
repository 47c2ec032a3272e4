package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"overdub/internal/api"
	"overdub/internal/config"
	"overdub/internal/logging"
	"overdub/internal/queue"
	"overdub/internal/services"
)

type apiServer struct {
	bind   string
	cfg    *config.Config
	logger *slog.Logger
	daemon *Daemon
	jobs   *api.JobService

	listener net.Listener
	server   *http.Server
	upgrader websocket.Upgrader
}

func newAPIServer(cfg *config.Config, d *Daemon, jobs *api.JobService, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
		jobs:   jobs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	srv.server = &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      0, // uploads and websocket pushes run long
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/jobs", s.handleJobs)
	mux.HandleFunc("/api/jobs/", s.handleJob)
	mux.HandleFunc("/api/events/ws", s.handleEventsWS)
	mux.HandleFunc("/download/", s.handleDownload)
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// handleUpload implements the POST /upload contract: multipart video plus
// dubbing parameters, synchronous by default with the wait bounded by config,
// immediate 202 with ?async=1.
func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if limit := int64(s.cfg.API.MaxUploadMiB) << 20; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, api.UploadResponse{
			Success: false,
			Message: "video file is required",
			Error:   "missing multipart field video",
		})
		return
	}
	defer file.Close()

	job, err := s.jobs.Submit(r.Context(), api.SubmitRequest{
		Video:            file,
		FileName:         header.Filename,
		SourceLanguage:   r.FormValue("sourceLanguage"),
		TargetLanguage:   r.FormValue("targetLanguage"),
		VoiceStyle:       r.FormValue("voiceStyle"),
		GenerateCaptions: parseBoolField(r.FormValue("generateCaptions")),
	})
	if err != nil {
		s.writeUploadFailure(w, "", err)
		return
	}

	if parseBoolField(r.URL.Query().Get("async")) {
		s.writeJSON(w, http.StatusAccepted, api.UploadResponse{Success: true, JobID: job.ID})
		return
	}

	jobID := job.ID
	wait := time.Duration(s.cfg.API.SyncWaitSeconds) * time.Second
	job, err = s.jobs.WaitForTerminal(r.Context(), jobID, wait)
	if err != nil {
		s.writeUploadFailure(w, jobID, err)
		return
	}

	switch job.Status {
	case queue.StatusDone:
		data, err := s.jobs.Result(r.Context(), job.ID)
		if err != nil {
			s.writeUploadFailure(w, job.ID, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.UploadResponse{Success: true, JobID: job.ID, Data: data})
	case queue.StatusFailed:
		resp := api.UploadResponse{Success: false, JobID: job.ID, Message: "dubbing failed"}
		if job.Error != nil {
			resp.Message = "dubbing failed at stage " + job.Error.Stage
			resp.Error = job.Error.Kind
		}
		s.writeJSON(w, http.StatusInternalServerError, resp)
	case queue.StatusCanceled:
		s.writeJSON(w, http.StatusConflict, api.UploadResponse{
			Success: false, JobID: job.ID, Message: "job was canceled",
		})
	default:
		s.writeJSON(w, http.StatusAccepted, api.UploadResponse{
			Success: true, JobID: job.ID, Message: "job still processing",
		})
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status, err := s.daemon.Status(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		JobDBPath:    status.JobDBPath,
		LockFilePath: status.LockFilePath,
		Workflow:     api.FromWorkflowStatus(status.Workflow),
	})
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		parsed, ok := queue.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "unknown status "+value)
			return
		}
		statuses = append(statuses, parsed)
	}
	jobs, err := s.jobs.List(r.Context(), statuses...)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: jobs})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		detail, err := s.jobs.Get(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.JobResponse{Job: *detail})
	case action == "cancel" && r.Method == http.MethodPost:
		status, err := s.jobs.Cancel(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.CancelResponse{JobID: id, Status: string(status)})
	case action == "retry" && r.Method == http.MethodPost:
		updated, err := s.jobs.Retry(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.RetryResponse{Updated: updated})
	case action == "events" && r.Method == http.MethodGet:
		since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
		if _, err := s.jobs.Get(r.Context(), id); err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"events": s.jobs.Events(id, since)})
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

// handleEventsWS pushes progress events over a websocket. Buffered events
// after ?since=N are replayed first, then live events stream until the client
// disconnects.
func (s *apiServer) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	replay, live, cancel := s.jobs.SubscribeEvents(since, 64)
	defer cancel()

	// Reader pump: the client never sends application data, but reading is
	// required to observe close frames.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for _, evt := range replay {
		if err := conn.WriteJSON(evt); err != nil {
			return
		}
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-live:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		}
	}
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ref := strings.TrimPrefix(r.URL.Path, "/download/")
	if ref == "" || strings.Contains(ref, "/") {
		s.writeError(w, http.StatusNotFound, "artifact not found")
		return
	}

	rc, err := s.jobs.OpenArtifact(r.Context(), ref)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	defer rc.Close()

	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = ref + ".mp4"
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("download interrupted", logging.Error(err))
	}
}

func (s *apiServer) writeUploadFailure(w http.ResponseWriter, jobID string, err error) {
	status := httpStatusFor(err)
	s.writeJSON(w, status, api.UploadResponse{
		Success: false,
		JobID:   jobID,
		Message: userSafeMessage(err),
		Error:   string(services.ClassifyKind(err)),
	})
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	s.writeError(w, httpStatusFor(err), userSafeMessage(err))
}

// httpStatusFor maps the error taxonomy onto HTTP status codes.
func httpStatusFor(err error) int {
	switch services.ClassifyKind(err) {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict:
		return http.StatusConflict
	case services.KindTimeout:
		return http.StatusGatewayTimeout
	case services.KindTransient:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// userSafeMessage keeps internal error detail out of responses.
func userSafeMessage(err error) string {
	if services.ClassifyKind(err) == services.KindInternal {
		return "internal error"
	}
	return services.Details(err).Message
}

func parseBoolField(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
