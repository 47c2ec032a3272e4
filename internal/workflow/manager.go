package workflow

import (
	"log/slog"
	"sync"
	"time"

	"overdub/internal/artifacts"
	"overdub/internal/config"
	"overdub/internal/events"
	"overdub/internal/notifications"
	"overdub/internal/queue"
	"overdub/internal/stage"
)

// Manager runs the dubbing pipeline over queued jobs. A fixed pool of workers
// claims jobs through compare-and-swap transitions and executes the stage
// sequence, skipping stages whose output artifact already exists so resumed
// jobs never redo completed work.
type Manager struct {
	cfg       *config.Config
	store     *queue.Store
	artifacts artifacts.Store
	bus       *events.Bus
	notifier  notifications.Service
	logger    *slog.Logger
	stages    []stage.Handler

	heartbeat *HeartbeatMonitor

	pollInterval       time.Duration
	errorRetryInterval time.Duration
	stageTimeout       time.Duration
	stageRetries       int
	backoffInitial     time.Duration
	backoffMax         time.Duration

	mu      sync.RWMutex
	running bool
	cancel  func()
	wg      sync.WaitGroup
	lastErr error
}

// NewManager constructs a workflow manager with the given stage pipeline.
func NewManager(
	cfg *config.Config,
	store *queue.Store,
	artifactStore artifacts.Store,
	bus *events.Bus,
	notifier notifications.Service,
	logger *slog.Logger,
	stages []stage.Handler,
) *Manager {
	return &Manager{
		cfg:       cfg,
		store:     store,
		artifacts: artifactStore,
		bus:       bus,
		notifier:  notifier,
		logger:    logger,
		stages:    stages,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		pollInterval:       time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		stageTimeout:       time.Duration(cfg.Workflow.StageTimeout) * time.Second,
		stageRetries:       cfg.Workflow.StageRetries,
		backoffInitial:     time.Duration(cfg.Workflow.RetryBackoffInitial) * time.Second,
		backoffMax:         time.Duration(cfg.Workflow.RetryBackoffMax) * time.Second,
	}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// LastError returns the most recent background processing error.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Running reports whether background processing is active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}
