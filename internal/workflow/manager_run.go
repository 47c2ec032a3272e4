package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"overdub/internal/logging"
	"overdub/internal/queue"
	"overdub/internal/services"
)

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.stages) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}

	workers := m.cfg.Workflow.Workers
	if workers <= 0 {
		workers = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(workers)
	m.mu.Unlock()

	for i := 0; i < workers; i++ {
		go m.runWorker(runCtx, i)
	}
	return nil
}

// Stop terminates background processing and waits for in-flight jobs to
// release their claims.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runWorker(ctx context.Context, index int) {
	defer m.wg.Done()
	logger := logging.NewComponentLogger(m.logger, "workflow").With(logging.Int("worker", index))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// One worker doubles as the reclaimer so stale claims from a crashed
		// run get requeued without a dedicated goroutine.
		if index == 0 {
			if err := m.heartbeat.ReclaimStaleJobs(ctx, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("reclaim stale jobs failed; stuck jobs may remain",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
					logging.String(logging.FieldErrorHint, "check job database access"),
				)
			}
		}

		job, err := m.claimNext(ctx, logger)
		if err != nil {
			m.handleClaimError(ctx, logger, err)
			continue
		}
		if job == nil {
			m.waitForJobOrShutdown(ctx)
			continue
		}

		if err := m.processJob(ctx, logger, job); errors.Is(err, context.Canceled) {
			return
		}
	}
}

// claimNext fetches the oldest queued job and attempts the queued->running
// CAS. A conflict means another worker won the race; that is not an error,
// the worker just looks again.
func (m *Manager) claimNext(ctx context.Context, logger *slog.Logger) (*queue.Job, error) {
	job, err := m.store.NextQueued(ctx)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}

	err = m.store.Transition(ctx, job.ID, queue.StatusQueued, queue.StatusRunning)
	if services.IsConflict(err) || services.IsNotFound(err) {
		logger.Debug("lost claim race", logging.String(logging.FieldJobID, job.ID))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	job.Status = queue.StatusRunning
	return job, nil
}

func (m *Manager) handleClaimError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to fetch next job",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check job database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(m.errorRetryInterval):
	}
}

func (m *Manager) waitForJobOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}
