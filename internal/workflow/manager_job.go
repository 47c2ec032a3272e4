package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"overdub/internal/events"
	"overdub/internal/logging"
	"overdub/internal/queue"
	"overdub/internal/services"
	"overdub/internal/stage"
)

// processJob runs the stage sequence for a claimed job. It returns
// context.Canceled only when the daemon itself is shutting down; job-level
// failures are recorded in the store and do not stop the worker.
func (m *Manager) processJob(ctx context.Context, logger *slog.Logger, job *queue.Job) error {
	jobCtx := logging.WithJobID(ctx, job.ID)
	jobLogger := logging.WithContext(jobCtx, logger)
	started := time.Now()

	hbCtx, hbCancel := context.WithCancel(jobCtx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, job.ID)
	defer func() {
		hbCancel()
		hbWG.Wait()
	}()

	jobLogger.Info("job claimed", logging.String(logging.FieldEventType, "job_claimed"))

	for _, handler := range m.stages {
		if ctx.Err() != nil {
			return context.Canceled
		}

		canceled, err := m.cancelIfRequested(jobCtx, jobLogger, job)
		if err != nil {
			m.setLastError(err)
			jobLogger.Error("cancel check failed", logging.Error(err))
			return err
		}
		if canceled {
			return nil
		}

		desc := handler.Descriptor()
		if done, err := m.stageAlreadyDone(jobCtx, job, desc); err != nil {
			return m.failJob(jobCtx, jobLogger, job, desc.Name, err)
		} else if done {
			jobLogger.Info("skipping completed stage",
				logging.String(logging.FieldStage, desc.Name),
				logging.String(logging.FieldEventType, "stage_skipped"))
			continue
		}

		inputs, err := m.stageInputs(jobCtx, job, desc)
		if err != nil {
			return m.failJob(jobCtx, jobLogger, job, desc.Name, err)
		}

		if err := m.runStage(jobCtx, jobLogger, job, handler, desc, inputs); err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return context.Canceled
			}
			return m.failJob(jobCtx, jobLogger, job, desc.Name, err)
		}
	}

	return m.completeJob(jobCtx, jobLogger, job, time.Since(started))
}

// cancelIfRequested honors a pending cancel request at a stage boundary.
func (m *Manager) cancelIfRequested(ctx context.Context, logger *slog.Logger, job *queue.Job) (bool, error) {
	fresh, err := m.store.GetJob(ctx, job.ID)
	if err != nil {
		return false, err
	}
	if !fresh.CancelRequested {
		return false, nil
	}

	if err := m.store.Transition(ctx, job.ID, queue.StatusRunning, queue.StatusCanceled); err != nil {
		return false, err
	}
	logger.Info("job canceled", logging.String(logging.FieldEventType, "job_canceled"))
	m.bus.Publish(events.Event{Type: events.TypeJobCanceled, JobID: job.ID})
	if err := m.notifier.NotifyJobCanceled(ctx, job.FileName); err != nil {
		logger.Warn("cancel notification failed", logging.Error(err))
	}
	return true, nil
}

func (m *Manager) stageAlreadyDone(ctx context.Context, job *queue.Job, desc stage.Descriptor) (bool, error) {
	_, err := m.store.ArtifactRef(ctx, job.ID, desc.Output)
	if err == nil {
		return true, nil
	}
	if services.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// stageInputs resolves the refs of the stage's declared inputs. A missing
// required input means earlier bookkeeping was corrupted, which is not
// retryable.
func (m *Manager) stageInputs(ctx context.Context, job *queue.Job, desc stage.Descriptor) (map[string]string, error) {
	inputs := make(map[string]string, len(desc.Inputs)+len(desc.Optional))
	for _, name := range desc.Inputs {
		ref, err := m.store.ArtifactRef(ctx, job.ID, name)
		if err != nil {
			if services.IsNotFound(err) {
				return nil, services.Wrap(services.ErrPermanent, desc.Name, "assemble inputs",
					"missing required input artifact "+name, nil)
			}
			return nil, err
		}
		inputs[name] = ref
	}
	for _, name := range desc.Optional {
		ref, err := m.store.ArtifactRef(ctx, job.ID, name)
		if err != nil {
			if services.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		inputs[name] = ref
	}
	return inputs, nil
}

// runStage executes one stage with the configured timeout and bounded
// exponential retry. Only retryable failures consume additional attempts.
func (m *Manager) runStage(
	ctx context.Context,
	logger *slog.Logger,
	job *queue.Job,
	handler stage.Handler,
	desc stage.Descriptor,
	inputs map[string]string,
) error {
	stageLogger := logger.With(logging.String(logging.FieldStage, desc.Name))
	attempts := m.stageRetries
	if attempts <= 0 {
		attempts = 1
	}

	if err := m.store.SetCurrentStage(ctx, job.ID, desc.Name); err != nil {
		stageLogger.Warn("failed to record current stage", logging.Error(err))
	}
	m.bus.Publish(events.Event{Type: events.TypeStageStarted, JobID: job.ID, Stage: desc.Name})
	stageLogger.Info("stage started", logging.String(logging.FieldEventType, "stage_started"))

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		ref, err := m.executeAttempt(ctx, handler, job, inputs)
		if errors.Is(err, stage.ErrSkipped) {
			m.bus.Publish(events.Event{
				Type: events.TypeStageCompleted, JobID: job.ID, Stage: desc.Name, Message: "skipped",
			})
			stageLogger.Info("stage skipped", logging.String(logging.FieldEventType, "stage_completed"))
			return nil
		}
		if err == nil {
			if recErr := m.store.RecordArtifact(ctx, job.ID, desc.Output, ref); recErr != nil && !services.IsConflict(recErr) {
				return recErr
			}
			m.bus.Publish(events.Event{
				Type: events.TypeStageCompleted, JobID: job.ID, Stage: desc.Name, Attempt: attempt,
			})
			stageLogger.Info("stage completed",
				logging.Int(logging.FieldAttempt, attempt),
				logging.String(logging.FieldEventType, "stage_completed"))
			return nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return context.Canceled
		}
		if !services.IsRetryable(err) || attempt == attempts {
			break
		}

		delay := m.backoffDelay(attempt)
		stageLogger.Warn("stage attempt failed, retrying",
			logging.Error(err),
			logging.Int(logging.FieldAttempt, attempt),
			logging.Duration("backoff", delay),
			logging.String(logging.FieldEventType, "stage_retrying"))
		m.bus.Publish(events.Event{
			Type: events.TypeStageRetrying, JobID: job.ID, Stage: desc.Name, Attempt: attempt,
			Message: services.Details(err).Message,
		})
		select {
		case <-ctx.Done():
			return context.Canceled
		case <-time.After(delay):
		}
	}
	return lastErr
}

func (m *Manager) executeAttempt(ctx context.Context, handler stage.Handler, job *queue.Job, inputs map[string]string) (string, error) {
	attemptCtx := ctx
	if m.stageTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, m.stageTimeout)
		defer cancel()
	}
	return handler.Execute(attemptCtx, job, inputs)
}

func (m *Manager) backoffDelay(attempt int) time.Duration {
	delay := m.backoffInitial
	if delay <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if m.backoffMax > 0 && delay >= m.backoffMax {
			return m.backoffMax
		}
	}
	if m.backoffMax > 0 && delay > m.backoffMax {
		delay = m.backoffMax
	}
	return delay
}

func (m *Manager) completeJob(ctx context.Context, logger *slog.Logger, job *queue.Job, elapsed time.Duration) error {
	if err := m.store.Transition(ctx, job.ID, queue.StatusRunning, queue.StatusDone); err != nil {
		m.setLastError(err)
		logger.Error("failed to mark job done", logging.Error(err))
		return err
	}
	logger.Info("job done",
		logging.Duration("elapsed", elapsed),
		logging.String(logging.FieldEventType, "job_done"))
	m.bus.Publish(events.Event{Type: events.TypeJobDone, JobID: job.ID})
	if err := m.notifier.NotifyJobCompleted(ctx, job.FileName, job.TargetLanguage, elapsed); err != nil {
		logger.Warn("completion notification failed", logging.Error(err))
	}
	return nil
}

func (m *Manager) failJob(ctx context.Context, logger *slog.Logger, job *queue.Job, stageName string, cause error) error {
	detail := services.Details(cause)
	record := queue.ErrorRecord{
		Stage:   stageName,
		Kind:    string(detail.Kind),
		Message: detail.Message,
	}
	if err := m.store.MarkFailed(ctx, job.ID, record); err != nil {
		m.setLastError(err)
		logger.Error("failed to record job failure", logging.Error(err))
		return err
	}
	logger.Error("job failed",
		logging.Error(cause),
		logging.String(logging.FieldStage, stageName),
		logging.String(logging.FieldErrorKind, string(detail.Kind)),
		logging.String(logging.FieldEventType, "job_failed"))
	m.bus.Publish(events.Event{Type: events.TypeStageFailed, JobID: job.ID, Stage: stageName, Message: detail.Message})
	m.bus.Publish(events.Event{Type: events.TypeJobFailed, JobID: job.ID, Stage: stageName, Message: detail.Message})
	if err := m.notifier.NotifyJobFailed(ctx, job.FileName, stageName, detail.Message); err != nil {
		logger.Warn("failure notification failed", logging.Error(err))
	}
	m.setLastError(fmt.Errorf("job %s failed at %s: %w", job.ID, stageName, cause))
	return nil
}
