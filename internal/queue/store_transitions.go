package queue

import (
	"context"
	"fmt"
	"time"

	"overdub/internal/services"
)

// Transition atomically moves a job from one status to another. The update is
// conditional on the current status matching from; when it does not, the call
// fails with a conflict and the caller must re-read the job. Transitioning to
// running stamps a fresh heartbeat and clears any prior error record; entering
// a terminal state clears the heartbeat.
func (s *Store) Transition(ctx context.Context, id string, from, to Status) error {
	if !transitionAllowed(from, to) {
		return services.Wrap(services.ErrValidation, "", "transition",
			fmt.Sprintf("illegal transition %s -> %s", from, to), nil)
	}

	now := formatTime(time.Now())
	var (
		query string
		args  []any
	)
	switch {
	case to == StatusRunning:
		query = `UPDATE jobs
            SET status = ?, last_heartbeat = ?, error_stage = NULL, error_kind = NULL,
                error_message = NULL, updated_at = ?
            WHERE id = ? AND status = ?`
		args = []any{string(to), now, now, id, string(from)}
	case to.Terminal():
		query = `UPDATE jobs SET status = ?, last_heartbeat = NULL, updated_at = ? WHERE id = ? AND status = ?`
		args = []any{string(to), now, id, string(from)}
	default:
		query = `UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
		args = []any{string(to), now, id, string(from)}
	}

	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition rows affected: %w", err)
	}
	if affected == 0 {
		return s.transitionMiss(ctx, id, from, to)
	}
	return nil
}

// transitionMiss distinguishes a missing job from a lost CAS race.
func (s *Store) transitionMiss(ctx context.Context, id string, from, to Status) error {
	current, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}
	return services.Wrap(services.ErrConflict, "", "transition",
		fmt.Sprintf("job %s is %s, not %s (wanted %s)", id, current.Status, from, to), nil)
}

// SetCurrentStage records which pipeline stage a running job is executing.
func (s *Store) SetCurrentStage(ctx context.Context, id, stage string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET current_stage = ?, updated_at = ? WHERE id = ?`,
		stage,
		formatTime(time.Now()),
		id,
	); err != nil {
		return fmt.Errorf("set current stage: %w", err)
	}
	return nil
}

// MarkFailed atomically moves a running job to failed with an error record.
func (s *Store) MarkFailed(ctx context.Context, id string, record ErrorRecord) error {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
        SET status = ?, error_stage = ?, error_kind = ?, error_message = ?,
            last_heartbeat = NULL, updated_at = ?
        WHERE id = ? AND status = ?`,
		string(StatusFailed),
		record.Stage,
		record.Kind,
		record.Message,
		now,
		id,
		string(StatusRunning),
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark failed rows affected: %w", err)
	}
	if affected == 0 {
		return s.transitionMiss(ctx, id, StatusRunning, StatusFailed)
	}
	return nil
}

// RequestCancel asks a job to stop. Queued jobs are canceled immediately;
// running jobs get the cancel flag set and the executor cancels them at the
// next stage boundary. Jobs already in a terminal state are left alone and the
// current status is returned so callers can report it.
func (s *Store) RequestCancel(ctx context.Context, id string) (Status, error) {
	if err := s.Transition(ctx, id, StatusQueued, StatusCanceled); err == nil {
		return StatusCanceled, nil
	} else if !services.IsConflict(err) {
		return "", err
	}

	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET cancel_requested = 1, updated_at = ? WHERE id = ? AND status = ?`,
		now,
		id,
		string(StatusRunning),
	)
	if err != nil {
		return "", fmt.Errorf("request cancel: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("request cancel rows affected: %w", err)
	}
	if affected > 0 {
		return StatusRunning, nil
	}

	job, err := s.GetJob(ctx, id)
	if err != nil {
		return "", err
	}
	return job.Status, nil
}

// UpdateHeartbeat refreshes the liveness timestamp for an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	now := formatTime(time.Now())
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ? AND status = ?`,
		now,
		now,
		id,
		string(StatusRunning),
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}
