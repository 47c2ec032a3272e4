package queue

import (
	"context"
	"fmt"
	"time"
)

// ReclaimStale returns running jobs whose heartbeat expired back to queued so
// another worker can pick them up. Recorded artifacts are kept, letting the
// resumed run skip stages that already completed.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
        SET status = ?, current_stage = NULL, last_heartbeat = NULL, updated_at = ?
        WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		string(StatusQueued),
		formatTime(time.Now()),
		string(StatusRunning),
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed jobs back to queued for reprocessing. With no ids,
// every failed job is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	now := formatTime(time.Now())
	if len(ids) == 0 {
		res, err := s.execWithRetry(
			ctx,
			`UPDATE jobs
            SET status = ?, current_stage = NULL, cancel_requested = 0,
                error_stage = NULL, error_kind = NULL, error_message = NULL, updated_at = ?
            WHERE status = ?`,
			string(StatusQueued),
			now,
			string(StatusFailed),
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed jobs: %w", err)
		}
		return res.RowsAffected()
	}

	args := make([]any, 0, len(ids)+3)
	args = append(args, string(StatusQueued), now)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, string(StatusFailed))
	query := `UPDATE jobs
        SET status = ?, current_stage = NULL, cancel_requested = 0,
            error_stage = NULL, error_kind = NULL, error_message = NULL, updated_at = ?
        WHERE id IN (` + makePlaceholders(len(ids)) + `) AND status = ?`
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}

// ClearTerminal deletes jobs in the given terminal statuses and their
// artifact records. Non-terminal statuses are ignored.
func (s *Store) ClearTerminal(ctx context.Context, statuses ...Status) (int64, error) {
	terminal := make([]Status, 0, len(statuses))
	for _, status := range statuses {
		if status.Terminal() {
			terminal = append(terminal, status)
		}
	}
	if len(terminal) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(terminal))
	for _, status := range terminal {
		args = append(args, string(status))
	}
	res, err := s.execWithRetry(ctx,
		`DELETE FROM jobs WHERE status IN (`+makePlaceholders(len(terminal))+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}
