package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"overdub/internal/services"
)

const jobColumns = `id, source_file, file_name, source_language, target_language,
    voice_style, generate_captions, status, current_stage, cancel_requested,
    error_stage, error_kind, error_message, created_at, updated_at, last_heartbeat`

// CreateJob validates the config and inserts a new queued job.
func (s *Store) CreateJob(ctx context.Context, cfg JobConfig) (*Job, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &Job{
		ID:               uuid.NewString(),
		SourceFile:       cfg.SourceFile,
		FileName:         cfg.FileName,
		SourceLanguage:   cfg.SourceLanguage,
		TargetLanguage:   cfg.TargetLanguage,
		VoiceStyle:       cfg.VoiceStyle,
		GenerateCaptions: cfg.GenerateCaptions,
		Status:           StatusQueued,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO jobs (id, source_file, file_name, source_language, target_language,
            voice_style, generate_captions, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.SourceFile,
		job.FileName,
		job.SourceLanguage,
		job.TargetLanguage,
		job.VoiceStyle,
		boolToInt(job.GenerateCaptions),
		string(job.Status),
		formatTime(job.CreatedAt),
		formatTime(job.UpdatedAt),
	); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return job, nil
}

// GetJob returns the job with the given id.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "", "get job", "job "+id, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// NextQueued returns the oldest queued job, or nil when the queue is empty.
func (s *Store) NextQueued(ctx context.Context) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at, id LIMIT 1`,
		string(StatusQueued),
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next queued job: %w", err)
	}
	return job, nil
}

// List returns jobs, optionally filtered by status, oldest first.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	ctx = ensureContext(ctx)

	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*Job
	for rows.Next() {
		job, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan job: %w", scanErr)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// Health returns aggregated job counts per status.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return HealthSummary{}, fmt.Errorf("job counts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summary HealthSummary
	for rows.Next() {
		var status string
		var count int
		if scanErr := rows.Scan(&status, &count); scanErr != nil {
			return HealthSummary{}, fmt.Errorf("scan count: %w", scanErr)
		}
		summary.Total += count
		switch Status(status) {
		case StatusQueued:
			summary.Queued = count
		case StatusRunning:
			summary.Running = count
		case StatusDone:
			summary.Done = count
		case StatusFailed:
			summary.Failed = count
		case StatusCanceled:
			summary.Canceled = count
		}
	}
	if err := rows.Err(); err != nil {
		return HealthSummary{}, fmt.Errorf("iterate counts: %w", err)
	}
	return summary, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job             Job
		generate        int
		cancelRequested int
		currentStage    sql.NullString
		errStage        sql.NullString
		errKind         sql.NullString
		errMessage      sql.NullString
		createdAt       string
		updatedAt       string
		lastHeartbeat   sql.NullString
	)
	if err := row.Scan(
		&job.ID,
		&job.SourceFile,
		&job.FileName,
		&job.SourceLanguage,
		&job.TargetLanguage,
		&job.VoiceStyle,
		&generate,
		(*string)(&job.Status),
		&currentStage,
		&cancelRequested,
		&errStage,
		&errKind,
		&errMessage,
		&createdAt,
		&updatedAt,
		&lastHeartbeat,
	); err != nil {
		return nil, err
	}

	job.GenerateCaptions = generate != 0
	job.CancelRequested = cancelRequested != 0
	job.CurrentStage = currentStage.String
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)
	if lastHeartbeat.Valid {
		hb := parseTime(lastHeartbeat.String)
		job.LastHeartbeat = &hb
	}
	if errKind.Valid || errMessage.Valid {
		job.Error = &ErrorRecord{
			Stage:   errStage.String,
			Kind:    errKind.String,
			Message: errMessage.String,
		}
	}
	return &job, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
