package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"overdub/internal/services"
)

// RecordArtifact stores the output reference for a completed stage. Artifacts
// are write-once per (job, stage): a second write for the same pair fails with
// a conflict, which keeps stage outputs immutable across retries and resumes.
func (s *Store) RecordArtifact(ctx context.Context, jobID, stage, ref string) error {
	err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO job_artifacts (job_id, stage, ref, created_at) VALUES (?, ?, ?, ?)`,
		jobID,
		stage,
		ref,
		formatTime(time.Now()),
	)
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return services.Wrap(services.ErrConflict, stage, "record artifact",
			fmt.Sprintf("artifact for job %s stage %s already recorded", jobID, stage), nil)
	}
	if isForeignKeyViolation(err) {
		return services.Wrap(services.ErrNotFound, stage, "record artifact", "job "+jobID, nil)
	}
	return fmt.Errorf("record artifact: %w", err)
}

// ArtifactRef returns the stored reference for a job's stage output.
func (s *Store) ArtifactRef(ctx context.Context, jobID, stage string) (string, error) {
	ctx = ensureContext(ctx)
	var ref string
	err := s.db.QueryRowContext(ctx,
		`SELECT ref FROM job_artifacts WHERE job_id = ? AND stage = ?`,
		jobID, stage,
	).Scan(&ref)
	if errors.Is(err, sql.ErrNoRows) {
		return "", services.Wrap(services.ErrNotFound, stage, "artifact ref",
			fmt.Sprintf("no artifact for job %s stage %s", jobID, stage), nil)
	}
	if err != nil {
		return "", fmt.Errorf("artifact ref: %w", err)
	}
	return ref, nil
}

// Artifacts returns all recorded stage outputs for a job in insertion order.
func (s *Store) Artifacts(ctx context.Context, jobID string) ([]Artifact, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, stage, ref, created_at FROM job_artifacts WHERE job_id = ? ORDER BY id`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var artifacts []Artifact
	for rows.Next() {
		var (
			artifact Artifact
			created  string
		)
		if scanErr := rows.Scan(&artifact.JobID, &artifact.Stage, &artifact.Ref, &created); scanErr != nil {
			return nil, fmt.Errorf("scan artifact: %w", scanErr)
		}
		artifact.CreatedAt = parseTime(created)
		artifacts = append(artifacts, artifact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return artifacts, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
