package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/smill0791/data-integration-platform/internal/models"
	"github.com/smill0791/data-integration-platform/internal/store"
)

const insertJobSQL = `
INSERT INTO sync_jobs (source_name, sync_type, status, start_time, records_processed, records_failed, error_message)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
RETURNING id, created_at`

// InsertJob persists a new job and returns it with ID and CreatedAt assigned.
func (s *Store) InsertJob(ctx context.Context, job *models.SyncJob) (*models.SyncJob, error) {
	cp := job.Clone()
	if cp.StartTime.IsZero() {
		cp.StartTime = time.Now()
	}
	err := s.pool.QueryRow(ctx, insertJobSQL,
		cp.SourceName,
		cp.SyncType,
		string(cp.Status),
		cp.StartTime,
		cp.RecordsProcessed,
		cp.RecordsFailed,
		cp.ErrorMessage,
	).Scan(&cp.ID, &cp.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert sync job: %w", err)
	}
	return cp, nil
}

// The status predicate makes the write a conditional update: a row that
// is already terminal is never overwritten, regardless of what the
// caller read before.
const updateJobSQL = `
UPDATE sync_jobs
SET status = $2,
    start_time = $3,
    end_time = $4,
    records_processed = $5,
    records_failed = $6,
    error_message = NULLIF($7, '')
WHERE id = $1 AND status NOT IN ('COMPLETED', 'FAILED')`

// UpdateJob overwrites the mutable fields of an existing non-terminal
// job. Returns store.ErrTerminal when the stored row is already
// terminal, store.ErrNotFound when it does not exist.
func (s *Store) UpdateJob(ctx context.Context, job *models.SyncJob) error {
	tag, err := s.pool.Exec(ctx, updateJobSQL,
		job.ID,
		string(job.Status),
		job.StartTime,
		job.EndTime,
		job.RecordsProcessed,
		job.RecordsFailed,
		job.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync job %d: %w", job.ID, err)
	}
	if tag.RowsAffected() == 0 {
		var status string
		err := s.pool.QueryRow(ctx, "SELECT status FROM sync_jobs WHERE id = $1", job.ID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to update sync job %d: %w", job.ID, err)
		}
		return store.ErrTerminal
	}
	return nil
}

const selectJobSQL = `
SELECT id, source_name, sync_type, status, start_time, end_time,
       records_processed, records_failed, COALESCE(error_message, ''), created_at
FROM sync_jobs`

// GetJob returns the job with the given id, or store.ErrNotFound.
func (s *Store) GetJob(ctx context.Context, id int64) (*models.SyncJob, error) {
	row := s.pool.QueryRow(ctx, selectJobSQL+" WHERE id = $1", id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get sync job %d: %w", id, err)
	}
	return job, nil
}

// ListRecentJobs returns up to limit jobs ordered by start time descending.
func (s *Store) ListRecentJobs(ctx context.Context, limit int) ([]*models.SyncJob, error) {
	rows, err := s.pool.Query(ctx, selectJobSQL+" ORDER BY start_time DESC, id DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync jobs: %w", err)
	}
	defer rows.Close()

	var out []*models.SyncJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync job: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sync jobs: %w", err)
	}
	return out, nil
}

func scanJob(row pgx.Row) (*models.SyncJob, error) {
	var (
		job    models.SyncJob
		status string
	)
	err := row.Scan(
		&job.ID,
		&job.SourceName,
		&job.SyncType,
		&status,
		&job.StartTime,
		&job.EndTime,
		&job.RecordsProcessed,
		&job.RecordsFailed,
		&job.ErrorMessage,
		&job.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	job.Status = models.JobStatus(status)
	return &job, nil
}

const insertSyncErrorSQL = `
INSERT INTO sync_errors (id, job_id, error_type, error_message, failed_record, occurred_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)`

// InsertSyncError appends one entry to the error ledger.
func (s *Store) InsertSyncError(ctx context.Context, e *models.SyncError) error {
	id := e.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	occurredAt := e.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, insertSyncErrorSQL,
		id, e.JobID, string(e.Kind), e.Message, e.FailedRecord, occurredAt)
	if err != nil {
		return fmt.Errorf("failed to insert sync error for job %d: %w", e.JobID, err)
	}
	return nil
}

const listSyncErrorsSQL = `
SELECT id, job_id, error_type, error_message, COALESCE(failed_record, ''), occurred_at
FROM sync_errors
WHERE job_id = $1
ORDER BY occurred_at DESC, id`

// ListSyncErrors returns a job's errors ordered by occurrence descending.
func (s *Store) ListSyncErrors(ctx context.Context, jobID int64) ([]*models.SyncError, error) {
	rows, err := s.pool.Query(ctx, listSyncErrorsSQL, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync errors for job %d: %w", jobID, err)
	}
	defer rows.Close()

	var out []*models.SyncError
	for rows.Next() {
		var (
			e    models.SyncError
			kind string
		)
		if err := rows.Scan(&e.ID, &e.JobID, &kind, &e.Message, &e.FailedRecord, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync error: %w", err)
		}
		e.Kind = models.ErrorKind(kind)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list sync errors for job %d: %w", jobID, err)
	}
	return out, nil
}
