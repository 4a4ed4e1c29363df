package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smill0791/data-integration-platform/internal/models"
)

const insertStagingRecordSQL = `
INSERT INTO staging_records (id, job_id, external_id, raw_data, received_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5)`

// InsertStagingRecord persists one write-once staging record.
func (s *Store) InsertStagingRecord(ctx context.Context, rec *models.StagingRecord) error {
	id := rec.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	receivedAt := rec.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, insertStagingRecordSQL,
		id, rec.JobID, rec.ExternalID, rec.RawData, receivedAt)
	if err != nil {
		return fmt.Errorf("failed to insert staging record for job %d: %w", rec.JobID, err)
	}
	return nil
}

const listStagingRecordsSQL = `
SELECT id, job_id, COALESCE(external_id, ''), raw_data, received_at
FROM staging_records
WHERE job_id = $1
ORDER BY received_at, id`

// ListStagingRecords returns a job's staged records in insertion order.
func (s *Store) ListStagingRecords(ctx context.Context, jobID int64) ([]*models.StagingRecord, error) {
	rows, err := s.pool.Query(ctx, listStagingRecordsSQL, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list staging records for job %d: %w", jobID, err)
	}
	defer rows.Close()

	var out []*models.StagingRecord
	for rows.Next() {
		var rec models.StagingRecord
		if err := rows.Scan(&rec.ID, &rec.JobID, &rec.ExternalID, &rec.RawData, &rec.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan staging record: %w", err)
		}
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list staging records for job %d: %w", jobID, err)
	}
	return out, nil
}
