// Package jobs implements the Job Registry: the lifecycle state machine
// and audit log for sync runs. The registry owns all SyncJob mutations;
// orchestrators, the queue consumer, and the API layer go through it.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smill0791/data-integration-platform/internal/logger"
	"github.com/smill0791/data-integration-platform/internal/models"
	"github.com/smill0791/data-integration-platform/internal/status"
	"github.com/smill0791/data-integration-platform/internal/store"
	"github.com/smill0791/data-integration-platform/internal/telemetry"
)

// CancelledMessage is the job-level error message set by CancelJob.
const CancelledMessage = "Cancelled"

// defaultRecentLimit bounds ListRecentJobs when the caller passes no limit.
const defaultRecentLimit = 20

// Registry manages sync job state transitions. Every transition persists
// the job and publishes a snapshot to live subscribers.
type Registry struct {
	store     store.JobStore
	publisher *status.Publisher
	metrics   *telemetry.SyncMetrics
}

// Option configures the registry.
type Option func(*Registry)

// WithMetrics attaches sync metrics to the registry.
func WithMetrics(m *telemetry.SyncMetrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry creates a registry over the given job store. The publisher
// may be nil, in which case transitions are not broadcast.
func NewRegistry(s store.JobStore, publisher *status.Publisher, opts ...Option) *Registry {
	r := &Registry{
		store:     s,
		publisher: publisher,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateJob creates a RUNNING job for the synchronous trigger path.
func (r *Registry) CreateJob(ctx context.Context, sourceName, syncType string) (*models.SyncJob, error) {
	return r.createJob(ctx, sourceName, syncType, models.JobStatusRunning)
}

// CreateQueuedJob creates a QUEUED job for the async trigger path; the
// job has not started executing yet.
func (r *Registry) CreateQueuedJob(ctx context.Context, sourceName, syncType string) (*models.SyncJob, error) {
	return r.createJob(ctx, sourceName, syncType, models.JobStatusQueued)
}

func (r *Registry) createJob(ctx context.Context, sourceName, syncType string, st models.JobStatus) (*models.SyncJob, error) {
	job := &models.SyncJob{
		SourceName: sourceName,
		SyncType:   syncType,
		Status:     st,
		StartTime:  time.Now(),
	}
	saved, err := r.store.InsertJob(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to create sync job: %w", err)
	}
	logger.Infof("Created %s sync job %d for source=%s type=%s", st, saved.ID, sourceName, syncType)
	r.metrics.RecordJobStatus(ctx, sourceName, string(st))
	r.publish(saved)
	return saved, nil
}

// StartJob transitions a job to RUNNING on dequeue, resetting its start
// time to now. Returns store.ErrNotFound if the job id is unknown and
// store.ErrTerminal if the job already finished or was cancelled: a
// dequeued dispatch message must never resurrect a terminal job.
func (r *Registry) StartJob(ctx context.Context, jobID int64) (*models.SyncJob, error) {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("sync job %d: %w", jobID, err)
	}
	if job.Status.IsTerminal() {
		return nil, fmt.Errorf("sync job %d is already %s: %w", jobID, job.Status, store.ErrTerminal)
	}
	job.Status = models.JobStatusRunning
	job.StartTime = time.Now()
	if err := r.store.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to start sync job %d: %w", jobID, err)
	}
	logger.Infof("Started sync job %d", job.ID)
	r.publish(job)
	return job, nil
}

// CompleteJob finalizes a job with its record counts. A run where every
// staged record failed is indistinguishable from a systemic failure, so
// failed>0 with processed==0 yields FAILED; anything else COMPLETED.
// Completing an already-terminal job is a no-op returning the stored job.
func (r *Registry) CompleteJob(ctx context.Context, job *models.SyncJob, processed, failed int) (*models.SyncJob, error) {
	st := models.JobStatusCompleted
	if failed > 0 && processed == 0 {
		st = models.JobStatusFailed
	}
	finished, overwrote, err := r.finalize(ctx, job.ID, func(j *models.SyncJob) {
		j.RecordsProcessed = processed
		j.RecordsFailed = failed
		j.Status = st
	})
	if err != nil {
		return nil, err
	}
	if !overwrote {
		return finished, nil
	}
	logger.Infof("Completed sync job %d: processed=%d, failed=%d, status=%s",
		finished.ID, processed, failed, finished.Status)
	r.recordTerminal(ctx, finished)
	r.publish(finished)
	return finished, nil
}

// FailJob terminates a job as FAILED with a job-level error message.
// Failing an already-terminal job is a no-op returning the stored job.
func (r *Registry) FailJob(ctx context.Context, job *models.SyncJob, message string) (*models.SyncJob, error) {
	finished, overwrote, err := r.finalize(ctx, job.ID, func(j *models.SyncJob) {
		j.Status = models.JobStatusFailed
		j.ErrorMessage = message
	})
	if err != nil {
		return nil, err
	}
	if !overwrote {
		return finished, nil
	}
	logger.Errorf("Failed sync job %d: %s", finished.ID, message)
	r.recordTerminal(ctx, finished)
	r.publish(finished)
	return finished, nil
}

// finalize applies a terminal mutation guarded against double-terminal
// writes: the first terminal transition wins and later ones return the
// stored job unchanged. The store's conditional update closes the race
// between two finalizers that both read a non-terminal status.
func (r *Registry) finalize(ctx context.Context, jobID int64, mutate func(*models.SyncJob)) (*models.SyncJob, bool, error) {
	current, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, false, fmt.Errorf("sync job %d: %w", jobID, err)
	}
	if current.Status.IsTerminal() {
		logger.Debugf("Ignoring terminal transition for already-terminal job %d (status=%s)",
			current.ID, current.Status)
		return current, false, nil
	}
	now := time.Now()
	current.EndTime = &now
	mutate(current)
	if err := r.store.UpdateJob(ctx, current); err != nil {
		if errors.Is(err, store.ErrTerminal) {
			stored, gerr := r.store.GetJob(ctx, jobID)
			if gerr != nil {
				return nil, false, fmt.Errorf("sync job %d: %w", jobID, gerr)
			}
			logger.Debugf("Lost terminal transition race for job %d (status=%s)",
				stored.ID, stored.Status)
			return stored, false, nil
		}
		return nil, false, fmt.Errorf("failed to finalize sync job %d: %w", jobID, err)
	}
	return current, true, nil
}

// CancelJob transitions a QUEUED or RUNNING job to FAILED with the
// Cancelled message. Cancelling a terminal job is a no-op, not an error.
func (r *Registry) CancelJob(ctx context.Context, jobID int64) (*models.SyncJob, error) {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("sync job %d: %w", jobID, err)
	}
	if job.Status.IsTerminal() {
		return job, nil
	}
	return r.FailJob(ctx, job, CancelledMessage)
}

// GetJob returns the job with the given id.
func (r *Registry) GetJob(ctx context.Context, jobID int64) (*models.SyncJob, error) {
	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("sync job %d: %w", jobID, err)
	}
	return job, nil
}

// ListRecentJobs returns up to limit jobs ordered by start time
// descending; limit<=0 applies the default of 20.
func (r *Registry) ListRecentJobs(ctx context.Context, limit int) ([]*models.SyncJob, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return r.store.ListRecentJobs(ctx, limit)
}

// ListErrors returns a job's error ledger, most recent first. Returns
// store.ErrNotFound if the job does not exist.
func (r *Registry) ListErrors(ctx context.Context, jobID int64) ([]*models.SyncError, error) {
	if _, err := r.store.GetJob(ctx, jobID); err != nil {
		return nil, fmt.Errorf("sync job %d: %w", jobID, err)
	}
	return r.store.ListSyncErrors(ctx, jobID)
}

// RecordError appends one per-item failure to a job's error ledger.
func (r *Registry) RecordError(ctx context.Context, jobID int64, kind models.ErrorKind, message, failedRecord string) error {
	return r.store.InsertSyncError(ctx, &models.SyncError{
		JobID:        jobID,
		Kind:         kind,
		Message:      message,
		FailedRecord: failedRecord,
	})
}

func (r *Registry) publish(job *models.SyncJob) {
	if r.publisher != nil {
		r.publisher.Publish(job)
	}
}

func (r *Registry) recordTerminal(ctx context.Context, job *models.SyncJob) {
	r.metrics.RecordJobStatus(ctx, job.SourceName, string(job.Status))
	r.metrics.RecordCounts(ctx, job.SourceName, int64(job.RecordsProcessed), int64(job.RecordsFailed))
	if job.EndTime != nil {
		r.metrics.RecordSyncDuration(ctx, job.SourceName,
			job.EndTime.Sub(job.StartTime), job.Status == models.JobStatusCompleted)
	}
}
