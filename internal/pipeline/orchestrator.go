// Package pipeline runs the staged sync pipeline for each source:
// raw capture into staging, then transform, validate, and load with
// per-record failure isolation. One orchestrator per source shares a
// common engine; a Router maps source names to orchestrators.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/smill0791/data-integration-platform/internal/jobs"
	"github.com/smill0791/data-integration-platform/internal/logger"
	"github.com/smill0791/data-integration-platform/internal/models"
	"github.com/smill0791/data-integration-platform/internal/store"
)

// Orchestrator executes the sync pipeline for one source.
type Orchestrator interface {
	// Source returns the source name this orchestrator serves.
	Source() string

	// RunFullPipeline creates a RUNNING job, stages every item fetched
	// from the source, and processes the staged records. The returned job
	// is terminal.
	RunFullPipeline(ctx context.Context) (*models.SyncJob, error)

	// RunPipelineForJob executes the pipeline for an existing job. If the
	// job has no staged records yet it stages first. The returned job is
	// terminal.
	RunPipelineForJob(ctx context.Context, jobID int64) (*models.SyncJob, error)
}

// itemError is a per-record pipeline failure with its ledger
// classification. It never aborts the run.
type itemError struct {
	kind models.ErrorKind
	msg  string
}

func (e *itemError) Error() string {
	return e.msg
}

func failItem(kind models.ErrorKind, msg string) error {
	return &itemError{kind: kind, msg: msg}
}

// classify maps a process error to its ledger kind. Unrecognized errors
// count as pipeline errors.
func classify(err error) (models.ErrorKind, string) {
	var ie *itemError
	if errors.As(err, &ie) {
		return ie.kind, ie.msg
	}
	return models.ErrorKindPipeline, err.Error()
}

// engine is the shared pipeline mechanics, parameterized over the raw
// source item type. The per-source orchestrators supply fetch, identity,
// and the transform/validate/load step.
type engine[T any] struct {
	source     string
	registry   *jobs.Registry
	staging    store.StagingStore
	fetchAll   func(context.Context) ([]T, error)
	externalID func(T) string

	// process runs transform, validate, and load for one staged payload.
	// A nil return counts the record as processed; an error counts it as
	// failed and is recorded in the job's error ledger.
	process func(context.Context, string) error
}

func (e *engine[T]) Source() string {
	return e.source
}

func (e *engine[T]) RunFullPipeline(ctx context.Context) (*models.SyncJob, error) {
	job, err := e.registry.CreateJob(ctx, e.source, models.SyncTypeFull)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, job)
}

func (e *engine[T]) RunPipelineForJob(ctx context.Context, jobID int64) (*models.SyncJob, error) {
	job, err := e.registry.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, job)
}

// run stages the source if the running job has no staged records yet,
// then processes every staged record and finalizes the job. Jobs that
// are no longer RUNNING (cancelled before dequeue) are never staged.
func (e *engine[T]) run(ctx context.Context, job *models.SyncJob) (*models.SyncJob, error) {
	recs, err := e.staging.ListStagingRecords(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list staging records for job %d: %w", job.ID, err)
	}

	stagingFailed := 0
	if len(recs) == 0 && job.Status == models.JobStatusRunning {
		items, ferr := e.fetchAll(ctx)
		if ferr != nil {
			return e.registry.FailJob(ctx, job, fmt.Sprintf("failed to fetch %s data: %v", e.source, ferr))
		}
		stagingFailed = e.stage(ctx, job, items)
		recs, err = e.staging.ListStagingRecords(ctx, job.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list staging records for job %d: %w", job.ID, err)
		}
	}

	processed, failed := 0, stagingFailed
	for _, rec := range recs {
		if perr := e.process(ctx, rec.RawData); perr != nil {
			failed++
			kind, msg := classify(perr)
			e.recordError(ctx, job.ID, kind, msg, failedRecordRef(rec.ExternalID, rec.RawData))
			continue
		}
		processed++
	}

	logger.Infof("%s pipeline for job %d finished: processed=%d, failed=%d",
		e.source, job.ID, processed, failed)
	return e.registry.CompleteJob(ctx, job, processed, failed)
}

// stage captures every fetched item as a raw staging record. Items that
// cannot be serialized or persisted are counted as failed and recorded,
// without aborting the rest.
func (e *engine[T]) stage(ctx context.Context, job *models.SyncJob, items []T) int {
	failed := 0
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			failed++
			e.recordError(ctx, job.ID, models.ErrorKindStaging,
				fmt.Sprintf("failed to serialize %s item: %v", e.source, err), e.externalID(item))
			continue
		}
		rec := &models.StagingRecord{
			JobID:      job.ID,
			ExternalID: e.externalID(item),
			RawData:    string(raw),
		}
		if err := e.staging.InsertStagingRecord(ctx, rec); err != nil {
			failed++
			e.recordError(ctx, job.ID, models.ErrorKindStaging,
				fmt.Sprintf("failed to stage %s item: %v", e.source, err),
				failedRecordRef(rec.ExternalID, rec.RawData))
		}
	}
	logger.Infof("Staged %d %s items for job %d (%d failed)", len(items)-failed, e.source, job.ID, failed)
	return failed
}

// failedRecordRef identifies a failed item in the error ledger by its
// external id, falling back to the raw payload when the id is absent.
func failedRecordRef(externalID, raw string) string {
	if externalID != "" {
		return externalID
	}
	return raw
}

// recordError appends to the error ledger; a ledger write failure is
// logged but never interrupts the pipeline.
func (e *engine[T]) recordError(ctx context.Context, jobID int64, kind models.ErrorKind, msg, failedRecord string) {
	if err := e.registry.RecordError(ctx, jobID, kind, msg, failedRecord); err != nil {
		logger.Errorf("Failed to record %s error for job %d: %v", kind, jobID, err)
	}
}

// Router maps source names to their orchestrators with an explicit
// lookup table.
type Router struct {
	bySource map[string]Orchestrator
}

// NewRouter builds a router over the given orchestrators.
func NewRouter(orchestrators ...Orchestrator) *Router {
	bySource := make(map[string]Orchestrator, len(orchestrators))
	for _, o := range orchestrators {
		bySource[o.Source()] = o
	}
	return &Router{bySource: bySource}
}

// Lookup returns the orchestrator for the given source name.
func (r *Router) Lookup(source string) (Orchestrator, error) {
	o, ok := r.bySource[source]
	if !ok {
		return nil, fmt.Errorf("no orchestrator registered for source %q", source)
	}
	return o, nil
}

// Sources returns the registered source names, sorted.
func (r *Router) Sources() []string {
	out := make([]string, 0, len(r.bySource))
	for s := range r.bySource {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
