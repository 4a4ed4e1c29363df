// Package store defines the storage interfaces for jobs, staging records,
// the error ledger, and the per-entity validated/current record tables.
// Two implementations exist: memory (tests, development) and postgres.
package store

import (
	"context"
	"errors"

	"github.com/smill0791/data-integration-platform/internal/models"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("not found")

// ErrTerminal is returned when a write would modify a job that is
// already in a terminal status.
var ErrTerminal = errors.New("job is terminal")

// JobStore persists sync jobs and their error ledger. Each mutation is a
// single atomic write scoped to one job row.
type JobStore interface {
	// InsertJob persists a new job and returns it with ID and CreatedAt assigned.
	InsertJob(ctx context.Context, job *models.SyncJob) (*models.SyncJob, error)

	// UpdateJob overwrites the mutable fields of an existing job. The
	// write is conditional on the stored status being non-terminal:
	// ErrTerminal is returned when the stored job is already COMPLETED
	// or FAILED, ErrNotFound when the job does not exist.
	UpdateJob(ctx context.Context, job *models.SyncJob) error

	// GetJob returns the job with the given id, or ErrNotFound.
	GetJob(ctx context.Context, id int64) (*models.SyncJob, error)

	// ListRecentJobs returns up to limit jobs ordered by start time descending.
	ListRecentJobs(ctx context.Context, limit int) ([]*models.SyncJob, error)

	// InsertSyncError appends one entry to the error ledger.
	InsertSyncError(ctx context.Context, e *models.SyncError) error

	// ListSyncErrors returns a job's errors ordered by occurrence descending.
	ListSyncErrors(ctx context.Context, jobID int64) ([]*models.SyncError, error)
}

// StagingStore persists the raw capture of fetched items, tagged to a job.
type StagingStore interface {
	// InsertStagingRecord persists one write-once staging record.
	InsertStagingRecord(ctx context.Context, rec *models.StagingRecord) error

	// ListStagingRecords returns a job's staged records in insertion order.
	ListStagingRecords(ctx context.Context, jobID int64) ([]*models.StagingRecord, error)
}

// CustomerStore upserts validated customers and their current state.
// Both writes happen in one transaction: either both succeed or the load
// for that record fails as a whole.
type CustomerStore interface {
	UpsertCustomer(ctx context.Context, rec *models.CustomerRecord, sourceSystem string) error
	GetCurrentCustomer(ctx context.Context, externalID string) (*models.CurrentCustomer, error)
}

// ProductStore upserts validated products and their current state.
type ProductStore interface {
	UpsertProduct(ctx context.Context, rec *models.ProductRecord, sourceSystem string) error
	GetCurrentProduct(ctx context.Context, externalID string) (*models.CurrentProduct, error)
}

// InvoiceStore upserts validated invoices and their current state.
type InvoiceStore interface {
	UpsertInvoice(ctx context.Context, rec *models.InvoiceRecord, sourceSystem string) error
	GetCurrentInvoice(ctx context.Context, externalID string) (*models.CurrentInvoice, error)
}

// Store aggregates all storage interfaces behind a single backend.
type Store interface {
	JobStore
	StagingStore
	CustomerStore
	ProductStore
	InvoiceStore

	// CheckReadiness verifies the backend can serve requests.
	CheckReadiness(ctx context.Context) error
}
