// Package models defines the core domain types shared across the sync
// pipeline: jobs, staging records, per-item errors, and the normalized
// entity records produced by the transformers.
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JobStatus is the lifecycle state of a sync job.
//
// Valid transitions: QUEUED -> RUNNING -> {COMPLETED, FAILED}. RUNNING may
// be entered directly for synchronous triggers. Terminal states are final.
type JobStatus string

const (
	// JobStatusQueued means the job was created by an async trigger and is
	// waiting to be dequeued.
	JobStatusQueued JobStatus = "QUEUED"

	// JobStatusRunning means the job is executing its pipeline.
	JobStatusRunning JobStatus = "RUNNING"

	// JobStatusCompleted means the job finished, possibly with per-record
	// failures.
	JobStatusCompleted JobStatus = "COMPLETED"

	// JobStatusFailed means the job failed at the job level, or every
	// staged record failed.
	JobStatusFailed JobStatus = "FAILED"
)

// IsTerminal reports whether the status is final.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Source names for the three upstream systems.
const (
	SourceCRM        = "CRM"
	SourceERP        = "ERP"
	SourceAccounting = "ACCOUNTING"
)

// SyncTypeFull is the only sync type currently supported.
const SyncTypeFull = "FULL"

// ErrorKind classifies a per-item sync failure.
type ErrorKind string

const (
	// ErrorKindStaging means an item could not be serialized into staging.
	ErrorKindStaging ErrorKind = "STAGING_ERROR"

	// ErrorKindValidation means a transformed item failed business rules.
	ErrorKindValidation ErrorKind = "VALIDATION_ERROR"

	// ErrorKindPipeline means transform or load failed for an item.
	ErrorKindPipeline ErrorKind = "PIPELINE_ERROR"
)

// SyncJob is one execution attempt of one source's sync.
//
// EndTime is set if and only if Status is terminal. RecordsProcessed plus
// RecordsFailed reflects exactly the staged records attempted.
type SyncJob struct {
	ID               int64      `json:"id"`
	SourceName       string     `json:"sourceName"`
	SyncType         string     `json:"syncType"`
	Status           JobStatus  `json:"status"`
	StartTime        time.Time  `json:"startTime"`
	EndTime          *time.Time `json:"endTime,omitempty"`
	RecordsProcessed int        `json:"recordsProcessed"`
	RecordsFailed    int        `json:"recordsFailed"`
	ErrorMessage     string     `json:"errorMessage,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// Clone returns a copy of the job, suitable for publishing as a snapshot.
func (j *SyncJob) Clone() *SyncJob {
	cp := *j
	if j.EndTime != nil {
		t := *j.EndTime
		cp.EndTime = &t
	}
	return &cp
}

// SyncError is one per-item failure tagged to a job. Append-only.
type SyncError struct {
	ID           uuid.UUID `json:"id"`
	JobID        int64     `json:"jobId"`
	Kind         ErrorKind `json:"errorType"`
	Message      string    `json:"errorMessage"`
	FailedRecord string    `json:"failedRecord,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// StagingRecord is the raw, write-once capture of one fetched item,
// tagged to the job that fetched it.
type StagingRecord struct {
	ID         uuid.UUID `json:"id"`
	JobID      int64     `json:"jobId"`
	ExternalID string    `json:"externalId,omitempty"`
	RawData    string    `json:"rawData"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// CustomerRecord is a normalized CRM customer keyed by its external id.
type CustomerRecord struct {
	ExternalID string `json:"externalId"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Address    string `json:"address,omitempty"`
}

// ProductRecord is a normalized ERP product keyed by its external id.
type ProductRecord struct {
	ExternalID  string          `json:"externalId"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
	Warehouse   string          `json:"warehouse,omitempty"`
}

// InvoiceRecord is a normalized accounting invoice keyed by its external id.
type InvoiceRecord struct {
	ExternalID    string          `json:"externalId"`
	InvoiceNumber string          `json:"invoiceNumber"`
	CustomerName  string          `json:"customerName"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        string          `json:"status,omitempty"`
	DueDate       *time.Time      `json:"dueDate,omitempty"`
}

// CurrentRecord carries the staleness-tracking pair shared by all three
// "current state" tables. FirstSyncedAt is preserved from the original
// insert; LastSyncedAt is refreshed on every upsert.
type CurrentRecord struct {
	SourceSystem  string     `json:"sourceSystem"`
	FirstSyncedAt time.Time  `json:"firstSyncedAt"`
	LastSyncedAt  time.Time  `json:"lastSyncedAt"`
	Active        bool       `json:"active"`
	ValidatedAt   *time.Time `json:"validatedAt,omitempty"`
}

// CurrentCustomer is the latest known-good state for one customer external id.
type CurrentCustomer struct {
	CustomerRecord
	CurrentRecord
}

// CurrentProduct is the latest known-good state for one product external id.
type CurrentProduct struct {
	ProductRecord
	CurrentRecord
}

// CurrentInvoice is the latest known-good state for one invoice external id.
type CurrentInvoice struct {
	InvoiceRecord
	CurrentRecord
}
