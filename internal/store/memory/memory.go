// Package memory provides an in-memory implementation of the store
// interfaces, used by tests and database-less development runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smill0791/data-integration-platform/internal/models"
	"github.com/smill0791/data-integration-platform/internal/store"
)

// Store is an in-memory store.Store implementation. Safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	nextJobID int64
	jobs      map[int64]*models.SyncJob
	errors    map[int64][]*models.SyncError
	staging   map[int64][]*models.StagingRecord

	// Validated copies are kept apart from the current rows, matching
	// the two-table layout of the postgres backend.
	validatedCustomers map[string]*validatedRecord[models.CustomerRecord]
	validatedProducts  map[string]*validatedRecord[models.ProductRecord]
	validatedInvoices  map[string]*validatedRecord[models.InvoiceRecord]

	customers map[string]*models.CurrentCustomer
	products  map[string]*models.CurrentProduct
	invoices  map[string]*models.CurrentInvoice
}

// validatedRecord is the audit copy of a record that passed validation,
// refreshed on every successful load.
type validatedRecord[T any] struct {
	record      T
	validatedAt time.Time
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		jobs:               make(map[int64]*models.SyncJob),
		errors:             make(map[int64][]*models.SyncError),
		staging:            make(map[int64][]*models.StagingRecord),
		validatedCustomers: make(map[string]*validatedRecord[models.CustomerRecord]),
		validatedProducts:  make(map[string]*validatedRecord[models.ProductRecord]),
		validatedInvoices:  make(map[string]*validatedRecord[models.InvoiceRecord]),
		customers:          make(map[string]*models.CurrentCustomer),
		products:           make(map[string]*models.CurrentProduct),
		invoices:           make(map[string]*models.CurrentInvoice),
	}
}

// CheckReadiness always succeeds for the in-memory store.
func (*Store) CheckReadiness(_ context.Context) error {
	return nil
}

// InsertJob persists a new job, assigning its ID and CreatedAt.
func (s *Store) InsertJob(_ context.Context, job *models.SyncJob) (*models.SyncJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextJobID++
	cp := job.Clone()
	cp.ID = s.nextJobID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	if cp.StartTime.IsZero() {
		cp.StartTime = cp.CreatedAt
	}
	s.jobs[cp.ID] = cp
	return cp.Clone(), nil
}

// UpdateJob overwrites the stored job with the given snapshot. The
// compare-and-set against the stored status keeps terminal jobs
// immutable even when the caller raced on a stale read.
func (s *Store) UpdateJob(_ context.Context, job *models.SyncJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[job.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Status.IsTerminal() {
		return store.ErrTerminal
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// GetJob returns the job with the given id.
func (s *Store) GetJob(_ context.Context, id int64) (*models.SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return job.Clone(), nil
}

// ListRecentJobs returns up to limit jobs ordered by start time descending.
func (s *Store) ListRecentJobs(_ context.Context, limit int) ([]*models.SyncJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.SyncJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// InsertSyncError appends one error ledger entry.
func (s *Store) InsertSyncError(_ context.Context, e *models.SyncError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.OccurredAt.IsZero() {
		cp.OccurredAt = time.Now()
	}
	s.errors[cp.JobID] = append(s.errors[cp.JobID], &cp)
	return nil
}

// ListSyncErrors returns a job's errors, most recent first.
func (s *Store) ListSyncErrors(_ context.Context, jobID int64) ([]*models.SyncError, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.errors[jobID]
	out := make([]*models.SyncError, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		cp := *entries[i]
		out = append(out, &cp)
	}
	return out, nil
}

// InsertStagingRecord persists one staging record.
func (s *Store) InsertStagingRecord(_ context.Context, rec *models.StagingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.ReceivedAt.IsZero() {
		cp.ReceivedAt = time.Now()
	}
	s.staging[cp.JobID] = append(s.staging[cp.JobID], &cp)
	return nil
}

// ListStagingRecords returns a job's staged records in insertion order.
func (s *Store) ListStagingRecords(_ context.Context, jobID int64) ([]*models.StagingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.staging[jobID]
	out := make([]*models.StagingRecord, 0, len(records))
	for _, rec := range records {
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

// UpsertCustomer writes the validated customer copy and merges it into
// the current state, keyed by external id. FirstSyncedAt is preserved
// across updates.
func (s *Store) UpsertCustomer(_ context.Context, rec *models.CustomerRecord, sourceSystem string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.validatedCustomers[rec.ExternalID] = &validatedRecord[models.CustomerRecord]{record: *rec, validatedAt: now}
	existing, ok := s.customers[rec.ExternalID]
	if !ok {
		s.customers[rec.ExternalID] = &models.CurrentCustomer{
			CustomerRecord: *rec,
			CurrentRecord:  newCurrentRecord(sourceSystem, now),
		}
		return nil
	}
	existing.CustomerRecord = *rec
	touchCurrentRecord(&existing.CurrentRecord, sourceSystem, now)
	return nil
}

// GetCurrentCustomer returns the current state for one customer external id.
func (s *Store) GetCurrentCustomer(_ context.Context, externalID string) (*models.CurrentCustomer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cur, ok := s.customers[externalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *cur
	if v, ok := s.validatedCustomers[externalID]; ok {
		at := v.validatedAt
		cp.ValidatedAt = &at
	}
	return &cp, nil
}

// UpsertProduct writes the validated product copy and merges it into
// the current state.
func (s *Store) UpsertProduct(_ context.Context, rec *models.ProductRecord, sourceSystem string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.validatedProducts[rec.ExternalID] = &validatedRecord[models.ProductRecord]{record: *rec, validatedAt: now}
	existing, ok := s.products[rec.ExternalID]
	if !ok {
		s.products[rec.ExternalID] = &models.CurrentProduct{
			ProductRecord: *rec,
			CurrentRecord: newCurrentRecord(sourceSystem, now),
		}
		return nil
	}
	existing.ProductRecord = *rec
	touchCurrentRecord(&existing.CurrentRecord, sourceSystem, now)
	return nil
}

// GetCurrentProduct returns the current state for one product external id.
func (s *Store) GetCurrentProduct(_ context.Context, externalID string) (*models.CurrentProduct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cur, ok := s.products[externalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *cur
	if v, ok := s.validatedProducts[externalID]; ok {
		at := v.validatedAt
		cp.ValidatedAt = &at
	}
	return &cp, nil
}

// UpsertInvoice writes the validated invoice copy and merges it into
// the current state.
func (s *Store) UpsertInvoice(_ context.Context, rec *models.InvoiceRecord, sourceSystem string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.validatedInvoices[rec.ExternalID] = &validatedRecord[models.InvoiceRecord]{record: *rec, validatedAt: now}
	existing, ok := s.invoices[rec.ExternalID]
	if !ok {
		s.invoices[rec.ExternalID] = &models.CurrentInvoice{
			InvoiceRecord: *rec,
			CurrentRecord: newCurrentRecord(sourceSystem, now),
		}
		return nil
	}
	existing.InvoiceRecord = *rec
	touchCurrentRecord(&existing.CurrentRecord, sourceSystem, now)
	return nil
}

// GetCurrentInvoice returns the current state for one invoice external id.
func (s *Store) GetCurrentInvoice(_ context.Context, externalID string) (*models.CurrentInvoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cur, ok := s.invoices[externalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *cur
	if v, ok := s.validatedInvoices[externalID]; ok {
		at := v.validatedAt
		cp.ValidatedAt = &at
	}
	return &cp, nil
}

func newCurrentRecord(sourceSystem string, now time.Time) models.CurrentRecord {
	return models.CurrentRecord{
		SourceSystem:  sourceSystem,
		FirstSyncedAt: now,
		LastSyncedAt:  now,
		Active:        true,
	}
}

func touchCurrentRecord(cur *models.CurrentRecord, sourceSystem string, now time.Time) {
	cur.SourceSystem = sourceSystem
	cur.LastSyncedAt = now
	cur.Active = true
}
