package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smill0791/data-integration-platform/internal/jobs"
	"github.com/smill0791/data-integration-platform/internal/models"
	"github.com/smill0791/data-integration-platform/internal/sources"
	"github.com/smill0791/data-integration-platform/internal/store/memory"
)

type fakeCRM struct {
	customers []sources.Customer
	err       error
}

func (f *fakeCRM) FetchAllCustomers(_ context.Context) ([]sources.Customer, error) {
	return f.customers, f.err
}

type failingCustomerStore struct {
	*memory.Store
	failIDs map[string]bool
}

func (s *failingCustomerStore) UpsertCustomer(ctx context.Context, rec *models.CustomerRecord, sourceSystem string) error {
	if s.failIDs[rec.ExternalID] {
		return errors.New("connection reset")
	}
	return s.Store.UpsertCustomer(ctx, rec, sourceSystem)
}

func newCustomerHarness(fetcher customerFetcher) (*memory.Store, *jobs.Registry, Orchestrator) {
	st := memory.New()
	registry := jobs.NewRegistry(st, nil)
	orch := NewCustomerOrchestrator(registry, st, st, fetcher)
	return st, registry, orch
}

func TestRunFullPipelineAllValid(t *testing.T) {
	t.Parallel()

	crm := &fakeCRM{customers: []sources.Customer{
		{ID: "C-1", Name: "Ada", Email: "ada@example.com"},
		{ID: "C-2", Name: "Grace"},
	}}
	st, _, orch := newCustomerHarness(crm)

	job, err := orch.RunFullPipeline(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.RecordsProcessed)
	assert.Equal(t, 0, job.RecordsFailed)
	require.NotNil(t, job.EndTime)

	cur, err := st.GetCurrentCustomer(context.Background(), "C-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", cur.Name)
	assert.Equal(t, models.SourceCRM, cur.SourceSystem)
	assert.True(t, cur.Active)
}

func TestRunFullPipelineIsolatesRecordFailures(t *testing.T) {
	t.Parallel()

	crm := &fakeCRM{customers: []sources.Customer{
		{ID: "C-1", Name: "Ada"},
		{ID: "C-2", Name: ""}, // fails validation
		{ID: "C-3", Name: "Edsger"},
	}}
	st, registry, orch := newCustomerHarness(crm)

	job, err := orch.RunFullPipeline(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.RecordsProcessed)
	assert.Equal(t, 1, job.RecordsFailed)

	errs, err := registry.ListErrors(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, models.ErrorKindValidation, errs[0].Kind)
	assert.Equal(t, "name is required", errs[0].Message)
	assert.Equal(t, "C-2", errs[0].FailedRecord, "ledger identifies the item by external id")

	// The invalid record never reaches the load tables.
	_, err = st.GetCurrentCustomer(context.Background(), "C-2")
	require.Error(t, err)
	cur, err := st.GetCurrentCustomer(context.Background(), "C-3")
	require.NoError(t, err)
	assert.Equal(t, "Edsger", cur.Name)
}

func TestRunFullPipelineAllFailedMeansFailed(t *testing.T) {
	t.Parallel()

	crm := &fakeCRM{customers: []sources.Customer{
		{ID: "", Name: ""},
		{ID: "", Name: ""},
	}}
	_, _, orch := newCustomerHarness(crm)

	job, err := orch.RunFullPipeline(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, 0, job.RecordsProcessed)
	assert.Equal(t, 2, job.RecordsFailed)
}

func TestRunFullPipelineEmptySourceCompletes(t *testing.T) {
	t.Parallel()

	_, _, orch := newCustomerHarness(&fakeCRM{})

	job, err := orch.RunFullPipeline(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 0, job.RecordsProcessed)
	assert.Equal(t, 0, job.RecordsFailed)
}

func TestRunFullPipelineFetchFailureFailsJob(t *testing.T) {
	t.Parallel()

	crm := &fakeCRM{err: errors.New("failed to fetch CRM page 0 after 3 attempts: 503")}
	_, _, orch := newCustomerHarness(crm)

	job, err := orch.RunFullPipeline(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "failed to fetch CRM data")
	require.NotNil(t, job.EndTime)
}

func TestRunFullPipelineLoadFailureIsPipelineError(t *testing.T) {
	t.Parallel()

	st := memory.New()
	failing := &failingCustomerStore{Store: st, failIDs: map[string]bool{"C-2": true}}
	registry := jobs.NewRegistry(st, nil)
	crm := &fakeCRM{customers: []sources.Customer{
		{ID: "C-1", Name: "Ada"},
		{ID: "C-2", Name: "Grace"},
	}}
	orch := NewCustomerOrchestrator(registry, st, failing, crm)

	job, err := orch.RunFullPipeline(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.RecordsProcessed)
	assert.Equal(t, 1, job.RecordsFailed)

	errs, err := registry.ListErrors(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, models.ErrorKindPipeline, errs[0].Kind)
	assert.Contains(t, errs[0].Message, "load failed")
	assert.Equal(t, "C-2", errs[0].FailedRecord)
}

func TestRunPipelineForJobStagesWhenEmpty(t *testing.T) {
	t.Parallel()

	crm := &fakeCRM{customers: []sources.Customer{{ID: "C-1", Name: "Ada"}}}
	st, registry, orch := newCustomerHarness(crm)

	queued, err := registry.CreateQueuedJob(context.Background(), models.SourceCRM, models.SyncTypeFull)
	require.NoError(t, err)
	_, err = registry.StartJob(context.Background(), queued.ID)
	require.NoError(t, err)

	job, err := orch.RunPipelineForJob(context.Background(), queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.RecordsProcessed)

	recs, err := st.ListStagingRecords(context.Background(), queued.ID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "C-1", recs[0].ExternalID)
}

func TestRunPipelineForJobUsesExistingStaging(t *testing.T) {
	t.Parallel()

	// Fetcher would fail, proving staged records are used instead.
	crm := &fakeCRM{err: errors.New("source down")}
	st, registry, orch := newCustomerHarness(crm)

	job, err := registry.CreateJob(context.Background(), models.SourceCRM, models.SyncTypeFull)
	require.NoError(t, err)
	require.NoError(t, st.InsertStagingRecord(context.Background(), &models.StagingRecord{
		JobID:      job.ID,
		ExternalID: "C-9",
		RawData:    `{"id": "C-9", "name": "Barbara"}`,
	}))

	finished, err := orch.RunPipelineForJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, finished.Status)
	assert.Equal(t, 1, finished.RecordsProcessed)
}

func TestRunPipelineForJobUnknownJob(t *testing.T) {
	t.Parallel()

	_, _, orch := newCustomerHarness(&fakeCRM{})
	_, err := orch.RunPipelineForJob(context.Background(), 999)
	require.Error(t, err)
}

func TestRouterLookup(t *testing.T) {
	t.Parallel()

	_, _, orch := newCustomerHarness(&fakeCRM{})
	router := NewRouter(orch)

	got, err := router.Lookup(models.SourceCRM)
	require.NoError(t, err)
	assert.Equal(t, models.SourceCRM, got.Source())

	_, err = router.Lookup("MAINFRAME")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no orchestrator registered for source "MAINFRAME"`)

	assert.Equal(t, []string{models.SourceCRM}, router.Sources())
}

func TestTransformFailureIsPipelineError(t *testing.T) {
	t.Parallel()

	_, registry, orch := newCustomerHarness(&fakeCRM{err: errors.New("unused")})

	job, err := registry.CreateJob(context.Background(), models.SourceCRM, models.SyncTypeFull)
	require.NoError(t, err)

	st := orch.(*engine[sources.Customer]).staging
	require.NoError(t, st.InsertStagingRecord(context.Background(), &models.StagingRecord{
		JobID:   job.ID,
		RawData: `{"id": truncated`,
	}))

	finished, err := orch.RunPipelineForJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, finished.Status, "single record, failed, zero processed")

	errs, err := registry.ListErrors(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, models.ErrorKindPipeline, errs[0].Kind)
	assert.Contains(t, errs[0].Message, "transform failed")
	assert.Equal(t, `{"id": truncated`, errs[0].FailedRecord, "raw payload when no external id was staged")
}

func TestRunPipelineForJobLeavesCancelledJobUntouched(t *testing.T) {
	t.Parallel()

	// Fetcher would fail, proving a cancelled job is never staged.
	crm := &fakeCRM{err: errors.New("source down")}
	st, registry, orch := newCustomerHarness(crm)

	queued, err := registry.CreateQueuedJob(context.Background(), models.SourceCRM, models.SyncTypeFull)
	require.NoError(t, err)
	_, err = registry.CancelJob(context.Background(), queued.ID)
	require.NoError(t, err)

	finished, err := orch.RunPipelineForJob(context.Background(), queued.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, finished.Status)
	assert.Equal(t, jobs.CancelledMessage, finished.ErrorMessage)

	recs, err := st.ListStagingRecords(context.Background(), queued.ID)
	require.NoError(t, err)
	assert.Empty(t, recs)
}
