package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smill0791/data-integration-platform/internal/config"
	"github.com/smill0791/data-integration-platform/internal/jobs"
	"github.com/smill0791/data-integration-platform/internal/models"
	"github.com/smill0791/data-integration-platform/internal/pipeline"
	"github.com/smill0791/data-integration-platform/internal/queue"
	"github.com/smill0791/data-integration-platform/internal/sources"
	"github.com/smill0791/data-integration-platform/internal/status"
	"github.com/smill0791/data-integration-platform/internal/store/memory"
)

type fakeCRM struct {
	customers []sources.Customer
	err       error
}

func (f *fakeCRM) FetchAllCustomers(_ context.Context) ([]sources.Customer, error) {
	return f.customers, f.err
}

type capturingProducer struct {
	sent    []queue.DispatchMessage
	sendErr error
}

func (p *capturingProducer) SendSyncRequest(_ context.Context, msg queue.DispatchMessage) error {
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sent = append(p.sent, msg)
	return nil
}

type harness struct {
	store     *memory.Store
	registry  *jobs.Registry
	publisher *status.Publisher
	producer  *capturingProducer
	mux       http.Handler
}

func newHarness(t *testing.T, dispatchMode string) *harness {
	t.Helper()
	st := memory.New()
	publisher := status.NewPublisher()
	t.Cleanup(publisher.Close)
	registry := jobs.NewRegistry(st, publisher)
	router := pipeline.NewRouter(pipeline.NewCustomerOrchestrator(registry, st, st, &fakeCRM{
		customers: []sources.Customer{{ID: "C-1", Name: "Ada"}},
	}))
	producer := &capturingProducer{}

	mux := NewServer(Dependencies{
		Registry:     registry,
		Router:       router,
		Producer:     producer,
		Publisher:    publisher,
		Readiness:    st,
		DispatchMode: dispatchMode,
	}, WithMiddlewares(LoggingMiddleware))

	return &harness{store: st, registry: registry, publisher: publisher, producer: producer, mux: mux}
}

func (h *harness) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	return rec
}

func decodeJob(t *testing.T, rec *httptest.ResponseRecorder) models.SyncJob {
	t.Helper()
	var job models.SyncJob
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&job))
	return job
}

func TestTriggerSyncDirectMode(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.DispatchModeDirect)
	rec := h.do(t, http.MethodPost, "/api/integrations/sync/crm")

	require.Equal(t, http.StatusOK, rec.Code)
	job := decodeJob(t, rec)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, models.SourceCRM, job.SourceName)
	assert.Equal(t, 1, job.RecordsProcessed)
	assert.Empty(t, h.producer.sent)
}

func TestTriggerSyncQueuedMode(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.DispatchModeQueued)
	rec := h.do(t, http.MethodPost, "/api/integrations/sync/crm")

	require.Equal(t, http.StatusAccepted, rec.Code)
	job := decodeJob(t, rec)
	assert.Equal(t, models.JobStatusQueued, job.Status)

	require.Len(t, h.producer.sent, 1)
	assert.Equal(t, job.ID, h.producer.sent[0].JobID)
	assert.Equal(t, models.SourceCRM, h.producer.sent[0].SourceName)
	assert.Equal(t, models.SyncTypeFull, h.producer.sent[0].SyncType)
}

func TestTriggerSyncUnknownSource(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.DispatchModeDirect)
	rec := h.do(t, http.MethodPost, "/api/integrations/sync/mainframe")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerSyncEnqueueFailureFailsJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.DispatchModeQueued)
	h.producer.sendErr = errors.New("sqs unavailable")

	rec := h.do(t, http.MethodPost, "/api/integrations/sync/crm")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	list, err := h.registry.ListRecentJobs(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.JobStatusFailed, list[0].Status)
	assert.Contains(t, list[0].ErrorMessage, "failed to enqueue")
}

func TestGetJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.DispatchModeDirect)
	created, err := h.registry.CreateJob(context.Background(), models.SourceCRM, models.SyncTypeFull)
	require.NoError(t, err)

	rec := h.do(t, http.MethodGet, "/api/integrations/jobs/"+strconv.FormatInt(created.ID, 10))
	require.Equal(t, http.StatusOK, rec.Code)
	job := decodeJob(t, rec)
	assert.Equal(t, created.ID, job.ID)
	assert.Equal(t, models.JobStatusRunning, job.Status)
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.DispatchModeDirect)
	rec := h.do(t, http.MethodGet, "/api/integrations/jobs/999")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJobInvalidID(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.DispatchModeDirect)
	rec := h.do(t, http.MethodGet, "/api/integrations/jobs/abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListJobs(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.DispatchModeDirect)
	for i := 0; i < 3; i++ {
		_, err := h.registry.CreateJob(context.Background(), models.SourceCRM, models.SyncTypeFull)
		require.NoError(t, err)
	}

	rec := h.do(t, http.MethodGet, "/api/integrations/jobs?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.SyncJob
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list, 2)

	rec = h.do(t, http.MethodGet, "/api/integrations/jobs?limit=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListJobErrors(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.DispatchModeDirect)
	job, err := h.registry.CreateJob(context.Background(), models.SourceCRM, models.SyncTypeFull)
	require.NoError(t, err)
	require.NoError(t, h.registry.RecordError(context.Background(), job.ID,
		models.ErrorKindValidation, "name is required", `{"id":"C-2"}`))

	rec := h.do(t, http.MethodGet, "/api/integrations/jobs/"+strconv.FormatInt(job.ID, 10)+"/errors")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.SyncError
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, models.ErrorKindValidation, list[0].Kind)

	rec = h.do(t, http.MethodGet, "/api/integrations/jobs/999/errors")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancelJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.DispatchModeDirect)
	job, err := h.registry.CreateQueuedJob(context.Background(), models.SourceCRM, models.SyncTypeFull)
	require.NoError(t, err)

	rec := h.do(t, http.MethodPost, "/api/integrations/jobs/"+strconv.FormatInt(job.ID, 10)+"/cancel")
	require.Equal(t, http.StatusOK, rec.Code)
	cancelled := decodeJob(t, rec)
	assert.Equal(t, models.JobStatusFailed, cancelled.Status)
	assert.Equal(t, jobs.CancelledMessage, cancelled.ErrorMessage)

	// Cancelling again is a no-op returning the stored job.
	rec = h.do(t, http.MethodPost, "/api/integrations/jobs/"+strconv.FormatInt(job.ID, 10)+"/cancel")
	require.Equal(t, http.StatusOK, rec.Code)
	again := decodeJob(t, rec)
	assert.Equal(t, cancelled.EndTime.UnixNano(), again.EndTime.UnixNano())
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.DispatchModeDirect)

	rec := h.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/readiness")
	assert.Equal(t, http.StatusOK, rec.Code)
}

type failingReadiness struct{}

func (failingReadiness) CheckReadiness(context.Context) error {
	return errors.New("connection refused")
}

func TestReadinessFailure(t *testing.T) {
	t.Parallel()

	mux := NewServer(Dependencies{Readiness: failingReadiness{}})
	req := httptest.NewRequest(http.MethodGet, "/readiness", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestStreamJobEvents(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.DispatchModeDirect)
	job, err := h.registry.CreateJob(context.Background(), models.SourceCRM, models.SyncTypeFull)
	require.NoError(t, err)

	srv := httptest.NewServer(h.mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/integrations/jobs/" + strconv.FormatInt(job.ID, 10) + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan models.SyncJob, 4)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var snapshot models.SyncJob
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snapshot) == nil {
				events <- snapshot
			}
		}
		close(events)
	}()

	// Initial snapshot arrives before any transition.
	first := <-events
	assert.Equal(t, models.JobStatusRunning, first.Status)

	// Give the subscription time to attach, then finish the job.
	time.Sleep(50 * time.Millisecond)
	_, err = h.registry.CompleteJob(context.Background(), job, 3, 1)
	require.NoError(t, err)

	select {
	case second, open := <-events:
		require.True(t, open)
		assert.Equal(t, models.JobStatusCompleted, second.Status)
		assert.Equal(t, 3, second.RecordsProcessed)
		assert.Equal(t, 1, second.RecordsFailed)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for terminal event")
	}
}

func TestStreamJobEventsTerminalJobEndsImmediately(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.DispatchModeDirect)
	job, err := h.registry.CreateJob(context.Background(), models.SourceCRM, models.SyncTypeFull)
	require.NoError(t, err)
	_, err = h.registry.FailJob(context.Background(), job, "boom")
	require.NoError(t, err)

	srv := httptest.NewServer(h.mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/integrations/jobs/" + strconv.FormatInt(job.ID, 10) + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	var lines []string
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "data: ") {
			lines = append(lines, scanner.Text())
		}
	}
	require.Len(t, lines, 1, "terminal job streams only its snapshot")
	assert.Contains(t, lines[0], `"FAILED"`)
}
