package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/smill0791/data-integration-platform/internal/config"
	"github.com/smill0791/data-integration-platform/internal/logger"
	"github.com/smill0791/data-integration-platform/internal/models"
	"github.com/smill0791/data-integration-platform/internal/queue"
	"github.com/smill0791/data-integration-platform/internal/store"
	"github.com/smill0791/data-integration-platform/internal/versions"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Routes defines the routes for the integrations API with dependency injection
type Routes struct {
	deps Dependencies
}

// NewRoutes creates a new Routes instance with the provided dependencies
func NewRoutes(deps Dependencies) *Routes {
	return &Routes{deps: deps}
}

// Router creates a new router for the integrations API
func Router(deps Dependencies) http.Handler {
	routes := NewRoutes(deps)

	r := chi.NewRouter()

	r.Post("/sync/{source}", routes.triggerSync)
	r.Get("/jobs", routes.listJobs)
	r.Get("/jobs/{id}", routes.getJob)
	r.Get("/jobs/{id}/errors", routes.listJobErrors)
	r.Get("/jobs/{id}/events", routes.streamJobEvents)
	r.Post("/jobs/{id}/cancel", routes.cancelJob)

	return r
}

// triggerSync handles POST /api/integrations/sync/{source}.
//
// In queued dispatch mode it creates a QUEUED job, enqueues a dispatch
// message, and returns 202 with the queued job. In direct mode it runs
// the full pipeline inline and returns 200 with the terminal job.
func (rr *Routes) triggerSync(w http.ResponseWriter, r *http.Request) {
	source := strings.ToUpper(chi.URLParam(r, "source"))

	orchestrator, err := rr.deps.Router.Lookup(source)
	if err != nil {
		rr.writeErrorResponse(w, "Unknown source: "+source, http.StatusNotFound)
		return
	}

	if rr.deps.DispatchMode == config.DispatchModeQueued && rr.deps.Producer != nil {
		job, err := rr.deps.Registry.CreateQueuedJob(r.Context(), source, models.SyncTypeFull)
		if err != nil {
			logger.Errorf("Failed to create queued job for %s: %v", source, err)
			rr.writeErrorResponse(w, "Failed to create sync job", http.StatusInternalServerError)
			return
		}
		if err := rr.deps.Producer.SendSyncRequest(r.Context(), queue.DispatchMessage{
			JobID:      job.ID,
			SourceName: job.SourceName,
			SyncType:   job.SyncType,
		}); err != nil {
			logger.Errorf("Failed to enqueue sync request for job %d: %v", job.ID, err)
			if _, ferr := rr.deps.Registry.FailJob(r.Context(), job, "failed to enqueue sync request"); ferr != nil {
				logger.Errorf("Failed to mark job %d failed: %v", job.ID, ferr)
			}
			rr.writeErrorResponse(w, "Failed to enqueue sync request", http.StatusInternalServerError)
			return
		}
		rr.writeJSONResponse(w, http.StatusAccepted, job)
		return
	}

	job, err := orchestrator.RunFullPipeline(r.Context())
	if err != nil {
		logger.Errorf("Failed to run %s pipeline: %v", source, err)
		rr.writeErrorResponse(w, "Sync failed", http.StatusInternalServerError)
		return
	}
	rr.writeJSONResponse(w, http.StatusOK, job)
}

// listJobs handles GET /api/integrations/jobs?limit=
func (rr *Routes) listJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			rr.writeErrorResponse(w, "Invalid limit: "+raw, http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	list, err := rr.deps.Registry.ListRecentJobs(r.Context(), limit)
	if err != nil {
		logger.Errorf("Failed to list jobs: %v", err)
		rr.writeErrorResponse(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}
	rr.writeJSONResponse(w, http.StatusOK, list)
}

// getJob handles GET /api/integrations/jobs/{id}
func (rr *Routes) getJob(w http.ResponseWriter, r *http.Request) {
	id, ok := rr.jobID(w, r)
	if !ok {
		return
	}
	job, err := rr.deps.Registry.GetJob(r.Context(), id)
	if err != nil {
		rr.writeJobError(w, id, err)
		return
	}
	rr.writeJSONResponse(w, http.StatusOK, job)
}

// listJobErrors handles GET /api/integrations/jobs/{id}/errors
func (rr *Routes) listJobErrors(w http.ResponseWriter, r *http.Request) {
	id, ok := rr.jobID(w, r)
	if !ok {
		return
	}
	list, err := rr.deps.Registry.ListErrors(r.Context(), id)
	if err != nil {
		rr.writeJobError(w, id, err)
		return
	}
	rr.writeJSONResponse(w, http.StatusOK, list)
}

// cancelJob handles POST /api/integrations/jobs/{id}/cancel. Cancelling
// an already-terminal job returns the stored job unchanged.
func (rr *Routes) cancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := rr.jobID(w, r)
	if !ok {
		return
	}
	job, err := rr.deps.Registry.CancelJob(r.Context(), id)
	if err != nil {
		rr.writeJobError(w, id, err)
		return
	}
	rr.writeJSONResponse(w, http.StatusOK, job)
}

func (rr *Routes) jobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		rr.writeErrorResponse(w, "Invalid job id: "+raw, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (rr *Routes) writeJobError(w http.ResponseWriter, id int64, err error) {
	if errors.Is(err, store.ErrNotFound) {
		rr.writeErrorResponse(w, "Job not found: "+strconv.FormatInt(id, 10), http.StatusNotFound)
		return
	}
	logger.Errorf("Job %d lookup failed: %v", id, err)
	rr.writeErrorResponse(w, "Failed to load job", http.StatusInternalServerError)
}

// writeJSONResponse writes a JSON response with the given data
func (*Routes) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("Failed to encode JSON response: %v", err)
	}
}

// writeErrorResponse writes a standardized error response
func (*Routes) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	errorResp := ErrorResponse{
		Error: message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(errorResp); err != nil {
		logger.Errorf("Failed to encode error response: %v", err)
	}
}

// HealthRouter creates a router for health check endpoints
func HealthRouter(readiness ReadinessChecker) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(readiness))
	r.Get("/version", versionHandler)

	return r
}

// versionHandler handles version information requests
func versionHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(versions.GetVersionInfo()); err != nil {
		logger.Errorf("Failed to encode version info: %v", err)
	}
}

// healthHandler handles health check requests
func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}

// readinessHandler handles readiness check requests
func readinessHandler(readiness ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if readiness != nil {
			if err := readiness.CheckReadiness(r.Context()); err != nil {
				errorResp := ErrorResponse{
					Error: "Storage not ready: " + err.Error(),
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				if encodeErr := json.NewEncoder(w).Encode(errorResp); encodeErr != nil {
					logger.Errorf("Failed to encode readiness error response: %v", encodeErr)
				}
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}
