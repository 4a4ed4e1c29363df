package api

import (
	"encoding/json"
	"net/http"

	"github.com/smill0791/data-integration-platform/internal/logger"
	"github.com/smill0791/data-integration-platform/internal/models"
)

// streamJobEvents handles GET /api/integrations/jobs/{id}/events.
//
// It streams job snapshots as server-sent events: the stored job first,
// then every transition published for that job id. The stream ends when
// the job reaches a terminal state or the client disconnects.
func (rr *Routes) streamJobEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := rr.jobID(w, r)
	if !ok {
		return
	}
	job, err := rr.deps.Registry.GetJob(r.Context(), id)
	if err != nil {
		rr.writeJobError(w, id, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		rr.writeErrorResponse(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	// Subscribe before the initial snapshot so no transition is lost
	// between snapshot and attach.
	events, cancel := rr.deps.Publisher.Subscribe(id)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	writeEvent(w, job)
	flusher.Flush()
	if job.Status.IsTerminal() {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case snapshot, open := <-events:
			if !open {
				return
			}
			writeEvent(w, snapshot)
			flusher.Flush()
			if snapshot.Status.IsTerminal() {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, job *models.SyncJob) {
	payload, err := json.Marshal(job)
	if err != nil {
		logger.Errorf("Failed to encode job %d event: %v", job.ID, err)
		return
	}
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n\n"))
}
