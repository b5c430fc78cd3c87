package routes

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"transmute/logger"
	"transmute/models"
	"transmute/store"
)

// JobStatusResponse is what pollers see.
type JobStatusResponse struct {
	Status   models.Status `json:"status"`
	Progress int           `json:"progress"`
}

// JobStatusHandler answers terminal states from the status cache. Anything
// else is read from the job store, since a lost cache write would otherwise
// leave a finished job looking in flight. The cached entry is served only
// when the store cannot be reached.
func (s *Server) JobStatusHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	cached, err := s.Mirror.Get(r.Context(), id)
	if err != nil {
		logger.Warnf("Status cache lookup for %s failed: %v", id, err)
		cached = nil
	}
	if cached != nil && cached.Status.Terminal() {
		writeJSON(w, http.StatusOK, JobStatusResponse{Status: cached.Status, Progress: cached.Progress})
		return
	}

	job, err := s.Store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		if cached != nil {
			logger.Warnf("Job store unavailable, serving cached status for %s: %v", id, err)
			writeJSON(w, http.StatusOK, JobStatusResponse{Status: cached.Status, Progress: cached.Progress})
			return
		}
		logger.Errorf("Failed to load job %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, JobStatusResponse{Status: job.Status, Progress: job.Progress})
}
