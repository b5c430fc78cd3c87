package routes

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"transmute/logger"
	"transmute/models"
	"transmute/store"
)

// CancelJobHandler cancels a job that has not started work yet. The
// response carries the job's status after the attempt, so a job already
// past the checkpoint answers with its current status.
func (s *Server) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	logger.Infof("Attempting to cancel job: %s", id)

	job, err := s.Store.Cancel(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		logger.Errorf("Failed to cancel job %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if job.Status == models.StatusCancelled {
		if err := s.Mirror.Put(r.Context(), job); err != nil {
			logger.Warnf("Failed to mirror job %s: %v", id, err)
		}
		logger.Infof("Job cancelled: %s", id)
	} else {
		logger.Infof("Job %s not cancellable in status %q", id, job.Status)
	}
	writeJSON(w, http.StatusOK, map[string]models.Status{"status": job.Status})
}
