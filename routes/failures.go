package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"transmute/logger"
)

// FailureQueryHandler returns why a job ended in error.
func (s *Server) FailureQueryHandler(w http.ResponseWriter, r *http.Request) {
	if s.Ledger == nil {
		writeError(w, http.StatusNotFound, "Failure ledger disabled")
		return
	}
	id := mux.Vars(r)["id"]

	record, err := s.Ledger.Get(id)
	if err != nil {
		logger.Errorf("Failed to query failure for job %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "No failure recorded for job")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// FailureListHandler lists every recorded failure (admin endpoint).
func (s *Server) FailureListHandler(w http.ResponseWriter, r *http.Request) {
	if s.Ledger == nil {
		writeError(w, http.StatusNotFound, "Failure ledger disabled")
		return
	}
	failuresList, err := s.Ledger.List()
	if err != nil {
		logger.Errorf("Failed to list failures: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"failures": failuresList,
		"count":    len(failuresList),
	})
}
