// Package routes is the HTTP boundary: job intake, status polling,
// cancellation and result download.
package routes

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"transmute/blob"
	"transmute/cache"
	"transmute/failures"
	"transmute/logger"
	"transmute/store"
)

// FailureLedger is the read side of the failure store.
type FailureLedger interface {
	Get(jobID string) (*failures.FailureRecord, error)
	List() ([]failures.FailureRecord, error)
	CheckHealth() error
}

// Settings are the request limits and buckets the handlers use.
type Settings struct {
	UploadBucket   string
	OutputBucket   string
	MaxUploadBytes int64
	SignedURLTTL   time.Duration
}

// Server holds the handlers' collaborators. Mirror and Ledger are optional.
type Server struct {
	Store    store.Store
	Blobs    blob.Store
	Mirror   cache.Mirror
	Ledger   FailureLedger
	Settings Settings
}

// Handler registers every route on a new router.
func (s *Server) Handler() http.Handler {
	if s.Mirror == nil {
		s.Mirror = cache.Nop{}
	}
	if s.Settings.SignedURLTTL <= 0 {
		s.Settings.SignedURLTTL = time.Hour
	}

	r := mux.NewRouter()
	r.HandleFunc("/upload", s.UploadHandler).Methods(http.MethodPost)
	r.HandleFunc("/job/{id}", s.JobStatusHandler).Methods(http.MethodGet)
	r.HandleFunc("/cancel/{id}", s.CancelJobHandler).Methods(http.MethodPost)
	r.HandleFunc("/download/{id}", s.DownloadHandler).Methods(http.MethodGet)
	r.HandleFunc(blob.FilesPath+"{bucket}/{key}", s.FileHandler).Methods(http.MethodGet)
	r.HandleFunc("/failures", s.FailureListHandler).Methods(http.MethodGet)
	r.HandleFunc("/failures/{id}", s.FailureQueryHandler).Methods(http.MethodGet)
	r.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/version", VersionHandler).Methods(http.MethodGet)
	r.Use(logRequests)
	return r
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debugf("%s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
