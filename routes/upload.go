package routes

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"transmute/blob"
	"transmute/logger"
	"transmute/models"
)

// UploadResponse is returned with 201 once the job is queued.
type UploadResponse struct {
	JobID    string        `json:"job_id"`
	Status   models.Status `json:"status"`
	Progress int           `json:"progress"`
}

// UploadHandler stores the uploaded file in the upload bucket and queues a job.
func (s *Server) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if s.Settings.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.Settings.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	filename := models.SanitizeFilename(header.Filename)
	if filename == "" {
		writeError(w, http.StatusBadRequest, "Empty filename")
		return
	}

	action, err := models.ParseAction(r.FormValue("action"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid action")
		return
	}

	job := &models.Job{
		ID:        uuid.NewString(),
		Filename:  filename,
		Action:    action,
		Target:    models.ParseTarget(r.FormValue("target")),
		ToFormat:  models.NormalizeFormat(r.FormValue("to_format")),
		InputPath: uuid.NewString() + "_" + filename,
		Status:    models.StatusQueued,
		Progress:  models.ProgressQueued,
		CreatedAt: time.Now().UTC(),
	}

	ctx := r.Context()
	if err := s.Blobs.Upload(ctx, s.Settings.UploadBucket, job.InputPath, file, header.Size, blob.ContentType(filename)); err != nil {
		logger.Errorf("Failed to store upload %s: %v", job.InputPath, err)
		writeError(w, http.StatusInternalServerError, "Processing failed: could not store upload")
		return
	}
	if err := s.Store.Create(ctx, job); err != nil {
		logger.Errorf("Failed to create job for %s: %v", job.InputPath, err)
		writeError(w, http.StatusInternalServerError, "Processing failed: could not create job")
		return
	}
	if err := s.Mirror.Put(ctx, job); err != nil {
		logger.Warnf("Failed to mirror job %s: %v", job.ID, err)
	}

	logger.Infof("Queued job %s: %s %s (target=%d to_format=%q)", job.ID, job.Action, job.Filename, job.Target, job.ToFormat)
	writeJSON(w, http.StatusCreated, UploadResponse{JobID: job.ID, Status: job.Status, Progress: job.Progress})
}
