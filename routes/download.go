package routes

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"transmute/blob"
	"transmute/logger"
	"transmute/models"
	"transmute/urlsign"
)

// DownloadHandler redirects to a signed URL for a finished job.
func (s *Server) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	job, err := s.Store.Get(r.Context(), id)
	if err != nil || job.Status != models.StatusDone || job.OutputPath == "" {
		writeError(w, http.StatusNotFound, "File not ready or job not finished")
		return
	}

	url, err := s.Blobs.SignedURL(r.Context(), s.Settings.OutputBucket, job.OutputPath, s.Settings.SignedURLTTL, DownloadName(job))
	if err != nil {
		logger.Errorf("Failed to sign download for %s: %v", id, err)
		writeError(w, http.StatusNotFound, "File not ready or job not finished")
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// DownloadName is the original base name with the output's extension,
// "report.pdf" for a report.docx converted to pdf.
func DownloadName(job *models.Job) string {
	stem := strings.TrimSuffix(job.Filename, filepath.Ext(job.Filename))
	ext := strings.TrimPrefix(job.OutputPath, job.ID)
	if ext == job.OutputPath {
		ext = filepath.Ext(job.OutputPath)
	}
	return stem + ext
}

// FileHandler streams an object for a valid download token. It only
// exists for backends that cannot sign URLs themselves.
func (s *Server) FileHandler(w http.ResponseWriter, r *http.Request) {
	signer, ok := s.Blobs.(*blob.TokenSigner)
	if !ok {
		http.NotFound(w, r)
		return
	}
	vars := mux.Vars(r)
	bucket, key := vars["bucket"], vars["key"]

	claims, err := signer.Verify(r.URL.Query().Get("token"), bucket, key)
	if err != nil {
		status := http.StatusForbidden
		if errors.Is(err, urlsign.ErrTokenExpired) {
			status = http.StatusGone
		}
		writeError(w, status, err.Error())
		return
	}

	rc, err := signer.Download(r.Context(), bucket, key)
	if errors.Is(err, blob.ErrNotFound) {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	if err != nil {
		logger.Errorf("Failed to open %s/%s: %v", bucket, key, err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", blob.ContentType(key))
	if claims.Filename != "" {
		w.Header().Set("Content-Disposition", blob.Attachment(claims.Filename))
	}
	if _, err := io.Copy(w, rc); err != nil {
		logger.Warnf("Download of %s/%s interrupted: %v", bucket, key, err)
	}
}
