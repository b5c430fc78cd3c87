package config

import (
	"os"
	"path/filepath"
)

// getDataDir determines the data directory path from environment or default.
// Priority: DATA_DIR environment variable > "./data" default
func getDataDir() string {
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		return dir
	}
	return "./data"
}

// GetDataDir returns the current data directory path.
// The environment is read on every call so tests can point it at a temp dir.
func GetDataDir() string {
	return getDataDir()
}

// GetJobsDBPath returns the full path to the embedded job store.
// Only used when STORE_DRIVER=pebble.
// Path: {DATA_DIR}/jobs.db
func GetJobsDBPath() string {
	return filepath.Join(GetDataDir(), "jobs.db")
}

// GetFailuresDBPath returns the full path to the failure ledger.
// The ledger keeps the error detail of every job that ended in "error".
// Path: {DATA_DIR}/failures.db
func GetFailuresDBPath() string {
	return filepath.Join(GetDataDir(), "failures.db")
}

// GetBlobDir returns the root directory of the local blob backend.
// Path: {DATA_DIR}/blobs
func GetBlobDir() string {
	if dir := os.Getenv("BLOB_LOCAL_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(GetDataDir(), "blobs")
}

// GetUploadDir returns the worker's local input cache.
// Inputs found here are not downloaded again from the upload bucket.
func GetUploadDir() string {
	if dir := os.Getenv("UPLOAD_DIR"); dir != "" {
		return dir
	}
	return "./uploads"
}

// GetOutputDir returns the staging directory for produced artifacts.
// Every job writes into its own subdirectory, removed after upload.
func GetOutputDir() string {
	if dir := os.Getenv("OUTPUT_DIR"); dir != "" {
		return dir
	}
	return "./output"
}
