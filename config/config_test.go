package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", "")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("BLOB_DRIVER", "")
	t.Setenv("WORKER_COUNT", "")
	t.Setenv("OFFICE_TIMEOUT", "")
	t.Setenv("MAX_UPLOAD_BYTES", "")

	cfg := Load()

	if cfg.MaxUploadBytes != 512<<20 {
		t.Errorf("expected 512 MiB upload limit, got %d", cfg.MaxUploadBytes)
	}

	if cfg.StoreDriver != "pebble" {
		t.Errorf("expected pebble store by default, got %s", cfg.StoreDriver)
	}
	if cfg.BlobDriver != "local" {
		t.Errorf("expected local blob driver by default, got %s", cfg.BlobDriver)
	}
	if cfg.WorkerCount != 1 {
		t.Errorf("expected a single worker by default, got %d", cfg.WorkerCount)
	}
	if cfg.OfficeTimeout != 120*time.Second {
		t.Errorf("expected 120s office timeout, got %v", cfg.OfficeTimeout)
	}
	if cfg.WorkerPollInterval != time.Second {
		t.Errorf("expected 1s poll interval, got %v", cfg.WorkerPollInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestDataDirOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_DIR", dir)
	t.Setenv("BLOB_LOCAL_DIR", "")

	if got := GetJobsDBPath(); got != filepath.Join(dir, "jobs.db") {
		t.Errorf("unexpected jobs db path %s", got)
	}
	if got := GetFailuresDBPath(); got != filepath.Join(dir, "failures.db") {
		t.Errorf("unexpected failures db path %s", got)
	}
	if got := GetBlobDir(); got != filepath.Join(dir, "blobs") {
		t.Errorf("unexpected blob dir %s", got)
	}
}

func TestMaxUploadBytes(t *testing.T) {
	t.Setenv("MAX_UPLOAD_BYTES", "1048576")
	if got := Load().MaxUploadBytes; got != 1<<20 {
		t.Errorf("expected 1048576, got %d", got)
	}
}

func TestDurationParsing(t *testing.T) {
	t.Setenv("OFFICE_TIMEOUT", "45")
	if got := Load().OfficeTimeout; got != 45*time.Second {
		t.Errorf("bare seconds: expected 45s, got %v", got)
	}

	t.Setenv("OFFICE_TIMEOUT", "2m")
	if got := Load().OfficeTimeout; got != 2*time.Minute {
		t.Errorf("duration string: expected 2m, got %v", got)
	}

	t.Setenv("OFFICE_TIMEOUT", "soon")
	if got := Load().OfficeTimeout; got != 120*time.Second {
		t.Errorf("invalid value should fall back, got %v", got)
	}
}

func TestValidateRejectsUnknownDrivers(t *testing.T) {
	cfg := Load()
	cfg.StoreDriver = "mysql"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown store driver")
	}

	cfg = Load()
	cfg.BlobDriver = "sftp"
	cfg.SFTPHost = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for sftp without host")
	}

	cfg = Load()
	cfg.WorkerCount = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero workers")
	}
}
