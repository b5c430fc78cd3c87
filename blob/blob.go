// Package blob moves job inputs and outputs in and out of object storage.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"time"

	"transmute/config"
	"transmute/logger"
	"transmute/urlsign"
)

var ErrNotFound = errors.New("object not found")

// Store is an object store addressed by bucket and key.
type Store interface {
	Upload(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	// SignedURL returns a time-limited URL that downloads the object under filename.
	SignedURL(ctx context.Context, bucket, key string, ttl time.Duration, filename string) (string, error)
}

// Open builds the backend selected by cfg.BlobDriver. Local and SFTP
// backends are wrapped in a TokenSigner.
func Open(ctx context.Context, cfg *config.Config, signer *urlsign.Signer) (Store, error) {
	switch cfg.BlobDriver {
	case "s3":
		return NewS3(S3Options{
			Region:       cfg.S3Region,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Endpoint:     cfg.S3Endpoint,
			UsePathStyle: cfg.S3UsePathStyle,
		}), nil
	case "gcs":
		return NewGCS(ctx, cfg.GCSCredentialsFile)
	case "minio":
		return NewMinIO(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioRegion, cfg.MinioUseSSL)
	case "sftp":
		backend, err := NewSFTP(SFTPOptions{
			Host:       cfg.SFTPHost,
			Port:       cfg.SFTPPort,
			User:       cfg.SFTPUser,
			Password:   cfg.SFTPPassword,
			PrivateKey: cfg.SFTPPrivateKey,
			Root:       cfg.SFTPRoot,
		})
		if err != nil {
			return nil, err
		}
		return NewTokenSigner(backend, signer, cfg.PublicBaseURL), nil
	case "local":
		backend, err := NewLocal(cfg.BlobDir)
		if err != nil {
			return nil, err
		}
		return NewTokenSigner(backend, signer, cfg.PublicBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.BlobDriver)
	}
}

// ContentType guesses a MIME type from the key's extension.
func ContentType(key string) string {
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// UploadFile streams the file at path to bucket/key.
func UploadFile(ctx context.Context, s Store, bucket, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	return s.Upload(ctx, bucket, key, f, info.Size(), ContentType(key))
}

// DownloadToFile writes bucket/key to path, creating parent directories.
// A partial file is removed on failure.
func DownloadToFile(ctx context.Context, s Store, bucket, key, path string) error {
	rc, err := s.Download(ctx, bucket, key)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write to file %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}
	logger.Debugf("Downloaded %s/%s to %s", bucket, key, path)
	return nil
}

// Attachment builds a Content-Disposition value for filename.
func Attachment(filename string) string {
	if filename == "" {
		return ""
	}
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}
