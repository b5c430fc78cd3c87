package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"transmute/logger"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS signs URLs with the service account found in the client
// credentials.
type GCS struct {
	client *storage.Client
}

// NewGCS uses credentialsFile when set, else application default credentials.
func NewGCS(ctx context.Context, credentialsFile string) (*GCS, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &GCS{client: client}, nil
}

func (g *GCS) Upload(ctx context.Context, bucket, key string, r io.Reader, _ int64, contentType string) error {
	wc := g.client.Bucket(bucket).Object(key).NewWriter(ctx)
	wc.ContentType = contentType

	if _, err := io.Copy(wc, r); err != nil {
		wc.Close()
		return fmt.Errorf("io.Copy: %w", err)
	}
	// Close completes the upload.
	if err := wc.Close(); err != nil {
		return fmt.Errorf("Writer.Close: %w", err)
	}

	logger.Infof("Successfully uploaded object '%s' to bucket '%s'", key, bucket)
	return nil
}

func (g *GCS) Download(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	rc, err := g.client.Bucket(bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Object.NewReader: %w", err)
	}
	return rc, nil
}

func (g *GCS) SignedURL(_ context.Context, bucket, key string, ttl time.Duration, filename string) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	}
	if cd := Attachment(filename); cd != "" {
		opts.QueryParameters = url.Values{"response-content-disposition": {cd}}
	}
	u, err := g.client.Bucket(bucket).SignedURL(key, opts)
	if err != nil {
		return "", fmt.Errorf("Bucket.SignedURL: %w", err)
	}
	return u, nil
}

func (g *GCS) Close() error {
	return g.client.Close()
}
