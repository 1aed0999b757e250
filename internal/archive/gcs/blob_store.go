// Package gcs implements a Google Cloud Storage blob store.
package gcs

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// BlobStore writes snapshots to a GCS bucket.
type BlobStore struct {
	client *storage.Client
	bucket string
	logger *zap.Logger
}

// New initializes a GCS client and verifies access to the bucket, so bad
// configuration fails at startup instead of mid-run. Authentication uses
// Application Default Credentials.
func New(ctx context.Context, bucket string, logger *zap.Logger) (*BlobStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if cerr := client.Close(); cerr != nil {
			logger.Warn("close gcs client after bucket check failure", zap.Error(cerr))
		}
		return nil, fmt.Errorf("get gcs bucket %q attributes: %w", bucket, err)
	}
	return &BlobStore{client: client, bucket: bucket, logger: logger}, nil
}

// PutObject uploads data to the bucket and returns a gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error) {
	wc := s.client.Bucket(s.bucket).Object(path).NewWriter(ctx)
	wc.ContentType = contentType
	if _, err := wc.Write(data); err != nil {
		if cerr := wc.Close(); cerr != nil {
			s.logger.Warn("close gcs writer after write failure", zap.Error(cerr))
		}
		return "", fmt.Errorf("write gcs object %s: %w", path, err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("close gcs writer for object %s: %w", path, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, path), nil
}

// Close releases the GCS client.
func (s *BlobStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close gcs client: %w", err)
	}
	return nil
}
