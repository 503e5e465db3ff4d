//go:build gcp

package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSStore implements Store using Google Cloud Storage.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSStoreConfig holds configuration for GCSStore.
type GCSStoreConfig struct {
	Bucket string
	Prefix string // Optional key prefix
}

// NewGCSStore creates a GCS-backed archive store. Credentials come from
// application default credentials.
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("artifacts: create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *GCSStore) Put(ctx context.Context, orderNumber string, data []byte) (Ref, error) {
	key, err := archiveKey(s.prefix, orderNumber)
	if err != nil {
		return Ref{}, err
	}

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/zip"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return Ref{}, fmt.Errorf("artifacts: gcs write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return Ref{}, fmt.Errorf("artifacts: gcs close %s: %w", key, err)
	}
	return refFor(key, data), nil
}

func (s *GCSStore) Open(ctx context.Context, orderNumber string) (io.ReadCloser, error) {
	key, err := archiveKey(s.prefix, orderNumber)
	if err != nil {
		return nil, err
	}

	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: order %s", ErrNotFound, orderNumber)
		}
		return nil, fmt.Errorf("artifacts: gcs get %s: %w", key, err)
	}
	return r, nil
}

func (s *GCSStore) Exists(ctx context.Context, orderNumber string) (bool, error) {
	key, err := archiveKey(s.prefix, orderNumber)
	if err != nil {
		return false, err
	}

	_, err = s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("artifacts: gcs attrs %s: %w", key, err)
	}
	return true, nil
}

func (s *GCSStore) Delete(ctx context.Context, orderNumber string) error {
	key, err := archiveKey(s.prefix, orderNumber)
	if err != nil {
		return err
	}

	if err := s.client.Bucket(s.bucket).Object(key).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("artifacts: gcs delete %s: %w", key, err)
	}
	return nil
}

// Close closes the GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
