package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"docvault-backend/internal/shared/storage/object"
	"docvault-backend/internal/shared/telemetry"
)

// Store implements ObjectStore using MinIO (or any S3-compatible backend).
type Store struct {
	client *minio.Client
	bucket string
}

// New creates a MinIO client and ensures the bucket exists.
func New(endpoint, accessKey, secretKey, bucket string, useSSL bool) (object.ObjectStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", bucket, err)
		}
		telemetry.Info("storage.bucket_created", map[string]any{"bucket": bucket})
	}

	return &Store{client: client, bucket: bucket}, nil
}

// Save streams the reader to MinIO under the given storage key. The object
// size is unknown up front, so MinIO decides the part size.
func (s *Store) Save(ctx context.Context, storageKey string, contentType string, r io.Reader) (int64, error) {
	info, err := s.client.PutObject(ctx, s.bucket, storageKey, r, -1, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return 0, fmt.Errorf("minio put object %q: %w", storageKey, err)
	}
	return info.Size, nil
}

// Open returns a reader over a stored object.
func (s *Store) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, storageKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("minio get object %q: %w", storageKey, err)
	}
	// GetObject is lazy; a Stat forces the first request so missing keys
	// surface here instead of on the first Read.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, object.ErrNotFound
		}
		return nil, fmt.Errorf("minio stat object %q: %w", storageKey, err)
	}
	return obj, nil
}

// Delete removes the object at the given key.
func (s *Store) Delete(ctx context.Context, storageKey string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, storageKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("minio remove object %q: %w", storageKey, err)
	}
	return nil
}

// Presign returns a time-limited GET URL for the object.
func (s *Store) Presign(ctx context.Context, storageKey string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, storageKey, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("minio presign %q: %w", storageKey, err)
	}
	return u.String(), nil
}

var _ object.ObjectStore = (*Store)(nil)
