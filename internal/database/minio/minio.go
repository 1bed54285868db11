package minio

import (
	"context"
	"fmt"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"DocFlow/internal/config"
	"DocFlow/internal/pipeline/interfaces"
	"DocFlow/pkg/logger"
)

var (
	client  *minio.Client
	once    sync.Once
	initErr error
)

// GetClient initializes and returns the singleton MinIO client.
func GetClient(cfg *config.MinIOConfig, log *logger.Logger) (*minio.Client, error) {
	once.Do(func() {
		c, err := minio.New(cfg.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.Secure,
		})
		if err != nil {
			initErr = fmt.Errorf("failed to create MinIO client: %w", err)
			return
		}

		if _, err = c.ListBuckets(context.Background()); err != nil {
			initErr = fmt.Errorf("MinIO connectivity check failed: %w", err)
			return
		}

		log.Info("Connected to MinIO")
		client = c
	})
	return client, initErr
}

// HealthCheck verifies connectivity and authentication.
func HealthCheck(ctx context.Context) error {
	if client == nil {
		return fmt.Errorf("MinIO client is not initialized")
	}
	if _, err := client.ListBuckets(ctx); err != nil {
		return fmt.Errorf("MinIO health check failed: %w", err)
	}
	return nil
}

// Store is the MinIO-backed document blob store.
type Store struct {
	client *minio.Client
	bucket string
}

// NewStore creates a Store and makes sure the bucket exists.
func NewStore(ctx context.Context, cfg *config.MinIOConfig, log *logger.Logger) (*Store, error) {
	c, err := GetClient(cfg, log)
	if err != nil {
		return nil, err
	}

	exists, err := c.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket '%s': %w", cfg.Bucket, err)
	}
	if !exists {
		if err := c.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket '%s': %w", cfg.Bucket, err)
		}
		log.WithPayload(map[string]interface{}{"bucket": cfg.Bucket}).Info("Created MinIO bucket")
	}

	return &Store{client: c, bucket: cfg.Bucket}, nil
}

// Download fetches the object to a local file.
func (s *Store) Download(ctx context.Context, objectKey, localPath string) error {
	if err := s.client.FGetObject(ctx, s.bucket, objectKey, localPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("failed to download object '%s': %w", objectKey, err)
	}
	return nil
}

// Upload stores a local file under the given object key.
func (s *Store) Upload(ctx context.Context, objectKey, localPath, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.FPutObject(ctx, s.bucket, objectKey, localPath, opts); err != nil {
		return fmt.Errorf("failed to upload object '%s': %w", objectKey, err)
	}
	return nil
}

// Remove deletes the object. Removing a missing object is not an error.
func (s *Store) Remove(ctx context.Context, objectKey string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object '%s': %w", objectKey, err)
	}
	return nil
}

var _ interfaces.ObjectStore = (*Store)(nil)
