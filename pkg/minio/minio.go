package minio

import (
	"bytes"
	"context"
	"fmt"

	"referralpay/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

func NewClient(c *config.Config) (*minio.Client, error) {
	client, err := minio.New(c.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
		Secure: c.Minio.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return client, nil
}

// Archiver writes JSON documents into a single bucket.
type Archiver struct {
	client *minio.Client
	bucket string
}

// NewArchiver connects to the configured endpoint and creates the bucket
// when it does not exist yet.
func NewArchiver(c *config.Config) (*Archiver, error) {
	client, err := NewClient(c)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, c.Minio.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %q: %w", c.Minio.BucketName, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, c.Minio.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %q: %w", c.Minio.BucketName, err)
		}
	}

	zap.L().Info("[MinIO] archive bucket ready", zap.String("endpoint", c.Minio.Endpoint), zap.String("bucket", c.Minio.BucketName))
	return &Archiver{client: client, bucket: c.Minio.BucketName}, nil
}

func (a *Archiver) Archive(ctx context.Context, key string, payload []byte) error {
	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}
