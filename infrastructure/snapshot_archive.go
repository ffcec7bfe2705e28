package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
)

// SnapshotArchiveConfig locates the bucket run snapshots are written to
type SnapshotArchiveConfig struct {
	Endpoint  string // host:port, no scheme
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// Validate checks that the archive can be reached
func (c SnapshotArchiveConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("snapshot endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("snapshot endpoint must not include scheme: %q", c.Endpoint)
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("snapshot bucket is required")
	}
	return nil
}

// objectStore is the part of *minio.Client the archive uses
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinIOSnapshotArchive stores run event snapshots in an S3 compatible bucket
type MinIOSnapshotArchive struct {
	store  objectStore
	bucket string
	region string
}

// NewMinIOSnapshotArchive connects to the object store described by cfg
func NewMinIOSnapshotArchive(cfg SnapshotArchiveConfig) (*MinIOSnapshotArchive, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	return newSnapshotArchive(client, cfg.Bucket, cfg.Region), nil
}

func newSnapshotArchive(store objectStore, bucket, region string) *MinIOSnapshotArchive {
	return &MinIOSnapshotArchive{store: store, bucket: bucket, region: region}
}

// EnsureBucket creates the snapshot bucket if it does not exist yet
func (a *MinIOSnapshotArchive) EnsureBucket(ctx context.Context) error {
	exists, err := a.store.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("failed to check snapshot bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}

	if err := a.store.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: a.region}); err != nil {
		return fmt.Errorf("failed to create snapshot bucket %s: %w", a.bucket, err)
	}
	log.WithField("bucket", a.bucket).Info("Created snapshot bucket")
	return nil
}

// Put implements interfaces.SnapshotArchive
func (a *MinIOSnapshotArchive) Put(ctx context.Context, key string, body io.Reader, size int64) (string, error) {
	info, err := a.store.PutObject(ctx, a.bucket, key, body, size, minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("failed to store snapshot %s: %w", key, err)
	}

	log.WithFields(log.Fields{
		"bucket": a.bucket,
		"key":    info.Key,
		"size":   info.Size,
	}).Debug("Archived run snapshot")
	return key, nil
}
