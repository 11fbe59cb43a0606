package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/desertthunder/tubeq/internal/models"
	"github.com/desertthunder/tubeq/internal/shared"
)

// LocalStore keeps artifacts on the local filesystem.
//
// With an empty directory the loader's path is used as the reference unchanged.
type LocalStore struct {
	dir string
}

// NewLocalStore creates a store rooted at dir.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

// Put moves the artifact to {dir}/{platform}/{id}{ext} and returns its absolute path.
func (s *LocalStore) Put(ctx context.Context, key models.VideoKey, localPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := os.Stat(localPath); err != nil {
		return "", fmt.Errorf("artifact not readable: %w", err)
	}

	if s.dir == "" {
		return filepath.Abs(localPath)
	}

	dest := filepath.Join(s.dir, key.Platform, key.ID+filepath.Ext(localPath))
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("failed to create media directory: %w", err)
	}

	if err := os.Rename(localPath, dest); err != nil {
		if err := copyFile(localPath, dest); err != nil {
			return "", fmt.Errorf("failed to store artifact: %w", err)
		}
		_ = os.Remove(localPath)
	}

	return filepath.Abs(dest)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// MinioStore uploads artifacts to an S3 compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioStore connects to the endpoint of cfg and makes sure the bucket exists.
func NewMinioStore(ctx context.Context, cfg shared.MinioConfig) (*MinioStore, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: minio endpoint and bucket are required", shared.ErrInvalidConfig)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	store := NewMinioStoreWithClient(client, cfg.Bucket, cfg.Prefix)
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// NewMinioStoreWithClient wraps an existing client.
func NewMinioStoreWithClient(client *minio.Client, bucket, prefix string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket, prefix: prefix}
}

// EnsureBucket creates the bucket when it does not exist.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// ObjectName returns the key an artifact is stored under.
func (s *MinioStore) ObjectName(key models.VideoKey, localPath string) string {
	return path.Join(s.prefix, key.Platform, key.ID+filepath.Ext(localPath))
}

// Put uploads the artifact and returns s3://{bucket}/{object}.
func (s *MinioStore) Put(ctx context.Context, key models.VideoKey, localPath string) (string, error) {
	object := s.ObjectName(key, localPath)
	opts := minio.PutObjectOptions{ContentType: mime.TypeByExtension(filepath.Ext(localPath))}
	if opts.ContentType == "" {
		opts.ContentType = "application/octet-stream"
	}

	info, err := s.client.FPutObject(ctx, s.bucket, object, localPath, opts)
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) {
			return "", fmt.Errorf("failed to upload artifact (%s): %w", resp.Code, err)
		}
		return "", fmt.Errorf("failed to upload artifact: %w", err)
	}

	return fmt.Sprintf("s3://%s/%s", info.Bucket, info.Key), nil
}
