// Package storage publishes export artifacts to an S3-compatible bucket and
// hands out time-limited download links for them.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"geo-export-service/internal/apperr"
)

type Config struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Region     string
	Bucket     string
	Prefix     string
	UseSSL     bool
	PresignTTL time.Duration
}

// Object is a published artifact: its bucket key and a presigned GET URL.
type Object struct {
	Key string
	URL string
}

type Store struct {
	client *minio.Client
	bucket string
	prefix string
	ttl    time.Duration
}

func New(cfg Config) (*Store, error) {
	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = "exports"
	}

	return &Store{client: cli, bucket: cfg.Bucket, prefix: prefix, ttl: ttl}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return apperr.Storage("storage unavailable", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return apperr.Storage("create bucket", err)
	}
	return nil
}

// Publish uploads the file at localPath under a fresh key for jobID and
// presigns it. Every call gets its own key, so a retried export never
// overwrites an artifact a client may already be downloading.
func (s *Store) Publish(ctx context.Context, jobID uuid.UUID, localPath, filename, contentType string) (Object, error) {
	key := ObjectKey(s.prefix, jobID, uuid.New(), filename)

	_, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType:        contentType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", filename),
	})
	if err != nil {
		return Object{}, apperr.Storage("upload failed", err)
	}

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.ttl, nil)
	if err != nil {
		return Object{}, apperr.Storage("presign failed", err)
	}

	return Object{Key: key, URL: u.String()}, nil
}

// ObjectKey is <prefix>/<jobID>/<nonce>/<filename>.
func ObjectKey(prefix string, jobID, nonce uuid.UUID, filename string) string {
	return path.Join(prefix, jobID.String(), nonce.String(), filename)
}

// DownloadPath is the CDN-relative path of key.
func DownloadPath(key string) string {
	return "/" + strings.TrimPrefix(key, "/")
}
