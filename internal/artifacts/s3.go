package artifacts

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"overdub/internal/config"
	"overdub/internal/services"
)

// S3Store keeps artifacts in an S3-compatible object store via minio-go.
type S3Store struct {
	client *minio.Client
	bucket string
}

// NewS3 connects to the configured endpoint and ensures the bucket exists.
func NewS3(cfg config.ArtifactStore) (*S3Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to object store: %w", err)
	}

	store := &S3Store{client: client, bucket: cfg.Bucket}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "", "artifact store", "check bucket "+cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, services.Wrap(services.ErrTransient, "", "artifact store", "create bucket "+cfg.Bucket, err)
		}
	}
	return store, nil
}

func (s *S3Store) objectName(ref string) (string, error) {
	cleaned := strings.TrimSpace(ref)
	if len(cleaned) < 3 || strings.ContainsAny(cleaned, "/\\.") {
		return "", services.Wrap(services.ErrValidation, "", "artifact store", "malformed artifact ref "+ref, nil)
	}
	return cleaned[:2] + "/" + cleaned[2:], nil
}

// Put uploads data under key unless the object already exists.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	name, err := s.objectName(key)
	if err != nil {
		return "", err
	}
	if exists, err := s.Exists(ctx, key); err != nil {
		return "", err
	} else if exists {
		return key, nil
	}

	if _, err := s.client.PutObject(ctx, s.bucket, name, r, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	}); err != nil {
		return "", services.Wrap(services.ErrTransient, "", "artifact store", "upload "+key, err)
	}
	return key, nil
}

// Open streams the stored object.
func (s *S3Store) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	name, err := s.objectName(ref)
	if err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "", "artifact store", "fetch "+ref, err)
	}
	// GetObject is lazy; surface missing objects now rather than on first read.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, services.Wrap(services.ErrNotFound, "", "artifact store", "artifact "+ref, nil)
		}
		return nil, services.Wrap(services.ErrTransient, "", "artifact store", "stat "+ref, err)
	}
	return obj, nil
}

// Exists reports whether the object is stored.
func (s *S3Store) Exists(ctx context.Context, ref string) (bool, error) {
	name, err := s.objectName(ref)
	if err != nil {
		return false, err
	}
	_, err = s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, services.Wrap(services.ErrTransient, "", "artifact store", "stat "+ref, err)
}
