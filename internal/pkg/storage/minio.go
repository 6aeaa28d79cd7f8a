package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioFiler keeps audio objects in a minio bucket
type MinioFiler struct {
	client *minio.Client
	bucket string
}

// MinioOptions is minio connection config
type MinioOptions struct {
	URL    string
	User   string
	Key    string
	Bucket string
	SSL    bool
}

// NewMinioFiler creates filer instance, makes the bucket if missing
func NewMinioFiler(ctx context.Context, opts MinioOptions) (*MinioFiler, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("no minio URL")
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("no minio bucket")
	}
	client, err := minio.New(opts.URL, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.User, opts.Key, ""),
		Secure: opts.SSL,
	})
	if err != nil {
		return nil, fmt.Errorf("can't create minio client: %w", err)
	}
	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("can't check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("can't create bucket: %w", err)
		}
	}
	goapp.Log.Info().Str("url", opts.URL).Str("bucket", opts.Bucket).Msg("minio filer ready")
	return &MinioFiler{client: client, bucket: opts.Bucket}, nil
}

// SaveFile stores the object
func (m *MinioFiler) SaveFile(ctx context.Context, name string, r io.Reader, size int64) error {
	_, err := m.client.PutObject(ctx, m.bucket, name, r, size, minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("can't save '%s': %w", name, err)
	}
	return nil
}

// LoadFile returns the object reader
func (m *MinioFiler) LoadFile(ctx context.Context, name string) (io.ReadSeekCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("can't load '%s': %w", name, err)
	}
	// GetObject is lazy, force the first read to surface not found
	if _, err := obj.Stat(); err != nil {
		return nil, fmt.Errorf("can't load '%s': %w", name, err)
	}
	return obj, nil
}

// DeleteFile removes the object
func (m *MinioFiler) DeleteFile(ctx context.Context, name string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("can't delete '%s': %w", name, err)
	}
	return nil
}

// IsNotFound returns true if the error indicates a missing object
func IsNotFound(err error) bool {
	var mErr minio.ErrorResponse
	if merr, ok := err.(interface{ Unwrap() error }); ok {
		if e, ok := merr.Unwrap().(minio.ErrorResponse); ok {
			mErr = e
		}
	}
	if e, ok := err.(minio.ErrorResponse); ok {
		mErr = e
	}
	return mErr.Code == "NoSuchKey"
}
