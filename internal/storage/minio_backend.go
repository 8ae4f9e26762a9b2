package storage

import (
	"context"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioBackend is an object-store Backend, the alternative to
// LocalBackend (spec §4.1 "Backends are pluggable").
type MinioBackend struct {
	client *minio.Client
	bucket string
}

// NewMinioBackend connects to a MinIO/S3-compatible endpoint and
// ensures the bucket exists.
func NewMinioBackend(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioBackend, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}
	return &MinioBackend{client: client, bucket: bucket}, nil
}

func (b *MinioBackend) Put(ctx context.Context, path string, data io.Reader, size int64) error {
	_, err := b.client.PutObject(ctx, b.bucket, path, data, size, minio.PutObjectOptions{})
	return err
}

func (b *MinioBackend) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (b *MinioBackend) Delete(ctx context.Context, path string) error {
	err := b.client.RemoveObject(ctx, b.bucket, path, minio.RemoveObjectOptions{})
	if isMinioNotFound(err) {
		return nil
	}
	return err
}

func (b *MinioBackend) Exists(ctx context.Context, path string) (bool, error) {
	_, err := b.client.StatObject(ctx, b.bucket, path, minio.StatObjectOptions{})
	if isMinioNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *MinioBackend) Size(ctx context.Context, path string) (int64, error) {
	info, err := b.client.StatObject(ctx, b.bucket, path, minio.StatObjectOptions{})
	if isMinioNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Size, nil
}

func (b *MinioBackend) WalkRoot(ctx context.Context, root string) ([]Entry, error) {
	var entries []Entry
	for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Prefix: root, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		entries = append(entries, Entry{Path: obj.Key, Size: obj.Size})
	}
	return entries, nil
}

func (b *MinioBackend) DeletePrefix(ctx context.Context, prefix string) error {
	objectsCh := make(chan minio.ObjectInfo)
	go func() {
		defer close(objectsCh)
		for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if obj.Err == nil {
				objectsCh <- obj
			}
		}
	}()
	for err := range b.client.RemoveObjects(ctx, b.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if err.Err != nil {
			return err.Err
		}
	}
	return nil
}

func isMinioNotFound(err error) bool {
	if err == nil {
		return false
	}
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || strings.Contains(err.Error(), "does not exist")
}
