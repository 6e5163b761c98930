package kv

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds the connection settings of a MinioStore.
type MinioConfig struct {
	Endpoint  string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Timeout   time.Duration
}

// MinioStore keeps one object per key in a MinIO (or S3-compatible) bucket.
type MinioStore struct {
	client  *minio.Client
	bucket  string
	keys    objectKeys
	timeout time.Duration
}

var (
	_ Store  = (*MinioStore)(nil)
	_ Lister = (*MinioStore)(nil)
)

// NewMinioStore connects to the endpoint and creates the bucket if needed.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create minio client: %v", ErrUnavailable, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	s := &MinioStore{
		client:  client,
		bucket:  cfg.Bucket,
		keys:    objectKeys{prefix: cfg.Prefix},
		timeout: timeout,
	}

	ctx, cancel := s.ctx()
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%w: check bucket %s: %v", ErrUnavailable, cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("%w: create bucket %s: %v", ErrUnavailable, cfg.Bucket, err)
		}
	}

	return s, nil
}

func (s *MinioStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func isMinioNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func (s *MinioStore) Get(key string) (string, bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	obj, err := s.client.GetObject(ctx, s.bucket, s.keys.object(key), minio.GetObjectOptions{})
	if err != nil {
		if isMinioNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("minio get %q: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isMinioNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("minio read %q: %w", key, err)
	}
	return string(data), true, nil
}

func (s *MinioStore) Set(key, value string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.client.PutObject(ctx, s.bucket, s.keys.object(key),
		strings.NewReader(value), int64(len(value)),
		minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"})
	if err != nil {
		return fmt.Errorf("minio put %q: %w", key, err)
	}
	return nil
}

func (s *MinioStore) Remove(key string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	err := s.client.RemoveObject(ctx, s.bucket, s.keys.object(key), minio.RemoveObjectOptions{})
	if err != nil && !isMinioNotFound(err) {
		return fmt.Errorf("minio remove %q: %w", key, err)
	}
	return nil
}

func (s *MinioStore) Keys(prefix string) ([]string, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.keys.listPrefix(prefix),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("minio list %q: %w", prefix, obj.Err)
		}
		if k, ok := s.keys.key(obj.Key); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MinioStore) Close() error { return nil }
