package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/cinequiz/apiserver/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/samber/oops"
)

// MinioClient stores fixtures in a MinIO (or any S3 compatible) bucket.
type MinioClient struct {
	client *minio.Client
	bucket string
}

// NewMinioClient constructs a MinIO client from config.
func NewMinioClient(cfg config.MinioConfig) (*MinioClient, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("minio endpoint is required")
	}
	if strings.TrimSpace(cfg.AccessKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("minio access key and secret key are required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("minio bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, oops.Code("STORAGE_INIT_FAILED").With("backend", BackendMinio).Wrap(err)
	}

	return &MinioClient{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

func (m *MinioClient) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return oops.Code("STORAGE_BUCKET_FAILED").With("bucket", m.bucket).Wrap(err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return oops.Code("STORAGE_BUCKET_FAILED").With("bucket", m.bucket).Wrap(err)
	}
	return nil
}

func (m *MinioClient) Upload(ctx context.Context, key string, r io.Reader, size int64) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	_, err = m.client.PutObject(ctx, m.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: fixtureContentType,
	})
	if err != nil {
		return oops.Code("STORAGE_UPLOAD_FAILED").With("bucket", m.bucket).With("key", key).Wrap(err)
	}
	return nil
}

// Open returns a reader for key. GetObject is lazy, so the object is
// stat'ed first to report missing keys up front.
func (m *MinioClient) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, m.openError(key, err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, m.openError(key, err)
	}
	return obj, nil
}

func (m *MinioClient) openError(key string, err error) error {
	if isMinioNotFound(err) {
		return oops.Code("STORAGE_OBJECT_NOT_FOUND").With("bucket", m.bucket).With("key", key).Wrap(ErrObjectNotFound)
	}
	return oops.Code("STORAGE_OPEN_FAILED").With("bucket", m.bucket).With("key", key).Wrap(err)
}

func isMinioNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound
}

func (m *MinioClient) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, oops.Code("STORAGE_LIST_FAILED").With("bucket", m.bucket).With("prefix", prefix).Wrap(obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (m *MinioClient) Bucket() string {
	return m.bucket
}

// Close is a no-op; the MinIO client holds no long-lived connections.
func (m *MinioClient) Close() error {
	return nil
}
