// Package storage reads and writes catalog fixture objects in a bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cinequiz/apiserver/config"
)

// Storage backends.
const (
	BackendMinio = "minio"
	BackendGCS   = "gcs"
)

const fixtureContentType = "application/json"

// ErrObjectNotFound is returned when a key does not exist in the bucket.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is the bucket API the fixture tooling needs.
type ObjectStore interface {
	EnsureBucket(ctx context.Context) error
	Upload(ctx context.Context, key string, r io.Reader, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Bucket() string
	Close() error
}

// New returns the object store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case BackendMinio, "":
		client, err := NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		return client, nil
	case BackendGCS:
		client, err := NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

// cleanKey strips leading slashes so keys are bucket-relative on every backend.
func cleanKey(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("object key is required")
	}
	return key, nil
}
