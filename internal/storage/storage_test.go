package storage

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/cinequiz/apiserver/config"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	ctx := context.Background()

	store, err := New(ctx, config.StorageConfig{
		Backend: "MinIO",
		Minio:   config.MinioConfig{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s", Bucket: "fixtures"},
	})
	require.NoError(t, err)
	assert.Equal(t, "fixtures", store.Bucket())
	assert.NoError(t, store.Close())

	_, err = New(ctx, config.StorageConfig{Backend: "s3"})
	assert.EqualError(t, err, "unsupported storage backend: s3")

	_, err = New(ctx, config.StorageConfig{Backend: BackendGCS})
	assert.EqualError(t, err, "gcs bucket is required")
}

func TestNewMinioClientValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.MinioConfig
		want string
	}{
		{"endpoint", config.MinioConfig{}, "minio endpoint is required"},
		{"credentials", config.MinioConfig{Endpoint: "localhost:9000"}, "minio access key and secret key are required"},
		{"bucket", config.MinioConfig{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s"}, "minio bucket is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMinioClient(tt.cfg)
			assert.EqualError(t, err, tt.want)
		})
	}
}

func TestCleanKey(t *testing.T) {
	key, err := cleanKey(" /fixtures/catalog.json ")
	require.NoError(t, err)
	assert.Equal(t, "fixtures/catalog.json", key)

	_, err = cleanKey("///")
	assert.Error(t, err)
}

func TestIsMinioNotFound(t *testing.T) {
	assert.True(t, isMinioNotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.True(t, isMinioNotFound(minio.ErrorResponse{StatusCode: http.StatusNotFound}))
	assert.False(t, isMinioNotFound(minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}))
	assert.False(t, isMinioNotFound(errors.New("dial tcp: connection refused")))
}

func TestMinioOpenRejectsEmptyKey(t *testing.T) {
	client, err := NewMinioClient(config.MinioConfig{Endpoint: "localhost:9000", AccessKey: "k", SecretKey: "s", Bucket: "fixtures"})
	require.NoError(t, err)

	_, err = client.Open(context.Background(), "")
	assert.EqualError(t, err, "object key is required")
}
