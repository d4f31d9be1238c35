package storage

import (
	"context"
	"errors"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/cinequiz/apiserver/config"
	"github.com/samber/oops"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSClient stores fixtures in a Google Cloud Storage bucket.
type GCSClient struct {
	client    *storage.Client
	bucket    string
	projectID string
}

// NewGCSClient constructs a GCS client from config.
func NewGCSClient(ctx context.Context, cfg config.GCSConfig) (*GCSClient, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, oops.Code("STORAGE_INIT_FAILED").With("backend", BackendGCS).Wrap(err)
	}

	return &GCSClient{
		client:    client,
		bucket:    cfg.Bucket,
		projectID: cfg.ProjectID,
	}, nil
}

func (g *GCSClient) EnsureBucket(ctx context.Context) error {
	_, err := g.client.Bucket(g.bucket).Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return oops.Code("STORAGE_BUCKET_FAILED").With("bucket", g.bucket).Wrap(err)
	}
	if strings.TrimSpace(g.projectID) == "" {
		return errors.New("gcs project id is required to create bucket")
	}
	if err := g.client.Bucket(g.bucket).Create(ctx, g.projectID, nil); err != nil {
		return oops.Code("STORAGE_BUCKET_FAILED").With("bucket", g.bucket).Wrap(err)
	}
	return nil
}

func (g *GCSClient) Upload(ctx context.Context, key string, r io.Reader, _ int64) error {
	key, err := cleanKey(key)
	if err != nil {
		return err
	}
	writer := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	writer.ContentType = fixtureContentType
	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		return oops.Code("STORAGE_UPLOAD_FAILED").With("bucket", g.bucket).With("key", key).Wrap(err)
	}
	if err := writer.Close(); err != nil {
		return oops.Code("STORAGE_UPLOAD_FAILED").With("bucket", g.bucket).With("key", key).Wrap(err)
	}
	return nil
}

func (g *GCSClient) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	reader, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, oops.Code("STORAGE_OBJECT_NOT_FOUND").With("bucket", g.bucket).With("key", key).Wrap(ErrObjectNotFound)
		}
		return nil, oops.Code("STORAGE_OPEN_FAILED").With("bucket", g.bucket).With("key", key).Wrap(err)
	}
	return reader, nil
}

func (g *GCSClient) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, oops.Code("STORAGE_LIST_FAILED").With("bucket", g.bucket).With("prefix", prefix).Wrap(err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

func (g *GCSClient) Bucket() string {
	return g.bucket
}

func (g *GCSClient) Close() error {
	return g.client.Close()
}
