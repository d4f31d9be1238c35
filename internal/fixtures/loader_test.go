package fixtures

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/cinequiz/apiserver/internal/storage"
	"github.com/cinequiz/apiserver/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFixture = "testdata/catalog.json"

type recordingImporter struct {
	snapshots []store.CatalogImport
	err       error
}

func (r *recordingImporter) Import(_ context.Context, snapshot store.CatalogImport) (store.ImportSummary, error) {
	if r.err != nil {
		return store.ImportSummary{}, r.err
	}
	r.snapshots = append(r.snapshots, snapshot)
	return store.ImportSummary{
		People:        len(snapshot.People),
		Movies:        len(snapshot.Movies),
		Tests:         len(snapshot.Tests),
		QuizQuestions: len(snapshot.QuizQuestions),
		Quizzes:       len(snapshot.Quizzes),
	}, nil
}

type memoryBucket struct {
	objects map[string][]byte
	ensured bool
}

func newMemoryBucket() *memoryBucket {
	return &memoryBucket{objects: make(map[string][]byte)}
}

func (b *memoryBucket) EnsureBucket(context.Context) error {
	b.ensured = true
	return nil
}

func (b *memoryBucket) Upload(_ context.Context, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	b.objects[key] = data
	return nil
}

func (b *memoryBucket) Open(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := b.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memoryBucket) List(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *memoryBucket) Bucket() string { return "fixtures" }

func (b *memoryBucket) Close() error { return nil }

func TestDecodeSample(t *testing.T) {
	f, err := os.Open(sampleFixture)
	require.NoError(t, err)
	defer f.Close()

	snapshot, err := Decode(f)
	require.NoError(t, err)
	assert.Len(t, snapshot.People, 3)
	assert.Nil(t, snapshot.People[2].DateOfDeath)
	assert.Equal(t, []int64{3}, snapshot.Movies[0].ProducerIDs)
	assert.Equal(t, []int64{1, 2}, snapshot.Quizzes[0].QuestionIDs)
}

func TestDecodeRejectsBadDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"syntax", `{"people": [`, ""},
		{"unknown field", `{"actors": []}`, ""},
		{"zero id", `{"tests": [{"id": 0, "name": "x"}]}`, "tests[0]: id must be positive"},
		{"duplicate", `{"tests": [{"id": 1, "name": "a"}, {"id": 1, "name": "b"}]}`, "tests[1]: duplicate id"},
		{"missing title", `{"movies": [{"id": 4, "title": " "}]}`, "movies[4]: missing name"},
		{"dangling cast", `{"movies": [{"id": 1, "title": "Ran", "cast": [9]}]}`, "movies[1]: unknown person 9"},
		{"dangling question", `{"quizzes": [{"id": 2, "title": "Q", "question_ids": [5]}]}`, "quizzes[2]: unknown question 5"},
		{"negative points", `{"quiz_questions": [{"id": 1, "question": "?", "points": -1}]}`, "quiz_questions[1]: negative points"},
		{"bad date", `{"people": [{"id": 1, "name": "A", "date_of_birth": "1910-03-23"}]}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			require.Error(t, err)
			if tt.want != "" {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}

func TestLoader_LoadFile(t *testing.T) {
	importer := &recordingImporter{}
	loader := NewLoader(importer, nil)

	summary, err := loader.LoadFile(context.Background(), sampleFixture)
	require.NoError(t, err)
	assert.Equal(t, store.ImportSummary{People: 3, Movies: 2, Tests: 1, QuizQuestions: 2, Quizzes: 1}, summary)
	require.Len(t, importer.snapshots, 1)

	_, err = loader.LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoader_ImportFailure(t *testing.T) {
	importer := &recordingImporter{err: errors.New("tx aborted")}
	loader := NewLoader(importer, nil)

	_, err := loader.LoadFile(context.Background(), sampleFixture)
	assert.ErrorIs(t, err, importer.err)
}

func TestPublishThenLoadObject(t *testing.T) {
	bucket := newMemoryBucket()
	ctx := context.Background()

	require.NoError(t, Publish(ctx, bucket, sampleFixture, "catalog/v1.json"))
	assert.True(t, bucket.ensured)
	keys, err := bucket.List(ctx, "catalog/")
	require.NoError(t, err)
	assert.Equal(t, []string{"catalog/v1.json"}, keys)

	importer := &recordingImporter{}
	summary, err := NewLoader(importer, nil).LoadObject(ctx, bucket, "catalog/v1.json")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Movies)

	_, err = NewLoader(importer, nil).LoadObject(ctx, bucket, "catalog/v2.json")
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestPublishRejectsInvalidFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tests": [{"id": -1, "name": "x"}]}`), 0o600))

	bucket := newMemoryBucket()
	assert.Error(t, Publish(context.Background(), bucket, path, "bad.json"))
	assert.Empty(t, bucket.objects)
}
