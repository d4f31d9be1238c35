// Package fixtures loads catalog snapshots into the database.
package fixtures

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cinequiz/apiserver/internal/logging"
	"github.com/cinequiz/apiserver/internal/storage"
	"github.com/cinequiz/apiserver/internal/store"
	"github.com/samber/oops"
	"go.uber.org/zap"
)

// Importer writes a decoded snapshot. CatalogService satisfies it.
type Importer interface {
	Import(ctx context.Context, snapshot store.CatalogImport) (store.ImportSummary, error)
}

// Loader decodes catalog fixtures from files or object storage and
// imports them.
type Loader struct {
	importer Importer
	logger   *zap.Logger
}

func NewLoader(importer Importer, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		importer: importer,
		logger:   logging.WithComponent(logger, "fixtures"),
	}
}

// Decode parses and validates a fixture document. Unknown fields are
// rejected so typos do not silently drop data.
func Decode(r io.Reader) (store.CatalogImport, error) {
	var snapshot store.CatalogImport
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&snapshot); err != nil {
		return store.CatalogImport{}, oops.Code("FIXTURE_DECODE_FAILED").Wrap(err)
	}
	if err := Validate(snapshot); err != nil {
		return store.CatalogImport{}, err
	}
	return snapshot, nil
}

// Validate checks ids are positive and unique per section and that every
// reference resolves inside the snapshot.
func Validate(snapshot store.CatalogImport) error {
	people := make(map[int64]struct{}, len(snapshot.People))
	for _, p := range snapshot.People {
		if err := checkRecord("people", p.ID, p.Name, people); err != nil {
			return err
		}
	}

	movies := make(map[int64]struct{}, len(snapshot.Movies))
	for _, m := range snapshot.Movies {
		if err := checkRecord("movies", m.ID, m.Title, movies); err != nil {
			return err
		}
		for _, id := range append(append([]int64(nil), m.ProducerIDs...), m.CastIDs...) {
			if _, ok := people[id]; !ok {
				return invalid("movies", m.ID, fmt.Sprintf("unknown person %d", id))
			}
		}
	}

	tests := make(map[int64]struct{}, len(snapshot.Tests))
	for _, t := range snapshot.Tests {
		if err := checkRecord("tests", t.ID, t.Name, tests); err != nil {
			return err
		}
	}

	questions := make(map[int64]struct{}, len(snapshot.QuizQuestions))
	for _, q := range snapshot.QuizQuestions {
		if err := checkRecord("quiz_questions", q.ID, q.Question, questions); err != nil {
			return err
		}
		if q.Points < 0 {
			return invalid("quiz_questions", q.ID, "negative points")
		}
	}

	quizzes := make(map[int64]struct{}, len(snapshot.Quizzes))
	for _, quiz := range snapshot.Quizzes {
		if err := checkRecord("quizzes", quiz.ID, quiz.Title, quizzes); err != nil {
			return err
		}
		for _, id := range quiz.QuestionIDs {
			if _, ok := questions[id]; !ok {
				return invalid("quizzes", quiz.ID, fmt.Sprintf("unknown question %d", id))
			}
		}
	}
	return nil
}

func checkRecord(section string, id int64, label string, seen map[int64]struct{}) error {
	if id < 1 {
		return invalid(section, id, "id must be positive")
	}
	if _, dup := seen[id]; dup {
		return invalid(section, id, "duplicate id")
	}
	if strings.TrimSpace(label) == "" {
		return invalid(section, id, "missing name")
	}
	seen[id] = struct{}{}
	return nil
}

func invalid(section string, id int64, reason string) error {
	return oops.Code("FIXTURE_INVALID").
		With("section", section).
		With("id", id).
		Errorf("%s[%d]: %s", section, id, reason)
}

// Load decodes a fixture from r and imports it in one transaction.
func (l *Loader) Load(ctx context.Context, r io.Reader, source string) (store.ImportSummary, error) {
	snapshot, err := Decode(r)
	if err != nil {
		return store.ImportSummary{}, err
	}

	summary, err := l.importer.Import(ctx, snapshot)
	if err != nil {
		logging.Error(l.logger, "fixture import failed", err, zap.String("source", source))
		return store.ImportSummary{}, err
	}

	l.logger.Info("fixture imported",
		zap.String("source", source),
		zap.Int("people", summary.People),
		zap.Int("movies", summary.Movies),
		zap.Int("tests", summary.Tests),
		zap.Int("quiz_questions", summary.QuizQuestions),
		zap.Int("quizzes", summary.Quizzes),
	)
	return summary, nil
}

// LoadFile imports a fixture from the local filesystem.
func (l *Loader) LoadFile(ctx context.Context, path string) (store.ImportSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return store.ImportSummary{}, oops.Code("FIXTURE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	defer f.Close()
	return l.Load(ctx, f, path)
}

// LoadObject imports a fixture stored under key in the bucket.
func (l *Loader) LoadObject(ctx context.Context, objects storage.ObjectStore, key string) (store.ImportSummary, error) {
	r, err := objects.Open(ctx, key)
	if err != nil {
		return store.ImportSummary{}, err
	}
	defer r.Close()
	return l.Load(ctx, r, objects.Bucket()+"/"+key)
}

// Publish validates a local fixture and uploads it under key so other
// environments can load it with LoadObject.
func Publish(ctx context.Context, objects storage.ObjectStore, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return oops.Code("FIXTURE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	defer f.Close()

	if _, err := Decode(f); err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		return oops.Code("FIXTURE_OPEN_FAILED").With("path", path).Wrap(err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return oops.Code("FIXTURE_OPEN_FAILED").With("path", path).Wrap(err)
	}

	if err := objects.EnsureBucket(ctx); err != nil {
		return err
	}
	return objects.Upload(ctx, key, f, info.Size())
}
