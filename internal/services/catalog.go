package services

import (
	"context"

	"github.com/cinequiz/apiserver/internal/store"
	"github.com/cinequiz/apiserver/types"
)

// CatalogRepository defines the read-only catalog queries plus bulk import.
type CatalogRepository interface {
	ListMovies(ctx context.Context) ([]types.Movie, error)
	ListTests(ctx context.Context) ([]types.Test, error)
	ListQuizQuestions(ctx context.Context) ([]types.QuizQuestion, error)
	GetQuizQuestion(ctx context.Context, id int64) (types.QuizQuestion, error)
	ListQuizzes(ctx context.Context) ([]types.Quiz, error)
	Import(ctx context.Context, snapshot store.CatalogImport) (store.ImportSummary, error)
}

// CatalogService exposes movies, tests and quizzes.
type CatalogService struct {
	repo CatalogRepository
}

func NewCatalogService(repo CatalogRepository) *CatalogService {
	return &CatalogService{repo: repo}
}

func (s *CatalogService) ListMovies(ctx context.Context) ([]types.Movie, error) {
	return s.repo.ListMovies(ctx)
}

func (s *CatalogService) ListTests(ctx context.Context) ([]types.Test, error) {
	return s.repo.ListTests(ctx)
}

func (s *CatalogService) ListQuizQuestions(ctx context.Context) ([]types.QuizQuestion, error) {
	return s.repo.ListQuizQuestions(ctx)
}

func (s *CatalogService) GetQuizQuestion(ctx context.Context, id int64) (types.QuizQuestion, error) {
	return s.repo.GetQuizQuestion(ctx, id)
}

func (s *CatalogService) ListQuizzes(ctx context.Context) ([]types.Quiz, error) {
	return s.repo.ListQuizzes(ctx)
}

// Import loads a catalog snapshot.
func (s *CatalogService) Import(ctx context.Context, snapshot store.CatalogImport) (store.ImportSummary, error) {
	return s.repo.Import(ctx, snapshot)
}
