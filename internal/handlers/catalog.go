package handlers

import (
	"errors"
	"net/http"

	"github.com/cinequiz/apiserver/internal/services"
	"github.com/cinequiz/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
)

// CatalogHandler serves the read-only movie and quiz listings.
type CatalogHandler struct {
	catalog *services.CatalogService
}

func NewCatalogHandler(catalog *services.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// MovieRouter registers movie routes on the given router.
func MovieRouter(r chi.Router, catalog *services.CatalogService) {
	handler := NewCatalogHandler(catalog)

	r.Get("/", handler.ListMovies)
	r.Get("/tests", handler.ListTests)
}

// QuizRouter registers quiz routes on the given router.
func QuizRouter(r chi.Router, catalog *services.CatalogService) {
	handler := NewCatalogHandler(catalog)

	r.Get("/", handler.ListQuizzes)
	r.Route("/questions", func(r chi.Router) {
		r.Get("/", handler.ListQuizQuestions)
		r.Get("/{questionID}", handler.GetQuizQuestion)
	})
}

func (h *CatalogHandler) ListMovies(w http.ResponseWriter, r *http.Request) {
	movies, err := h.catalog.ListMovies(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list movies")
		return
	}
	writeJSON(w, http.StatusOK, movies)
}

func (h *CatalogHandler) ListTests(w http.ResponseWriter, r *http.Request) {
	tests, err := h.catalog.ListTests(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list tests")
		return
	}
	writeJSON(w, http.StatusOK, tests)
}

func (h *CatalogHandler) ListQuizzes(w http.ResponseWriter, r *http.Request) {
	quizzes, err := h.catalog.ListQuizzes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list quizzes")
		return
	}
	writeJSON(w, http.StatusOK, quizzes)
}

func (h *CatalogHandler) ListQuizQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.catalog.ListQuizQuestions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list quiz questions")
		return
	}
	writeJSON(w, http.StatusOK, questions)
}

func (h *CatalogHandler) GetQuizQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "questionID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid question id.")
		return
	}

	question, err := h.catalog.GetQuizQuestion(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Quiz question not found.")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch quiz question")
		return
	}

	writeJSON(w, http.StatusOK, question)
}
