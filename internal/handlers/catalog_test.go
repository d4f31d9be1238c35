package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/cinequiz/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCatalog(api *testAPI) {
	kurosawa := types.Person{ID: 1, Name: "Akira Kurosawa"}
	mifune := types.Person{ID: 2, Name: "Toshiro Mifune"}
	api.catalog.movies = []types.Movie{{
		ID: 1, Title: "Rashomon", Genre: "Drama", Year: 1950, Studio: "Daiei", Director: "Akira Kurosawa",
		Producers: []types.Person{kurosawa}, Cast: []types.Person{mifune},
	}}
	api.catalog.tests = []types.Test{{ID: 1, Name: "Classics", Description: "Pre-1960 films"}}
	api.catalog.questions = []types.QuizQuestion{
		{ID: 1, Question: "Who directed Rashomon?", QuestionType: "open", Difficulty: "easy", Points: 10, Answer: "Akira Kurosawa"},
		{ID: 2, Question: "Rashomon release year?", QuestionType: "open", Difficulty: "medium", Points: 20, Answer: "1950"},
	}
	api.catalog.quizzes = []types.Quiz{{ID: 1, Title: "Kurosawa", Difficulty: "easy", QuestionIDs: []int64{1, 2}}}
}

func decodeList(t *testing.T, raw []byte) []map[string]any {
	t.Helper()
	var items []map[string]any
	require.NoError(t, json.Unmarshal(raw, &items))
	return items
}

func TestCatalogListings(t *testing.T) {
	api := newTestAPI(t)
	seedCatalog(api)

	rec := api.do(t, http.MethodGet, "/api/v1/movies", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	movies := decodeList(t, rec.Body.Bytes())
	require.Len(t, movies, 1)
	assert.Equal(t, "Rashomon", movies[0]["title"])
	assert.Len(t, movies[0]["cast"], 1)

	rec = api.do(t, http.MethodGet, "/api/v1/movies/tests", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeList(t, rec.Body.Bytes()), 1)

	rec = api.do(t, http.MethodGet, "/api/v1/quizzes/", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	quizzes := decodeList(t, rec.Body.Bytes())
	require.Len(t, quizzes, 1)
	assert.Equal(t, []any{float64(1), float64(2)}, quizzes[0]["question_ids"])

	rec = api.do(t, http.MethodGet, "/api/v1/quizzes/questions", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeList(t, rec.Body.Bytes()), 2)
}

func TestGetQuizQuestion(t *testing.T) {
	api := newTestAPI(t)
	seedCatalog(api)

	rec := api.do(t, http.MethodGet, "/api/v1/quizzes/questions/2", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "1950", body["answer"])
	assert.EqualValues(t, 20, body["points"])

	rec = api.do(t, http.MethodGet, "/api/v1/quizzes/questions/99", nil, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Quiz question not found.", decodeBody(t, rec)["error"])

	rec = api.do(t, http.MethodGet, "/api/v1/quizzes/questions/x", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCatalogStoreFailure(t *testing.T) {
	api := newTestAPI(t)
	api.catalog.failErr = errors.New("db down")

	for _, path := range []string{"/api/v1/movies", "/api/v1/movies/tests", "/api/v1/quizzes", "/api/v1/quizzes/questions", "/api/v1/quizzes/questions/1"} {
		rec := api.do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code, path)
	}
}
