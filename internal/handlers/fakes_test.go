package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cinequiz/apiserver/internal/services"
	"github.com/cinequiz/apiserver/internal/store"
	"github.com/cinequiz/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memoryUsers struct {
	mu      sync.Mutex
	users   []types.User
	failErr error
}

func (m *memoryUsers) List(context.Context) ([]types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return nil, m.failErr
	}
	return append([]types.User(nil), m.users...), nil
}

func (m *memoryUsers) GetByID(_ context.Context, id int64) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.ID == id {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memoryUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memoryUsers) Create(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return types.User{}, m.failErr
	}
	for _, u := range m.users {
		if u.Email == user.Email {
			return types.User{}, &store.ConflictError{Field: store.ConflictEmail, Constraint: "users_email_key"}
		}
	}
	for _, u := range m.users {
		if u.Username == user.Username {
			return types.User{}, &store.ConflictError{Field: store.ConflictUsername, Constraint: "users_username_key"}
		}
	}
	user.ID = int64(len(m.users) + 1)
	user.DateJoined = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	user.Badges = []string{}
	user.RecomputeRank()
	m.users = append(m.users, user)
	return user, nil
}

func (m *memoryUsers) TouchLastLogin(_ context.Context, id int64, at time.Time) error {
	_, err := m.UpdateProgress(context.Background(), id, func(u *types.User) error {
		u.LastLogin = &at
		return nil
	})
	return err
}

func (m *memoryUsers) UpdateProgress(_ context.Context, id int64, mutate func(*types.User) error) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].ID != id {
			continue
		}
		u := m.users[i]
		if err := mutate(&u); err != nil {
			return types.User{}, err
		}
		m.users[i] = u
		return u, nil
	}
	return types.User{}, store.ErrNotFound
}

type memoryRevokedSet struct {
	mu     sync.Mutex
	tokens map[string]types.RevokedToken
}

func (s *memoryRevokedSet) Revoke(_ context.Context, token types.RevokedToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens == nil {
		s.tokens = make(map[string]types.RevokedToken)
	}
	s.tokens[token.TokenID] = token
	return nil
}

func (s *memoryRevokedSet) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tokens[tokenID]
	return ok, nil
}

type memoryCatalog struct {
	movies    []types.Movie
	tests     []types.Test
	questions []types.QuizQuestion
	quizzes   []types.Quiz
	failErr   error
}

func (c *memoryCatalog) ListMovies(context.Context) ([]types.Movie, error) {
	return c.movies, c.failErr
}

func (c *memoryCatalog) ListTests(context.Context) ([]types.Test, error) {
	return c.tests, c.failErr
}

func (c *memoryCatalog) ListQuizQuestions(context.Context) ([]types.QuizQuestion, error) {
	return c.questions, c.failErr
}

func (c *memoryCatalog) GetQuizQuestion(_ context.Context, id int64) (types.QuizQuestion, error) {
	if c.failErr != nil {
		return types.QuizQuestion{}, c.failErr
	}
	for _, q := range c.questions {
		if q.ID == id {
			return q, nil
		}
	}
	return types.QuizQuestion{}, store.ErrNotFound
}

func (c *memoryCatalog) ListQuizzes(context.Context) ([]types.Quiz, error) {
	return c.quizzes, c.failErr
}

func (c *memoryCatalog) Import(context.Context, store.CatalogImport) (store.ImportSummary, error) {
	return store.ImportSummary{}, errors.New("read only")
}

type stubPinger struct {
	err error
}

func (p stubPinger) PingContext(context.Context) error {
	return p.err
}

type testAPI struct {
	router  http.Handler
	users   *memoryUsers
	revoked *memoryRevokedSet
	catalog *memoryCatalog
	tokens  *services.TokenService
}

func newTestAPI(t *testing.T, tokenOpts ...services.TokenOption) *testAPI {
	t.Helper()
	api := &testAPI{
		users:   &memoryUsers{},
		revoked: &memoryRevokedSet{},
		catalog: &memoryCatalog{},
	}
	api.tokens = services.NewTokenService("handler-test-secret", append([]services.TokenOption{services.WithRevokedSet(api.revoked)}, tokenOpts...)...)
	account := services.NewAccountService(api.users, services.NewPasswordValidator(), api.tokens,
		services.WithBcryptCost(bcrypt.MinCost))
	catalog := services.NewCatalogService(api.catalog)

	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			AuthRouter(r, account, api.tokens, nil)
			UserRouter(r, services.NewUserService(api.users))
		})
		r.Route("/movies", func(r chi.Router) {
			MovieRouter(r, catalog)
		})
		r.Route("/quizzes", func(r chi.Router) {
			QuizRouter(r, catalog)
		})
	})
	api.router = r
	return api
}

func (api *testAPI) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	return rec
}

func (api *testAPI) postForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	body := map[string]any{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}
