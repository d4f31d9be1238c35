package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cinequiz/apiserver/config"
	"github.com/cinequiz/apiserver/internal/cache"
	"github.com/cinequiz/apiserver/internal/db"
	"github.com/cinequiz/apiserver/internal/handlers"
	"github.com/cinequiz/apiserver/internal/logging"
	"github.com/cinequiz/apiserver/internal/metrics"
	"github.com/cinequiz/apiserver/internal/services"
	"github.com/cinequiz/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	apiPrefix      = "/api/v1"
	requestTimeout = 60 * time.Second
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	redis      *redis.Client
	logger     *zap.Logger
}

// Services bundles what the HTTP routes depend on.
type Services struct {
	Account *services.AccountService
	Tokens  *services.TokenService
	Users   *services.UserService
	Catalog *services.CatalogService
}

// New constructs a Server with its dependencies wired from cfg.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Server, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	revoked, redisClient, err := newRevokedSet(ctx, cfg, dbConn, logger)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	tokenOpts := []services.TokenOption{
		services.WithTokenTTLs(cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL),
	}
	if revoked != nil {
		tokenOpts = append(tokenOpts, services.WithRevokedSet(revoked))
	}
	tokens := services.NewTokenService(cfg.Auth.JWTSecret, tokenOpts...)

	userRepo := store.NewUserRepository(dbConn)
	svc := Services{
		Account: services.NewAccountService(userRepo, services.NewPasswordValidator(), tokens,
			services.WithAccountLogger(logger)),
		Tokens:  tokens,
		Users:   services.NewUserService(userRepo),
		Catalog: services.NewCatalogService(store.NewCatalogRepository(dbConn)),
	}

	router := NewRouter(dbConn, svc, logger)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("server configured",
		zap.Int("port", port),
		zap.String("revocation_backend", cfg.Auth.RevocationBackend),
	)

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		redis:      redisClient,
		logger:     logger,
	}, nil
}

// newRevokedSet picks the refresh token blacklist. A nil set disables
// revocation and logout answers 501.
func newRevokedSet(ctx context.Context, cfg config.Config, dbConn *sql.DB, logger *zap.Logger) (services.RevokedSet, *redis.Client, error) {
	switch cfg.Auth.RevocationBackend {
	case config.RevocationPostgres, "":
		return store.NewRevokedTokenRepository(dbConn), nil, nil
	case config.RevocationRedis:
		client, err := cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return cache.NewRevokedTokenCache(client, logger), client, nil
	case config.RevocationNone:
		logger.Warn("refresh token revocation is disabled")
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported revocation backend: %s", cfg.Auth.RevocationBackend)
	}
}

// NewRouter builds the HTTP routes.
func NewRouter(pinger handlers.Pinger, svc Services, logger *zap.Logger) *chi.Mux {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		logging.RequestLogger(logger),
		metrics.Middleware,
		middleware.StripSlashes,
		middleware.Timeout(requestTimeout),
	)

	router.Get("/healthz", handlers.Healthz(pinger))
	router.Handle("/metrics", promhttp.Handler())
	router.Route(apiPrefix, func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			handlers.AuthRouter(r, svc.Account, svc.Tokens, logger)
			handlers.UserRouter(r, svc.Users)
		})
		r.Route("/movies", func(r chi.Router) {
			handlers.MovieRouter(r, svc.Catalog)
		})
		r.Route("/quizzes", func(r chi.Router) {
			handlers.QuizRouter(r, svc.Catalog)
		})
	})
	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and closes the backing connections.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
