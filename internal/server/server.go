// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the "wiring" layer: the composition root where the config
// becomes a database, repositories, services and handlers, and where URL
// patterns and middleware are attached. main.go only loads config and calls
// New + Start, so tests can build the exact production router in-process.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/userauth/internal/auth"
	"github.com/sakif/userauth/internal/cache"
	"github.com/sakif/userauth/internal/config"
	"github.com/sakif/userauth/internal/handler"
	"github.com/sakif/userauth/internal/middleware"
	"github.com/sakif/userauth/internal/repository"
	"github.com/sakif/userauth/internal/repository/cached"
	sqliteRepo "github.com/sakif/userauth/internal/repository/sqlite"
	"github.com/sakif/userauth/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection, the optional Redis client and the
// rate limiter's cleanup goroutine. Close releases all three; Start calls it
// on shutdown.
type Server struct {
	router  *chi.Mux
	config  config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	cache   *cache.Client // nil when REDIS_ADDR is unset
	limiter *middleware.RateLimiter
}

// New creates a new Server from cfg.
//
// DEPENDENCY INJECTION & WIRING:
//  1. Open the database (sqlite.New)
//  2. Optionally wrap the repository with the Redis profile cache
//  3. Build the token and password services from config
//  4. Build AuthService / UserService on the repository interface
//  5. Build handlers and attach routes
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		db:      db,
		limiter: middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}

	var users repository.UserRepository = db
	if cfg.CacheEnabled() {
		s.cache = cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.cache.Ping(ctx); err != nil {
			// keep going; every cache call degrades to a miss
			logger.Warn("redis unreachable, profile cache will miss",
				slog.String("addr", cfg.RedisAddr),
				slog.String("error", err.Error()),
			)
		}
		cancel()
		users = cached.NewUserRepository(db, s.cache, cfg.ProfileCacheTTL)
	}

	authService := service.NewAuthService(users, tokens, auth.NewPasswordService(cfg.BcryptCost))
	userService := service.NewUserService(users, logger)

	var google handler.OAuthProvider
	if cfg.GoogleEnabled() {
		google = auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL)
	}

	s.setupRoutes(routeDeps{
		tokens: tokens,
		auth: handler.NewAuthHandler(authService, google, handler.AuthOptions{
			TokenTTL:     tokens.TTL(),
			SecureCookie: cfg.CookieSecure,
			FrontendURL:  cfg.FrontendURL,
		}, logger),
		users:  handler.NewUserHandler(authService, userService, logger),
		health: handler.NewHealthHandler(db, logger),
		google: google != nil,
	})

	return s, nil
}

type routeDeps struct {
	tokens *auth.TokenService
	auth   *handler.AuthHandler
	users  *handler.UserHandler
	health *handler.HealthHandler
	google bool
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz                → DB ping
// GET    /metrics                → Prometheus exposition
// POST   /auth/register          → create local account      (rate limited)
// POST   /auth/login             → email/password login      (rate limited)
// POST   /auth/logout            → clear token cookie        (rate limited)
// GET    /auth/google/login      → redirect to Google        (rate limited, if configured)
// GET    /auth/google/callback   → finish Google sign-in     (rate limited, if configured)
// GET    /api/me                 → current user's profile    (bearer required)
// PATCH  /api/me                 → update current profile    (bearer required)
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns unique ID to each request (for tracing)
// 2. RealIP   : extracts real client IP from proxy headers (the rate limiter keys on it)
// 3. Logger   : logs each request with timing info and request ID
// 4. Metrics  : counts requests per route pattern
// 5. Recoverer: catches panics and returns 500 instead of crashing
func (s *Server) setupRoutes(d routeDeps) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.Metrics)
	s.router.Use(chimiddleware.Recoverer)

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not_found","message":"no such route"}` + "\n"))
	})

	s.router.Get("/healthz", d.health.HandleHealth)
	s.router.Handle("/metrics", middleware.MetricsHandler())

	s.router.Route("/auth", func(r chi.Router) {
		r.Use(s.limiter.Handler)

		r.Post("/register", d.auth.HandleRegister)
		r.Post("/login", d.auth.HandleLogin)
		r.Post("/logout", d.auth.HandleLogout)

		if d.google {
			r.Get("/google/login", d.auth.HandleGoogleLogin)
			r.Get("/google/callback", d.auth.HandleGoogleCallback)
		}
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireAuth(d.tokens))

		r.Get("/me", d.users.HandleMe)
		r.Patch("/me", d.users.HandleUpdateMe)
	})
}

// Handler exposes the router, mainly for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases everything the server owns. Safe to call once after Start
// returns, or instead of Start in tests.
func (s *Server) Close() error {
	s.limiter.Close()
	var errs []error
	if err := s.cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing redis: %w", err))
	}
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	return errors.Join(errs...)
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the database connection (flushes WAL, releases file lock)
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("releasing resources", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.Bool("google", s.config.GoogleEnabled()),
			slog.Bool("cache", s.config.CacheEnabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
