// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It decides:
//   - which storage backend and avatar store to use
//   - which URL patterns map to which handler functions
//   - what middleware runs on which routes
//   - how the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config
//	  → repository.Store (sqlite or postgres) + avatar.Store (local or S3)
//	  → AccountService, ProfileService, DonationService
//	  → AuthHandler, ProfileHandler, DonationHandler, PageHandler
//
// This is the "composition root": every dependency is built here and passed
// down, so no package reaches for globals.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/sakif/payapp/internal/auth"
	"github.com/sakif/payapp/internal/avatar"
	"github.com/sakif/payapp/internal/config"
	"github.com/sakif/payapp/internal/handler"
	"github.com/sakif/payapp/internal/middleware"
	"github.com/sakif/payapp/internal/paylink"
	"github.com/sakif/payapp/internal/repository"
	"github.com/sakif/payapp/internal/repository/postgres"
	sqliteRepo "github.com/sakif/payapp/internal/repository/sqlite"
	"github.com/sakif/payapp/internal/service"
	"github.com/sakif/payapp/web"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection. Start closes it after the HTTP
// server has drained, so in-flight requests never see a closed pool.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	store  repository.Store
}

// New opens storage and builds the router.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}

	if err := s.setupRoutes(); err != nil {
		store.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// openStore picks Postgres when DATABASE_URL is set, otherwise SQLite.
func openStore(cfg config.Config, logger *slog.Logger) (repository.Store, error) {
	if cfg.DatabaseURL != "" {
		db, err := postgres.New(cfg.DatabaseURL, logger)
		if err != nil {
			return nil, fmt.Errorf("opening postgres: %w", err)
		}
		return db, nil
	}

	// Ensure the data directory exists (like `mkdir -p`).
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

// openAvatars picks the S3 bucket when S3_BUCKET is set, otherwise local
// disk. For local disk it also returns the directory to serve.
func openAvatars(cfg config.Config) (avatar.Store, string, error) {
	if cfg.S3.Enabled() {
		store, err := avatar.NewS3Store(avatar.S3Config{
			Endpoint:        cfg.S3.Endpoint,
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PublicBaseURL:   cfg.S3.PublicBaseURL,
		})
		return store, "", err
	}
	store, err := avatar.NewLocalStore(cfg.MediaDir, cfg.MediaURL)
	if err != nil {
		return nil, "", err
	}
	return store, store.Dir(), nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Close releases the database. Start calls it on shutdown.
func (s *Server) Close() error { return s.store.Close() }

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET  /                         home                    (public)
//	GET  /signup, POST /signup     registration            (public)
//	GET  /login,  POST /login      login                   (public)
//	POST /logout                   clear session           (public)
//	GET  /profile/{username}       creator page, +1 view   (public)
//	GET  /find?q=                  creator search          (public)
//	POST /qr-generate/{username}   record attempt, JSON    (public)
//	GET  /dashboard                analytics               (login)
//	GET  /me                       own profile             (login)
//	GET  /settings, POST /settings edit profile            (login)
//	POST /reset-analytics          zero analytics          (login)
//	GET  /auth/github/login        OAuth start             (if configured)
//	GET  /auth/github/callback     OAuth finish            (if configured)
//	GET  /api/me, /api/dashboard   JSON, CORS              (auth)
//	GET  /healthz, /static/*, /media/*
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns a unique ID to each request (for tracing)
// 2. RealIP: extracts the real client IP from proxy headers
// 3. Recoverer: catches panics and returns 500 instead of crashing
// 4. Logger: logs each request with timing info
func (s *Server) setupRoutes() error {
	cfg := s.config

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	// === Dependencies ===
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	if cfg.JWTSecretDefault {
		s.logger.Warn("JWT_SECRET not set, using the insecure development secret")
	}

	avatars, mediaDir, err := openAvatars(cfg)
	if err != nil {
		return fmt.Errorf("creating avatar store: %w", err)
	}

	var github *auth.GitHubProvider
	if cfg.GitHub.Enabled() {
		github = auth.NewGitHubProvider(cfg.GitHub.ClientID, cfg.GitHub.ClientSecret, cfg.GitHub.CallbackURL)
	}

	accounts := service.NewAccountService(s.store, tokens, auth.NewPasswordService(), s.logger)
	profiles := service.NewProfileService(s.store, s.store, avatars, s.logger)
	donations := service.NewDonationService(s.store, s.store, s.store, service.LinkOptions{
		Scheme:   cfg.PaymentScheme,
		Currency: cfg.PaymentCurrency,
	}, s.logger)

	renderer, err := handler.NewRenderer(web.FS, avatars.URL, s.logger)
	if err != nil {
		return fmt.Errorf("creating renderer: %w", err)
	}
	static, err := handler.StaticHandler(web.FS)
	if err != nil {
		return err
	}

	authHandler := handler.NewAuthHandler(accounts, github, renderer, cfg.IsProduction(), s.logger)
	profileHandler := handler.NewProfileHandler(profiles, donations, renderer, s.logger)
	donationHandler := handler.NewDonationHandler(donations, profiles, renderer, paylink.DefaultQRSize, s.logger)
	pageHandler := handler.NewPageHandler(renderer, s.store, s.logger)

	// === Assets ===
	s.router.Handle("/static/*", http.StripPrefix("/static/", static))
	if mediaDir != "" && strings.HasPrefix(cfg.MediaURL, "/") {
		prefix := strings.TrimRight(cfg.MediaURL, "/") + "/"
		s.router.Handle(prefix+"*", http.StripPrefix(prefix, http.FileServer(http.Dir(mediaDir))))
	}
	s.router.Get("/healthz", pageHandler.HandleHealth)

	// === Pages ===
	s.router.Group(func(r chi.Router) {
		r.Use(auth.OptionalAuth(tokens))

		r.Get("/", pageHandler.HandleHome)
		r.Get("/signup", authHandler.HandleSignupForm)
		r.Post("/signup", authHandler.HandleSignup)
		r.Get("/login", authHandler.HandleLoginForm)
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
		r.Get("/profile/{username}", profileHandler.HandleCreatorProfile)
		r.Get("/find", profileHandler.HandleFind)
		r.Post("/qr-generate/{username}", donationHandler.HandleQRGenerate)

		if github != nil {
			r.Get("/auth/github/login", authHandler.HandleGitHubLogin)
			r.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
		}
	})

	s.router.Group(func(r chi.Router) {
		r.Use(auth.RequireLogin(tokens))

		r.Get("/dashboard", donationHandler.HandleDashboard)
		r.Get("/me", profileHandler.HandleMyProfile)
		r.Get("/settings", profileHandler.HandleSettingsForm)
		r.Post("/settings", profileHandler.HandleSettings)
		r.Post("/reset-analytics", donationHandler.HandleResetAnalytics)
	})

	// === API Routes ===
	// CORS only matters for the JSON API: pages and forms are same-origin.
	apiCORS := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
		AllowCredentials: true,
	})
	s.router.Route("/api", func(r chi.Router) {
		r.Use(apiCORS.Handler)
		r.Use(auth.RequireAuth(tokens))

		r.Get("/me", authHandler.HandleMe)
		r.Get("/dashboard", donationHandler.HandleDashboardAPI)
	})

	// Unknown URLs get the HTML 404 page, with the nav reflecting the session.
	s.router.NotFound(auth.OptionalAuth(tokens)(http.HandlerFunc(renderer.NotFound)).ServeHTTP)

	return nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the database connection (flushes WAL, releases file lock)
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second, // avatar uploads
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		backend := "sqlite:" + s.config.DBPath
		if s.config.DatabaseURL != "" {
			backend = "postgres"
		}
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("environment", s.config.Environment),
			slog.String("database", backend),
			slog.Bool("s3Avatars", s.config.S3.Enabled()),
			slog.Bool("githubLogin", s.config.GitHub.Enabled()),
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
