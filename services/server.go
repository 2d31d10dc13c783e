package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const Version = "1.0.0"

// Store is the persistence the server needs: post records plus a health probe
type Store interface {
	PostStore
	Ping(ctx context.Context) error
}

// Server holds all server dependencies
type Server struct {
	config         *Config
	store          Store
	generator      Generator
	metrics        *Metrics
	sessionService *SessionService
	linkedIn       *LinkedInClient
	postService    *PostService
	limiter        *RateLimiter
	authEndpoints  *AuthEndpoints
	postEndpoints  *PostEndpoints
}

// NewServer creates a new server instance
func NewServer(config *Config) *Server {
	return &Server{
		config:  config,
		metrics: NewMetrics(),
	}
}

// SetDatabase sets the post store
func (s *Server) SetDatabase(store Store) {
	s.store = store
}

// SetGenerator replaces the Gemini generator, mainly for tests
func (s *Server) SetGenerator(generator Generator) {
	s.generator = generator
}

// InitializeServices builds every service from the configuration
func (s *Server) InitializeServices(ctx context.Context) error {
	if s.store == nil {
		return fmt.Errorf("database is not configured")
	}

	if s.generator == nil {
		gemini, err := NewGeminiService(ctx, s.config.AI, s.metrics)
		if err != nil {
			return err
		}
		s.generator = gemini
		slog.Info("Gemini service initialized", "model", gemini.model)
	}

	sessionService, err := NewSessionService(s.config.Session)
	if err != nil {
		return err
	}
	s.sessionService = sessionService

	s.linkedIn = NewLinkedInClient(s.config.LinkedIn, s.config.Server.HTTPClientTimeout, s.metrics)
	s.postService = NewPostService(s.generator, s.linkedIn, s.store, s.metrics)
	s.limiter = NewRateLimiter(s.config.RateLimit.GeneratePerMinute)

	s.authEndpoints = NewAuthEndpoints(s.sessionService, s.linkedIn)
	s.postEndpoints = NewPostEndpoints(s.postService)

	slog.Info("Services initialized", "generate_per_minute", s.config.RateLimit.GeneratePerMinute)
	return nil
}

// SetupRoutes configures all HTTP routes
func (s *Server) SetupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CORSMiddleware(s.config.Server.AllowedOrigins))
	r.Use(s.metrics.Middleware)

	r.Get("/", s.rootHandler)
	r.Get("/health", s.healthHandler)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	// API v1 route group
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.apiV1Handler)

		s.authEndpoints.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(s.sessionService.Middleware)
			s.authEndpoints.RegisterProtectedRoutes(r)
			s.postEndpoints.RegisterRoutes(r, s.limiter)
		})
	})

	return r
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully
func (s *Server) Start() error {
	port := s.config.Server.Port
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-quit:
	}

	slog.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.limiter != nil {
		s.limiter.Stop()
	}
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return err
	}

	slog.Info("Server exited")
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	dbStatus := "not configured"
	code := http.StatusOK

	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			dbStatus = "down"
			status = "degraded"
			code = http.StatusServiceUnavailable
		} else {
			dbStatus = "up"
		}
	}

	writeJSON(w, code, map[string]string{"status": status, "database": dbStatus})

	slog.Debug("Health check", "status", status, "database", dbStatus)
}

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "LinkedIn post generator is running",
		"version": Version,
	})
}

func (s *Server) apiV1Handler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "API v1", "version": Version})
}
