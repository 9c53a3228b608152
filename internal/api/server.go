// Package api exposes the prompt, version, tag and auth services over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/promptvault/internal/auth"
	gormdb "github.com/thebtf/promptvault/internal/db/gorm"
	"github.com/thebtf/promptvault/internal/events"
	"github.com/thebtf/promptvault/internal/prompts"
	"github.com/thebtf/promptvault/internal/versioning"
)

// ShutdownTimeout bounds graceful shutdown.
const ShutdownTimeout = 10 * time.Second

// Deps are the services served by the API.
type Deps struct {
	Store       *gormdb.Store
	Prompts     *prompts.Service
	Versions    *versioning.Service
	Auth        *auth.Service
	Broadcaster *events.Broadcaster
}

// Server is the promptvault HTTP server.
type Server struct {
	startTime   time.Time
	router      chi.Router
	httpServer  *http.Server
	store       *gormdb.Store
	prompts     *prompts.Service
	versions    *versioning.Service
	auth        *auth.Service
	broadcaster *events.Broadcaster
	version     string
	ready       atomic.Bool
}

// New creates a server listening on addr.
func New(addr, version string, deps Deps) *Server {
	s := &Server{
		startTime:   time.Now(),
		router:      chi.NewRouter(),
		store:       deps.Store,
		prompts:     deps.Prompts,
		versions:    deps.Versions,
		auth:        deps.Auth,
		broadcaster: deps.Broadcaster,
		version:     version,
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: /api/events streams for the life of the connection.
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(accessLog)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.auth.Tokens(), writeError))

			r.Get("/auth/me", s.handleMe)
			r.Get("/events", s.handleEvents)

			r.Route("/prompts", func(r chi.Router) {
				r.Get("/", s.handleListPrompts)
				r.Post("/", s.handleCreatePrompt)
				r.Get("/{id}", s.handleGetPrompt)
				r.Put("/{id}", s.handleUpdatePrompt)
				r.Delete("/{id}", s.handleDeletePrompt)
				r.Post("/{id}/favorite", s.handleToggleFavorite)
				r.Post("/{id}/use", s.handleRecordUse)
			})

			r.Route("/versions/{promptID}", func(r chi.Router) {
				r.Post("/", s.handleCreateVersion)
				r.Get("/versions", s.handleVersionHistory)
				r.Get("/versions/{versionID}", s.handleVersionDetail)
				r.Delete("/versions/{versionID}", s.handleDeleteVersion)
				r.Put("/versions/{versionID}/tag", s.handleUpdateVersionTag)
				r.Post("/rollback/{versionID}", s.handleRollback)
				r.Get("/compare", s.handleCompareVersions)
			})

			r.Route("/tags", func(r chi.Router) {
				r.Get("/", s.handleListTags)
				r.Get("/popular", s.handlePopularTags)
				r.Post("/", s.handleCreateTag)
				r.Delete("/{id}", s.handleDeleteTag)
			})
		})
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.httpServer.Addr).Str("version", s.version).Msg("Starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.ready.Store(true)

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			s.ready.Store(false)
			return fmt.Errorf("http server: %w", err)
		}
	}

	s.ready.Store(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	log.Info().Msg("HTTP server stopped")
	return nil
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Database string `json:"database"`
	Uptime   string `json:"uptime"`
	Clients  int    `json:"sse_clients"`
	Serving  bool   `json:"serving"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:   "ok",
		Version:  s.version,
		Database: "ok",
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		Clients:  s.broadcaster.ClientCount(),
		Serving:  s.ready.Load(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("Health check: database unreachable")
		resp.Status = "degraded"
		resp.Database = "unreachable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := auth.OwnerID(r.Context())
	s.broadcaster.HandleSSE(w, r, ownerID)
}
