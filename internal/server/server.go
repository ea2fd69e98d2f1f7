// Package server wires handlers and middleware into a router and runs the
// HTTP server until its context is cancelled.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/csv-extractor/internal/auth"
	"github.com/sakif/csv-extractor/internal/handler"
	"github.com/sakif/csv-extractor/internal/middleware"
)

type Config struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// ShutdownTimeout bounds how long in-flight requests get once the
	// context is cancelled.
	ShutdownTimeout time.Duration
}

// Background is a task that runs alongside the server until its context ends.
type Background interface {
	Run(ctx context.Context) error
}

// Server owns the router and the tasks started with it.
type Server struct {
	router     *chi.Mux
	config     Config
	logger     *slog.Logger
	background []Background
}

// New builds the router. tokens may be nil, in which case every route is
// public and runs have no owner.
func New(cfg Config, runs handler.RunService, columns handler.ColumnSource, tokens *auth.TokenService, logger *slog.Logger, background ...Background) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		router:     chi.NewRouter(),
		config:     cfg,
		logger:     logger,
		background: background,
	}
	s.setupRoutes(runs, columns, tokens)
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes:
//
//	GET  /healthz                  liveness
//	GET  /schema                   source CSV columns
//	POST /run-python               validate + execute          (auth)
//	GET  /download?path=           download then delete        (auth)
//	GET  /api/runs                 run history                 (auth)
//	GET  /api/runs/{id}            one run                     (auth)
//	GET  /api/runs/{id}/download   the run's file              (auth)
func (s *Server) setupRoutes(runs handler.RunService, columns handler.ColumnSource, tokens *auth.TokenService) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusNotFound, "not_found", "no route for "+r.URL.Path)
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" is not allowed on "+r.URL.Path)
	})

	runHandler := handler.NewRunHandler(runs, s.logger)
	downloadHandler := handler.NewDownloadHandler(runs, s.logger)
	schemaHandler := handler.NewSchemaHandler(columns, s.logger)

	s.router.Get("/healthz", handler.HandleHealth)
	s.router.Get("/schema", schemaHandler.HandleSchema)

	s.router.Group(func(r chi.Router) {
		if tokens != nil {
			r.Use(auth.RequireAuth(tokens))
		}

		r.Post("/run-python", runHandler.HandleRun)
		r.Get("/download", downloadHandler.HandleDownload)

		r.Route("/api/runs", func(r chi.Router) {
			r.Get("/", runHandler.HandleList)
			r.Get("/{id}", runHandler.HandleGet)
			r.Get("/{id}/download", downloadHandler.HandleRunDownload)
		})
	})
}

// Start serves until ctx is cancelled, then drains in-flight requests and
// stops the background tasks. It returns nil after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	for _, task := range s.background {
		g.Go(func() error { return task.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	})

	return g.Wait()
}

func writeStatus(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(handler.ErrorResponse{Error: kind, Message: message})
}
