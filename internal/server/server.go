// Package server wires the REST API, the activity WebSocket, and the
// periodic maintenance loop into one HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/scrypster/engram/internal/config"
	"github.com/scrypster/engram/internal/engine"
	"github.com/scrypster/engram/web/handlers"
)

// Server hosts the Engram HTTP surface.
type Server struct {
	cfg     *config.Config
	engine  *engine.Engine
	hub     *handlers.ActivityHub
	version string
	log     *zap.SugaredLogger
	http    *http.Server

	maintainStop chan struct{}
	maintainDone chan struct{}
}

// New builds a server around an engine. The engine's event stream is
// routed to the WebSocket activity feed. version is surfaced by the
// health endpoint.
func New(cfg *config.Config, eng *engine.Engine, version string, log *zap.SugaredLogger) *Server {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	hub := handlers.NewActivityHub([]string{
		fmt.Sprintf("localhost:%d", cfg.Server.Port),
		fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
	}, log)
	eng.SetEventFunc(hub.Publish)

	s := &Server{
		cfg:          cfg,
		engine:       eng,
		hub:          hub,
		version:      version,
		log:          log,
		maintainStop: make(chan struct{}),
		maintainDone: make(chan struct{}),
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) router() http.Handler {
	api := handlers.NewAPIHandlers(s.engine, s.version, s.log)
	limiter := handlers.NewRateLimiter(50, 100)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(handlers.SecurityHeaders)
	r.Use(handlers.RequestLogger(s.log))
	r.Use(limiter.RateLimit)

	r.Route("/api", func(r chi.Router) {
		r.Post("/ingest", api.Ingest)
		r.Get("/entities", api.ListEntities)
		r.Get("/entities/{id}/facts", api.EntityFacts)
		r.Get("/entities/{id}/chain", api.EntityChain)
		r.Post("/entities/{id}/dismiss", api.DismissEntity)
		r.Post("/entities/{id}/confirm", api.ConfirmEntity)
		r.Get("/relationships", api.ListRelationships)
		r.Get("/inferences", api.ListInferences)
		r.Post("/maintenance", api.RunMaintenance)
		r.Get("/health", api.Health)
	})
	r.Get("/ws/activity", s.hub.ServeHTTP)

	return r
}

// Start runs the server until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run()
	go s.maintenanceLoop()

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	close(s.maintainStop)
	<-s.maintainDone
	s.hub.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

// maintenanceLoop runs the full maintenance sweep on the configured
// interval. Disabled when the interval is zero.
func (s *Server) maintenanceLoop() {
	defer close(s.maintainDone)

	interval := s.cfg.Engine.MaintenanceInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			if _, err := s.engine.RunMaintenanceForAllOwners(ctx); err != nil {
				s.log.Warnw("scheduled maintenance reported errors", "error", err)
			}
			cancel()
		case <-s.maintainStop:
			return
		}
	}
}
