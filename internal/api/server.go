// Copyright (c) 2025, the dilag contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package api wires the HTTP surface of the application: routing,
// middleware and handler construction.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/dilag-app/dilag/internal/agent"
	"github.com/dilag-app/dilag/internal/api/handlers"
	"github.com/dilag-app/dilag/internal/api/middleware"
	"github.com/dilag-app/dilag/internal/config"
	"github.com/dilag-app/dilag/internal/licensing"
	"github.com/dilag-app/dilag/internal/metrics"
	"github.com/dilag-app/dilag/internal/sessions"
)

// Dependencies collects everything the HTTP layer needs.
type Dependencies struct {
	Config          *config.AppConfig
	LicenseService  *licensing.Service
	SessionStore    *sessions.Store
	TemplateDir     string
	AgentSupervisor *agent.Supervisor
	DevServer       *agent.DevServer
	Metrics         *metrics.Manager
}

// Server is the local HTTP API server.
type Server struct {
	deps Dependencies

	httpServer *http.Server
}

func NewServer(deps Dependencies) *Server {
	return &Server{deps: deps}
}

// Handler builds the chi router with all middleware and routes.
func (s *Server) Handler() (http.Handler, error) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger(log.Logger))
	r.Use(middleware.Recoverer)

	r.Use(cors.New(cors.Options{
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler)

	healthHandler := handlers.NewHealthHandler()
	versionHandler := handlers.NewVersionHandler()
	licenseHandler := handlers.NewLicenseHandler(s.deps.LicenseService)
	sessionsHandler := handlers.NewSessionsHandler(s.deps.SessionStore, s.deps.TemplateDir)
	agentHandler := handlers.NewAgentHandler(s.deps.AgentSupervisor, s.deps.DevServer)
	logsHandler := handlers.NewLogsHandler(s.deps.Config)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler.HandleHealth)
		r.Get("/version", versionHandler.GetVersion)

		logsHandler.Routes(r)

		r.Route("/license", licenseHandler.Routes)
		r.Route("/sessions", sessionsHandler.Routes)
		r.Route("/agent", agentHandler.Routes)
		r.Route("/devserver", agentHandler.DevServerRoutes)
	})

	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Metrics.Registry(), promhttp.HandlerOpts{}))
	}

	return r, nil
}

// ListenAndServe starts the HTTP server and blocks until the context is
// cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.deps.Config.Config.Host, s.deps.Config.Config.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("API server listening")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
