// Package server wires the HTTP router and manages the listener lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"menu-engagement/internal/config"
	"menu-engagement/internal/handler"
	"menu-engagement/internal/middleware"
	"menu-engagement/internal/ratelimit"
)

// Dependencies holds everything the router needs.
type Dependencies struct {
	Config        *config.Config
	Engagement    handler.Engagement
	Leaderboard   handler.Leaderboard
	Notifications handler.Notifications
	Health        handler.HealthChecker
	Limits        *ratelimit.Set
	Verifier      *middleware.Verifier
}

// Server serves the engagement API.
type Server struct {
	http            *http.Server
	shutdownTimeout time.Duration
}

// New creates a Server with all routes registered.
func New(deps *Dependencies) (*Server, error) {
	if deps.Config == nil {
		return nil, errors.New("config is required")
	}
	if deps.Limits == nil {
		return nil, errors.New("rate limits are required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("token verifier is required")
	}

	cfg := deps.Config.Server
	return &Server{
		http: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewRouter(deps),
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
		},
		shutdownTimeout: cfg.ShutdownTimeout,
	}, nil
}

// NewRouter registers middleware and routes.
func NewRouter(deps *Dependencies) http.Handler {
	h := handler.New(deps.Engagement, deps.Leaderboard, deps.Notifications, deps.Health)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(log.Logger))
	r.Use(middleware.Recover(log.Logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.SecurityHeaders)

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if t := deps.Config.Server.RequestTimeout; t > 0 {
			r.Use(chimiddleware.Timeout(t))
		}
		r.Use(ratelimit.Middleware(deps.Limits.General))
		r.Use(middleware.Authenticate(deps.Verifier))

		r.Post("/visits", h.LogVisit)
		r.With(ratelimit.Middleware(deps.Limits.Upload)).Post("/reviews", h.SubmitReview)

		r.Get("/profile", h.GetProfile)
		r.Put("/profile", h.UpdateProfile)
		r.Post("/profile/completion", h.CheckCompletion)

		r.Get("/leaderboard/current", h.CurrentLeaderboard)
		r.Get("/leaderboard/periods", h.ListPeriods)

		r.Get("/notifications/unseen", h.UnseenNotifications)
		r.Get("/notifications/history", h.NotificationHistory)
		r.Post("/notifications/{periodID}/seen", h.MarkNotificationSeen)

		r.Route("/admin", func(r chi.Router) {
			r.Use(ratelimit.Middleware(deps.Limits.Auth))
			r.Use(middleware.RequireRole(deps.Config.Auth.AdminRole))
			r.Post("/periods/manage", h.ManagePeriods)
		})
	})

	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start listens and serves until the server is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until the server is shut down.
func (s *Server) Serve(ln net.Listener) error {
	log.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Stopping HTTP server...")
	if s.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()
	}
	return s.http.Shutdown(ctx)
}
