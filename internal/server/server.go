// Package server exposes the HTTP surface: the utterance webhook that feeds
// the orchestrator, health, and read-only audit endpoints. The webhook is the
// only write path, and it does nothing but validate the envelope and enqueue.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foyer-io/foyer/internal/audit"
	"github.com/foyer-io/foyer/internal/orchestrator"
	"github.com/foyer-io/foyer/internal/otel"
	"github.com/foyer-io/foyer/internal/policy"
)

const defaultTimeout = 60 * time.Second

// Server holds the HTTP API dependencies.
type Server struct {
	router    *chi.Mux
	orch      *orchestrator.Orchestrator
	records   *audit.Store
	policy    *policy.Policy
	startTime time.Time
}

// NewServer builds a Server.
func NewServer(orch *orchestrator.Orchestrator, records *audit.Store, pol *policy.Policy) *Server {
	return &Server{
		router:    chi.NewRouter(),
		orch:      orch,
		records:   records,
		policy:    pol,
		startTime: time.Now(),
	}
}

// Routes returns the configured http.Handler.
func (s *Server) Routes() http.Handler {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(otel.Middleware())
	r.Use(middleware.Timeout(defaultTimeout))

	r.Get("/health", s.handleHealth)
	r.Get("/v1/health", s.handleHealth)

	r.Post("/v1/events/utterance", s.handleUtterance)

	r.Get("/v1/audit", s.handleAuditList)
	r.Get("/v1/audit/{id}/verify", s.handleAuditVerify)
	r.Get("/v1/policy", s.handlePolicy)

	return r
}
