// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cirkelline/core/pkg/auth"
	"github.com/cirkelline/core/pkg/config"
	"github.com/cirkelline/core/pkg/memory"
	"github.com/cirkelline/core/pkg/observability"
	"github.com/cirkelline/core/pkg/rag"
	"github.com/cirkelline/core/pkg/ratelimit"
	"github.com/cirkelline/core/pkg/runner"
	"github.com/cirkelline/core/pkg/session"
	"github.com/cirkelline/core/pkg/specialist"
)

// CoreVersion is reported by GET /config. It is bumped alongside releases,
// not derived from build metadata, matching the teacher's own practice of
// a hand-maintained version string.
const CoreVersion = "0.1.0"

// Deps wires every dependency the HTTP surface needs. Resolver, Orchestrator
// and Sessions/Memories/Documents are required; RateLimiter is optional (a
// nil value disables the rate-limiting middleware entirely).
type Deps struct {
	Config       *config.ServerConfig
	Resolver     *auth.Resolver
	Orchestrator *runner.Orchestrator
	Sessions     *session.Store
	Memories     *memory.Service
	Documents    *rag.DocumentStore
	Indexer      *rag.Indexer
	Specialists  *specialist.Registry
	RateLimiter  ratelimit.RateLimiter

	// Observability backs GET /metrics and the per-turn specialist/session
	// metrics the event filter records (spec.md §2's Telemetry Hook). A nil
	// value is fine: every Manager/Metrics method it's used through is a
	// nil-receiver no-op.
	Observability *observability.Manager

	RequestTimeout time.Duration
}

// Server is the caller-facing HTTP surface (spec.md §6): POST /chat, the
// caller-scoped session/memory/knowledge CRUD endpoints, and the
// unauthenticated GET /config.
type Server struct {
	deps Deps
	mux  chi.Router
}

// New builds a Server ready to be handed to http.Server.Handler.
func New(deps Deps) *Server {
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 30 * time.Second
	}
	s := &Server{deps: deps}
	s.mux = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware(s.deps.Config.CORS))
	r.Use(observability.HTTPMiddleware(s.deps.Observability.Tracer(), s.deps.Observability.Metrics()))

	if s.deps.RateLimiter != nil {
		r.Use(ratelimit.Middleware(ratelimit.MiddlewareConfig{
			Limiter:       s.deps.RateLimiter,
			ExcludedPaths: []string{"/config", "/metrics"},
		}))
	}

	// GET /config and GET /metrics are the two unauthenticated routes
	// (spec.md §6 names /config; /metrics backs the Telemetry Hook's
	// Prometheus scrape target and carries no caller data, so it gets the
	// same treatment).
	r.Get("/config", s.handleConfig)
	r.Get("/metrics", s.handleMetrics)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/chat", s.handleChat)

		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Delete("/sessions/{id}", s.handleDeleteSession)

		r.Get("/memories", s.handleListMemories)
		r.Delete("/memories/{id}", s.handleDeleteMemory)

		r.Post("/knowledge", s.handleIngestKnowledge)
		r.Get("/knowledge", s.handleListKnowledge)
		r.Delete("/knowledge/{id}", s.handleDeleteKnowledge)
	})

	return r
}

// corsMiddleware applies the configured allow-list. A nil cfg passes
// requests through untouched.
func corsMiddleware(cfg *config.CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cfg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(cfg.AllowedOrigins, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				if len(cfg.AllowedMethods) > 0 {
					w.Header().Set("Access-Control-Allow-Methods", joinCommaSeparated(cfg.AllowedMethods))
				}
				if len(cfg.AllowedHeaders) > 0 {
					w.Header().Set("Access-Control-Allow-Headers", joinCommaSeparated(cfg.AllowedHeaders))
				}
				if config.BoolValue(cfg.AllowCredentials, false) {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(allowed []string, origin string) bool {
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

func joinCommaSeparated(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out
}
