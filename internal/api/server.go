// Package api exposes the assistant over HTTP.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dgallion1/corpusqa/internal/answer"
	"github.com/dgallion1/corpusqa/internal/index"
	"github.com/dgallion1/corpusqa/internal/llm"
)

// Asker answers a user question.
type Asker interface {
	HandleQuestion(ctx context.Context, text string) answer.Result
}

// Info describes the loaded corpus and models for status endpoints.
type Info struct {
	Index    index.Manifest
	LLMModel string
}

// Server is the HTTP API server for corpusqa.
type Server struct {
	router  chi.Router
	asker   Asker
	stats   *llm.Stats
	info    Info
	apiKey  string
	metrics *metrics
	log     *slog.Logger
}

// NewServer creates and configures the HTTP server. Metrics are registered
// on reg; pass prometheus.NewRegistry() in tests.
func NewServer(asker Asker, stats *llm.Stats, info Info, apiKey string, reg *prometheus.Registry, log *slog.Logger) *Server {
	s := &Server{
		asker:   asker,
		stats:   stats,
		info:    info,
		apiKey:  apiKey,
		metrics: newMetrics(reg, stats),
		log:     log,
	}
	s.setupRoutes(reg)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes(reg *prometheus.Registry) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.apiKey, s.log))

		r.Post("/api/ask", s.handleAsk)
		r.Get("/api/index", s.handleIndexInfo)
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"build_id": s.info.Index.BuildID,
		"chunks":   s.info.Index.ChunkCount,
	})
}

func (s *Server) handleIndexInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.info.Index)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
