// Package api serves the HTTP interface: document ingestion, job status,
// chat, health, metrics and the MCP endpoint.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/bull/rag-server/internal/domain"
	"github.com/bull/rag-server/internal/jobs"
	"github.com/bull/rag-server/internal/metrics"
)

// Answerer answers chat queries.
type Answerer interface {
	Answer(ctx context.Context, q domain.ChatQuery) (*domain.Answer, error)
}

// Ingester accepts documents and reports job progress.
type Ingester interface {
	Submit(ctx context.Context, docs []domain.Document) (*jobs.Job, error)
	Get(ctx context.Context, jobID string) (*jobs.Job, error)
}

// DefaultMaxUploadBytes caps request bodies when Config leaves it unset.
const DefaultMaxUploadBytes = 101 << 20

// Config holds the server's dependencies. Metrics and MCP are optional.
type Config struct {
	Answerer       Answerer
	Ingester       Ingester
	Health         map[string]domain.HealthChecker
	Metrics        *metrics.Metrics
	MCP            http.Handler
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// Server routes HTTP requests to the application.
type Server struct {
	answerer       Answerer
	ingester       Ingester
	health         map[string]domain.HealthChecker
	metrics        *metrics.Metrics
	mcp            http.Handler
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewServer creates a Server.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Server{
		answerer:       cfg.Answerer,
		ingester:       cfg.Ingester,
		health:         cfg.Health,
		metrics:        cfg.Metrics,
		mcp:            cfg.MCP,
		maxUploadBytes: cfg.MaxUploadBytes,
		logger:         cfg.Logger.With("component", "api"),
	}
}

// Handler returns the routed handler with request-id, metrics and recovery
// middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/ingest", s.handleIngest)
	mux.HandleFunc("GET /v1/ingest/status/{job_id}", s.handleStatus)
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", handleLanding)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	if s.mcp != nil {
		mux.Handle("/mcp", s.mcp)
	}

	var h http.Handler = mux
	h = s.recoverer(h)
	h = s.metrics.Middleware(h)
	h = requestID(h)
	return h
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to write response", "error", err)
	}
}

// writeError logs server-side failures and writes {"error": message}.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	log := s.requestLogger(r)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "path", r.URL.Path, "status", status, "error", err)
	} else {
		log.Info("Request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	s.writeJSON(w, status, map[string]string{"error": publicMessage(err, status)})
}
