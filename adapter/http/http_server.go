// Package http exposes the DevHub orchestrator over HTTP.
//
// Routes:
//
//	POST /v1/query                   {"query": "...", "session_id": "..."} -> QueryResult
//	GET  /v1/sessions/{id}/history   recent session messages
//	GET  /healthz, /ready, /live     probes
//	GET  /metrics                    Prometheus exposition
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/propagation"

	"github.com/devhub/devhub-go/devhub"
	"github.com/devhub/devhub-go/memory"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// maxBodyBytes bounds a query request body.
const maxBodyBytes = 1 << 20

// Querier answers one developer question.
type Querier interface {
	Query(ctx context.Context, request string) (*devhub.QueryResult, error)
}

// Check reports whether a dependency is ready.
type Check func(ctx context.Context) error

// Server serves a Querier over HTTP.
type Server struct {
	querier    Querier
	server     *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
	gatherer   prometheus.Gatherer
	memory     memory.Memory
	propagator propagation.TextMapPropagator
	startTime  time.Time

	mu     sync.RWMutex
	checks map[string]Check
	order  []string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics serves gatherer on /metrics.
func WithMetrics(gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = gatherer
	}
}

// WithMemory records every answered query that carries a session id.
func WithMemory(mem memory.Memory) Option {
	return func(s *Server) {
		s.memory = mem
	}
}

// WithReadinessCheck adds a named check to /ready.
func WithReadinessCheck(name string, check Check) Option {
	return func(s *Server) {
		s.AddCheck(name, check)
	}
}

// WithTimeouts sets the read and write timeouts of the listener.
func WithTimeouts(read, write time.Duration) Option {
	return func(s *Server) {
		s.server.ReadTimeout = read
		s.server.WriteTimeout = write
	}
}

// NewServer creates a server for querier listening on addr.
func NewServer(querier Querier, addr string, opts ...Option) *Server {
	s := &Server{
		querier: querier,
		mux:     http.NewServeMux(),
		logger:  slog.Default(),
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
		startTime: time.Now(),
		checks:    make(map[string]Check),
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("POST /v1/query", s.handleQuery)
	s.mux.HandleFunc("GET /v1/sessions/{id}/history", s.handleHistory)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.HandleFunc("GET /live", s.handleLive)
	if s.gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.server.Handler = s.middleware(s.mux)
	return s
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("devhub listening", "address", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx
// expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("devhub stopping")
	return s.server.Shutdown(ctx)
}

type requestIDKey struct{}

// RequestID returns the request id stored by the server middleware.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// middleware assigns the request id, joins the caller's trace and logs the
// outcome.
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := s.propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx = context.WithValue(ctx, requestIDKey{}, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		level := slog.LevelDebug
		if r.URL.Path == "/v1/query" || rec.status >= http.StatusInternalServerError {
			level = slog.LevelInfo
		}
		s.logger.Log(ctx, level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"request_id", id,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		s.sendError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "request body must be JSON with a \"query\" field")
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		s.sendError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "query must not be empty")
		return
	}

	result, err := s.querier.Query(r.Context(), req.Query)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "query failed", "error", err, "request_id", RequestID(r.Context()))
		s.sendError(w, r, http.StatusBadGateway, "QUERY_FAILED", err.Error())
		return
	}

	if s.memory != nil && req.SessionID != "" {
		if err := memory.StoreExchange(r.Context(), s.memory, req.SessionID, req.Query, result); err != nil {
			s.logger.WarnContext(r.Context(), "failed to record session history",
				"session_id", req.SessionID, "error", err)
		}
	}

	s.sendJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.memory == nil {
		s.sendError(w, r, http.StatusNotImplemented, "NOT_IMPLEMENTED", "session history is disabled")
		return
	}

	limit := memory.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.sendError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "limit must be a positive integer")
			return
		}
		limit = n
	}

	sessionID := r.PathValue("id")
	messages, err := s.memory.Retrieve(r.Context(), sessionID, memory.RetrieveOptions{Limit: limit})
	if err != nil {
		s.sendError(w, r, http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"messages":   messages,
	})
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}

// errorBody is the envelope of every error response.
type errorBody struct {
	RequestID string    `json:"request_id"`
	Error     errorInfo `json:"error"`
}

type errorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (s *Server) sendError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	s.sendJSON(w, status, errorBody{
		RequestID: RequestID(r.Context()),
		Error:     errorInfo{Code: code, Message: message},
	})
}
