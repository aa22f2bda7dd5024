// Package server implements the HTTP API that exposes docqa ingestion and
// question answering as JSON endpoints.
// The server is started by the `docqa serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/docqa-go/internal/answer"
	"github.com/54b3r/docqa-go/internal/assistant"
	"github.com/54b3r/docqa-go/internal/chunking"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

// defaultMaxBodyBytes caps request bodies when Config.MaxBodyBytes is zero.
const defaultMaxBodyBytes = 8 << 20

// New constructs a Server from the assistant, the ingestion pipeline and config.
func New(asst *assistant.Assistant, pipeline *ingestion.Pipeline, cfg *Config) (*Server, error) {
	if asst == nil {
		return nil, fmt.Errorf("server: assistant must not be nil")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("server: ingestion pipeline must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Must outlast ChatTimeout so slow model replies are still delivered.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = 2 * time.Minute
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		assistant: asst,
		catalog:   pipeline,
		cfg:       cfg,
		log:       cfg.Logger,
		pingers:   cfg.Pingers,
		metrics:   newServerMetrics(cfg.MetricsRegistry),
	}

	if len(keyDigests(cfg.APIKey)) == 0 {
		cfg.Logger.Warn("server: DOCQA_API_KEY is not set; API authentication is disabled")
	}

	rl, err := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.RateClients, cfg.TrustProxy)
	if err != nil {
		return nil, err
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(cfg.Logger, s.routes(rl)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// routes builds the request multiplexer. Health, readiness and metrics stay
// open; every other /api route requires the API key, and the expensive ones
// are rate limited per client IP.
func (s *Server) routes(rl *rateLimiter) http.Handler {
	mux := http.NewServeMux()

	open := func(pattern, name string, h http.HandlerFunc) {
		mux.Handle(pattern, s.metrics.instrument(name, h))
	}
	protected := func(pattern, name string, h http.HandlerFunc) {
		mux.Handle(pattern, s.metrics.instrument(name, authMiddleware(s.cfg.APIKey, h)))
	}
	limited := func(pattern, name string, h http.HandlerFunc) {
		mux.Handle(pattern, s.metrics.instrument(name, authMiddleware(s.cfg.APIKey, rl.middleware(h))))
	}

	limited("POST /api/chat", "chat", s.handleChat)
	limited("POST /api/chat/context", "chat_context", s.handleChatContext)
	limited("POST /api/chat/response", "chat_response", s.handleChatResponse)
	limited("POST /api/sources", "ingest", s.handleIngest)
	protected("GET /api/sources", "sources", s.handleListSources)
	protected("GET /api/sources/{id}", "source", s.handleGetSource)
	protected("DELETE /api/sources/{id}", "delete_source", s.handleDeleteSource)
	open("GET /api/health", "health", s.handleHealth)
	open("GET /api/ready", "ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	return mux
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("docqa server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.log.Info("docqa server stopped")
		return nil
	}
}

// decodeJSON reads a size-limited JSON body into v.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	limit := s.cfg.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("response encode error", slog.Any("error", err))
	}
}

// writeError sends a JSON error body.
func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg})
}

// writeFailure maps a handler error to a status code and logs server-side
// failures. Client errors carry their message; server errors do not.
func writeFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	log := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error(op+" failed", slog.Any("error", err))
		writeError(w, r, status, http.StatusText(status))
		return
	}
	log.Info(op+" rejected", slog.Int("status", status), slog.Any("error", err))
	writeError(w, r, status, err.Error())
}

// statusFor returns the HTTP status for err.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, rag.ErrEmptyQuery),
		errors.Is(err, ingestion.ErrInvalidRequest),
		errors.Is(err, ingestion.ErrForbiddenAddress),
		errors.Is(err, chunking.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, ingestion.ErrUnsupportedContent):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, answer.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
