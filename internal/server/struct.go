package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/assistant"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds a single chat or ingest request, including the
	// model call. Defaults to 2 minutes.
	ChatTimeout time.Duration
	// MaxBodyBytes caps request bodies. Defaults to 8 MiB.
	MaxBodyBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// RateClients bounds the number of per-IP buckets kept in memory.
	// Defaults to 4096.
	RateClients int
	// TrustProxy limits by the first X-Forwarded-For address instead of the
	// connection address. Enable only behind a reverse proxy that sets it.
	TrustProxy bool
	// APIKey is a comma-separated list of keys accepted on every /api route
	// except health and readiness. Empty disables the check.
	APIKey string
	// Fetcher resolves the url field of POST /api/sources. When nil, URL
	// ingestion is rejected and callers must send text.
	Fetcher Fetcher
	// MetricsRegistry receives the server collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// asker is the question-answering surface used by the chat handlers.
// *assistant.Assistant satisfies it; tests inject a fake.
type asker interface {
	Ask(ctx context.Context, q assistant.Question) (*assistant.Reply, error)
	Context(ctx context.Context, q assistant.Question) (*rag.Result, error)
	Respond(ctx context.Context, question, contextText string) (string, error)
}

// catalog is the ingestion surface used by the source handlers.
// *ingestion.Pipeline satisfies it.
type catalog interface {
	Ingest(ctx context.Context, req ingestion.Request) (*ingestion.Result, error)
	Delete(ctx context.Context, id string) (int, error)
	Sources(ctx context.Context) ([]store.Source, error)
	Source(ctx context.Context, id string) (store.Source, error)
}

// Fetcher extracts text from a URL. *ingestion.Extractor satisfies it.
type Fetcher interface {
	Extract(ctx context.Context, locator string) (*ingestion.Extracted, error)
}

// Server is the HTTP server that exposes ingestion and question answering.
type Server struct {
	// assistant answers chat requests.
	assistant asker
	// catalog ingests, lists and deletes sources.
	catalog catalog
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by the server.
	metrics *serverMetrics
}

// chatRequest is the JSON body for POST /api/chat and POST /api/chat/context.
type chatRequest struct {
	// Query is the user's question. Message is accepted as an alias.
	Query   string `json:"query"`
	Message string `json:"message"`
	// SourceIDs selects the sources to search.
	SourceIDs []string `json:"source_ids"`
	// TopK overrides the number of matches fetched.
	TopK int `json:"top_k,omitempty"`
	// MaxContext overrides the context budget in characters.
	MaxContext int `json:"max_context,omitempty"`
}

// question returns the query text, preferring Query over Message.
func (c chatRequest) question() string {
	if c.Query != "" {
		return c.Query
	}
	return c.Message
}

// contextResponse is the JSON response for POST /api/chat/context.
type contextResponse struct {
	// Context is the packed retrieval context.
	Context string `json:"context"`
	// Sources are the chunks that make up Context.
	Sources []rag.RetrievedChunk `json:"sources"`
}

// respondRequest is the JSON body for POST /api/chat/response.
type respondRequest struct {
	// Query is the user's question.
	Query string `json:"query"`
	// Context is the, possibly edited, context to answer from.
	Context string `json:"context"`
}

// respondResponse is the JSON response for POST /api/chat/response.
type respondResponse struct {
	Response string `json:"response"`
}

// ingestRequest is the JSON body for POST /api/sources. Exactly one of Text
// and URL must be set.
type ingestRequest struct {
	// SourceID names the source. Inferred from URL, or generated, when empty.
	SourceID string `json:"source_id"`
	// Kind is "document" or "video". Inferred from URL when empty.
	Kind string `json:"kind"`
	// Title is an optional display name.
	Title string `json:"title"`
	// Text is the raw content to ingest.
	Text string `json:"text"`
	// URL is fetched and extracted when Text is empty.
	URL string `json:"url"`
	// ChunkSize and Overlap override the chunking defaults.
	ChunkSize int `json:"chunk_size,omitempty"`
	Overlap   int `json:"overlap,omitempty"`
	// Summarize stores a model-written summary with the source.
	Summarize bool `json:"summarize,omitempty"`
}

// ingestResponse is the JSON response for POST /api/sources.
type ingestResponse struct {
	// Source is the catalog entry written.
	Source store.Source `json:"source"`
	// Dropped counts chunks removed as blanks or duplicates.
	Dropped int `json:"dropped"`
	// Replaced counts vectors of an earlier ingest of the same id that were
	// overwritten or removed.
	Replaced int `json:"replaced"`
}

// deleteResponse is the JSON response for DELETE /api/sources/{id}.
type deleteResponse struct {
	ID string `json:"id"`
	// Vectors is the number of vectors removed from the index.
	Vectors int `json:"vectors"`
}

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
}
