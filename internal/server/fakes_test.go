package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/docqa-go/internal/assistant"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

// fakeAsker implements the asker interface for tests.
type fakeAsker struct {
	mu sync.Mutex
	// reply is returned by Ask.
	reply *assistant.Reply
	// result is returned by Context.
	result *rag.Result
	// response is returned by Respond.
	response string
	// err is returned by every method when set.
	err error
	// lastQuestion records the most recent Ask or Context argument.
	lastQuestion assistant.Question
	// lastContext records the most recent Respond context.
	lastContext string
}

func (f *fakeAsker) Ask(_ context.Context, q assistant.Question) (*assistant.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuestion = q
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

func (f *fakeAsker) Context(_ context.Context, q assistant.Question) (*rag.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuestion = q
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeAsker) Respond(_ context.Context, question, contextText string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuestion = assistant.Question{Text: question}
	f.lastContext = contextText
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

// fakeCatalog implements the catalog interface over an in-memory map.
type fakeCatalog struct {
	mu sync.Mutex
	// sources is keyed by source id.
	sources map[string]store.Source
	// requests records every Ingest call.
	requests []ingestion.Request
	// err is returned by Ingest when set.
	err error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{sources: make(map[string]store.Source)}
}

func (f *fakeCatalog) Ingest(_ context.Context, req ingestion.Request) (*ingestion.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	_, existed := f.sources[req.SourceID]
	src := store.Source{
		ID:         req.SourceID,
		Kind:       req.Kind,
		Title:      req.Title,
		ByteLength: int64(len(req.Content)),
		ChunkCount: len(strings.Fields(req.Content)),
		CreatedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	f.sources[req.SourceID] = src
	res := &ingestion.Result{Source: src}
	if existed {
		res.Replaced = 1
	}
	return res, nil
}

func (f *fakeCatalog) Delete(_ context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.sources[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	delete(f.sources, id)
	return src.ChunkCount, nil
}

func (f *fakeCatalog) Sources(_ context.Context) ([]store.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Source
	for _, src := range f.sources {
		out = append(out, src)
	}
	return out, nil
}

func (f *fakeCatalog) Source(_ context.Context, id string) (store.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	src, ok := f.sources[id]
	if !ok {
		return store.Source{}, store.ErrNotFound
	}
	return src, nil
}

func (f *fakeCatalog) lastRequest(t *testing.T) ingestion.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("catalog received no ingest request")
	}
	return f.requests[len(f.requests)-1]
}

// fakeFetcher returns a fixed extraction for any URL.
type fakeFetcher struct {
	text string
	err  error
}

func (f *fakeFetcher) Extract(_ context.Context, locator string) (*ingestion.Extracted, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ingestion.Extracted{Text: f.text, ContentType: "text/plain", ByteLength: int64(len(f.text)), Name: locator}, nil
}

// newTestServer builds a *Server with fakes and an isolated registry. The
// server's handler is the full route table, auth and rate limiting included.
func newTestServer(t *testing.T, a asker, c catalog, cfg *Config) (*Server, *prometheus.Registry) {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	reg := prometheus.NewRegistry()
	cfg.MetricsRegistry = reg
	cfg.MetricsGatherer = reg
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = 5 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 1000
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = 1000
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.Logger = log

	s := &Server{
		assistant: a,
		catalog:   c,
		cfg:       cfg,
		log:       log,
		pingers:   cfg.Pingers,
		metrics:   newServerMetrics(reg),
	}
	rl, err := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.RateClients, cfg.TrustProxy)
	if err != nil {
		t.Fatalf("newRateLimiter: %v", err)
	}
	s.httpServer = &http.Server{Handler: requestLogger(log, s.routes(rl))}
	return s, reg
}

// do sends a request through the server's full handler chain.
func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	return w
}

// decode unmarshals a recorder body into v.
func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
}
