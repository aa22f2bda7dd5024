package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/54b3r/docqa-go/internal/chunking"
	"github.com/54b3r/docqa-go/internal/ingestion"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/store"
)

// handleIngest handles POST /api/sources. The body carries either raw text
// or a URL to fetch; missing id, kind and title are inferred from the URL.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	hasText := strings.TrimSpace(req.Text) != ""
	hasURL := strings.TrimSpace(req.URL) != ""
	switch {
	case hasText == hasURL:
		writeError(w, r, http.StatusBadRequest, "exactly one of text and url is required")
		return
	case hasURL && s.cfg.Fetcher == nil:
		writeError(w, r, http.StatusBadRequest, "url ingestion is disabled; send text instead")
		return
	case hasURL && !isHTTPURL(req.URL):
		writeError(w, r, http.StatusBadRequest, "url must be an absolute http or https URL")
		return
	case req.ChunkSize < 0 || req.Overlap < 0:
		writeError(w, r, http.StatusBadRequest, "chunk_size and overlap must not be negative")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()

	content := req.Text
	if hasURL {
		inferred := ingestion.InferSource(req.URL)
		if req.SourceID == "" {
			req.SourceID = inferred.SourceID
		}
		if req.Kind == "" {
			req.Kind = string(inferred.Kind)
		}
		if req.Title == "" {
			req.Title = inferred.Title
		}

		extracted, err := s.cfg.Fetcher.Extract(ctx, req.URL)
		if err != nil {
			if errors.Is(err, ingestion.ErrForbiddenAddress) {
				logging.FromContext(r.Context()).Warn("fetch refused",
					slog.String("url", req.URL),
					slog.Any("error", err),
				)
				writeError(w, r, http.StatusBadRequest, "url must resolve to a public address")
				return
			}
			if statusFor(err) == http.StatusInternalServerError {
				logging.FromContext(r.Context()).Warn("fetch failed",
					slog.String("url", req.URL),
					slog.Any("error", err),
				)
				writeError(w, r, http.StatusBadGateway, "could not fetch url")
				return
			}
			writeFailure(w, r, "fetch", err)
			return
		}
		content = extracted.Text
	}
	if strings.TrimSpace(req.SourceID) == "" {
		req.SourceID = uuid.NewString()
	}

	res, err := s.catalog.Ingest(ctx, ingestion.Request{
		SourceID:  req.SourceID,
		Kind:      store.Kind(req.Kind),
		Title:     req.Title,
		Content:   content,
		Chunking:  chunking.Override(req.ChunkSize, req.Overlap),
		Summarize: req.Summarize,
	})
	if err != nil {
		writeFailure(w, r, "ingest", err)
		return
	}

	logging.FromContext(r.Context()).Info("source ingested",
		slog.String("source_id", res.Source.ID),
		slog.Int("chunks", res.Source.ChunkCount),
		slog.Int("replaced", res.Replaced),
	)
	writeJSON(w, r, http.StatusCreated, ingestResponse{
		Source:   res.Source,
		Dropped:  res.Dropped,
		Replaced: res.Replaced,
	})
}

// handleListSources handles GET /api/sources.
func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.catalog.Sources(r.Context())
	if err != nil {
		writeFailure(w, r, "list sources", err)
		return
	}
	if sources == nil {
		sources = []store.Source{}
	}
	writeJSON(w, r, http.StatusOK, sources)
}

// handleGetSource handles GET /api/sources/{id}.
func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	src, err := s.catalog.Source(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, r, "get source", err)
		return
	}
	writeJSON(w, r, http.StatusOK, src)
}

// handleDeleteSource handles DELETE /api/sources/{id}. It removes the
// source's vectors and its catalog entry.
func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	n, err := s.catalog.Delete(r.Context(), id)
	if err != nil {
		writeFailure(w, r, "delete source", err)
		return
	}
	logging.FromContext(r.Context()).Info("source deleted",
		slog.String("source_id", id),
		slog.Int("vectors", n),
	)
	writeJSON(w, r, http.StatusOK, deleteResponse{ID: id, Vectors: n})
}

// isHTTPURL reports whether raw is an absolute http(s) URL. The fetcher also
// reads local paths, which must never be reachable over the API.
func isHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
