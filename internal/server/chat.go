package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/assistant"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

// handleChat handles POST /api/chat. It retrieves context from the selected
// sources and answers the query in one round trip.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	q, ok := s.decodeQuestion(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()

	s.metrics.chatInFlight.Inc()
	defer s.metrics.chatInFlight.Dec()

	start := time.Now()
	reply, err := s.assistant.Ask(ctx, q)
	s.metrics.observeChat(chatOutcome(reply, err), time.Since(start))
	if err != nil {
		writeFailure(w, r, "chat", err)
		return
	}

	logging.FromContext(r.Context()).Info("chat answered",
		slog.Int("sources", len(q.SourceIDs)),
		slog.Int("chunks", len(reply.Sources)),
		slog.Bool("grounded", reply.Grounded),
	)
	writeJSON(w, r, http.StatusOK, reply)
}

// handleChatContext handles POST /api/chat/context. It runs retrieval only
// so the caller can review the context before asking for a response.
func (s *Server) handleChatContext(w http.ResponseWriter, r *http.Request) {
	q, ok := s.decodeQuestion(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()

	res, err := s.assistant.Context(ctx, q)
	if err != nil {
		writeFailure(w, r, "chat context", err)
		return
	}
	sources := res.Chunks
	if sources == nil {
		sources = []rag.RetrievedChunk{}
	}
	writeJSON(w, r, http.StatusOK, contextResponse{Context: res.Context, Sources: sources})
}

// handleChatResponse handles POST /api/chat/response. It answers the query
// from a caller-supplied context, typically one returned by
// /api/chat/context.
func (s *Server) handleChatResponse(w http.ResponseWriter, r *http.Request) {
	var req respondRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, r, http.StatusBadRequest, "query is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()

	s.metrics.chatInFlight.Inc()
	defer s.metrics.chatInFlight.Dec()

	start := time.Now()
	response, err := s.assistant.Respond(ctx, req.Query, req.Context)
	outcome := "ok"
	if err != nil {
		outcome = errorOutcome(err)
	} else if response == assistant.NoContextReply {
		outcome = "no_context"
	}
	s.metrics.observeChat(outcome, time.Since(start))
	if err != nil {
		writeFailure(w, r, "chat response", err)
		return
	}
	writeJSON(w, r, http.StatusOK, respondResponse{Response: response})
}

// decodeQuestion parses a chatRequest and writes a 400 when it is invalid.
func (s *Server) decodeQuestion(w http.ResponseWriter, r *http.Request) (assistant.Question, bool) {
	var req chatRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return assistant.Question{}, false
	}
	text := req.question()
	if strings.TrimSpace(text) == "" {
		writeError(w, r, http.StatusBadRequest, "query is required")
		return assistant.Question{}, false
	}
	if req.TopK < 0 || req.MaxContext < 0 {
		writeError(w, r, http.StatusBadRequest, "top_k and max_context must not be negative")
		return assistant.Question{}, false
	}
	return assistant.Question{
		Text:            text,
		SourceIDs:       req.SourceIDs,
		TopK:            req.TopK,
		MaxContextUnits: req.MaxContext,
	}, true
}

// writeDecodeError reports a malformed or oversized request body.
func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(w, r, http.StatusBadRequest, "invalid request body")
}

// chatOutcome labels a completed chat for the chat metrics.
func chatOutcome(reply *assistant.Reply, err error) string {
	if err != nil {
		return errorOutcome(err)
	}
	if !reply.Grounded {
		return "no_context"
	}
	return "ok"
}

func errorOutcome(err error) string {
	switch statusFor(err) {
	case http.StatusGatewayTimeout:
		return "timeout"
	case http.StatusServiceUnavailable:
		return "unavailable"
	case http.StatusBadRequest:
		return "invalid"
	default:
		return "error"
	}
}
