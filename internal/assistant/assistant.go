// Package assistant answers questions about ingested sources by chaining the
// retriever and the answer generator. It is the single entry point used by
// `docqa ask` and POST /api/chat.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
)

// NoContextReply is returned, without calling the model, when retrieval finds
// nothing relevant in the selected sources.
const NoContextReply = "I couldn't find anything relevant to your question in the selected sources. " +
	"Try rephrasing the question or selecting different documents."

// Retriever builds a bounded context for a question.
type Retriever interface {
	Retrieve(ctx context.Context, req rag.Request) (*rag.Result, error)
}

// Answerer generates a reply from a question and its context.
type Answerer interface {
	Answer(ctx context.Context, question, contextText string) (string, error)
}

// Question is one request to the assistant.
type Question struct {
	// Text is the user's question.
	Text string

	// SourceIDs restricts retrieval to these sources. An empty set finds
	// nothing, so the reply is NoContextReply.
	SourceIDs []string

	// TopK and MaxContextUnits override the retriever defaults when positive.
	TopK            int
	MaxContextUnits int
}

// Reply is the assistant's answer and the chunks it was grounded on.
type Reply struct {
	// Response is the model's markdown answer, or NoContextReply.
	Response string `json:"response"`

	// Sources are the retrieved chunks used as context, best first.
	Sources []rag.RetrievedChunk `json:"sources"`

	// Grounded is false when no context was found and the model was skipped.
	Grounded bool `json:"grounded"`
}

// Assistant answers questions over ingested sources.
type Assistant struct {
	retriever Retriever
	answerer  Answerer

	// topK and maxContext fill zero Question limits. Zero defers to the
	// retriever defaults.
	topK       int
	maxContext int
}

// Option customises an Assistant.
type Option func(*Assistant)

// WithLimits sets the retrieval limits used when a Question leaves TopK or
// MaxContextUnits at zero.
func WithLimits(topK, maxContextUnits int) Option {
	return func(a *Assistant) {
		a.topK = max(topK, 0)
		a.maxContext = max(maxContextUnits, 0)
	}
}

// New constructs an Assistant.
func New(retriever Retriever, answerer Answerer, opts ...Option) (*Assistant, error) {
	if retriever == nil {
		return nil, fmt.Errorf("assistant: retriever must not be nil")
	}
	if answerer == nil {
		return nil, fmt.Errorf("assistant: answerer must not be nil")
	}
	a := &Assistant{retriever: retriever, answerer: answerer}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Context runs retrieval only and returns the packed context with its
// chunks. Callers that want to review or edit the context before asking the
// model use this together with Respond.
func (a *Assistant) Context(ctx context.Context, q Question) (*rag.Result, error) {
	req := rag.Request{
		Query:           q.Text,
		SourceIDs:       nonEmpty(q.SourceIDs),
		TopK:            q.TopK,
		MaxContextUnits: q.MaxContextUnits,
	}
	if req.TopK == 0 {
		req.TopK = a.topK
	}
	if req.MaxContextUnits == 0 {
		req.MaxContextUnits = a.maxContext
	}
	return a.retriever.Retrieve(ctx, req)
}

// Respond answers question from a caller-supplied context.
func (a *Assistant) Respond(ctx context.Context, question, contextText string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", rag.ErrEmptyQuery
	}
	if strings.TrimSpace(contextText) == "" {
		return NoContextReply, nil
	}
	return a.answerer.Answer(ctx, question, contextText)
}

// Ask retrieves context for q and answers it. An empty context short-circuits
// to NoContextReply.
func (a *Assistant) Ask(ctx context.Context, q Question) (*Reply, error) {
	res, err := a.Context(ctx, q)
	if err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx)
	if res.Context == "" {
		log.Info("assistant: no relevant context; skipping model",
			slog.Int("sources", len(q.SourceIDs)),
		)
		return &Reply{Response: NoContextReply, Sources: []rag.RetrievedChunk{}}, nil
	}

	response, err := a.answerer.Answer(ctx, q.Text, res.Context)
	if err != nil {
		return nil, err
	}
	log.Info("assistant: answered",
		slog.Int("sources", len(q.SourceIDs)),
		slog.Int("chunks", len(res.Chunks)),
		slog.Int("response_chars", len(response)),
	)
	return &Reply{Response: response, Sources: res.Chunks, Grounded: true}, nil
}

func nonEmpty(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
