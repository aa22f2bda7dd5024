package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/54b3r/docqa-go/internal/logging"
)

// Retrieval defaults.
const (
	DefaultTopK            = 3
	DefaultMaxContextUnits = 4000
)

// contextSeparator joins chunk texts in the assembled context.
const contextSeparator = "\n\n"

// ErrEmptyQuery is returned when Retrieve is called with a blank query.
var ErrEmptyQuery = errors.New("rag: query must not be empty")

// Request describes one retrieval.
type Request struct {
	// Query is the question text to embed.
	Query string

	// SourceIDs restricts retrieval to these sources. Empty yields no context.
	SourceIDs []string

	// TopK is the number of matches to fetch. Zero selects DefaultTopK.
	TopK int

	// MaxContextUnits caps the context length in Unicode code points. Zero
	// selects DefaultMaxContextUnits. The best distinct chunk is always kept,
	// so a single oversized chunk may exceed the cap.
	MaxContextUnits int
}

// Result is the outcome of a retrieval.
type Result struct {
	// Context is the chunk texts joined by a blank line. It stays within
	// budget unless the best chunk alone exceeds it.
	Context string

	// Chunks are the chunks that made it into Context, in order.
	Chunks []RetrievedChunk
}

// Retriever turns a question into a bounded context string by embedding it,
// searching the selected sources and packing the best distinct chunks.
type Retriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// gateway runs the source-scoped similarity search.
	gateway *Gateway

	// metrics records retrieval outcomes. May be nil.
	metrics *Metrics
}

// NewRetriever constructs a Retriever. metrics may be nil.
func NewRetriever(embedder Embedder, gateway *Gateway, metrics *Metrics) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if gateway == nil {
		return nil, fmt.Errorf("rag: gateway must not be nil")
	}
	return &Retriever{embedder: embedder, gateway: gateway, metrics: metrics}, nil
}

// Retrieve embeds req.Query, fetches the top matches within req.SourceIDs and
// packs distinct chunk texts, best first, until the next one would push the
// context past MaxContextUnits. The best chunk is kept even when it alone is
// over budget. Zero matches yield an empty Result.
func (r *Retriever) Retrieve(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		r.metrics.retrieval("error")
		return nil, ErrEmptyQuery
	}
	if req.TopK <= 0 {
		req.TopK = DefaultTopK
	}
	if req.MaxContextUnits <= 0 {
		req.MaxContextUnits = DefaultMaxContextUnits
	}

	vectors, err := r.embedder.Embed(ctx, []string{req.Query})
	if err != nil {
		r.metrics.retrieval("error")
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(vectors) != 1 {
		r.metrics.retrieval("error")
		return nil, fmt.Errorf("rag: embedder returned %d vectors for one query", len(vectors))
	}

	matches, err := r.gateway.QueryBySource(ctx, vectors[0], req.SourceIDs, req.TopK)
	if err != nil {
		r.metrics.retrieval("error")
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	res := pack(matches, req.MaxContextUnits)

	outcome := "hit"
	if len(res.Chunks) == 0 {
		outcome = "empty"
	}
	r.metrics.retrieval(outcome)
	logging.FromContext(ctx).Debug("rag: retrieved context",
		slog.Int("matches", len(matches)),
		slog.Int("chunks", len(res.Chunks)),
		slog.Int("units", utf8.RuneCountInString(res.Context)),
	)
	return res, nil
}

// pack dedupes matches by exact text, keeping the first, and greedily joins
// them while the result stays within budget code points. The first distinct
// match is always admitted; after that, the first match that does not fit
// ends packing.
func pack(matches []Match, budget int) *Result {
	res := &Result{}
	seen := make(map[string]struct{}, len(matches))
	var b strings.Builder
	used := 0

	for _, m := range matches {
		text := m.Metadata.Text
		if _, dup := seen[text]; dup {
			continue
		}
		seen[text] = struct{}{}

		cost := utf8.RuneCountInString(text)
		if len(res.Chunks) > 0 {
			cost += utf8.RuneCountInString(contextSeparator)
		}
		if len(res.Chunks) > 0 && used+cost > budget {
			break
		}

		if len(res.Chunks) > 0 {
			b.WriteString(contextSeparator)
		}
		b.WriteString(text)
		used += cost
		res.Chunks = append(res.Chunks, RetrievedChunk{
			Text:       text,
			Score:      m.Score,
			SourceID:   m.Metadata.SourceID,
			ChunkIndex: m.Metadata.ChunkIndex,
		})
	}

	res.Context = b.String()
	return res
}
