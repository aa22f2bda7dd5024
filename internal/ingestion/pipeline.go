// Package ingestion implements the source ingestion pipeline. It takes the
// extracted text of a document or video transcript, normalizes and chunks
// it, embeds the surviving chunks, upserts them into the vector index and
// records the source in the catalog. It is invoked by `docqa ingest` and by
// POST /api/sources.
package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/54b3r/docqa-go/internal/chunking"
	"github.com/54b3r/docqa-go/internal/logging"
	"github.com/54b3r/docqa-go/internal/rag"
	"github.com/54b3r/docqa-go/internal/store"
)

// ErrInvalidRequest is returned when an ingest request is missing required
// fields.
var ErrInvalidRequest = errors.New("ingestion: invalid request")

// Summarizer produces a short summary of a transcript or document.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Request describes one source to ingest.
type Request struct {
	// SourceID identifies the source. Chunk ids are derived from it.
	SourceID string

	// Kind is document or video. Defaults to document.
	Kind store.Kind

	// Title is an optional display name stored in the catalog.
	Title string

	// Content is the extracted raw text.
	Content string

	// Chunking overrides the pipeline's chunk sizing for this source. A zero
	// value uses the pipeline default.
	Chunking chunking.Config

	// Summarize asks the pipeline to store a model-written summary with the
	// source. Ignored when the pipeline has no Summarizer.
	Summarize bool
}

// Result reports what an ingest stored.
type Result struct {
	// Source is the catalog entry written for the request.
	Source store.Source

	// Dropped is the number of chunks removed as blanks or duplicates.
	Dropped int

	// Replaced is the number of vectors of an earlier ingest of the same
	// source id that were overwritten or removed.
	Replaced int
}

// Config holds the optional collaborators and defaults of a Pipeline.
type Config struct {
	// Chunking is the default chunk sizing. Zero means 512/50 words.
	Chunking chunking.Config

	// Summarizer writes source summaries on request. Optional.
	Summarizer Summarizer

	// Metrics records ingestion counters. Optional.
	Metrics *Metrics
}

// Pipeline orchestrates the normalize → chunk → dedupe → embed → upsert
// flow for a single source and keeps the catalog in step with the index.
type Pipeline struct {
	// embedder converts chunk texts into vectors, already batched.
	embedder rag.Embedder

	// gateway writes and deletes vectors.
	gateway *rag.Gateway

	// catalog records ingested sources.
	catalog store.SourceStore

	// cfg holds the resolved pipeline configuration.
	cfg Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, gateway *rag.Gateway, catalog store.SourceStore, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if gateway == nil {
		return nil, fmt.Errorf("ingestion: gateway must not be nil")
	}
	if catalog == nil {
		return nil, fmt.Errorf("ingestion: catalog must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	resolved := *cfg
	if resolved.Chunking == (chunking.Config{}) {
		resolved.Chunking = chunking.DefaultConfig()
	}
	if err := resolved.Chunking.Validate(); err != nil {
		return nil, err
	}

	return &Pipeline{
		embedder: embedder,
		gateway:  gateway,
		catalog:  catalog,
		cfg:      resolved,
	}, nil
}

// Ingest chunks, embeds and stores req. Every request field is validated
// before any external call. Chunk ids are assigned after dedupe so they are
// dense. A source that yields no chunks is still recorded in the catalog,
// without calling the embedder or upserting. Re-ingesting an id writes the
// new vectors first and only then prunes the ones the new content no longer
// produces, so a failed re-ingest leaves the earlier vectors and catalog
// entry in place.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	res, err := p.ingest(ctx, req)
	if err != nil {
		p.cfg.Metrics.ingested("error", started)
		return nil, err
	}
	p.cfg.Metrics.ingested("ok", started)
	return res, nil
}

func (p *Pipeline) ingest(ctx context.Context, req Request) (*Result, error) {
	log := logging.FromContext(ctx)

	req.SourceID = strings.TrimSpace(req.SourceID)
	if req.SourceID == "" {
		return nil, fmt.Errorf("%w: source id must not be empty", ErrInvalidRequest)
	}
	if req.Kind == "" {
		req.Kind = store.KindDocument
	}
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, req.Kind)
	}
	chunkCfg := req.Chunking
	if chunkCfg == (chunking.Config{}) {
		chunkCfg = p.cfg.Chunking
	}
	chunker, err := chunking.NewChunker(chunkCfg)
	if err != nil {
		return nil, err
	}

	src := rag.SourceText{SourceID: req.SourceID, Content: req.Content}
	candidates := chunker.Split(chunking.Normalize(src.Content))
	texts := chunking.Dedupe(candidates)
	dropped := len(candidates) - len(texts)

	log.Info("ingestion: chunked source",
		slog.String("source_id", src.SourceID),
		slog.Int("bytes", src.ByteLength()),
		slog.Int("chunks", len(texts)),
		slog.Int("dropped", dropped),
		slog.Int("chunk_size", chunkCfg.ChunkSize),
		slog.Int("overlap", chunkCfg.OverlapSize),
	)

	// Summarize before touching the index so a model failure leaves no
	// partial state behind.
	var summary string
	if req.Summarize && p.cfg.Summarizer != nil && len(texts) > 0 {
		summary, err = p.cfg.Summarizer.Summarize(ctx, chunking.Normalize(src.Content))
		if err != nil {
			return nil, fmt.Errorf("ingestion: summarize %s: %w", src.SourceID, err)
		}
	}

	previous, err := p.previousChunkCount(ctx, src.SourceID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(texts))
	if len(texts) > 0 {
		chunks := make([]rag.Chunk, len(texts))
		for i, text := range texts {
			chunks[i] = rag.Chunk{SourceID: src.SourceID, Index: i, Content: text}
			ids[i] = chunks[i].ID()
		}

		vectors, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("ingestion: embedding failed for %s: %w", src.SourceID, err)
		}
		if len(vectors) != len(chunks) {
			return nil, fmt.Errorf("ingestion: embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
		}

		records := make([]rag.VectorRecord, len(chunks))
		for i, c := range chunks {
			records[i] = rag.VectorRecord{
				ID:     ids[i],
				Values: vectors[i],
				Metadata: rag.Metadata{
					Text:       c.Content,
					SourceID:   c.SourceID,
					ChunkIndex: c.Index,
				},
			}
		}
		if err := p.gateway.Upsert(ctx, records); err != nil {
			return nil, fmt.Errorf("ingestion: upsert failed for %s: %w", src.SourceID, err)
		}
	}

	// Whatever else the source still holds is from an earlier, longer ingest
	// or from a write that never reached the catalog.
	pruned, err := p.gateway.PruneSource(ctx, src.SourceID, ids)
	if err != nil {
		return nil, fmt.Errorf("ingestion: removing stale vectors of %s: %w", src.SourceID, err)
	}
	replaced := min(previous, len(texts)) + pruned

	entry := store.Source{
		ID:         src.SourceID,
		Kind:       req.Kind,
		Title:      strings.TrimSpace(req.Title),
		Summary:    summary,
		ByteLength: int64(src.ByteLength()),
		ChunkCount: len(texts),
	}
	if err := p.catalog.Put(ctx, entry); err != nil {
		return nil, fmt.Errorf("ingestion: recording %s: %w", src.SourceID, err)
	}
	stored, err := p.catalog.Get(ctx, src.SourceID)
	if err != nil {
		return nil, fmt.Errorf("ingestion: reading back %s: %w", src.SourceID, err)
	}

	p.cfg.Metrics.chunks(len(texts), dropped)
	log.Info("ingestion: stored source",
		slog.String("source_id", src.SourceID),
		slog.String("kind", string(req.Kind)),
		slog.Int("chunks", len(texts)),
		slog.Int("replaced", replaced),
	)

	return &Result{Source: stored, Dropped: dropped, Replaced: replaced}, nil
}

// previousChunkCount returns the chunk count the catalog recorded for an
// earlier ingest of id, or 0 when there was none.
func (p *Pipeline) previousChunkCount(ctx context.Context, id string) (int, error) {
	prev, err := p.catalog.Get(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("ingestion: looking up %s: %w", id, err)
	}
	return prev.ChunkCount, nil
}

// Delete removes every vector of the source and its catalog entry. It
// returns store.ErrNotFound only when neither the index nor the catalog held
// anything for id.
func (p *Pipeline) Delete(ctx context.Context, id string) (int, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, fmt.Errorf("%w: source id must not be empty", ErrInvalidRequest)
	}

	n, err := p.gateway.DeleteBySource(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("ingestion: deleting vectors of %s: %w", id, err)
	}

	err = p.catalog.Delete(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if n == 0 {
			return 0, err
		}
	case err != nil:
		return n, fmt.Errorf("ingestion: deleting catalog entry %s: %w", id, err)
	}

	p.cfg.Metrics.sourceDeleted()
	logging.FromContext(ctx).Info("ingestion: deleted source",
		slog.String("source_id", id),
		slog.Int("vectors", n),
	)
	return n, nil
}

// Sources lists the catalog, newest first.
func (p *Pipeline) Sources(ctx context.Context) ([]store.Source, error) {
	return p.catalog.List(ctx)
}

// Source returns the catalog entry for id.
func (p *Pipeline) Source(ctx context.Context, id string) (store.Source, error) {
	return p.catalog.Get(ctx, id)
}

// ChunkingFromEnv reads DOCQA_CHUNK_SIZE and DOCQA_CHUNK_OVERLAP. Unset,
// unparsable and non-positive values count as missing and are filled the way
// chunking.Override fills a half-specified override, so a small size alone
// gets an overlap below it. The zero Config means the 512/50 defaults.
func ChunkingFromEnv() chunking.Config {
	return chunking.Override(positiveEnv("DOCQA_CHUNK_SIZE"), positiveEnv("DOCQA_CHUNK_OVERLAP"))
}

// positiveEnv parses key as a positive integer, returning 0 otherwise.
func positiveEnv(key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
