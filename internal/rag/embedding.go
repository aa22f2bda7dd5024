package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/docqa-go/internal/logging"
)

// DefaultEmbedBatchSize is the number of texts sent per provider call.
const DefaultEmbedBatchSize = 100

// BatchEmbedder splits large embedding requests into provider-sized batches.
// Batches are issued sequentially and their results concatenated in input
// order. Provider failures are returned wrapped and are never retried.
type BatchEmbedder struct {
	// provider performs the actual embedding calls.
	provider Embedder

	// batchSize is the maximum number of texts per provider call.
	batchSize int

	// metrics records per-batch outcomes. May be nil.
	metrics *Metrics
}

// NewBatchEmbedder wraps provider. A batchSize of zero or less selects
// DefaultEmbedBatchSize. metrics may be nil.
func NewBatchEmbedder(provider Embedder, batchSize int, metrics *Metrics) (*BatchEmbedder, error) {
	if provider == nil {
		return nil, fmt.Errorf("rag: embedding provider must not be nil")
	}
	if batchSize <= 0 {
		batchSize = DefaultEmbedBatchSize
	}
	return &BatchEmbedder{provider: provider, batchSize: batchSize, metrics: metrics}, nil
}

// Embed returns one vector per text, in order. An empty input returns an
// empty result without calling the provider.
func (b *BatchEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	log := logging.FromContext(ctx)
	out := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += b.batchSize {
		end := min(start+b.batchSize, len(texts))
		batch := texts[start:end]

		vectors, err := b.provider.Embed(ctx, batch)
		if err != nil {
			b.metrics.embedBatch("error")
			return nil, fmt.Errorf("rag: embed batch [%d:%d]: %w", start, end, err)
		}
		if len(vectors) != len(batch) {
			b.metrics.embedBatch("error")
			return nil, fmt.Errorf("rag: embed batch [%d:%d]: provider returned %d vectors for %d texts",
				start, end, len(vectors), len(batch))
		}
		b.metrics.embedBatch("ok")

		log.Debug("rag: embedded batch",
			slog.Int("start", start),
			slog.Int("size", len(batch)),
		)
		out = append(out, vectors...)
	}

	return out, nil
}
