package rag

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/docqa-go/internal/logging"
)

// Gateway defaults.
const (
	DefaultUpsertBatchSize = 100
	DefaultDeleteBatchSize = 100
	DefaultDeleteTopK      = 10000
	DefaultBatchInterval   = time.Second
	DefaultDimensions      = 1536
)

// GatewayConfig tunes how the Gateway talks to its VectorIndex.
type GatewayConfig struct {
	// UpsertBatchSize is the number of records written per index call.
	UpsertBatchSize int

	// DeleteBatchSize is the number of ids removed per index call.
	DeleteBatchSize int

	// BatchInterval is the minimum spacing between consecutive batch calls.
	// Zero disables pacing.
	BatchInterval time.Duration

	// DeleteTopK caps how many records a source delete can enumerate.
	DeleteTopK int

	// Dimensions is the embedding vector length, used to build the zero
	// vector for enumeration queries.
	Dimensions int

	// PreferNativeDelete routes DeleteBySource through FilterDeleter when the
	// index supports it.
	PreferNativeDelete bool
}

// DefaultGatewayConfig returns the stock gateway tuning.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		UpsertBatchSize:    DefaultUpsertBatchSize,
		DeleteBatchSize:    DefaultDeleteBatchSize,
		BatchInterval:      DefaultBatchInterval,
		DeleteTopK:         DefaultDeleteTopK,
		Dimensions:         DefaultDimensions,
		PreferNativeDelete: true,
	}
}

// Gateway wraps a VectorIndex with batching, pacing and source-scoped
// operations. It is safe for concurrent use; all callers share one pacing
// limiter.
type Gateway struct {
	// index is the underlying vector store.
	index VectorIndex

	// cfg is the resolved configuration.
	cfg GatewayConfig

	// limiter spaces consecutive batch calls by cfg.BatchInterval.
	limiter *rate.Limiter

	// metrics records writes and deletes. May be nil.
	metrics *Metrics
}

// NewGateway constructs a Gateway over index. Non-positive sizes in cfg are
// replaced by their defaults; a zero BatchInterval disables pacing.
func NewGateway(index VectorIndex, cfg GatewayConfig, metrics *Metrics) (*Gateway, error) {
	if index == nil {
		return nil, fmt.Errorf("rag: vector index must not be nil")
	}
	if cfg.UpsertBatchSize <= 0 {
		cfg.UpsertBatchSize = DefaultUpsertBatchSize
	}
	if cfg.DeleteBatchSize <= 0 {
		cfg.DeleteBatchSize = DefaultDeleteBatchSize
	}
	if cfg.DeleteTopK <= 0 {
		cfg.DeleteTopK = DefaultDeleteTopK
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.BatchInterval < 0 {
		return nil, fmt.Errorf("rag: batch interval must not be negative, got %s", cfg.BatchInterval)
	}

	limit := rate.Inf
	if cfg.BatchInterval > 0 {
		limit = rate.Every(cfg.BatchInterval)
	}

	return &Gateway{
		index:   index,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		metrics: metrics,
	}, nil
}

// Index returns the wrapped VectorIndex.
func (g *Gateway) Index() VectorIndex { return g.index }

// Upsert writes records in batches, waiting BatchInterval between batches.
// Records with the same id replace each other, so re-running an upsert is
// safe.
func (g *Gateway) Upsert(ctx context.Context, records []VectorRecord) error {
	log := logging.FromContext(ctx)

	for start := 0; start < len(records); start += g.cfg.UpsertBatchSize {
		end := min(start+g.cfg.UpsertBatchSize, len(records))

		if err := g.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rag: upsert pacing: %w", err)
		}
		if err := g.index.Upsert(ctx, records[start:end]); err != nil {
			return fmt.Errorf("rag: upsert batch [%d:%d]: %w", start, end, err)
		}
		g.metrics.upserted(end - start)

		log.Debug("rag: upserted batch",
			slog.Int("start", start),
			slog.Int("size", end-start),
			slog.Int("total", len(records)),
		)
	}
	return nil
}

// QueryBySource returns up to topK matches restricted to sourceIDs, ordered
// by descending score with the provider order breaking ties. An empty
// sourceIDs yields no matches without contacting the index.
func (g *Gateway) QueryBySource(ctx context.Context, vector []float32, sourceIDs []string, topK int) ([]Match, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		return nil, fmt.Errorf("rag: topK must be positive, got %d", topK)
	}

	matches, err := g.index.Query(ctx, vector, Filter{SourceIDs: sourceIDs}, topK)
	if err != nil {
		return nil, fmt.Errorf("rag: query: %w", err)
	}

	kept := make([]Match, 0, len(matches))
	for _, m := range matches {
		if slices.Contains(sourceIDs, m.Metadata.SourceID) {
			kept = append(kept, m)
		}
	}
	if dropped := len(matches) - len(kept); dropped > 0 {
		logging.FromContext(ctx).Warn("rag: index returned matches outside the source filter",
			slog.Int("dropped", dropped),
		)
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	if len(kept) > topK {
		kept = kept[:topK]
	}
	return kept, nil
}

// DeleteBySource removes every record of sourceID and reports how many were
// removed. Indexes with native filtered delete are used directly when
// PreferNativeDelete is set. Otherwise ids are enumerated and deleted in
// paced batches: through IDLister when the index has it, or as a last resort
// with a zero-vector query capped at DeleteTopK. Zero-vector scores are
// undefined under cosine distance, and reaching the cap means some records
// may survive, which is logged and counted.
func (g *Gateway) DeleteBySource(ctx context.Context, sourceID string) (int, error) {
	if sourceID == "" {
		return 0, fmt.Errorf("rag: delete: source id must not be empty")
	}
	log := logging.FromContext(ctx).With(slog.String("source_id", sourceID))
	filter := Filter{SourceIDs: []string{sourceID}}

	if fd, ok := g.index.(FilterDeleter); ok && g.cfg.PreferNativeDelete {
		if err := g.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("rag: delete pacing: %w", err)
		}
		n, err := fd.DeleteByFilter(ctx, filter)
		if err != nil {
			return 0, fmt.Errorf("rag: delete by filter: %w", err)
		}
		g.metrics.deleted(n)
		log.Info("rag: deleted source vectors", slog.Int("count", n), slog.Bool("native", true))
		return n, nil
	}

	ids, err := g.enumerate(ctx, sourceID)
	if err != nil {
		return 0, err
	}
	n, err := g.DeleteIDs(ctx, ids)
	if err != nil {
		return n, err
	}

	log.Info("rag: deleted source vectors", slog.Int("count", n), slog.Bool("native", false))
	return n, nil
}

// DeleteIDs removes the records with the given ids in paced batches of
// DeleteBatchSize. Unknown ids are ignored by the index. On error it reports
// how many ids were sent in the batches that succeeded.
func (g *Gateway) DeleteIDs(ctx context.Context, ids []string) (int, error) {
	for start := 0; start < len(ids); start += g.cfg.DeleteBatchSize {
		end := min(start+g.cfg.DeleteBatchSize, len(ids))
		if err := g.limiter.Wait(ctx); err != nil {
			return start, fmt.Errorf("rag: delete pacing: %w", err)
		}
		if err := g.index.DeleteMany(ctx, ids[start:end]); err != nil {
			return start, fmt.Errorf("rag: delete batch [%d:%d]: %w", start, end, err)
		}
		g.metrics.deleted(end - start)
	}
	return len(ids), nil
}

// PruneSource deletes every record of sourceID whose id is not in keep and
// reports how many were removed. It enumerates the same way DeleteBySource
// does without native delete.
func (g *Gateway) PruneSource(ctx context.Context, sourceID string, keep []string) (int, error) {
	if sourceID == "" {
		return 0, fmt.Errorf("rag: prune: source id must not be empty")
	}
	ids, err := g.enumerate(ctx, sourceID)
	if err != nil {
		return 0, err
	}

	kept := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		kept[id] = struct{}{}
	}
	stale := slices.DeleteFunc(ids, func(id string) bool {
		_, ok := kept[id]
		return ok
	})
	if len(stale) == 0 {
		return 0, nil
	}

	n, err := g.DeleteIDs(ctx, stale)
	if err != nil {
		return n, err
	}
	logging.FromContext(ctx).Info("rag: pruned stale source vectors",
		slog.String("source_id", sourceID),
		slog.Int("count", n),
	)
	return n, nil
}

// enumerate lists the record ids of sourceID for an id-based delete.
func (g *Gateway) enumerate(ctx context.Context, sourceID string) ([]string, error) {
	filter := Filter{SourceIDs: []string{sourceID}}

	if lister, ok := g.index.(IDLister); ok {
		ids, err := lister.ListIDs(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("rag: delete enumeration: %w", err)
		}
		return ids, nil
	}

	matches, err := g.index.Query(ctx, make([]float32, g.cfg.Dimensions), filter, g.cfg.DeleteTopK)
	if err != nil {
		return nil, fmt.Errorf("rag: delete enumeration: %w", err)
	}
	if len(matches) >= g.cfg.DeleteTopK {
		g.metrics.partialDeleteRisk()
		logging.FromContext(ctx).Warn("rag: partial delete risk: enumeration reached the top-k cap",
			slog.String("source_id", sourceID),
			slog.Int("top_k", g.cfg.DeleteTopK),
		)
	}

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		if m.Metadata.SourceID == sourceID {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

// Close closes the wrapped index.
func (g *Gateway) Close() error {
	return g.index.Close()
}
