package rag

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// scrollPageSize is the number of points fetched per Scroll call.
const scrollPageSize = 256

// Payload keys written with every Qdrant point.
const (
	payloadRecordID   = "record_id"
	payloadText       = "text"
	payloadSourceID   = "source_id"
	payloadChunkIndex = "chunk_index"
)

// pointNamespace seeds the name-based UUIDs used as Qdrant point ids. Qdrant
// only accepts UUIDs or unsigned integers, so "<sourceId>-<index>" is hashed
// into a stable UUID and kept verbatim in the payload.
var pointNamespace = uuid.MustParse("6f1d8a52-3c1e-4b7a-9d0e-5a2c7b9e4f10")

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantIndex implements VectorIndex, FilterDeleter and IDLister on a Qdrant
// collection.
type QdrantIndex struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this index.
	cfg *QdrantConfig
}

// NewQdrantIndex connects to Qdrant, creates the collection and its
// source_id payload index when missing, and returns a ready index.
func NewQdrantIndex(ctx context.Context, cfg *QdrantConfig) (*QdrantIndex, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant: collection name must not be empty")
	}
	if cfg.VectorSize == 0 {
		return nil, fmt.Errorf("qdrant: vector size must be positive")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	idx := &QdrantIndex{client: client, cfg: cfg}
	if err := idx.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return idx, nil
}

// ensureCollection creates the collection and the keyword index on
// source_id if the collection does not already exist.
func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", q.cfg.Collection, err)
	}

	_, err = q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: q.cfg.Collection,
		FieldName:      payloadSourceID,
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to index %s on %q: %w", payloadSourceID, q.cfg.Collection, err)
	}
	return nil
}

// PointID maps a record id onto the UUID used as its Qdrant point id.
func PointID(recordID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(recordID)).String()
}

// Upsert writes records as points, waiting for the write to be applied.
func (q *QdrantIndex) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(r.ID)),
			Vectors: qdrant.NewVectors(r.Values...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadRecordID:   r.ID,
				payloadText:       r.Metadata.Text,
				payloadSourceID:   r.Metadata.SourceID,
				payloadChunkIndex: int64(r.Metadata.ChunkIndex),
			}),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}
	return nil
}

// Query runs a similarity search restricted to filter.
func (q *QdrantIndex) Query(ctx context.Context, vector []float32, filter Filter, topK int) ([]Match, error) {
	limit := uint64(topK)
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.cfg.Collection,
		Query:          qdrant.NewQuery(vector...),
		Filter:         sourceFilter(filter),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	matches := make([]Match, 0, len(results))
	for _, r := range results {
		m := Match{Score: r.GetScore()}
		if p := r.GetPayload(); p != nil {
			m.ID = p[payloadRecordID].GetStringValue()
			m.Metadata = Metadata{
				Text:       p[payloadText].GetStringValue(),
				SourceID:   p[payloadSourceID].GetStringValue(),
				ChunkIndex: int(p[payloadChunkIndex].GetIntegerValue()),
			}
		}
		if m.ID == "" {
			m.ID = r.GetId().GetUuid()
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// DeleteMany removes points by record id.
func (q *QdrantIndex) DeleteMany(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(PointID(id)))
	}

	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete failed: %w", err)
	}
	return nil
}

// DeleteByFilter counts and then removes every point matching filter in a
// single server-side operation.
func (q *QdrantIndex) DeleteByFilter(ctx context.Context, filter Filter) (int, error) {
	f := sourceFilter(filter)
	if f == nil {
		return 0, fmt.Errorf("qdrant: refusing to delete with an empty filter")
	}

	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.cfg.Collection,
		Filter:         f,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %w", err)
	}

	_, err = q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.cfg.Collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(f),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: delete by filter failed: %w", err)
	}
	return int(count), nil
}

// ListIDs scrolls through every point matching filter, a page at a time,
// and returns their record ids.
func (q *QdrantIndex) ListIDs(ctx context.Context, filter Filter) ([]string, error) {
	f := sourceFilter(filter)
	if f == nil {
		return nil, fmt.Errorf("qdrant: refusing to list with an empty filter")
	}

	var (
		ids    []string
		offset *qdrant.PointId
	)
	for {
		points, next, err := q.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: q.cfg.Collection,
			Filter:         f,
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
			WithPayload:    qdrant.NewWithPayloadInclude(payloadRecordID),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant: scroll failed: %w", err)
		}
		for _, p := range points {
			id := p.GetPayload()[payloadRecordID].GetStringValue()
			if id == "" {
				continue
			}
			ids = append(ids, id)
		}
		if next == nil || len(points) == 0 {
			return ids, nil
		}
		offset = next
	}
}

// Ping checks that the Qdrant server answers health checks.
func (q *QdrantIndex) Ping(ctx context.Context) error {
	if _, err := q.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// sourceFilter converts f into a Qdrant keyword match on source_id, or nil
// when f is empty.
func sourceFilter(f Filter) *qdrant.Filter {
	if len(f.SourceIDs) == 0 {
		return nil
	}
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatchKeywords(payloadSourceID, f.SourceIDs...),
		},
	}
}
