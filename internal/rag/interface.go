// Package rag holds the retrieval half of docqa: the chunk and vector data
// model, the embedding and vector-store gateways that talk to external
// providers, and the Retriever that turns a question into a bounded context
// string. Concrete backends (Qdrant, the in-process index, HTTP embedders)
// satisfy the interfaces declared here so callers never depend on a specific
// provider.
package rag

import (
	"context"
	"fmt"
)

// SourceText is the extracted plain text of one source awaiting ingestion.
type SourceText struct {
	// SourceID identifies the source (a document id or a video id).
	SourceID string

	// Content is the raw extracted text, before normalization.
	Content string
}

// ByteLength returns the size of the raw content in bytes.
func (s SourceText) ByteLength() int { return len(s.Content) }

// Chunk is one bounded piece of a source's normalized text.
type Chunk struct {
	// SourceID is the source this chunk was cut from.
	SourceID string

	// Index is the position of the chunk among the source's surviving chunks.
	Index int

	// Content is the chunk text.
	Content string
}

// ID returns the stable record id of the chunk, "<sourceId>-<index>".
func (c Chunk) ID() string { return ChunkID(c.SourceID, c.Index) }

// ChunkID formats the record id for the chunk at index of sourceID.
func ChunkID(sourceID string, index int) string {
	return fmt.Sprintf("%s-%d", sourceID, index)
}

// Metadata is the payload stored alongside every vector.
type Metadata struct {
	// Text is the chunk content.
	Text string

	// SourceID is the owning source, used for filtered queries and deletes.
	SourceID string

	// ChunkIndex is the chunk's position within its source.
	ChunkIndex int
}

// VectorRecord is a single embedded chunk as written to a vector index.
type VectorRecord struct {
	// ID is the chunk id; writing the same id twice replaces the record.
	ID string

	// Values is the embedding vector.
	Values []float32

	// Metadata is the chunk payload.
	Metadata Metadata
}

// Match is a single similarity search hit.
type Match struct {
	// ID is the record id.
	ID string

	// Score is the provider similarity score; higher is more similar.
	Score float32

	// Metadata is the payload stored with the record.
	Metadata Metadata
}

// RetrievedChunk is a chunk that made it into a retrieval context.
type RetrievedChunk struct {
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
	SourceID   string  `json:"source_id"`
	ChunkIndex int     `json:"chunk_index"`
}

// Filter restricts a vector query to records of the listed sources.
type Filter struct {
	// SourceIDs is the allowed set of Metadata.SourceID values.
	SourceIDs []string
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is an external vector store. Implementations must be safe to
// call from multiple goroutines.
type VectorIndex interface {
	// Upsert writes records, replacing any with the same id.
	Upsert(ctx context.Context, records []VectorRecord) error

	// Query returns up to topK records matching filter, most similar first.
	Query(ctx context.Context, vector []float32, filter Filter, topK int) ([]Match, error)

	// DeleteMany removes the records with the given ids. Unknown ids are
	// ignored.
	DeleteMany(ctx context.Context, ids []string) error

	// Close releases any resources held by the index.
	Close() error
}

// FilterDeleter is implemented by indexes that can delete every record
// matching a filter server-side, without enumerating ids first.
type FilterDeleter interface {
	// DeleteByFilter removes all records matching filter and returns how
	// many were removed.
	DeleteByFilter(ctx context.Context, filter Filter) (int, error)
}

// IDLister is implemented by indexes that can enumerate record ids by
// payload filter without a similarity query.
type IDLister interface {
	// ListIDs returns the ids of every record matching filter.
	ListIDs(ctx context.Context, filter Filter) ([]string, error)
}
