//go:build integration

package embedder

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/54b3r/docqa-go/internal/rag"
)

// TestOllamaRetrieval_Integration embeds a few chunks with a live Ollama
// server and checks that a question retrieves the chunk it is about.
//
//	ollama pull nomic-embed-text
//	go test -tags=integration -run Integration ./internal/embedder/
//
// OLLAMA_HOST and EMBEDDING_MODEL override the local defaults.
func TestOllamaRetrieval_Integration(t *testing.T) {
	model := firstNonEmpty(os.Getenv("EMBEDDING_MODEL"), "nomic-embed-text")
	emb := NewOllamaEmbedder(&OllamaConfig{
		Host:  firstNonEmpty(os.Getenv("OLLAMA_HOST"), "http://localhost:11434"),
		Model: model,
	})

	ctx, cancel := context.WithTimeout(t.Context(), time.Minute)
	defer cancel()

	chunks := []rag.Chunk{
		{SourceID: "lecture", Index: 0, Content: "Gradient descent updates the weights in the direction that lowers the loss."},
		{SourceID: "lecture", Index: 1, Content: "The midterm exam covers chapters one through four."},
		{SourceID: "invoice", Index: 0, Content: "Payment is due thirty days after the delivery date."},
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := emb.Embed(ctx, texts)
	if err != nil {
		t.Fatalf("Embed: %v (is %q pulled?)", err, model)
	}
	if len(vectors) != len(chunks) {
		t.Fatalf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	t.Logf("model=%s dimensions=%d", model, len(vectors[0]))

	records := make([]rag.VectorRecord, len(chunks))
	for i, c := range chunks {
		records[i] = rag.VectorRecord{
			ID:       c.ID(),
			Values:   vectors[i],
			Metadata: rag.Metadata{Text: c.Content, SourceID: c.SourceID, ChunkIndex: c.Index},
		}
	}

	cfg := rag.DefaultGatewayConfig()
	cfg.BatchInterval = 0
	cfg.Dimensions = len(vectors[0])
	gw, err := rag.NewGateway(rag.NewMemoryIndex(), cfg, nil)
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}
	if err := gw.Upsert(ctx, records); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	retriever, err := rag.NewRetriever(emb, gw, nil)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}

	res, err := retriever.Retrieve(ctx, rag.Request{
		Query:     "How does gradient descent change the model weights?",
		SourceIDs: []string{"lecture", "invoice"},
		TopK:      3,
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(res.Chunks) == 0 || res.Chunks[0].SourceID != "lecture" || res.Chunks[0].ChunkIndex != 0 {
		t.Errorf("best chunk = %+v, want lecture-0", res.Chunks)
	}

	res, err = retriever.Retrieve(ctx, rag.Request{
		Query:     "How does gradient descent change the model weights?",
		SourceIDs: []string{"invoice"},
	})
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	for _, c := range res.Chunks {
		if c.SourceID != "invoice" {
			t.Errorf("chunk from unselected source %q", c.SourceID)
		}
	}
}
