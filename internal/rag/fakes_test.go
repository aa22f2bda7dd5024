package rag

import (
	"context"
	"sync"
)

// fakeEmbedder returns a fixed vector per text, or err when set. It records
// the size of every batch it receives.
type fakeEmbedder struct {
	mu      sync.Mutex
	batches []int
	vector  func(text string) []float32
	err     error
	short   bool
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batches = append(f.batches, len(texts))
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	n := len(texts)
	if f.short && n > 0 {
		n--
	}
	out := make([][]float32, n)
	for i := range n {
		if f.vector != nil {
			out[i] = f.vector(texts[i])
		} else {
			out[i] = []float32{1, 0}
		}
	}
	return out, nil
}

// recordingIndex is a VectorIndex that returns canned query results and
// records every call.
type recordingIndex struct {
	mu          sync.Mutex
	upserts     [][]VectorRecord
	queries     []Filter
	queryTopK   []int
	queryVecLen []int
	deletes     [][]string
	results     []Match
	queryErr    error
	upsertErr   error
}

func (r *recordingIndex) Upsert(_ context.Context, records []VectorRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, records)
	return r.upsertErr
}

func (r *recordingIndex) Query(_ context.Context, vector []float32, filter Filter, topK int) ([]Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, filter)
	r.queryTopK = append(r.queryTopK, topK)
	r.queryVecLen = append(r.queryVecLen, len(vector))
	if r.queryErr != nil {
		return nil, r.queryErr
	}
	return append([]Match(nil), r.results...), nil
}

func (r *recordingIndex) DeleteMany(_ context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes = append(r.deletes, append([]string(nil), ids...))
	return nil
}

func (r *recordingIndex) Close() error { return nil }

// filterDeletingIndex adds native filtered delete to recordingIndex.
type filterDeletingIndex struct {
	recordingIndex
	filtered []Filter
	count    int
}

func (f *filterDeletingIndex) DeleteByFilter(_ context.Context, filter Filter) (int, error) {
	f.filtered = append(f.filtered, filter)
	return f.count, nil
}

// listingIndex adds id enumeration to recordingIndex.
type listingIndex struct {
	recordingIndex
	ids    []string
	listed []Filter
}

func (l *listingIndex) ListIDs(_ context.Context, filter Filter) ([]string, error) {
	l.listed = append(l.listed, filter)
	return append([]string(nil), l.ids...), nil
}

func match(id, source string, score float32, text string) Match {
	return Match{ID: id, Score: score, Metadata: Metadata{Text: text, SourceID: source}}
}

// noPacing returns a gateway config with pacing disabled.
func noPacing() GatewayConfig {
	cfg := DefaultGatewayConfig()
	cfg.BatchInterval = 0
	return cfg
}
