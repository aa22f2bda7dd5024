package rag

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"
)

// MemoryIndex is an in-process VectorIndex that scores records by brute-force
// cosine similarity. It backs local runs and tests; contents are lost when
// the process exits.
type MemoryIndex struct {
	// mu guards records and order.
	mu sync.RWMutex

	// records maps record id to record.
	records map[string]VectorRecord

	// order holds ids in first-insertion order so equal scores come back in a
	// stable order.
	order []string
}

// NewMemoryIndex returns an empty MemoryIndex.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{records: make(map[string]VectorRecord)}
}

// Upsert stores records, replacing existing ones with the same id.
func (m *MemoryIndex) Upsert(_ context.Context, records []VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("memory index: record id must not be empty")
		}
		if _, ok := m.records[r.ID]; !ok {
			m.order = append(m.order, r.ID)
		}
		r.Values = slices.Clone(r.Values)
		m.records[r.ID] = r
	}
	return nil
}

// Query scores every record admitted by filter against vector and returns
// the best topK.
func (m *MemoryIndex) Query(ctx context.Context, vector []float32, filter Filter, topK int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]Match, 0, len(m.order))
	for _, id := range m.order {
		r := m.records[id]
		if !filter.admits(r.Metadata.SourceID) {
			continue
		}
		matches = append(matches, Match{
			ID:       r.ID,
			Score:    cosine(vector, r.Values),
			Metadata: r.Metadata,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// DeleteMany removes the given ids; unknown ids are ignored.
func (m *MemoryIndex) DeleteMany(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		delete(m.records, id)
	}
	m.compact()
	return nil
}

// DeleteByFilter removes every record admitted by filter.
func (m *MemoryIndex) DeleteByFilter(_ context.Context, filter Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, r := range m.records {
		if filter.admits(r.Metadata.SourceID) {
			delete(m.records, id)
			n++
		}
	}
	m.compact()
	return n, nil
}

// ListIDs returns the ids admitted by filter in insertion order.
func (m *MemoryIndex) ListIDs(ctx context.Context, filter Filter) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for _, id := range m.order {
		if filter.admits(m.records[id].Metadata.SourceID) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Len returns the number of stored records.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Close is a no-op.
func (m *MemoryIndex) Close() error { return nil }

// compact drops deleted ids from order. Callers must hold mu.
func (m *MemoryIndex) compact() {
	m.order = slices.DeleteFunc(m.order, func(id string) bool {
		_, ok := m.records[id]
		return !ok
	})
}

// admits reports whether a record of sourceID passes f. An empty filter
// admits everything.
func (f Filter) admits(sourceID string) bool {
	return len(f.SourceIDs) == 0 || slices.Contains(f.SourceIDs, sourceID)
}

// cosine returns the cosine similarity of a and b, or 0 when either vector
// has zero norm or their lengths differ.
func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
