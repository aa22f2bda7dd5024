package rag

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
)

func TestBatchEmbedder_SplitsIntoBatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		n    int
		size int
		want []int
	}{
		{name: "empty", n: 0, size: 100, want: nil},
		{name: "single partial", n: 7, size: 100, want: []int{7}},
		{name: "exact multiple", n: 200, size: 100, want: []int{100, 100}},
		{name: "remainder", n: 250, size: 100, want: []int{100, 100, 50}},
		{name: "default size", n: 101, size: 0, want: []int{100, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fake := &fakeEmbedder{vector: func(text string) []float32 {
				var i float32
				_, _ = fmt.Sscanf(text, "t%f", &i)
				return []float32{i}
			}}
			b, err := NewBatchEmbedder(fake, tt.size, nil)
			if err != nil {
				t.Fatalf("NewBatchEmbedder: %v", err)
			}

			texts := make([]string, tt.n)
			for i := range texts {
				texts[i] = fmt.Sprintf("t%d", i)
			}
			got, err := b.Embed(t.Context(), texts)
			if err != nil {
				t.Fatalf("Embed: %v", err)
			}
			if !slices.Equal(fake.batches, tt.want) {
				t.Errorf("batches = %v, want %v", fake.batches, tt.want)
			}
			if len(got) != tt.n {
				t.Fatalf("got %d vectors, want %d", len(got), tt.n)
			}
			for i, v := range got {
				if v[0] != float32(i) {
					t.Errorf("vector %d out of order: %v", i, v)
					break
				}
			}
		})
	}
}

func TestBatchEmbedder_WrapsProviderError(t *testing.T) {
	t.Parallel()
	b, err := NewBatchEmbedder(&fakeEmbedder{err: context.Canceled}, 10, nil)
	if err != nil {
		t.Fatalf("NewBatchEmbedder: %v", err)
	}

	_, err = b.Embed(t.Context(), []string{"a"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want wrapped context.Canceled, got %v", err)
	}
}

func TestBatchEmbedder_CardinalityMismatch(t *testing.T) {
	t.Parallel()
	b, err := NewBatchEmbedder(&fakeEmbedder{short: true}, 10, nil)
	if err != nil {
		t.Fatalf("NewBatchEmbedder: %v", err)
	}
	if _, err := b.Embed(t.Context(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error when provider returns fewer vectors")
	}
}

func TestBatchEmbedder_NoRetry(t *testing.T) {
	t.Parallel()
	fake := &fakeEmbedder{err: errors.New("boom")}
	b, err := NewBatchEmbedder(fake, 1, nil)
	if err != nil {
		t.Fatalf("NewBatchEmbedder: %v", err)
	}
	_, _ = b.Embed(t.Context(), []string{"a", "b", "c"})
	if len(fake.batches) != 1 {
		t.Errorf("provider called %d times, want 1 (stop at first failure, no retry)", len(fake.batches))
	}
}

func TestNewBatchEmbedder_NilProvider(t *testing.T) {
	t.Parallel()
	if _, err := NewBatchEmbedder(nil, 10, nil); err == nil {
		t.Fatal("expected error for nil provider")
	}
}
