package chunking

import (
	"slices"
	"testing"
)

func TestDedupe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{name: "nil", in: nil, want: nil},
		{name: "identical chunks", in: []string{"The cat sat.", "The cat sat."}, want: []string{"The cat sat."}},
		{name: "keeps first occurrence order", in: []string{"b", "a", "b", "c", "a"}, want: []string{"b", "a", "c"}},
		{name: "case sensitive", in: []string{"Cat", "cat"}, want: []string{"Cat", "cat"}},
		{name: "trims before comparing", in: []string{" x ", "x"}, want: []string{"x"}},
		{name: "drops empty", in: []string{"", "  ", "y"}, want: []string{"y"}},
		{name: "all empty", in: []string{" ", "\n"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Dedupe(tt.in)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Dedupe(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
