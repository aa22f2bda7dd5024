package chunking

import (
	"slices"
	"testing"
)

func TestSegment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "", want: nil},
		{
			name: "sentences",
			in:   "Sentence one. Sentence two! Is it three?",
			want: []string{"Sentence one.", "Sentence two!", "Is it three?"},
		},
		{
			name: "paragraphs never merge",
			in:   "First para. Still first.\n\nSecond para.",
			want: []string{"First para.", "Still first.", "Second para."},
		},
		{
			name: "abbreviation-like dots inside words stay",
			in:   "Version 1.2.3 shipped. See example.com now.",
			want: []string{"Version 1.2.3 shipped.", "See example.com now."},
		},
		{
			name: "absorbs repeated terminals and closers",
			in:   `He said "stop!" Then left... Really?!`,
			want: []string{`He said "stop!"`, "Then left...", "Really?!"},
		},
		{
			name: "trailing text without terminal",
			in:   "Complete sentence. trailing fragment",
			want: []string{"Complete sentence.", "trailing fragment"},
		},
		{
			name: "line fallback without any boundary",
			in:   "- item one\n- item two\n\nheading",
			want: []string{"- item one", "- item two", "heading"},
		},
		{
			name: "ellipsis rune",
			in:   "Wait… then go.",
			want: []string{"Wait…", "then go."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Segment(tt.in)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Segment(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
