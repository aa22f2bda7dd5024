package ingestion

import (
	"testing"

	"github.com/54b3r/docqa-go/internal/store"
)

func TestInferSource(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		locator  string
		kind     store.Kind
		sourceID string
		title    string
	}{
		// ── YouTube ──────────────────────────────────────────────────────
		{
			name:     "watch url",
			locator:  "https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42s",
			kind:     store.KindVideo,
			sourceID: "dQw4w9WgXcQ",
			title:    "dQw4w9WgXcQ",
		},
		{
			name:     "mobile watch url",
			locator:  "https://m.youtube.com/watch?v=dQw4w9WgXcQ",
			kind:     store.KindVideo,
			sourceID: "dQw4w9WgXcQ",
			title:    "dQw4w9WgXcQ",
		},
		{
			name:     "short link",
			locator:  "https://youtu.be/dQw4w9WgXcQ?si=abc",
			kind:     store.KindVideo,
			sourceID: "dQw4w9WgXcQ",
			title:    "dQw4w9WgXcQ",
		},
		{
			name:     "shorts",
			locator:  "https://youtube.com/shorts/aBcDeFgHiJ_",
			kind:     store.KindVideo,
			sourceID: "aBcDeFgHiJ_",
			title:    "aBcDeFgHiJ_",
		},
		{
			name:     "embed",
			locator:  "https://www.youtube.com/embed/aBcDeFgHiJ-",
			kind:     store.KindVideo,
			sourceID: "aBcDeFgHiJ-",
			title:    "aBcDeFgHiJ-",
		},
		{
			name:     "watch url with malformed id falls back to document",
			locator:  "https://www.youtube.com/watch?v=short",
			kind:     store.KindDocument,
			sourceID: "watch",
			title:    "watch",
		},
		// ── Documents ────────────────────────────────────────────────────
		{
			name:     "remote pdf",
			locator:  "https://example.com/papers/Attention%20Is%20All.pdf",
			kind:     store.KindDocument,
			sourceID: "attention-is-all.pdf",
			title:    "Attention Is All.pdf",
		},
		{
			name:     "local pdf",
			locator:  "/home/me/docs/Quarterly Report (Q3).PDF",
			kind:     store.KindDocument,
			sourceID: "quarterly-report-q3-.pdf",
			title:    "Quarterly Report (Q3).PDF",
		},
		{
			name:     "relative text file",
			locator:  "notes/meeting.md",
			kind:     store.KindDocument,
			sourceID: "meeting.md",
			title:    "meeting.md",
		},
		{
			name:     "bare host",
			locator:  "https://example.com/",
			kind:     store.KindDocument,
			sourceID: "example.com",
			title:    "example.com",
		},
		{
			name:    "empty",
			locator: "",
			kind:    store.KindDocument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := InferSource(tt.locator)
			if got.Kind != tt.kind {
				t.Errorf("Kind = %q, want %q", got.Kind, tt.kind)
			}
			if got.SourceID != tt.sourceID {
				t.Errorf("SourceID = %q, want %q", got.SourceID, tt.sourceID)
			}
			if got.Title != tt.title {
				t.Errorf("Title = %q, want %q", got.Title, tt.title)
			}
		})
	}
}
