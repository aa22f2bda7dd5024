package chunking

import "strings"

// Dedupe validates a batch of candidate chunks. It trims every chunk, drops
// the empty ones and keeps only the first occurrence of each exact
// (case-sensitive) text, preserving order. It is meant to run once per
// ingest batch; duplicates across different sources are left alone.
func Dedupe(chunks []string) []string {
	if len(chunks) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(chunks))
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
