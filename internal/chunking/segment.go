package chunking

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Segment splits normalized text into semantic units. Paragraphs (separated
// by a blank line) never share a segment. Inside a paragraph the text is cut
// after sentence-final punctuation that is followed by whitespace or the end
// of the paragraph; a paragraph without any sentence boundary falls back to
// one segment per line. Returned segments are trimmed and non-empty.
func Segment(text string) []string {
	var segments []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if sentences := splitSentences(para); len(sentences) > 0 {
			segments = append(segments, sentences...)
			continue
		}
		for _, line := range strings.Split(para, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				segments = append(segments, line)
			}
		}
	}
	return segments
}

// splitSentences returns the sentences of para, or nil when para contains no
// sentence boundary at all.
func splitSentences(para string) []string {
	var out []string
	found := false
	start := 0

	for i := 0; i < len(para); {
		r, size := utf8.DecodeRuneInString(para[i:])
		if !isTerminal(r) {
			i += size
			continue
		}

		// Absorb "?!", "..." and closing quotes or brackets.
		end := i + size
		for end < len(para) {
			next, n := utf8.DecodeRuneInString(para[end:])
			if !isTerminal(next) && !isCloser(next) {
				break
			}
			end += n
		}

		if end == len(para) || startsWithSpace(para[end:]) {
			if s := strings.TrimSpace(para[start:end]); s != "" {
				out = append(out, s)
			}
			found = true
			start = end
		}
		i = end
	}

	if !found {
		return nil
	}
	if tail := strings.TrimSpace(para[start:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '}', '”', '’', '»':
		return true
	}
	return false
}

func startsWithSpace(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsSpace(r)
}
