// Package chunking turns raw extracted text into bounded, overlapping,
// de-duplicated chunks ready for embedding. It has three stages that the
// ingestion pipeline applies in order: [Normalize], [Chunker.Split] and
// [Dedupe]. Everything in this package is pure and safe for concurrent use.
package chunking

import (
	"regexp"
	"strings"
)

var (
	// lineEndings matches CRLF and lone CR line terminators.
	lineEndings = regexp.MustCompile(`\r\n|\r`)

	// blankLineRuns matches two or more newlines separated only by whitespace.
	blankLineRuns = regexp.MustCompile(`(\n[\t\f\v \p{Zs}]*){2,}`)

	// horizontalSpace matches runs of whitespace other than newline.
	horizontalSpace = regexp.MustCompile(`[\t\f\v \p{Zs}]+`)
)

// Normalize cleans raw extracted text while keeping paragraph structure.
// Line endings become "\n", runs of blank lines collapse to a single blank
// line, horizontal whitespace collapses to one space, and the result is
// trimmed. Normalizing already-normalized text returns it unchanged.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	text := lineEndings.ReplaceAllString(raw, "\n")
	text = blankLineRuns.ReplaceAllString(text, "\n\n")
	text = horizontalSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
