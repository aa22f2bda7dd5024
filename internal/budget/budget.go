// Package budget estimates prompt sizes for the chat model. docqa talks to
// several backends with different tokenizers, so it uses a conservative
// character heuristic of about 4 characters per token instead of a real
// tokenizer.
package budget

import (
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// perMessageOverhead approximates the role and framing tokens most chat
	// APIs add to every message.
	perMessageOverhead = 4

	// DefaultMaxInputTokens is the default prompt budget. It fits 8k-context
	// models with room left for the reply.
	DefaultMaxInputTokens = 6000
)

// Estimate returns a rough token count for s.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count of msgs, counting
// role and content of each message plus a fixed per-message overhead.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		total += perMessageOverhead
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// Truncate cuts s so that Estimate(s) <= maxTokens, never splitting a UTF-8
// sequence. It reports whether anything was removed. A non-positive
// maxTokens leaves s unchanged.
func Truncate(s string, maxTokens int) (string, bool) {
	limit := maxTokens * charsPerToken
	if maxTokens <= 0 || len(s) <= limit+charsPerToken-1 {
		return s, false
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}
