// Package tokens estimates the token cost of prompt text using a fixed
// characters-per-token heuristic. Estimates are advisory: they decide batch
// membership and short-circuit oversized contexts before a network round trip.
package tokens

import "fmt"

// CharsPerToken is the heuristic ratio of characters to tokens. Four
// characters per token is a reasonable approximation for English prose and
// schema text across the model families we target.
const CharsPerToken = 4

// WarnRatio is the fraction of the ceiling above which Check signals a
// warning in its message.
const WarnRatio = 0.8

// Estimate returns the approximate token count for text, rounding down.
// An empty string estimates to zero.
func Estimate(text string) int {
	return len(text) / CharsPerToken
}

// Check evaluates text against a token ceiling. ok is false only when the
// estimate exceeds maxInputTokens. The message carries a human-readable
// warning once usage passes 80% of the ceiling, and a failure description
// when the ceiling is exceeded.
func Check(text string, maxInputTokens int) (ok bool, count int, message string) {
	return CheckCount(Estimate(text), maxInputTokens)
}

// CheckCount is Check for a precomputed token estimate, for callers that
// aggregate estimates across several pieces of text.
func CheckCount(count int, maxInputTokens int) (ok bool, _ int, message string) {
	if count > maxInputTokens {
		return false, count, fmt.Sprintf(
			"input is ~%d tokens, over the %d token limit", count, maxInputTokens)
	}

	if float64(count) > float64(maxInputTokens)*WarnRatio {
		return true, count, fmt.Sprintf(
			"input is ~%d tokens, above 80%% of the %d token limit", count, maxInputTokens)
	}

	return true, count, ""
}
