package budget

import (
	"math"
	"strings"
)

// EstimateTokensFromChars converts a character count into an estimated token
// count using a conservative heuristic (~4 chars per token in English). The
// result is always at least 1 when chars > 0.
func EstimateTokensFromChars(charCount int) int {
	if charCount <= 0 {
		return 0
	}
	return int(math.Ceil(float64(charCount) / 4.0))
}

// EstimateTokens returns the estimated token count of a string.
func EstimateTokens(s string) int {
	return EstimateTokensFromChars(len(s))
}

// ModelContextTokens returns the context window of a completion model.
// Unknown models fall back to 4096.
func ModelContextTokens(modelName string) int {
	name := strings.ToLower(strings.TrimSpace(modelName))
	if v, ok := knownModelMax[name]; ok {
		return v
	}
	return 4096
}

// RemainingContext computes the remaining input token budget given a model,
// a reservation for output generation, and the estimated prompt tokens.
// The result is never negative.
func RemainingContext(modelName string, reservedForOutput int, promptTokens int) int {
	if reservedForOutput < 0 {
		reservedForOutput = 0
	}
	remaining := ModelContextTokens(modelName) - reservedForOutput - promptTokens
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Fits reports whether prompt plus the reserved output tokens stays within
// the model's context window.
func Fits(modelName string, reservedForOutput int, prompt string) bool {
	if reservedForOutput < 0 {
		reservedForOutput = 0
	}
	return EstimateTokens(prompt)+reservedForOutput <= ModelContextTokens(modelName)
}

// knownModelMax holds the context sizes of the completion models the tier
// table names.
var knownModelMax = map[string]int{
	"text-davinci-003":       4_097,
	"text-davinci-002":       4_097,
	"text-curie-001":         2_049,
	"text-babbage-001":       2_049,
	"text-ada-001":           2_049,
	"code-davinci-002":       8_001,
	"gpt-3.5-turbo-instruct": 4_096,
	"davinci-002":            16_384,
	"babbage-002":            16_384,
}
