package synth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hyperifyio/goanswer/internal/budget"
	"github.com/hyperifyio/goanswer/internal/tier"
)

// Source is one extracted page handed to the model. Its position in the
// list is its citation number.
type Source struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// ErrPromptBuild is returned when no usable prompt can be produced.
var ErrPromptBuild = errors.New("prompt build failed")

const (
	answerInstruction   = "Provide a 2-3 sentence answer to the query based on the sources. Be original, concise, accurate, and helpful."
	citationInstruction = "Cite sources as [1] or [2] or [3] after each sentence to back up your answer (Ex: Correct: [1], Correct: [2][3], Incorrect: [1, 2])."
)

// BuildPrompt renders the completion prompt for query over sources. Tiers
// differ only in whether the citation rule is included; the sources and
// query sections are identical. The prompt must leave room for the tier's
// max tokens inside the model's context window.
func BuildPrompt(query string, sources []Source, t tier.Tier) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("%w: empty query", ErrPromptBuild)
	}
	sep := tier.StopMarker

	var b strings.Builder
	b.WriteString("INSTRUCTIONS\n")
	b.WriteString(answerInstruction)
	if t.Citations {
		b.WriteString(" ")
		b.WriteString(citationInstruction)
	}
	b.WriteString("\n" + sep + "\nSOURCES\n\n")
	for i, s := range sources {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Source [%d]:\n%s", i+1, s.Text)
	}
	b.WriteString("\n" + sep + "\nQUERY\n")
	b.WriteString(query)
	b.WriteString("\n" + sep + "\nANSWER")
	prompt := b.String()

	if !budget.Fits(t.Model, t.MaxTokens, prompt) {
		return "", fmt.Errorf("%w: ~%d prompt tokens plus %d answer tokens exceed the %d token context of %s",
			ErrPromptBuild, budget.EstimateTokens(prompt), t.MaxTokens, budget.ModelContextTokens(t.Model), t.Model)
	}
	return prompt, nil
}
