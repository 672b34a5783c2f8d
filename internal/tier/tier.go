// Package tier maps a completion model identifier to the prompt and
// generation settings used for it.
package tier

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// StopMarker separates prompt sections and ends generation.
const StopMarker = "###"

// Tier bundles the per-model knobs of the pipeline.
type Tier struct {
	Model       string
	SourceCount int
	TextCap     int
	Citations   bool
	MaxTokens   int
}

// DefaultModel is used when no model is requested.
const DefaultModel = openai.GPT3TextDavinci003

var table = map[string]Tier{
	openai.GPT3TextDavinci003:    {SourceCount: 3, TextCap: 1500, Citations: true, MaxTokens: 120},
	openai.GPT3TextCurie001:      {SourceCount: 4, TextCap: 1500, Citations: false, MaxTokens: 120},
	openai.CodexCodeDavinci002:   {SourceCount: 5, TextCap: 3000, Citations: false, MaxTokens: 120},
	openai.GPT3Dot5TurboInstruct: {SourceCount: 3, TextCap: 1500, Citations: true, MaxTokens: 120},
}

// Lookup returns the tier for model. Unknown or empty models get the
// default tier values but keep their own name so the request still
// targets them.
func Lookup(model string) Tier {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	t, ok := table[model]
	if !ok {
		t = table[DefaultModel]
	}
	t.Model = model
	return t
}

// Known reports whether model has its own table entry.
func Known(model string) bool {
	_, ok := table[strings.TrimSpace(model)]
	return ok
}

// Models lists the models with their own table entry in a stable order.
func Models() []string {
	return []string{
		openai.GPT3TextDavinci003,
		openai.GPT3TextCurie001,
		openai.CodexCodeDavinci002,
		openai.GPT3Dot5TurboInstruct,
	}
}
