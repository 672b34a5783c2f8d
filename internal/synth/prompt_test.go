package synth

import (
	"errors"
	"strings"
	"testing"

	"github.com/hyperifyio/goanswer/internal/tier"
)

func TestBuildPrompt_SourceAndQueryLayout(t *testing.T) {
	p, err := BuildPrompt("what is X", []Source{{URL: "https://a.com", Text: "X"}}, tier.Lookup("text-davinci-003"))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(p, "Source [1]:\nX") {
		t.Fatalf("missing source block:\n%s", p)
	}
	qi := strings.LastIndex(p, "what is X")
	ai := strings.LastIndex(p, "ANSWER")
	if qi < 0 || ai < qi || !strings.HasSuffix(p, "ANSWER") {
		t.Fatalf("query must precede the answer cue:\n%s", p)
	}
}

func TestBuildPrompt_ExactTemplate(t *testing.T) {
	sources := []Source{{URL: "https://a.com", Text: "alpha"}, {URL: "https://b.com", Text: "beta"}}
	got, err := BuildPrompt("q?", sources, tier.Lookup("text-curie-001"))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	want := "INSTRUCTIONS\n" +
		"Provide a 2-3 sentence answer to the query based on the sources. Be original, concise, accurate, and helpful.\n" +
		"###\nSOURCES\n\n" +
		"Source [1]:\nalpha\n\nSource [2]:\nbeta\n" +
		"###\nQUERY\nq?\n###\nANSWER"
	if got != want {
		t.Fatalf("unexpected prompt:\n%q\nwant\n%q", got, want)
	}
}

func TestBuildPrompt_TiersDifferOnlyInCitationRule(t *testing.T) {
	sources := []Source{{Text: "one"}, {Text: "two"}, {Text: "three"}}
	withCite, err := BuildPrompt("q", sources, tier.Lookup("text-davinci-003"))
	if err != nil {
		t.Fatal(err)
	}
	without, err := BuildPrompt("q", sources, tier.Lookup("code-davinci-002"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(withCite, "Incorrect: [1, 2]") || strings.Contains(without, "Cite sources") {
		t.Fatal("citation rule should only appear for citation tiers")
	}
	tail := func(s string) string { return s[strings.Index(s, "###"):] }
	if tail(withCite) != tail(without) {
		t.Fatal("source and query sections must be identical across tiers")
	}
}

func TestBuildPrompt_Deterministic(t *testing.T) {
	sources := []Source{{Text: "a"}, {Text: "b"}}
	a, _ := BuildPrompt("q", sources, tier.Lookup(""))
	b, _ := BuildPrompt("q", sources, tier.Lookup(""))
	if a != b {
		t.Fatal("prompt should be deterministic")
	}
}

func TestBuildPrompt_Failures(t *testing.T) {
	if _, err := BuildPrompt("  ", nil, tier.Lookup("")); !errors.Is(err, ErrPromptBuild) {
		t.Fatalf("expected ErrPromptBuild for empty query, got %v", err)
	}
	huge := []Source{{Text: strings.Repeat("x", 20000)}}
	if _, err := BuildPrompt("q", huge, tier.Lookup("text-curie-001")); !errors.Is(err, ErrPromptBuild) {
		t.Fatalf("expected ErrPromptBuild for an over-budget prompt, got %v", err)
	}
}

func TestBuildPrompt_NoSources(t *testing.T) {
	p, err := BuildPrompt("q", nil, tier.Lookup(""))
	if err != nil {
		t.Fatalf("empty source list is valid: %v", err)
	}
	if strings.Contains(p, "Source [") {
		t.Fatal("unexpected source block")
	}
}
