package tier

import "testing"

func TestLookup_Table(t *testing.T) {
	cases := []struct {
		model     string
		sources   int
		cap       int
		citations bool
	}{
		{"text-davinci-003", 3, 1500, true},
		{"text-curie-001", 4, 1500, false},
		{"code-davinci-002", 5, 3000, false},
		{"gpt-3.5-turbo-instruct", 3, 1500, true},
	}
	for _, tc := range cases {
		got := Lookup(tc.model)
		if got.Model != tc.model || got.SourceCount != tc.sources || got.TextCap != tc.cap || got.Citations != tc.citations || got.MaxTokens != 120 {
			t.Fatalf("%s: unexpected tier %+v", tc.model, got)
		}
		if !Known(tc.model) {
			t.Fatalf("%s should be known", tc.model)
		}
	}
}

func TestLookup_UnknownKeepsName(t *testing.T) {
	got := Lookup("my-local-model")
	if got.Model != "my-local-model" {
		t.Fatalf("expected model name kept, got %q", got.Model)
	}
	if got.SourceCount != 3 || !got.Citations {
		t.Fatalf("expected default tier values, got %+v", got)
	}
	if Known("my-local-model") {
		t.Fatal("unexpected known model")
	}
	if Lookup("  ").Model != DefaultModel {
		t.Fatal("blank model should select the default")
	}
}
