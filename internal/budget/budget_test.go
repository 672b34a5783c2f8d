package budget

import (
	"strings"
	"testing"
)

func TestEstimateTokensFromChars(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{0, 0},
		{1, 1},
		{3, 1},
		{4, 1},
		{5, 2},
		{400, 100},
	}
	for _, c := range cases {
		got := EstimateTokensFromChars(c.in)
		if got != c.want {
			t.Fatalf("EstimateTokensFromChars(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestModelContextTokens(t *testing.T) {
	if ModelContextTokens("text-davinci-003") != 4097 {
		t.Fatal("davinci-003 context")
	}
	if ModelContextTokens("Text-Curie-001") != 2049 {
		t.Fatal("lookup should ignore case")
	}
	if ModelContextTokens("code-davinci-002") != 8001 {
		t.Fatal("code-davinci context")
	}
	if ModelContextTokens("unknown") != 4096 {
		t.Fatal("unknown model should default to 4096")
	}
}

func TestRemainingContext_NotNegative(t *testing.T) {
	if got := RemainingContext("text-curie-001", 120, 10_000); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := RemainingContext("text-curie-001", 49, 1000); got != 1000 {
		t.Fatalf("expected 1000, got %d", got)
	}
}

func TestFits(t *testing.T) {
	short := strings.Repeat("a", 4*1000)
	if !Fits("text-curie-001", 120, short) {
		t.Fatal("1000 tokens + 120 should fit curie")
	}
	long := strings.Repeat("a", 4*2000)
	if Fits("text-curie-001", 120, long) {
		t.Fatal("2000 tokens + 120 should not fit curie")
	}
	if !Fits("code-davinci-002", 120, long) {
		t.Fatal("2000 tokens + 120 should fit code-davinci")
	}
}
