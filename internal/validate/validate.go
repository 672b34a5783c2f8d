// Package validate checks the citation markers of a synthesized answer
// against the numbered source list it was grounded on.
package validate

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Citations is the result of scanning an answer for [n] markers relative
// to a source list of length N.
type Citations struct {
	// InRange lists distinct cited indices within 1..N.
	InRange []int `json:"inRange"`
	// OutOfRange lists distinct cited indices outside 1..N.
	OutOfRange []int `json:"outOfRange,omitempty"`
	// Joined lists bracket groups such as "[1, 2]" that put several
	// indices in one bracket instead of writing [1][2].
	Joined []string `json:"joined,omitempty"`
	// MissingSources is true when N == 0 while citations exist.
	MissingSources bool `json:"missingSources,omitempty"`
}

// OK reports whether every citation is well formed and in range.
func (c Citations) OK() bool {
	return len(c.OutOfRange) == 0 && len(c.Joined) == 0 && !c.MissingSources
}

var (
	citeRe   = regexp.MustCompile(`\[(\d+)\]`)
	joinedRe = regexp.MustCompile(`\[\s*\d+(?:\s*[,;]\s*\d+)+\s*\]`)
	digitsRe = regexp.MustCompile(`\d+`)
)

// CheckCitations scans answer for [n] markers and compares them against
// numSources. Indices inside comma-joined groups are counted too.
func CheckCitations(answer string, numSources int) Citations {
	seen := map[int]struct{}{}
	var res Citations
	add := func(n int) {
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		if n >= 1 && n <= numSources {
			res.InRange = append(res.InRange, n)
		} else {
			res.OutOfRange = append(res.OutOfRange, n)
		}
	}

	for _, m := range citeRe.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		add(n)
	}
	for _, g := range joinedRe.FindAllString(answer, -1) {
		res.Joined = append(res.Joined, g)
		for _, d := range digitsRe.FindAllString(g, -1) {
			if n, err := strconv.Atoi(d); err == nil {
				add(n)
			}
		}
	}

	sort.Ints(res.InRange)
	sort.Ints(res.OutOfRange)
	res.MissingSources = numSources == 0 && len(seen) > 0
	return res
}

// Summary renders problems as a single line, or "" when c is OK.
func (c Citations) Summary() string {
	if c.OK() {
		return ""
	}
	var parts []string
	if c.MissingSources {
		parts = append(parts, "citations present without sources")
	}
	if len(c.OutOfRange) > 0 {
		idx := make([]string, len(c.OutOfRange))
		for i, n := range c.OutOfRange {
			idx[i] = strconv.Itoa(n)
		}
		parts = append(parts, "out of range: "+strings.Join(idx, ","))
	}
	if len(c.Joined) > 0 {
		parts = append(parts, "joined groups: "+strings.Join(c.Joined, " "))
	}
	return strings.Join(parts, "; ")
}
