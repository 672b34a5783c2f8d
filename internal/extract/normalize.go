package extract

import (
	"regexp"
	"strings"
)

var (
	reFourNewlines  = regexp.MustCompile(`\n{4,}`)
	reThreeSpaces   = regexp.MustCompile(` {3,}`)
	reNewlineBlocks = regexp.MustCompile(`\n+(\s*\n)*`)
)

// Clean compacts raw article text for use in a prompt. Rules run in a fixed
// order: the 4+ newline collapse must happen before paragraph breaks are
// joined with a space. Tabs are dropped before space runs are collapsed so
// that Clean(Clean(s)) == Clean(s).
func Clean(text string) string {
	s := strings.TrimSpace(text)
	s = reFourNewlines.ReplaceAllString(s, "\n\n\n")
	s = strings.ReplaceAll(s, "\n\n", " ")
	s = strings.ReplaceAll(s, "\t", "")
	s = reThreeSpaces.ReplaceAllString(s, "  ")
	s = reNewlineBlocks.ReplaceAllString(s, "\n")
	return s
}

// Truncate caps s at max bytes without splitting a UTF-8 sequence.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
