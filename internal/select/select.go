package selecter

import (
	"net/url"
	"strings"
)

// DefaultDenylist holds hostname fragments of social and search sites whose
// pages make poor sources. Matching is by substring on the lowercased host.
var DefaultDenylist = []string{"google", "facebook", "twitter", "instagram", "youtube", "tiktok"}

// Options configures link filtering.
type Options struct {
	// MaxTotal caps the output length. Zero or less keeps every link.
	MaxTotal int
	// Denylist replaces DefaultDenylist when non-nil.
	Denylist []string
	// ExtraDeny is appended to the active denylist.
	ExtraDeny []string
}

// FilterLinks keeps the first link seen for each hostname, drops denylisted
// hosts and truncates to MaxTotal. Input order is preserved and the input
// slice is not modified.
func FilterLinks(links []string, opt Options) []string {
	deny := opt.Denylist
	if deny == nil {
		deny = DefaultDenylist
	}
	deny = append(append([]string(nil), deny...), opt.ExtraDeny...)

	seenURL := map[string]struct{}{}
	seenHost := map[string]struct{}{}
	out := make([]string, 0, len(links))
	for _, link := range links {
		if _, ok := seenURL[link]; ok {
			continue
		}
		seenURL[link] = struct{}{}
		host := hostOf(link)
		if _, ok := seenHost[host]; ok {
			continue
		}
		seenHost[host] = struct{}{}
		if denied(host, deny) {
			continue
		}
		out = append(out, link)
		if opt.MaxTotal > 0 && len(out) >= opt.MaxTotal {
			break
		}
	}
	return out
}

// hostOf returns the lowercased hostname without port. Unparseable links
// share the empty host, so at most one of them survives.
func hostOf(link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func denied(host string, deny []string) bool {
	for _, d := range deny {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" && strings.Contains(host, d) {
			return true
		}
	}
	return false
}
