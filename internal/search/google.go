package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const defaultBrowserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Google scrapes the HTML result page of a Google-style search endpoint.
// Result links on that page are wrapped as /url?q=<target>&...
type Google struct {
	// BaseURL defaults to https://www.google.com.
	BaseURL    string
	HTTPClient *http.Client
	UserAgent  string
}

func (g *Google) Name() string { return "google" }

// Search returns the unwrapped outbound links of the result page in page
// order. Filtering and truncation are left to the caller, so limit is only
// applied as an upper bound on parsed links.
func (g *Google) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	base := g.BaseURL
	if base == "" {
		base = "https://www.google.com"
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, harvestErr(g.Name(), err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/search"
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	ua := g.UserAgent
	if ua == "" {
		ua = defaultBrowserUA
	}
	body, err := get(ctx, g.HTTPClient, g.Name(), u, http.Header{
		"User-Agent": {ua},
		"Accept":     {"text/html"},
	})
	if err != nil {
		return nil, err
	}
	defer body.Close()
	results, err := ParseRedirectLinks(body)
	if err != nil {
		return nil, harvestErr(g.Name(), err)
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	for i := range results {
		results[i].Source = g.Name()
	}
	return results, nil
}

// ParseRedirectLinks reads a result page and returns one Result per anchor
// whose href has the outbound redirect shape, unwrapped to the bare target.
// Exact duplicate targets are dropped. Anchors that do not unwrap to an
// absolute http(s) URL are skipped.
func ParseRedirectLinks(r io.Reader) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse result page: %w", err)
	}
	seen := make(map[string]struct{})
	var out []Result
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		target, ok := UnwrapRedirect(href)
		if !ok {
			return
		}
		if _, dup := seen[target]; dup {
			return
		}
		seen[target] = struct{}{}
		out = append(out, Result{Title: strings.TrimSpace(a.Text()), URL: target})
	})
	return out, nil
}

// UnwrapRedirect extracts the destination from a /url?q=<target> link.
// Both the relative form and an absolute google.* form are accepted.
func UnwrapRedirect(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil || u.Path != "/url" {
		return "", false
	}
	if u.Host != "" && !strings.Contains(strings.ToLower(u.Hostname()), "google.") {
		return "", false
	}
	values, err := url.ParseQuery(u.RawQuery)
	if err != nil && len(values) == 0 {
		return "", false
	}
	target := values.Get("q")
	if target == "" {
		return "", false
	}
	t, err := url.Parse(target)
	if err != nil || t.Host == "" {
		return "", false
	}
	if s := strings.ToLower(t.Scheme); s != "http" && s != "https" {
		return "", false
	}
	return t.String(), true
}
