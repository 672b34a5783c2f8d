package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// SearxNG queries the JSON /search endpoint of a SearxNG instance. Its
// result URLs are already bare, so they skip redirect unwrapping and go
// straight to link filtering.
type SearxNG struct {
	BaseURL    string
	APIKey     string // optional
	HTTPClient *http.Client
	UserAgent  string // optional
}

func (s *SearxNG) Name() string { return "searxng" }

func (s *SearxNG) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if s.BaseURL == "" {
		return nil, harvestErr(s.Name(), errors.New("missing base url"))
	}
	if limit <= 0 {
		limit = 20
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil {
		return nil, harvestErr(s.Name(), err)
	}
	if !strings.HasSuffix(u.Path, "/search") {
		u.Path = strings.TrimRight(u.Path, "/") + "/search"
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("categories", "general")
	q.Set("count", strconv.Itoa(limit))
	if s.APIKey != "" {
		q.Set("apikey", s.APIKey)
	}
	u.RawQuery = q.Encode()

	header := http.Header{"Accept": {"application/json"}}
	if s.UserAgent != "" {
		header.Set("User-Agent", s.UserAgent)
	}
	body, err := get(ctx, s.HTTPClient, s.Name(), u, header)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var page struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(body).Decode(&page); err != nil {
		return nil, harvestErr(s.Name(), err)
	}
	out := make([]Result, 0, min(limit, len(page.Results)))
	for _, r := range page.Results {
		link := strings.TrimSpace(r.URL)
		if link == "" {
			continue
		}
		out = append(out, Result{Title: strings.TrimSpace(r.Title), URL: link, Snippet: strings.TrimSpace(r.Content), Source: s.Name()})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
