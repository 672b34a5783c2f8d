package search

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
)

// FileProvider serves results from a local JSON file for offline runs and
// tests. The file is an array of {"title": "...", "url": "...", "snippet": "..."}.
// Entries are returned in file order; the query only filters when it
// matches at least one title or snippet.
type FileProvider struct {
	Path string
}

func (f *FileProvider) Name() string { return "file" }

func (f *FileProvider) Search(_ context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(f.Path) == "" {
		return nil, harvestErr(f.Name(), errors.New("path is empty"))
	}
	b, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, harvestErr(f.Name(), err)
	}
	var raw []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Snippet string `json:"snippet"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, harvestErr(f.Name(), err)
	}
	all := make([]Result, 0, len(raw))
	var matched []Result
	q := strings.ToLower(strings.TrimSpace(query))
	for _, r := range raw {
		if r.URL == "" {
			continue
		}
		res := Result{Title: r.Title, URL: r.URL, Snippet: r.Snippet, Source: f.Name()}
		all = append(all, res)
		if q != "" && (strings.Contains(strings.ToLower(r.Title), q) || strings.Contains(strings.ToLower(r.Snippet), q)) {
			matched = append(matched, res)
		}
	}
	out := all
	if len(matched) > 0 {
		out = matched
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
