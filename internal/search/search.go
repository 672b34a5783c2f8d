package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Result represents a single search hit from any provider.
type Result struct {
	Title   string
	URL     string
	Snippet string
	Source  string // provider name for observability
}

// Provider is a minimal interface for search providers. Results come back
// in the provider's ranking order. limit <= 0 means the provider default.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
	Name() string
}

// ErrHarvest marks a failed search request. Use errors.Is to tell a failed
// harvest apart from an empty but valid one.
var ErrHarvest = errors.New("harvest failed")

// HarvestError reports which provider failed and why.
type HarvestError struct {
	Provider string
	Err      error
}

func (e *HarvestError) Error() string {
	return fmt.Sprintf("%s search: %v", e.Provider, e.Err)
}

func (e *HarvestError) Unwrap() []error { return []error{ErrHarvest, e.Err} }

func harvestErr(provider string, err error) error {
	return &HarvestError{Provider: provider, Err: err}
}

const defaultSearchTimeout = 15 * time.Second

// get performs the provider's GET and returns the body of a 2xx reply.
// Every failure comes back as a HarvestError. The caller closes the body.
func get(ctx context.Context, hc *http.Client, provider string, u *url.URL, header http.Header) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, harvestErr(provider, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if hc == nil {
		hc = &http.Client{Timeout: defaultSearchTimeout}
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, harvestErr(provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, harvestErr(provider, fmt.Errorf("status: %d", resp.StatusCode))
	}
	return resp.Body, nil
}

// URLs returns the URL of each result in order.
func URLs(results []Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.URL)
	}
	return out
}
