package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/goanswer/internal/budget"
	"github.com/hyperifyio/goanswer/internal/cache"
	"github.com/hyperifyio/goanswer/internal/extract"
	"github.com/hyperifyio/goanswer/internal/fetch"
	"github.com/hyperifyio/goanswer/internal/llm"
	"github.com/hyperifyio/goanswer/internal/metrics"
	"github.com/hyperifyio/goanswer/internal/search"
	sel "github.com/hyperifyio/goanswer/internal/select"
	"github.com/hyperifyio/goanswer/internal/synth"
	"github.com/hyperifyio/goanswer/internal/tier"
)

// Source is one extracted page; its list position is its citation number.
type Source = synth.Source

// ErrEmptyQuery is returned for a blank query before any network call.
var ErrEmptyQuery = errors.New("empty query")

// App runs the answer pipeline: harvest links, extract sources, build the
// prompt and stream the completion. An App holds no per-query state and is
// safe for concurrent use.
type App struct {
	cfg       Config
	provider  search.Provider
	fetcher   *fetch.Client
	extractor extract.Extractor
	streamer  *synth.Streamer

	// clients whose idle connections Close releases
	clients []*http.Client
}

// Option customizes New.
type Option func(*options)

type options struct {
	httpClient *http.Client
}

// WithHTTPClient sets the client used for search requests and page fetches.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

func New(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}

	var httpCache *cache.HTTPCache
	var answerCache *cache.AnswerCache
	if cfg.CacheDir != "" {
		if cfg.CacheClear {
			if err := cache.ClearDir(cfg.CacheDir); err != nil {
				log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("cache clear failed")
			}
		}
		if cfg.CacheMaxAge > 0 {
			// Ignore errors to avoid failing startup
			_, _ = cache.PurgeHTTPCacheByAge(cfg.CacheDir, cfg.CacheMaxAge)
			_, _ = cache.PurgeAnswersByAge(cfg.CacheDir, cfg.CacheMaxAge)
		}
		httpCache = &cache.HTTPCache{Dir: cfg.CacheDir, StrictPerms: cfg.CacheStrictPerms}
		answerCache = &cache.AnswerCache{Dir: cfg.CacheDir, StrictPerms: cfg.CacheStrictPerms}
	}

	pageClient := o.httpClient
	if pageClient == nil {
		pageClient = newHighThroughputHTTPClient(cfg.FetchTimeout + 5*time.Second)
	}
	a := &App{
		cfg:      cfg,
		provider: newProvider(cfg, pageClient),
		fetcher: &fetch.Client{
			HTTPClient:        pageClient,
			UserAgent:         cfg.FetchUA,
			MaxAttempts:       2,
			PerRequestTimeout: cfg.FetchTimeout,
			Cache:             httpCache,
			RedirectMaxHops:   5,
			MaxConcurrent:     cfg.MaxConcurrent,
		},
		extractor: extract.Readability{},
		streamer: &synth.Streamer{
			Client: &llm.Client{BaseURL: cfg.LLMBaseURL, HTTPClient: newStreamingHTTPClient()},
			Cache:  answerCache,
		},
	}

	a.clients = []*http.Client{pageClient, a.streamer.Client.HTTPClient}

	if !cfg.SkipPreflight {
		a.preflight(ctx)
	}
	return a, nil
}

// preflight lists the backend's models. Failures only warn so a backend
// that is down at startup does not keep sources from being served.
func (a *App) preflight(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	lister := llm.NewOpenAIProvider(a.cfg.LLMBaseURL, a.cfg.LLMAPIKey, nil)
	models, err := lister.ListModels(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("LLM model list failed; continuing")
		return
	}
	if len(models.Models) == 0 {
		log.Warn().Msg("LLM returned zero models")
		return
	}
	log.Info().Int("count", len(models.Models)).Msg("LLM models available")
	for _, m := range models.Models {
		if m.ID == a.cfg.LLMModel {
			return
		}
	}
	log.Warn().Str("model", a.cfg.LLMModel).Msg("configured model not listed by backend")
}

func newProvider(cfg Config, hc *http.Client) search.Provider {
	switch cfg.SearchProvider {
	case ProviderSearxNG:
		return &search.SearxNG{BaseURL: cfg.SearxURL, APIKey: cfg.SearxKey, HTTPClient: hc, UserAgent: cfg.SearchUA}
	case ProviderFile:
		return &search.FileProvider{Path: cfg.SearchFile}
	default:
		return &search.Google{BaseURL: cfg.SearchURL, HTTPClient: hc, UserAgent: cfg.SearchUA}
	}
}

// Close releases the idle connections of the page and completion clients.
// Streams still in flight are not interrupted.
func (a *App) Close() {
	for _, hc := range a.clients {
		hc.CloseIdleConnections()
	}
}

// Config returns the effective configuration.
func (a *App) Config() Config { return a.cfg }

// Sources harvests links for query and extracts them concurrently. The
// number of links and the text cap come from the model's tier. An empty
// result with a nil error means nothing usable was found; a harvest failure
// is returned as an error wrapping search.ErrHarvest.
func (a *App) Sources(ctx context.Context, query, model string) ([]synth.Source, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	t := tier.Lookup(model)
	links, err := a.harvest(ctx, query, t.SourceCount)
	if err != nil {
		return nil, err
	}
	sources := a.extractAll(ctx, links, t.TextCap)
	log.Debug().Str("query", query).Int("links", len(links)).Int("count", len(sources)).Msg("sources ready")
	return sources, nil
}

func (a *App) harvest(ctx context.Context, query string, n int) ([]string, error) {
	results, err := a.provider.Search(ctx, query, 0)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(a.provider.Name(), "failed").Inc()
		return nil, err
	}
	metrics.SearchRequestsTotal.WithLabelValues(a.provider.Name(), "ok").Inc()
	links := sel.FilterLinks(search.URLs(results), sel.Options{MaxTotal: n, ExtraDeny: a.cfg.ExtraDeny})
	metrics.CandidateLinks.Observe(float64(len(links)))
	return links, nil
}

// extractAll extracts every link concurrently. Each task writes only its
// own slot, so the surviving sources keep the input order.
func (a *App) extractAll(ctx context.Context, links []string, textCap int) []synth.Source {
	slots := make([]*synth.Source, len(links))
	var g errgroup.Group
	if a.cfg.MaxConcurrent > 0 {
		g.SetLimit(a.cfg.MaxConcurrent)
	}
	for i, link := range links {
		g.Go(func() error {
			slots[i] = a.extractOne(ctx, link, textCap)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]synth.Source, 0, len(links))
	for _, s := range slots {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out
}

// extractOne returns nil on any failure; the reason is logged and counted.
func (a *App) extractOne(ctx context.Context, link string, textCap int) *synth.Source {
	started := time.Now()
	defer func() { metrics.ExtractionDuration.Observe(time.Since(started).Seconds()) }()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
	defer cancel()
	fail := func(err error) *synth.Source {
		metrics.ExtractionsTotal.WithLabelValues("failed").Inc()
		log.Warn().Err(err).Str("url", link).Msg("extraction failed")
		return nil
	}

	body, contentType, err := a.fetcher.Get(ctx, link)
	if err != nil {
		return fail(err)
	}
	doc, err := a.extractor.Extract(extract.DecodeBody(body, contentType), link)
	if err != nil {
		return fail(err)
	}
	text := extract.Truncate(extract.Clean(doc.Text), textCap)
	if text == "" {
		return fail(extract.ErrNoContent)
	}
	metrics.ExtractionsTotal.WithLabelValues("ok").Inc()
	return &synth.Source{URL: link, Text: text}
}

// Answer validates the credential and streams the completion of prompt.
// A non-2xx backend reply is returned as *llm.SetupError with no stream.
func (a *App) Answer(ctx context.Context, prompt, model, apiKey string) (*synth.AnswerStream, error) {
	key, err := a.credential(apiKey)
	if err != nil {
		return nil, err
	}
	t := tier.Lookup(model)
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: empty prompt", synth.ErrPromptBuild)
	}
	if !budget.Fits(t.Model, t.MaxTokens, prompt) {
		return nil, fmt.Errorf("%w: prompt exceeds the context of %s", synth.ErrPromptBuild, t.Model)
	}
	return a.streamer.Stream(ctx, prompt, t, key)
}

// credential falls back to the configured key when apiKey is blank.
func (a *App) credential(apiKey string) (string, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		key = a.cfg.LLMAPIKey
	}
	if err := ValidateCredential(key, a.cfg.CredentialLength); err != nil {
		return "", err
	}
	return key, nil
}

// Prepared is the first phase of Ask: sources are final and the prompt is
// built, but no completion request has been made.
type Prepared struct {
	Query   string
	Sources []synth.Source
	Prompt  string
	Tier    tier.Tier

	app *App
	key string
}

// Ask runs harvesting, extraction and prompt building. The caller can
// render the sources and then call Stream for the answer.
func (a *App) Ask(ctx context.Context, query, model, apiKey string) (*Prepared, error) {
	key, err := a.credential(apiKey)
	if err != nil {
		return nil, err
	}
	sources, err := a.Sources(ctx, query, model)
	if err != nil {
		return nil, err
	}
	t := tier.Lookup(model)
	prompt, err := synth.BuildPrompt(query, sources, t)
	if err != nil {
		return nil, err
	}
	return &Prepared{Query: strings.TrimSpace(query), Sources: sources, Prompt: prompt, Tier: t, app: a, key: key}, nil
}

// Stream starts the answer stream for the prepared prompt.
func (p *Prepared) Stream(ctx context.Context) (*synth.AnswerStream, error) {
	return p.app.streamer.Stream(ctx, p.Prompt, p.Tier, p.key)
}
