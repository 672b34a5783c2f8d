package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperifyio/goanswer/internal/llm"
	"github.com/hyperifyio/goanswer/internal/search"
	"github.com/hyperifyio/goanswer/internal/synth"
)

const testKey = "sk-abcdefghijklmnopqrstuvwxyz0123456789ABCDEFGHIJKL" // 51 chars

// routedClient sends every request to srv regardless of host, so pages can
// live on distinct hostnames.
func routedClient(srv *httptest.Server) *http.Client {
	addr := srv.Listener.Addr().String()
	return &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}}
}

func article(title string, paragraphs ...string) string {
	var b strings.Builder
	b.WriteString("<html><head><title>" + title + "</title></head><body><nav>Home | About</nav><main><article>")
	for _, p := range paragraphs {
		b.WriteString("<p>" + p + "</p>")
	}
	b.WriteString("</article></main><footer>Copyright</footer></body></html>")
	return b.String()
}

func resultPage(links ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, l := range links {
		fmt.Fprintf(&b, `<a href="/url?q=%s&amp;sa=U">r</a>`, l)
	}
	b.WriteString("</body></html>")
	return b.String()
}

// webServer serves a search result page on search.test and pages on other hosts.
func webServer(t *testing.T, links []string, pages map[string]func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Host == "search.test" {
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, resultPage(links...))
			return
		}
		if h, ok := pages[r.Host+r.URL.Path]; ok {
			h(w, r)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func htmlPage(body string, delay time.Duration) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, body)
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SearchURL = "http://search.test"
	cfg.SkipPreflight = true
	cfg.FetchTimeout = 2 * time.Second
	return cfg
}

func TestSources_OrderAndFailuresAbsorbed(t *testing.T) {
	web := webServer(t,
		[]string{"http://a.test/1", "http://a.test/2", "https://www.youtube.com/watch", "http://b.test/missing", "http://c.test/data", "http://d.test/ok"},
		map[string]func(http.ResponseWriter, *http.Request){
			"a.test/1": htmlPage(article("A", "Alpha paragraph one explains the topic.", "Alpha paragraph two adds detail."), 80*time.Millisecond),
			"c.test/data": func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{"not":"html"}`)
			},
			"d.test/ok": htmlPage(article("D", "Delta paragraph explains more."), 0),
		})

	a, err := New(context.Background(), testConfig(), WithHTTPClient(routedClient(web)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	sources, err := a.Sources(context.Background(), "what is alpha", "code-davinci-002")
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %+v", sources)
	}
	if sources[0].URL != "http://a.test/1" || sources[1].URL != "http://d.test/ok" {
		t.Fatalf("order not preserved: %+v", sources)
	}
	if !strings.Contains(sources[0].Text, "Alpha paragraph one") || strings.Contains(sources[0].Text, "\t") {
		t.Fatalf("unexpected text %q", sources[0].Text)
	}
}

func TestSources_TierCapsCountAndLength(t *testing.T) {
	long := strings.Repeat("Lorem ipsum dolor sit amet. ", 300)
	pages := map[string]func(http.ResponseWriter, *http.Request){}
	var links []string
	for _, h := range []string{"a", "b", "c", "d", "e"} {
		links = append(links, "http://"+h+".test/p")
		pages[h+".test/p"] = htmlPage(article(h, long), 0)
	}
	web := webServer(t, links, pages)
	a, err := New(context.Background(), testConfig(), WithHTTPClient(routedClient(web)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	sources, err := a.Sources(context.Background(), "q", "text-davinci-003")
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	if len(sources) != 3 {
		t.Fatalf("davinci tier should yield 3 sources, got %d", len(sources))
	}
	for _, s := range sources {
		if len(s.Text) > 1500 {
			t.Fatalf("text cap exceeded: %d", len(s.Text))
		}
	}
}

func TestSources_EmptyIsNotAnError(t *testing.T) {
	web := webServer(t, nil, nil)
	a, err := New(context.Background(), testConfig(), WithHTTPClient(routedClient(web)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	sources, err := a.Sources(context.Background(), "nothing", "")
	if err != nil || len(sources) != 0 {
		t.Fatalf("expected empty result without error, got %v %v", sources, err)
	}
}

func TestSources_HarvestFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	a, err := New(context.Background(), testConfig(), WithHTTPClient(routedClient(srv)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = a.Sources(context.Background(), "q", "")
	if !errors.Is(err, search.ErrHarvest) {
		t.Fatalf("expected ErrHarvest, got %v", err)
	}
	if _, err := a.Sources(context.Background(), "   ", ""); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
}

// completionServer streams parts and records the decoded request bodies.
func completionServer(t *testing.T, status int, parts ...string) (*httptest.Server, *atomic.Int32, chan llm.CompletionRequest) {
	t.Helper()
	var calls atomic.Int32
	reqs := make(chan llm.CompletionRequest, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req llm.CompletionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		reqs <- req
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"error":{"message":"nope"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, p := range parts {
			fmt.Fprintf(w, "data: {\"choices\":[{\"text\":%q}]}\n\n", p)
			w.(http.Flusher).Flush()
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, reqs
}

func TestAnswer_InvalidCredentialMakesNoCall(t *testing.T) {
	llmSrv, calls, _ := completionServer(t, http.StatusOK, "x")
	cfg := testConfig()
	cfg.LLMBaseURL = llmSrv.URL
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, key := range []string{"", "sk-short", testKey + "x", strings.Replace(testKey, "a", " ", 1)} {
		if _, err := a.Answer(context.Background(), "prompt", "", key); !errors.Is(err, ErrInvalidCredential) {
			t.Fatalf("key %q: expected ErrInvalidCredential, got %v", key, err)
		}
	}
	if calls.Load() != 0 {
		t.Fatalf("no backend call expected, got %d", calls.Load())
	}
}

func TestAnswer_StreamsAndSetupFailure(t *testing.T) {
	okSrv, _, reqs := completionServer(t, http.StatusOK, "Go is", " a language.")
	cfg := testConfig()
	cfg.LLMBaseURL = okSrv.URL
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s, err := a.Answer(context.Background(), "the prompt", "my-model", testKey)
	if err != nil {
		t.Fatalf("answer: %v", err)
	}
	text, err := synth.Collect(s)
	if err != nil || text != "Go is a language." {
		t.Fatalf("collect: %q %v", text, err)
	}
	req := <-reqs
	if req.Model != "my-model" || req.Prompt != "the prompt" || req.MaxTokens != 120 || req.Stop[0] != "###" {
		t.Fatalf("unexpected request %+v", req)
	}

	badSrv, _, _ := completionServer(t, http.StatusUnauthorized)
	cfg.LLMBaseURL = badSrv.URL
	b, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	s, err = b.Answer(context.Background(), "the prompt", "", testKey)
	if s != nil || !llm.IsSetupError(err) {
		t.Fatalf("expected setup failure without stream, got %v %v", s, err)
	}
}

func TestAnswer_OverBudgetPrompt(t *testing.T) {
	cfg := testConfig()
	cfg.CredentialLength = 0
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = a.Answer(context.Background(), strings.Repeat("x", 20000), "text-curie-001", "k")
	if !errors.Is(err, synth.ErrPromptBuild) {
		t.Fatalf("expected ErrPromptBuild, got %v", err)
	}
}

func TestAsk_TwoPhase(t *testing.T) {
	web := webServer(t, []string{"http://a.test/1"}, map[string]func(http.ResponseWriter, *http.Request){
		"a.test/1": htmlPage(article("A", "X is the answer to everything."), 0),
	})
	llmSrv, _, reqs := completionServer(t, http.StatusOK, "X is", " everything [1].")
	cfg := testConfig()
	cfg.LLMBaseURL = llmSrv.URL
	cfg.CredentialLength = 0
	cfg.LLMAPIKey = "configured-key"
	a, err := New(context.Background(), cfg, WithHTTPClient(routedClient(web)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	p, err := a.Ask(context.Background(), "what is X", "text-davinci-003", "")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if len(p.Sources) != 1 || !strings.Contains(p.Prompt, "Source [1]:\n") || !strings.HasSuffix(p.Prompt, "what is X\n###\nANSWER") {
		t.Fatalf("unexpected prepared answer %+v", p)
	}
	s, err := p.Stream(context.Background())
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	text, err := synth.Collect(s)
	if err != nil || text != "X is everything [1]." {
		t.Fatalf("collect: %q %v", text, err)
	}
	if req := <-reqs; req.Prompt != p.Prompt {
		t.Fatal("streamed prompt differs from the prepared one")
	}
}

func TestNew_PreflightFailureOnlyWarns(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	cfg := DefaultConfig()
	cfg.LLMBaseURL = srv.URL
	if _, err := New(context.Background(), cfg); err != nil {
		t.Fatalf("preflight failure must not fail New: %v", err)
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SearchProvider = "bing"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestClose_ReleasesIdleConnections(t *testing.T) {
	web := webServer(t, nil, nil)
	a, err := New(context.Background(), testConfig(), WithHTTPClient(routedClient(web)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if len(a.clients) != 2 {
		t.Fatalf("expected page and completion clients, got %d", len(a.clients))
	}
	if _, err := a.Sources(context.Background(), "q", ""); err != nil {
		t.Fatalf("sources: %v", err)
	}
	a.Close()
	a.Close()
	if _, err := a.Sources(context.Background(), "q", ""); err != nil {
		t.Fatalf("app should stay usable after Close: %v", err)
	}
}
