package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/hyperifyio/goanswer/internal/app"
)

func routedClient(srv *httptest.Server) *http.Client {
	addr := srv.Listener.Addr().String()
	return &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}}
}

// newTestAPI wires a real pipeline to a fake web (search + pages) and a
// fake completion backend.
func newTestAPI(t *testing.T, searchStatus, llmStatus int, credentialLength int) *httptest.Server {
	t.Helper()
	web := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Host {
		case "search.test":
			if searchStatus != http.StatusOK {
				w.WriteHeader(searchStatus)
				return
			}
			_, _ = io.WriteString(w, `<a href="/url?q=http://a.test/doc&amp;sa=U">a</a><a href="/url?q=http://b.test/doc&amp;sa=U">b</a>`)
		case "a.test":
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, "<html><body><main><p>Alpha facts about X.</p></main></body></html>")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(web.Close)

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if llmStatus != http.StatusOK {
			w.WriteHeader(llmStatus)
			_, _ = io.WriteString(w, `{"error":{"message":"bad key"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hi", " there"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"text\":%q}]}\n\n", part)
			w.(http.Flusher).Flush()
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(backend.Close)

	cfg := app.DefaultConfig()
	cfg.SearchURL = "http://search.test"
	cfg.LLMBaseURL = backend.URL
	cfg.SkipPreflight = true
	cfg.CredentialLength = credentialLength
	cfg.FetchTimeout = 2 * time.Second
	a, err := app.New(context.Background(), cfg, app.WithHTTPClient(routedClient(web)))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	api := httptest.NewServer(New(a))
	t.Cleanup(api.Close)
	return api
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t, http.StatusOK, http.StatusOK, 0)
	resp, err := http.Get(api.URL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %v %v", resp, err)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("missing request id")
	}
	resp.Body.Close()

	post(t, api.URL+"/api/sources", `{"query":"x"}`)
	resp, err = http.Get(api.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "goanswer_http_requests_total") {
		t.Fatal("metrics should expose pipeline counters")
	}
}

func TestSources(t *testing.T) {
	api := newTestAPI(t, http.StatusOK, http.StatusOK, 0)
	resp := post(t, api.URL+"/api/sources", `{"query":"what is X","model":"text-davinci-003"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var out struct {
		Sources []struct {
			URL  string `json:"url"`
			Text string `json:"text"`
		} `json:"sources"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Sources) != 1 || out.Sources[0].URL != "http://a.test/doc" || !strings.Contains(out.Sources[0].Text, "Alpha facts") {
		t.Fatalf("unexpected sources %+v", out.Sources)
	}

	if resp := post(t, api.URL+"/api/sources", `{"query":"  "}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank query: status %d", resp.StatusCode)
	}
}

func TestSources_HarvestFailure(t *testing.T) {
	api := newTestAPI(t, http.StatusInternalServerError, http.StatusOK, 0)
	resp := post(t, api.URL+"/api/sources", `{"query":"x"}`)
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusInternalServerError || strings.TrimSpace(string(b)) != `{"sources":[]}` {
		t.Fatalf("unexpected reply %d %s", resp.StatusCode, b)
	}
}

func TestAnswer_StreamsPlainText(t *testing.T) {
	api := newTestAPI(t, http.StatusOK, http.StatusOK, 0)
	resp := post(t, api.URL+"/api/answer", `{"prompt":"p","model":"text-davinci-003","apiKey":"k"}`)
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(b) != "Hi there" {
		t.Fatalf("unexpected reply %d %q", resp.StatusCode, b)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		t.Fatalf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}
}

func TestAnswer_Failures(t *testing.T) {
	api := newTestAPI(t, http.StatusOK, http.StatusUnauthorized, 51)
	if resp := post(t, api.URL+"/api/answer", `{"prompt":"p","apiKey":"short"}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid key: status %d", resp.StatusCode)
	}
	key := strings.Repeat("k", 51)
	resp := post(t, api.URL+"/api/answer", `{"prompt":"p","apiKey":"`+key+`"}`)
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusInternalServerError || strings.TrimSpace(string(b)) != "Error" {
		t.Fatalf("setup failure: %d %q", resp.StatusCode, b)
	}
}

func TestAsk_NDJSON(t *testing.T) {
	api := newTestAPI(t, http.StatusOK, http.StatusOK, 0)
	resp := post(t, api.URL+"/api/ask", `{"query":"what is X","apiKey":"k"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var lines []map[string]json.RawMessage
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		var m map[string]json.RawMessage
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		lines = append(lines, m)
	}
	if len(lines) != 4 {
		t.Fatalf("expected sources, two chunks and done; got %d lines", len(lines))
	}
	if _, ok := lines[0]["sources"]; !ok {
		t.Fatal("first line must carry the sources")
	}
	if string(lines[1]["chunk"]) != `"Hi"` || string(lines[2]["chunk"]) != `" there"` || string(lines[3]["done"]) != "true" {
		t.Fatalf("unexpected lines %v", lines)
	}
	if _, ok := lines[3]["citations"]; !ok {
		t.Fatal("done line should report the citation check")
	}
}

func TestAsk_StreamSetupFailureAfterSources(t *testing.T) {
	api := newTestAPI(t, http.StatusOK, http.StatusUnauthorized, 0)
	resp := post(t, api.URL+"/api/ask", `{"query":"what is X","apiKey":"k"}`)
	b, _ := io.ReadAll(resp.Body)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], `{"sources":`) || lines[1] != `{"error":"Error"}` {
		t.Fatalf("unexpected body %q", b)
	}
}

func TestAnswerWebSocket(t *testing.T) {
	api := newTestAPI(t, http.StatusOK, http.StatusOK, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(api.URL, "http") + "/api/answer/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"prompt":"p","apiKey":"k"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	var got []string
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				t.Fatalf("expected normal closure, got %v", err)
			}
			break
		}
		got = append(got, string(data))
	}
	if strings.Join(got, "|") != "Hi| there" {
		t.Fatalf("unexpected messages %q", got)
	}
}

func TestAnswerWebSocket_SetupFailure(t *testing.T) {
	api := newTestAPI(t, http.StatusOK, http.StatusUnauthorized, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(api.URL, "http")+"/api/answer/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	_ = conn.Write(ctx, websocket.MessageText, []byte(`{"prompt":"p","apiKey":"k"}`))
	_, data, err := conn.Read(ctx)
	if err != nil || string(data) != `{"error":"Error"}` {
		t.Fatalf("expected error message, got %q %v", data, err)
	}
	_, _, err = conn.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusInternalError {
		t.Fatalf("expected 1011 close, got %v", err)
	}
}

// answerAPI serves /api/answer against a backend that writes body verbatim.
func answerAPI(t *testing.T, body string) *httptest.Server {
	t.Helper()
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(backend.Close)
	cfg := app.DefaultConfig()
	cfg.LLMBaseURL = backend.URL
	cfg.SkipPreflight = true
	cfg.CredentialLength = 0
	a, err := app.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(a.Close)
	api := httptest.NewServer(New(a))
	t.Cleanup(api.Close)
	return api
}

func TestAnswer_MidStreamErrorBreaksBody(t *testing.T) {
	api := answerAPI(t, "data: {\"choices\":[{\"text\":\"Hi\"}]}\n\ndata: {not json\n\n")
	resp := post(t, api.URL+"/api/answer", `{"prompt":"p","apiKey":"k"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err == nil {
		t.Fatalf("expected a failed body read, got clean end with %q", b)
	}
	if string(b) != "Hi" {
		t.Fatalf("chunks sent before the failure should stand, got %q", b)
	}
}

func TestAnswer_DoneEndsBodyCleanly(t *testing.T) {
	api := answerAPI(t, "data: {\"choices\":[{\"text\":\"Hi\"}]}\n\ndata: [DONE]\n\n")
	resp := post(t, api.URL+"/api/answer", `{"prompt":"p","apiKey":"k"}`)
	b, err := io.ReadAll(resp.Body)
	if err != nil || string(b) != "Hi" {
		t.Fatalf("expected %q and clean end, got %q %v", "Hi", b, err)
	}
}
