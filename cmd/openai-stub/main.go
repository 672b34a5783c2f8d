package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"
)

type completionRequest struct {
	Model     string   `json:"model"`
	Prompt    string   `json:"prompt"`
	MaxTokens int      `json:"max_tokens"`
	Stream    bool     `json:"stream"`
	Stop      []string `json:"stop"`
}

var sourceHeader = regexp.MustCompile(`(?m)^Source \[(\d+)\]:$`)

// answerFor builds a canned answer that cites every source in the prompt.
func answerFor(prompt string) []string {
	matches := sourceHeader.FindAllStringSubmatch(prompt, -1)
	if len(matches) == 0 {
		return []string{"No sources ", "were provided."}
	}
	parts := []string{"Based on ", fmt.Sprintf("%d sources", len(matches)), ", here is the answer"}
	for _, m := range matches {
		parts = append(parts, " ["+m[1]+"]")
	}
	return append(parts, ".")
}

func main() {
	model := os.Getenv("MODEL_ID")
	if strings.TrimSpace(model) == "" {
		model = "text-davinci-003"
	}
	addr := os.Getenv("ADDR")
	if strings.TrimSpace(addr) == "" {
		addr = ":8081"
	}
	key := os.Getenv("STUB_API_KEY")
	delay, _ := time.ParseDuration(os.Getenv("CHUNK_DELAY"))

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []map[string]any{{"id": model, "object": "model"}},
		})
	})
	mux.HandleFunc("/v1/completions", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if key != "" && r.Header.Get("Authorization") != "Bearer "+key {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
			return
		}
		var req completionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid JSON body","type":"invalid_request_error"}}`))
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok || !req.Stream {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"only streaming completions are supported","type":"invalid_request_error"}}`))
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		for _, part := range answerFor(req.Prompt) {
			b, _ := json.Marshal(map[string]any{
				"object":  "text_completion",
				"model":   req.Model,
				"choices": []map[string]any{{"text": part, "index": 0}},
			})
			fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
			if delay > 0 {
				select {
				case <-r.Context().Done():
					return
				case <-time.After(delay):
				}
			}
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
		flusher.Flush()
	})

	log.Printf("openai-stub listening on %s (model %s)", addr, model)
	log.Fatal(http.ListenAndServe(addr, mux))
}
