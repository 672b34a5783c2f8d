package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultBaseURL is the OpenAI v1 API root.
const DefaultBaseURL = "https://api.openai.com/v1"

// CompletionRequest is the body of a streaming legacy completions call.
// Every sampling field is always serialized so zero values reach the
// backend instead of its defaults.
type CompletionRequest struct {
	Model            string   `json:"model"`
	Prompt           string   `json:"prompt"`
	MaxTokens        int      `json:"max_tokens"`
	Temperature      float64  `json:"temperature"`
	TopP             float64  `json:"top_p"`
	FrequencyPenalty float64  `json:"frequency_penalty"`
	PresencePenalty  float64  `json:"presence_penalty"`
	N                int      `json:"n"`
	Stop             []string `json:"stop"`
	Stream           bool     `json:"stream"`
}

// NewCompletionRequest returns a request with the deterministic decoding
// parameters used for answers.
func NewCompletionRequest(model, prompt string, maxTokens int, stop string) CompletionRequest {
	return CompletionRequest{
		Model:            model,
		Prompt:           prompt,
		MaxTokens:        maxTokens,
		Temperature:      0,
		TopP:             1,
		FrequencyPenalty: 0,
		PresencePenalty:  0,
		N:                1,
		Stop:             []string{stop},
		Stream:           true,
	}
}

// SetupError is returned when the backend answers a completion request with
// a non-2xx status. No stream exists when this error is returned.
type SetupError struct {
	StatusCode int
	// APIError is set when the body carried an OpenAI-style error object.
	APIError *openai.APIError
	Body     string
}

func (e *SetupError) Error() string {
	if e.APIError != nil && e.APIError.Message != "" {
		return fmt.Sprintf("completion setup failed: status %d: %s", e.StatusCode, e.APIError.Message)
	}
	if e.Body != "" {
		return fmt.Sprintf("completion setup failed: status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("completion setup failed: status %d", e.StatusCode)
}

// Unwrap exposes the decoded API error to errors.As.
func (e *SetupError) Unwrap() error {
	if e.APIError == nil {
		return nil
	}
	return e.APIError
}

// IsSetupError reports whether err is a SetupError.
func IsSetupError(err error) bool {
	var se *SetupError
	return errors.As(err, &se)
}

// Client posts completion requests to an OpenAI-compatible backend.
type Client struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL    string
	HTTPClient *http.Client
}

// Open sends req with the given bearer credential and returns the event
// stream body on a 2xx response. The caller owns closing the body. A
// transport failure is returned as is; a non-2xx status as *SetupError.
func (c *Client) Open(ctx context.Context, req CompletionRequest, apiKey string) (io.ReadCloser, error) {
	req.Stream = true
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("completion request: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		return nil, newSetupError(resp)
	}
	return resp.Body, nil
}

func newSetupError(resp *http.Response) *SetupError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	se := &SetupError{StatusCode: resp.StatusCode}
	var er openai.ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != nil {
		er.Error.HTTPStatusCode = resp.StatusCode
		se.APIError = er.Error
		return se
	}
	se.Body = strings.TrimSpace(string(body))
	return se
}
