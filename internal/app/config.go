package app

import (
	"time"
)

// Config holds runtime configuration for the application.
type Config struct {
	// LLM
	LLMBaseURL string
	LLMModel   string
	LLMAPIKey  string
	// SkipPreflight disables the model listing done by New.
	SkipPreflight bool

	// Search
	SearchProvider string // "google", "searxng" or "file"
	SearchURL      string // base URL of the google-style provider
	SearchUA       string
	SearxURL       string
	SearxKey       string
	SearchFile     string
	// ExtraDeny adds hostname fragments to the fixed denylist.
	ExtraDeny []string

	// Fetch
	FetchTimeout  time.Duration
	FetchUA       string
	MaxConcurrent int

	// Cache
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheClear       bool
	CacheStrictPerms bool

	// Server
	ListenAddr string

	// CredentialLength is the exact length an API key must have. Zero
	// disables the check.
	CredentialLength int

	Verbose bool
}

const (
	ProviderGoogle  = "google"
	ProviderSearxNG = "searxng"
	ProviderFile    = "file"

	defaultFetchUA          = "goanswer/1.0 (+https://github.com/hyperifyio/goanswer)"
	defaultFetchTimeout     = 10 * time.Second
	defaultCredentialLength = 51
)

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() Config {
	return Config{
		LLMBaseURL:       "https://api.openai.com/v1",
		LLMModel:         "text-davinci-003",
		SearchProvider:   ProviderGoogle,
		FetchTimeout:     defaultFetchTimeout,
		FetchUA:          defaultFetchUA,
		ListenAddr:       ":8080",
		CredentialLength: defaultCredentialLength,
	}
}
