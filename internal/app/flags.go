package app

import (
	"flag"
	"fmt"
)

// Flags binds the shared command line flags. Only flags actually given on
// the command line override the configuration, so precedence stays
// flags > env > config file > defaults.
type Flags struct {
	fs *flag.FlagSet
	v  Config

	ConfigPath string
	Version    bool
	deny       string
}

// BindFlags registers the configuration flags on fs.
func BindFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	d := DefaultConfig()
	fs.StringVar(&f.ConfigPath, "config", "", "Path to YAML or JSON config file")
	fs.BoolVar(&f.Version, "version", false, "Print version and exit")
	fs.StringVar(&f.v.LLMBaseURL, "llm.base", d.LLMBaseURL, "OpenAI-compatible base URL")
	fs.StringVar(&f.v.LLMModel, "llm.model", d.LLMModel, "Completion model; selects the prompt tier")
	fs.StringVar(&f.v.LLMAPIKey, "llm.key", "", "API key for the completion backend")
	fs.BoolVar(&f.v.SkipPreflight, "llm.noPreflight", false, "Skip listing models at startup")
	fs.StringVar(&f.v.SearchProvider, "search.provider", d.SearchProvider, "Search provider: google, searxng or file")
	fs.StringVar(&f.v.SearchURL, "search.url", "", "Base URL of the google-style search endpoint")
	fs.StringVar(&f.v.SearchUA, "search.ua", "", "User-Agent for search requests")
	fs.StringVar(&f.v.SearchFile, "search.file", "", "Path to JSON results for the file provider")
	fs.StringVar(&f.v.SearxURL, "searx.url", "", "SearxNG base URL")
	fs.StringVar(&f.v.SearxKey, "searx.key", "", "SearxNG API key (optional)")
	fs.StringVar(&f.deny, "deny", "", "Comma-separated extra hostname fragments to exclude")
	fs.DurationVar(&f.v.FetchTimeout, "fetch.timeout", d.FetchTimeout, "Per-URL fetch and extraction timeout")
	fs.StringVar(&f.v.FetchUA, "fetch.ua", d.FetchUA, "User-Agent for page fetches")
	fs.IntVar(&f.v.MaxConcurrent, "fetch.concurrency", 0, "Max concurrent page fetches (0 = one per link)")
	fs.StringVar(&f.v.CacheDir, "cache.dir", "", "Cache directory; empty disables caching")
	fs.DurationVar(&f.v.CacheMaxAge, "cache.maxAge", 0, "Purge cache entries older than this at startup (0 disables)")
	fs.BoolVar(&f.v.CacheClear, "cache.clear", false, "Clear the cache directory at startup")
	fs.BoolVar(&f.v.CacheStrictPerms, "cache.strictPerms", false, "Restrict cache permissions (0700 dirs, 0600 files)")
	fs.StringVar(&f.v.ListenAddr, "listen", d.ListenAddr, "HTTP listen address")
	fs.IntVar(&f.v.CredentialLength, "credential.length", d.CredentialLength, "Required API key length (0 disables)")
	fs.BoolVar(&f.v.Verbose, "v", false, "Verbose logging")
	return f
}

// Apply copies the flags that were set on the command line into cfg.
func (f *Flags) Apply(cfg *Config) {
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "llm.base":
			cfg.LLMBaseURL = f.v.LLMBaseURL
		case "llm.model":
			cfg.LLMModel = f.v.LLMModel
		case "llm.key":
			cfg.LLMAPIKey = f.v.LLMAPIKey
		case "llm.noPreflight":
			cfg.SkipPreflight = f.v.SkipPreflight
		case "search.provider":
			cfg.SearchProvider = f.v.SearchProvider
		case "search.url":
			cfg.SearchURL = f.v.SearchURL
		case "search.ua":
			cfg.SearchUA = f.v.SearchUA
		case "search.file":
			cfg.SearchFile = f.v.SearchFile
		case "searx.url":
			cfg.SearxURL = f.v.SearxURL
		case "searx.key":
			cfg.SearxKey = f.v.SearxKey
		case "deny":
			cfg.ExtraDeny = splitList(f.deny)
		case "fetch.timeout":
			cfg.FetchTimeout = f.v.FetchTimeout
		case "fetch.ua":
			cfg.FetchUA = f.v.FetchUA
		case "fetch.concurrency":
			cfg.MaxConcurrent = f.v.MaxConcurrent
		case "cache.dir":
			cfg.CacheDir = f.v.CacheDir
		case "cache.maxAge":
			cfg.CacheMaxAge = f.v.CacheMaxAge
		case "cache.clear":
			cfg.CacheClear = f.v.CacheClear
		case "cache.strictPerms":
			cfg.CacheStrictPerms = f.v.CacheStrictPerms
		case "listen":
			cfg.ListenAddr = f.v.ListenAddr
		case "credential.length":
			cfg.CredentialLength = f.v.CredentialLength
		case "v":
			cfg.Verbose = f.v.Verbose
		}
	})
}

// LoadConfig loads .env files, then builds the configuration from the
// defaults, the optional config file and the environment.
func LoadConfig(configPath string) (Config, error) {
	if err := LoadEnvFiles(".env", ".env.local"); err != nil {
		return Config{}, fmt.Errorf("load env files: %w", err)
	}
	cfg := DefaultConfig()
	if configPath != "" {
		fc, err := LoadConfigFile(configPath)
		if err != nil {
			return Config{}, fmt.Errorf("load config file: %w", err)
		}
		ApplyFileConfig(&cfg, fc)
	}
	ApplyEnvOverrides(&cfg)
	return cfg, nil
}

// VersionString formats the build information.
func VersionString(name string) string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", name, BuildVersion, BuildCommit, BuildDate)
}

