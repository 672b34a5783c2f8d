package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides overrides cfg fields with environment variables when the
// corresponding variables are set. Env takes precedence over values from a
// config file while flags remain highest precedence.
func ApplyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLMBaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLMModel = v
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.LLMAPIKey = v
	}

	if v := os.Getenv("SEARCH_PROVIDER"); v != "" {
		cfg.SearchProvider = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("SEARCH_URL"); v != "" {
		cfg.SearchURL = v
	}
	if v := os.Getenv("SEARCH_FILE"); v != "" {
		cfg.SearchFile = v
	}
	// Support both SEARX_URL and SEARXNG_URL; SEARXNG_URL wins when both are set.
	if v := os.Getenv("SEARX_URL"); v != "" {
		cfg.SearxURL = v
	}
	if v := os.Getenv("SEARXNG_URL"); v != "" {
		cfg.SearxURL = v
	}
	if v := os.Getenv("SEARX_KEY"); v != "" {
		cfg.SearxKey = v
	}
	if v := strings.TrimSpace(os.Getenv("DENYLIST")); v != "" {
		cfg.ExtraDeny = splitList(v)
	}

	if v := os.Getenv("CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	setDuration(&cfg.CacheMaxAge, "CACHE_MAX_AGE")
	setDuration(&cfg.FetchTimeout, "FETCH_TIMEOUT")
	setInt(&cfg.MaxConcurrent, "FETCH_CONCURRENCY")
	setInt(&cfg.CredentialLength, "CREDENTIAL_LENGTH")

	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}

	setBool(&cfg.Verbose, "VERBOSE")
	setBool(&cfg.CacheClear, "CACHE_CLEAR")
	setBool(&cfg.CacheStrictPerms, "CACHE_STRICT_PERMS")
	setBool(&cfg.SkipPreflight, "SKIP_PREFLIGHT")
}

// setBool overrides dst when env is present and truthy/falsey.
func setBool(dst *bool, envKey string) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(envKey))) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	}
}

func setInt(dst *int, envKey string) {
	if s := strings.TrimSpace(os.Getenv(envKey)); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, envKey string) {
	if s := strings.TrimSpace(os.Getenv(envKey)); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			*dst = d
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
