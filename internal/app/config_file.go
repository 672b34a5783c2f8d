package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig represents the single-file configuration schema.
// Nested sections map naturally to flags and env.
type FileConfig struct {
	LLM struct {
		BaseURL string `yaml:"base" json:"base"`
		Model   string `yaml:"model" json:"model"`
		APIKey  string `yaml:"key" json:"key"`
	} `yaml:"llm" json:"llm"`

	Search struct {
		Provider string   `yaml:"provider" json:"provider"`
		URL      string   `yaml:"url" json:"url"`
		UA       string   `yaml:"ua" json:"ua"`
		File     string   `yaml:"file" json:"file"`
		Deny     []string `yaml:"deny" json:"deny"`
	} `yaml:"search" json:"search"`

	Searx struct {
		URL string `yaml:"url" json:"url"`
		Key string `yaml:"key" json:"key"`
	} `yaml:"searx" json:"searx"`

	Fetch struct {
		Timeout     time.Duration `yaml:"timeout" json:"timeout"`
		UA          string        `yaml:"ua" json:"ua"`
		Concurrency int           `yaml:"concurrency" json:"concurrency"`
	} `yaml:"fetch" json:"fetch"`

	Cache struct {
		Dir         string        `yaml:"dir" json:"dir"`
		MaxAge      time.Duration `yaml:"maxAge" json:"maxAge"`
		Clear       bool          `yaml:"clear" json:"clear"`
		StrictPerms bool          `yaml:"strictPerms" json:"strictPerms"`
	} `yaml:"cache" json:"cache"`

	Server struct {
		Listen string `yaml:"listen" json:"listen"`
	} `yaml:"server" json:"server"`

	Credential struct {
		// Length is a pointer so an explicit 0 can disable the check.
		Length *int `yaml:"length" json:"length"`
	} `yaml:"credential" json:"credential"`

	Verbose bool `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays every value set in fc onto cfg. Call it on the
// defaults before env and flags are applied.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	setStr := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	setStr(&cfg.LLMBaseURL, fc.LLM.BaseURL)
	setStr(&cfg.LLMModel, fc.LLM.Model)
	setStr(&cfg.LLMAPIKey, fc.LLM.APIKey)

	setStr(&cfg.SearchProvider, strings.ToLower(fc.Search.Provider))
	setStr(&cfg.SearchURL, fc.Search.URL)
	setStr(&cfg.SearchUA, fc.Search.UA)
	setStr(&cfg.SearchFile, fc.Search.File)
	if len(fc.Search.Deny) > 0 {
		cfg.ExtraDeny = append([]string{}, fc.Search.Deny...)
	}
	setStr(&cfg.SearxURL, fc.Searx.URL)
	setStr(&cfg.SearxKey, fc.Searx.Key)

	if fc.Fetch.Timeout > 0 {
		cfg.FetchTimeout = fc.Fetch.Timeout
	}
	setStr(&cfg.FetchUA, fc.Fetch.UA)
	if fc.Fetch.Concurrency > 0 {
		cfg.MaxConcurrent = fc.Fetch.Concurrency
	}

	setStr(&cfg.CacheDir, fc.Cache.Dir)
	if fc.Cache.MaxAge > 0 {
		cfg.CacheMaxAge = fc.Cache.MaxAge
	}
	if fc.Cache.Clear {
		cfg.CacheClear = true
	}
	if fc.Cache.StrictPerms {
		cfg.CacheStrictPerms = true
	}

	setStr(&cfg.ListenAddr, fc.Server.Listen)
	if fc.Credential.Length != nil {
		cfg.CredentialLength = *fc.Credential.Length
	}
	if fc.Verbose {
		cfg.Verbose = true
	}
}

// ValidateConfig performs minimal validation of the merged configuration.
func ValidateConfig(cfg Config) error {
	if cfg.MaxConcurrent < 0 || cfg.CredentialLength < 0 || cfg.FetchTimeout < 0 || cfg.CacheMaxAge < 0 {
		return errors.New("config: negative limits are not allowed")
	}
	switch cfg.SearchProvider {
	case "", ProviderGoogle:
	case ProviderSearxNG:
		if strings.TrimSpace(cfg.SearxURL) == "" {
			return errors.New("config: searx.url is required for the searxng provider (or set SEARX_URL)")
		}
	case ProviderFile:
		if strings.TrimSpace(cfg.SearchFile) == "" {
			return errors.New("config: search.file is required for the file provider (or set SEARCH_FILE)")
		}
	default:
		return fmt.Errorf("config: unknown search provider %q", cfg.SearchProvider)
	}
	return nil
}
