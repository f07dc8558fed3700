package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider describes one configured LLM provider. The set of providers is
// closed once loaded: dispatch resolves names against this list and rejects
// anything else.
type Provider struct {
	Name            string        `yaml:"-"`
	BaseURL         string        `yaml:"api_base"`
	APIKey          string        `yaml:"api_key"`
	APIKeyEnv       string        `yaml:"api_key_env"`
	Model           string        `yaml:"model"`
	CompletionsPath string        `yaml:"completions_path"`
	TimeoutSeconds  int           `yaml:"timeout_seconds"`
	MaxRetries      int           `yaml:"max_retries"`
	Default         bool          `yaml:"default"`
	Timeout         time.Duration `yaml:"-"`
}

type providersFile struct {
	Providers map[string]*Provider `yaml:"providers"`
}

// LoadProviders parses the provider declarations from a YAML file and
// validates them. Exactly one provider must be marked default.
func LoadProviders(path string) ([]Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers config: %w", err)
	}

	var file providersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse providers config: %w", err)
	}
	if len(file.Providers) == 0 {
		return nil, fmt.Errorf("providers config %s declares no providers", path)
	}

	defaults := 0
	out := make([]Provider, 0, len(file.Providers))
	for name, p := range file.Providers {
		p.Name = strings.ToLower(strings.TrimSpace(name))
		if p.Name == "" {
			return nil, fmt.Errorf("provider with empty name")
		}
		if strings.TrimSpace(p.BaseURL) == "" {
			return nil, fmt.Errorf("provider %s: api_base is required", p.Name)
		}
		if strings.TrimSpace(p.Model) == "" {
			return nil, fmt.Errorf("provider %s: model is required", p.Name)
		}
		if p.APIKeyEnv != "" {
			if v := os.Getenv(p.APIKeyEnv); v != "" {
				p.APIKey = v
			}
		}
		if p.CompletionsPath == "" {
			p.CompletionsPath = "/chat/completions"
		}
		if p.TimeoutSeconds <= 0 {
			p.TimeoutSeconds = 90
		}
		if p.MaxRetries <= 0 {
			p.MaxRetries = 1
		}
		if p.Default {
			defaults++
		}
		p.Timeout = time.Duration(p.TimeoutSeconds) * time.Second
		out = append(out, *p)
	}
	if defaults != 1 {
		return nil, fmt.Errorf("providers config must mark exactly one default provider, found %d", defaults)
	}
	return out, nil
}

// Feed describes one aggregation feed: an ordered list of mirrors serving the
// same logical dataset, a cache TTL, and a cap on returned items.
type Feed struct {
	Key        string   `yaml:"-"`
	Mirrors    []string `yaml:"mirrors"`
	TTLSeconds int      `yaml:"ttl_seconds"`
	Limit      int      `yaml:"limit"`

	TTL time.Duration `yaml:"-"`
}

type feedsFile struct {
	Feeds map[string]*Feed `yaml:"feeds"`
}

// LoadFeeds parses the aggregation feed declarations from a YAML file.
func LoadFeeds(path string) ([]Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feeds config: %w", err)
	}

	var file feedsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse feeds config: %w", err)
	}

	out := make([]Feed, 0, len(file.Feeds))
	for key, f := range file.Feeds {
		f.Key = strings.ToLower(strings.TrimSpace(key))
		if f.Key == "" {
			return nil, fmt.Errorf("feed with empty key")
		}
		if len(f.Mirrors) == 0 {
			return nil, fmt.Errorf("feed %s: at least one mirror is required", f.Key)
		}
		if f.TTLSeconds <= 0 {
			f.TTLSeconds = 300
		}
		if f.Limit <= 0 {
			f.Limit = 50
		}
		f.TTL = time.Duration(f.TTLSeconds) * time.Second
		out = append(out, *f)
	}
	return out, nil
}
