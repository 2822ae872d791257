// Package config loads DevHub settings from defaults, an optional YAML file
// and environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devhub/devhub-go/adapter/llm"
	"github.com/devhub/devhub-go/faults"
	"github.com/devhub/devhub-go/memory"
	"github.com/devhub/devhub-go/middleware"
	"github.com/devhub/devhub-go/observability"
)

// Config is the full DevHub configuration.
type Config struct {
	Server     ServerConfig                `yaml:"server"`
	LLM        llm.ProviderConfig          `yaml:"llm"`
	Embeddings EmbeddingsConfig            `yaml:"embeddings"`
	Fixtures   FixturesConfig              `yaml:"fixtures"`
	Faults     faults.Profiles             `yaml:"faults"`
	Seed       uint64                      `yaml:"seed"`
	Logging    LoggingConfig               `yaml:"logging"`
	Tracing    observability.TracingConfig `yaml:"tracing"`
	Session    SessionConfig               `yaml:"session"`
	Resilience ResilienceConfig            `yaml:"resilience"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// EmbeddingsConfig selects how documents are embedded for search.
type EmbeddingsConfig struct {
	// Provider is "hashing" (offline, deterministic) or "openai".
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

// FixturesConfig points at fixture files. Empty paths use the embedded
// workshop data.
type FixturesConfig struct {
	Docs   string `yaml:"docs"`
	Teams  string `yaml:"teams"`
	Status string `yaml:"status"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// SessionConfig controls chat history. An empty Redis URL keeps history in
// process memory.
type SessionConfig struct {
	MaxMessages int                `yaml:"maxMessages"`
	Redis       memory.RedisConfig `yaml:"redis"`
}

// ResilienceConfig guards completion calls. Each attempt gets LLMTimeout.
// Retries are opt-in: a request is a single pass unless LLMRetry.MaxAttempts
// is raised above 1.
type ResilienceConfig struct {
	LLMTimeout time.Duration          `yaml:"llmTimeout"`
	LLMRetry   middleware.RetryConfig `yaml:"llmRetry"`
}

// Embedding providers.
const (
	EmbeddingsHashing = "hashing"
	EmbeddingsOpenAI  = "openai"
)

// Load builds the configuration. An empty path falls back to DEVHUB_CONFIG;
// with neither set only defaults and environment apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("DEVHUB_CONFIG")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    60 * time.Second,
			GracefulTimeout: 10 * time.Second,
		},
		LLM: llm.ProviderConfig{
			Provider: llm.ProviderOpenAI,
			Model:    llm.DefaultOpenAIModel,
		},
		Embeddings: EmbeddingsConfig{Provider: EmbeddingsHashing},
		Faults:     faults.DefaultProfiles(),
		Logging:    LoggingConfig{Level: "info"},
		Tracing:    observability.TracingConfig{ServiceName: "devhub"},
		Session: SessionConfig{
			MaxMessages: 200,
			Redis: memory.RedisConfig{
				KeyPrefix: memory.DefaultKeyPrefix,
				TTL:       24 * time.Hour,
			},
		},
		Resilience: ResilienceConfig{
			LLMTimeout: middleware.DefaultTimeout,
			LLMRetry:   singleAttempt(),
		},
	}
}

func singleAttempt() middleware.RetryConfig {
	retry := middleware.DefaultRetryConfig()
	retry.MaxAttempts = 1
	return retry
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DEVHUB_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("DEVHUB_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}

	switch strings.ToLower(cfg.LLM.Provider) {
	case "", llm.ProviderOpenAI:
		if v := os.Getenv("OPENAI_MODEL"); v != "" {
			cfg.LLM.Model = v
		}
		if v := os.Getenv("OPENAI_API_KEY"); v != "" {
			cfg.LLM.APIKey = v
		}
		if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
			cfg.LLM.BaseURL = v
		}
	case llm.ProviderGemini:
		if v := os.Getenv("GEMINI_API_KEY"); v != "" {
			cfg.LLM.APIKey = v
		}
	case llm.ProviderBedrock:
		if v := os.Getenv("AWS_REGION"); v != "" && cfg.LLM.Region == "" {
			cfg.LLM.Region = v
		}
	}

	if v := os.Getenv("DEVHUB_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("DEVHUB_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DEVHUB_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("DEVHUB_OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.OTLPEndpoint = v
	}
	if v := os.Getenv("DEVHUB_REDIS_URL"); v != "" {
		cfg.Session.Redis.URL = v
	}
	if v := os.Getenv("DEVHUB_EMBEDDINGS"); v != "" {
		cfg.Embeddings.Provider = v
	}
	if v := os.Getenv("DEVHUB_DOCS_PATH"); v != "" {
		cfg.Fixtures.Docs = v
	}
	if v := os.Getenv("DEVHUB_TEAMS_PATH"); v != "" {
		cfg.Fixtures.Teams = v
	}
	if v := os.Getenv("DEVHUB_STATUS_PATH"); v != "" {
		cfg.Fixtures.Status = v
	}
	if v := os.Getenv("DEVHUB_SEED"); v != "" {
		if seed, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Seed = seed
		}
	}

	if strings.EqualFold(os.Getenv("DEVHUB_FAULTS"), "off") {
		cfg.Faults = cfg.Faults.Quiet()
	}
	envRate("DEVHUB_DOCSEARCH_UNAVAILABLE_RATE", &cfg.Faults.DocSearch.UnavailableRate)
	envRate("DEVHUB_DOCSEARCH_SLOW_RATE", &cfg.Faults.DocSearch.SlowRate)
	envRate("DEVHUB_DOCSEARCH_LOW_SIMILARITY_RATE", &cfg.Faults.DocSearch.LowSimilarityRate)
	envRate("DEVHUB_DIRECTORY_STALE_RATE", &cfg.Faults.Directory.StaleRate)
	envRate("DEVHUB_HEALTH_TIMEOUT_RATE", &cfg.Faults.Health.TimeoutRate)
}

func envRate(name string, dst *float64) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = f
	}
}

// Validate returns every problem found; an empty list means the
// configuration is usable.
func (c *Config) Validate() []string {
	var issues []string

	switch strings.ToLower(c.LLM.Provider) {
	case "", llm.ProviderOpenAI:
		if c.LLM.APIKey == "" && c.LLM.BaseURL == "" {
			issues = append(issues, "OPENAI_API_KEY environment variable not set")
		}
	case llm.ProviderGemini:
		if c.LLM.APIKey == "" {
			issues = append(issues, "GEMINI_API_KEY environment variable not set")
		}
	case llm.ProviderBedrock:
	default:
		issues = append(issues, fmt.Sprintf("unknown llm provider %q", c.LLM.Provider))
	}

	switch strings.ToLower(c.Embeddings.Provider) {
	case "", EmbeddingsHashing:
	case EmbeddingsOpenAI:
		if c.LLM.APIKey == "" {
			issues = append(issues, "openai embeddings need an OpenAI API key")
		}
	default:
		issues = append(issues, fmt.Sprintf("unknown embeddings provider %q", c.Embeddings.Provider))
	}

	for _, f := range []struct{ name, path string }{
		{"docs", c.Fixtures.Docs},
		{"teams", c.Fixtures.Teams},
		{"status", c.Fixtures.Status},
	} {
		if f.path == "" {
			continue
		}
		if _, err := os.Stat(f.path); err != nil {
			issues = append(issues, fmt.Sprintf("%s fixture not found: %s", f.name, f.path))
		}
	}

	if err := c.Faults.Validate(); err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			issues = append(issues, "faults: "+line)
		}
	}
	if c.Server.Address == "" {
		issues = append(issues, "server address is empty")
	}
	if c.Session.MaxMessages < 0 {
		issues = append(issues, "session.maxMessages must not be negative")
	}
	if c.Resilience.LLMTimeout < 0 || c.Resilience.LLMRetry.MaxAttempts < 0 {
		issues = append(issues, "resilience settings must not be negative")
	}
	return issues
}

// Print writes a human-readable summary. Secrets are never printed.
func (c *Config) Print(w io.Writer) {
	rule := strings.Repeat("=", 60)
	fixture := func(path string) string {
		if path == "" {
			return "(embedded)"
		}
		return path
	}
	pct := func(rate float64) string {
		return fmt.Sprintf("%.0f%%", rate*100)
	}

	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "DevHub Configuration")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "LLM Provider: %s\n", c.LLM.Provider)
	fmt.Fprintf(w, "LLM Model: %s\n", c.LLM.Model)
	fmt.Fprintf(w, "API Key: %s\n", mask(c.LLM.APIKey))
	fmt.Fprintf(w, "LLM Timeout: %v (max %d attempts)\n", c.Resilience.LLMTimeout, c.Resilience.LLMRetry.MaxAttempts)
	fmt.Fprintf(w, "Embeddings: %s\n", c.Embeddings.Provider)
	fmt.Fprintf(w, "Docs: %s\n", fixture(c.Fixtures.Docs))
	fmt.Fprintf(w, "Teams: %s\n", fixture(c.Fixtures.Teams))
	fmt.Fprintf(w, "Status: %s\n", fixture(c.Fixtures.Status))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Failure Rates:")
	fmt.Fprintf(w, "  DocSearch Slow Query: %s\n", pct(c.Faults.DocSearch.SlowRate))
	fmt.Fprintf(w, "  DocSearch Connection Failure: %s\n", pct(c.Faults.DocSearch.UnavailableRate))
	fmt.Fprintf(w, "  DocSearch Low Similarity: %s\n", pct(c.Faults.DocSearch.LowSimilarityRate))
	fmt.Fprintf(w, "  Directory Stale Data: %s\n", pct(c.Faults.Directory.StaleRate))
	fmt.Fprintf(w, "  Health Timeout: %s\n", pct(c.Faults.Health.TimeoutRate))
	fmt.Fprintf(w, "Low Similarity Threshold: %.2f\n", c.Faults.DocSearch.LowSimilarityThreshold)
	fmt.Fprintln(w, rule)
}

func mask(secret string) string {
	switch {
	case secret == "":
		return "(not set)"
	case len(secret) <= 8:
		return "****"
	default:
		return secret[:3] + "..." + secret[len(secret)-4:]
	}
}
