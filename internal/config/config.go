// Package config provides configuration management for meetgraph.
// It loads settings from an optional YAML file and from environment
// variables with the MEETGRAPH_ prefix, with environment variables taking
// precedence. Sensible defaults are provided for every option.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the meetgraph application.
type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Resolution ResolutionConfig `yaml:"resolution"`
	Query      QueryConfig      `yaml:"query"`
	Network    NetworkConfig    `yaml:"network"`
}

// LLMConfig contains settings for the OpenAI-compatible chat API.
type LLMConfig struct {
	APIKey         string   `yaml:"api_key"`         // Bearer token
	BaseURL        string   `yaml:"base_url"`        // API base URL (default: https://api.openai.com)
	Model          string   `yaml:"model"`           // Primary model (default: gpt-4o-mini)
	ModelFallbacks []string `yaml:"model_fallbacks"` // Ordered fallback chain after the primary
	CacheTTLSec    int      `yaml:"cache_ttl_s"`     // Response cache TTL (default: 3600)
	TimeoutSec     int      `yaml:"timeout_s"`       // Per-call timeout (default: 30)
	MaxRetries     int      `yaml:"max_retries"`     // Retry attempts with capped backoff (default: 3)
}

// StorageConfig contains relational and vector store configuration.
type StorageConfig struct {
	Engine             string `yaml:"engine"`                    // sqlite or postgres (default: sqlite)
	RelationalPath     string `yaml:"relational_store_path"`     // SQLite database path (default: ./data/meetgraph.db)
	PostgresDSN        string `yaml:"postgres_dsn"`              // Postgres connection string (postgres engine only)
	MemoriesCollection string `yaml:"vector_memories_collection"` // default: memories
	EntitiesCollection string `yaml:"vector_entities_collection"` // default: entity_names
}

// EmbeddingConfig contains embedding engine configuration.
type EmbeddingConfig struct {
	ModelPath string `yaml:"model_path"` // Vocabulary/model directory (optional)
	MaxLength int    `yaml:"max_length"` // Token sequence cap (default: 256)
	Dimension int    `yaml:"dim"`        // Vector dimension (default: 384)
}

// ResolutionConfig contains entity resolver thresholds and cache settings.
type ResolutionConfig struct {
	VectorThreshold float64 `yaml:"vector_threshold"` // default: 0.85, floor 0.50
	FuzzyThreshold  float64 `yaml:"fuzzy_threshold"`  // default: 0.75, floor 0.50
	UseLLM          bool    `yaml:"use_llm"`          // default: true
	CacheTTLSec     int     `yaml:"entity_cache_ttl_s"` // default: 300
}

// QueryConfig contains query engine settings.
type QueryConfig struct {
	TimelineDisplayLimit int `yaml:"timeline_display_limit"` // default: 10
}

// NetworkConfig contains proxy and TLS settings for outbound HTTP.
type NetworkConfig struct {
	HTTPProxy  string `yaml:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy"`
	NoProxy    string `yaml:"no_proxy"`
	TLSVerify  bool   `yaml:"tls_verify"` // default: true
}

// Thresholds below these floors are clamped; resolution quality collapses
// under them regardless of configuration.
const (
	VectorThresholdFloor = 0.50
	FuzzyThresholdFloor  = 0.50
)

// LoadConfig loads configuration from environment variables with defaults.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()
	applyEnv(cfg)
	cfg.clamp()
	return cfg, nil
}

// LoadConfigFile loads configuration from a YAML file, then applies
// environment variable overrides.
func LoadConfigFile(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applyEnv(cfg)
	cfg.clamp()
	return cfg, nil
}

// defaultConfig constructs a Config with all defaults applied.
func defaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com",
			Model:       "gpt-4o-mini",
			CacheTTLSec: 3600,
			TimeoutSec:  30,
			MaxRetries:  3,
		},
		Storage: StorageConfig{
			Engine:             "sqlite",
			RelationalPath:     "./data/meetgraph.db",
			MemoriesCollection: "memories",
			EntitiesCollection: "entity_names",
		},
		Embedding: EmbeddingConfig{
			MaxLength: 256,
			Dimension: 384,
		},
		Resolution: ResolutionConfig{
			VectorThreshold: 0.85,
			FuzzyThreshold:  0.75,
			UseLLM:          true,
			CacheTTLSec:     300,
		},
		Query: QueryConfig{
			TimelineDisplayLimit: 10,
		},
		Network: NetworkConfig{
			TLSVerify: true,
		},
	}
}

// applyEnv overlays MEETGRAPH_ environment variables onto cfg.
func applyEnv(cfg *Config) {
	cfg.LLM.APIKey = getEnv("MEETGRAPH_LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.BaseURL = getEnv("MEETGRAPH_LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.Model = getEnv("MEETGRAPH_LLM_MODEL", cfg.LLM.Model)
	if v := os.Getenv("MEETGRAPH_LLM_MODEL_FALLBACKS"); v != "" {
		cfg.LLM.ModelFallbacks = splitList(v)
	}
	cfg.LLM.CacheTTLSec = getEnvInt("MEETGRAPH_LLM_CACHE_TTL_S", cfg.LLM.CacheTTLSec)
	cfg.LLM.TimeoutSec = getEnvInt("MEETGRAPH_LLM_TIMEOUT_S", cfg.LLM.TimeoutSec)
	cfg.LLM.MaxRetries = getEnvInt("MEETGRAPH_LLM_MAX_RETRIES", cfg.LLM.MaxRetries)

	cfg.Storage.Engine = getEnv("MEETGRAPH_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.RelationalPath = getEnv("MEETGRAPH_RELATIONAL_STORE_PATH", cfg.Storage.RelationalPath)
	cfg.Storage.PostgresDSN = getEnv("MEETGRAPH_POSTGRES_DSN", cfg.Storage.PostgresDSN)
	cfg.Storage.MemoriesCollection = getEnv("MEETGRAPH_VECTOR_MEMORIES_COLLECTION", cfg.Storage.MemoriesCollection)
	cfg.Storage.EntitiesCollection = getEnv("MEETGRAPH_VECTOR_ENTITIES_COLLECTION", cfg.Storage.EntitiesCollection)

	cfg.Embedding.ModelPath = getEnv("MEETGRAPH_EMBEDDING_MODEL_PATH", cfg.Embedding.ModelPath)
	cfg.Embedding.MaxLength = getEnvInt("MEETGRAPH_EMBEDDING_MAX_LENGTH", cfg.Embedding.MaxLength)
	cfg.Embedding.Dimension = getEnvInt("MEETGRAPH_EMBEDDING_DIM", cfg.Embedding.Dimension)

	cfg.Resolution.VectorThreshold = getEnvFloat("MEETGRAPH_ENTITY_RESOLUTION_VECTOR_THRESHOLD", cfg.Resolution.VectorThreshold)
	cfg.Resolution.FuzzyThreshold = getEnvFloat("MEETGRAPH_ENTITY_RESOLUTION_FUZZY_THRESHOLD", cfg.Resolution.FuzzyThreshold)
	cfg.Resolution.UseLLM = getEnvBool("MEETGRAPH_ENTITY_RESOLUTION_USE_LLM", cfg.Resolution.UseLLM)
	cfg.Resolution.CacheTTLSec = getEnvInt("MEETGRAPH_ENTITY_CACHE_TTL_S", cfg.Resolution.CacheTTLSec)

	cfg.Query.TimelineDisplayLimit = getEnvInt("MEETGRAPH_TIMELINE_DISPLAY_LIMIT", cfg.Query.TimelineDisplayLimit)

	cfg.Network.HTTPProxy = getEnv("MEETGRAPH_HTTP_PROXY", getEnv("HTTP_PROXY", cfg.Network.HTTPProxy))
	cfg.Network.HTTPSProxy = getEnv("MEETGRAPH_HTTPS_PROXY", getEnv("HTTPS_PROXY", cfg.Network.HTTPSProxy))
	cfg.Network.NoProxy = getEnv("MEETGRAPH_NO_PROXY", getEnv("NO_PROXY", cfg.Network.NoProxy))
	cfg.Network.TLSVerify = getEnvBool("MEETGRAPH_TLS_VERIFY", cfg.Network.TLSVerify)
}

// clamp enforces hard floors and minimum values on tunables.
func (c *Config) clamp() {
	if c.Resolution.VectorThreshold < VectorThresholdFloor {
		c.Resolution.VectorThreshold = VectorThresholdFloor
	}
	if c.Resolution.FuzzyThreshold < FuzzyThresholdFloor {
		c.Resolution.FuzzyThreshold = FuzzyThresholdFloor
	}
	if c.Embedding.Dimension <= 0 {
		c.Embedding.Dimension = 384
	}
	if c.Embedding.MaxLength <= 0 {
		c.Embedding.MaxLength = 256
	}
	if c.LLM.TimeoutSec <= 0 {
		c.LLM.TimeoutSec = 30
	}
	if c.LLM.MaxRetries < 0 {
		c.LLM.MaxRetries = 0
	}
	if c.Query.TimelineDisplayLimit <= 0 {
		c.Query.TimelineDisplayLimit = 10
	}
}

// ModelChain returns the primary model followed by the fallbacks, with
// empty entries and duplicates removed.
func (c *LLMConfig) ModelChain() []string {
	seen := make(map[string]bool)
	var chain []string
	for _, m := range append([]string{c.Model}, c.ModelFallbacks...) {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		chain = append(chain, m)
	}
	return chain
}

// splitList splits a comma-separated environment value into a clean slice.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparsable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. Unparsable values fall back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value. Recognizes "true", "1", "yes" and "false", "0", "no".
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}
