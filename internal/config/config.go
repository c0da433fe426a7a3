// Package config provides layered configuration for casebot.
// Configuration is loaded with the precedence: defaults → .env file → YAML file → env vars.
// Environment variables always win; the file layers only fill keys that are unset.
// Each component then reads its own variables in a *FromEnv constructor.
//
// YAML search order:
//  1. --config CLI flag (explicit path)
//  2. CASEBOT_CONFIG environment variable
//  3. ~/.casebot/config.yaml
//  4. ./casebot.yaml
//
// The .env file is read from CASEBOT_ENV_FILE, or ./.env when that is unset.
// If neither file exists the system runs entirely from env vars.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Generation configures the answer-generating backend.
	Generation GenerationConfig `yaml:"generation"`

	// Embedding configures the question embedding model.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Index configures the vector index holding the case records.
	Index IndexConfig `yaml:"index"`

	// Context configures how retrieved records are rendered into the prompt.
	Context ContextConfig `yaml:"context"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// GenerationConfig holds generation backend settings.
type GenerationConfig struct {
	// Backend selects the generator: selfhosted, gemini, openai, azure, ark, ollama.
	Backend string `yaml:"backend"`
	// Timeout bounds a single generation call, e.g. "300s".
	Timeout string `yaml:"timeout"`
	// MaxTokens is the maximum number of tokens in the response (hosted backends).
	MaxTokens int `yaml:"max_tokens"`
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`

	SelfHosted SelfHostedConfig `yaml:"selfhosted"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Azure      AzureConfig      `yaml:"azure"`
	Ark        ArkConfig        `yaml:"ark"`
	Ollama     OllamaConfig     `yaml:"ollama"`
}

// SelfHostedConfig holds settings for a model served behind an HTTP tunnel.
type SelfHostedConfig struct {
	// URL is the full generate endpoint, e.g. https://abc.ngrok-free.app/api/generate.
	URL string `yaml:"url"`
	// Model is the model name sent in the request body.
	Model string `yaml:"model"`
	// Stream requests NDJSON streaming responses.
	Stream bool `yaml:"stream"`
	// InsecureTLS skips certificate verification.
	InsecureTLS bool `yaml:"insecure_tls"`
}

// GeminiConfig holds Google Gemini settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// OpenAIConfig holds OpenAI settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// AzureConfig holds Azure OpenAI settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

// ArkConfig holds Volcengine Ark settings.
type ArkConfig struct {
	// APIKey is the Ark API key. Prefer env var ARK_API_KEY.
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// OllamaConfig holds settings for an Ollama chat model reached directly.
type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// EmbeddingConfig holds embedding model settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure, gemini).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// CacheSize is the number of question embeddings kept in memory.
	CacheSize int `yaml:"cache_size"`
	// CacheTTL is how long a cached embedding stays valid, e.g. "1h".
	CacheTTL string `yaml:"cache_ttl"`
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	// Backend selects the index: qdrant or pgvector.
	Backend string `yaml:"backend"`
	// Name is the Qdrant collection or the pgvector table.
	Name string `yaml:"name"`
	// TopK is the default number of neighbours requested per question.
	TopK int `yaml:"top_k"`
	// MaxTopK caps any requested TopK.
	MaxTopK int `yaml:"max_top_k"`

	Qdrant   QdrantConfig   `yaml:"qdrant"`
	Pgvector PgvectorConfig `yaml:"pgvector"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	TLS    bool   `yaml:"tls"`
}

// PgvectorConfig holds Postgres connection settings.
type PgvectorConfig struct {
	// DSN is the lib/pq connection string. Prefer env var PGVECTOR_DSN.
	DSN string `yaml:"dsn"`
}

// ContextConfig holds prompt context rendering settings.
type ContextConfig struct {
	// MaxCharsPerRecord truncates each record's rendering; 0 disables.
	MaxCharsPerRecord int `yaml:"max_chars_per_record"`
	// MaxTokens bounds the whole context block; 0 disables.
	MaxTokens int `yaml:"max_tokens"`
	// Fields selects which record fields are rendered.
	Fields []string `yaml:"fields"`
	// LowConfidenceThreshold marks records scoring below it; an explicit 0
	// disables the marker.
	LowConfidenceThreshold *float32 `yaml:"low_confidence_threshold"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// RateLimit is the sustained requests per second allowed per client IP.
	RateLimit float64 `yaml:"rate_limit"`
	// RateBurst is the burst size per client IP.
	RateBurst int `yaml:"rate_burst"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	Host      string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"GENERATION_BACKEND", func(c *Config) string { return c.Generation.Backend }},
	{"GENERATION_TIMEOUT", func(c *Config) string { return c.Generation.Timeout }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Generation.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Generation.Temperature) }},
	{"SELFHOSTED_URL", func(c *Config) string { return c.Generation.SelfHosted.URL }},
	{"SELFHOSTED_MODEL", func(c *Config) string { return c.Generation.SelfHosted.Model }},
	{"SELFHOSTED_STREAM", func(c *Config) string { return boolStr(c.Generation.SelfHosted.Stream) }},
	{"SELFHOSTED_INSECURE_TLS", func(c *Config) string { return boolStr(c.Generation.SelfHosted.InsecureTLS) }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Generation.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Generation.Gemini.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Generation.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Generation.OpenAI.Model }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Generation.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Generation.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Generation.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Generation.Azure.APIVersion }},
	{"ARK_API_KEY", func(c *Config) string { return c.Generation.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Generation.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Generation.Ark.BaseURL }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Generation.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Generation.Ollama.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_CACHE_SIZE", func(c *Config) string { return intStr(c.Embedding.CacheSize) }},
	{"EMBEDDING_CACHE_TTL", func(c *Config) string { return c.Embedding.CacheTTL }},
	{"INDEX_BACKEND", func(c *Config) string { return c.Index.Backend }},
	{"INDEX_NAME", func(c *Config) string { return c.Index.Name }},
	{"RAG_TOP_K", func(c *Config) string { return intStr(c.Index.TopK) }},
	{"RAG_MAX_TOP_K", func(c *Config) string { return intStr(c.Index.MaxTopK) }},
	{"QDRANT_HOST", func(c *Config) string { return c.Index.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Index.Qdrant.Port) }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Index.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Index.Qdrant.TLS) }},
	{"PGVECTOR_DSN", func(c *Config) string { return c.Index.Pgvector.DSN }},
	{"CONTEXT_MAX_CHARS_PER_RECORD", func(c *Config) string { return intStr(c.Context.MaxCharsPerRecord) }},
	{"CONTEXT_MAX_TOKENS", func(c *Config) string { return intStr(c.Context.MaxTokens) }},
	{"CONTEXT_FIELDS", func(c *Config) string { return strings.Join(c.Context.Fields, ",") }},
	{"LOW_CONFIDENCE_THRESHOLD", func(c *Config) string { return float32PtrStr(c.Context.LowConfidenceThreshold) }},
	{"CASEBOT_HOST", func(c *Config) string { return c.Server.Host }},
	{"CASEBOT_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"CASEBOT_RATE_LIMIT", func(c *Config) string { return float64Str(c.Server.RateLimit) }},
	{"CASEBOT_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Sources reports which files contributed to the environment.
type Sources struct {
	// DotEnv is the .env file that was read, or "".
	DotEnv string
	// YAML is the YAML file that was read, or "".
	YAML string
}

// Load reads the .env layer and then the YAML layer. Existing env vars are
// never overwritten. It returns the YAML path that was loaded, or "" if none.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	src, err := LoadAll(explicitPath, log)
	return src.YAML, err
}

// LoadAll is [Load] but reports both file sources.
func LoadAll(explicitPath string, log *slog.Logger) (Sources, error) {
	var src Sources

	envFile, err := loadDotEnv(log)
	if err != nil {
		return src, err
	}
	src.DotEnv = envFile

	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return src, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return src, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return src, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return src, fmt.Errorf("config: failed to set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	src.YAML = path
	return src, nil
}

// loadDotEnv reads the .env layer. A missing default file is not an error;
// a missing file named by CASEBOT_ENV_FILE is.
func loadDotEnv(log *slog.Logger) (string, error) {
	path := os.Getenv("CASEBOT_ENV_FILE")
	explicit := path != ""
	if !explicit {
		path = ".env"
	}

	// godotenv.Load never overrides variables that are already set.
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("config: failed to load env file %s: %w", path, err)
	}

	log.Debug("config: loaded env file", slog.String("path", path))
	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("CASEBOT_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".casebot", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("casebot.yaml"); err == nil {
		return "casebot.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// float32PtrStr is float32Str for an optional value: nil is "" and an
// explicit zero is "0".
func float32PtrStr(v *float32) string {
	switch {
	case v == nil:
		return ""
	case *v == 0:
		return "0"
	}
	return float32Str(*v)
}

// float64Str is float32Str for float64.
func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
