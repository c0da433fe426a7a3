// Package embedder turns questions into vectors for the case index.
//
// Backends: Ollama (/api/embed), OpenAI and Azure OpenAI (go-openai), and
// Gemini (genai). [SettingsFromEnv] resolves the backend from environment
// variables and [New] builds it; [NewLazyFromEnv] adds the initialize-once
// barrier, the expirable LRU cache and request metrics used by the service.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/54b3r/casebot-go/internal/apperr"
	"github.com/54b3r/casebot-go/internal/rag"
)

// Default embedding models per backend.
const (
	// defaultOllamaModel matches all-MiniLM-L6-v2, the model the case index
	// was built with.
	defaultOllamaModel = "all-minilm"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultGeminiModel = "text-embedding-004"

	defaultOllamaDimensions = 384
	defaultOpenAIDimensions = 1536
	defaultGeminiDimensions = 768
)

// Backend names.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
	BackendAzure  = "azure"
	BackendGemini = "gemini"
)

// Settings is the resolved embedding configuration.
type Settings struct {
	Backend    string
	Model      string
	Dimensions int
	APIKey     string
	Endpoint   string
	APIVersion string
	CacheSize  int
	CacheTTL   time.Duration
}

// DefaultDimensions returns the default vector size for backend.
// EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case BackendOllama:
		return defaultOllamaDimensions
	case BackendGemini:
		return defaultGeminiDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// SettingsFromEnv resolves the embedding settings. Credentials are inherited
// from the generation backend's variables when the EMBEDDING_* overrides are
// not set:
//
//  1. EMBEDDING_PROVIDER (default: ollama)
//  2. EMBEDDING_MODEL overrides the backend's default model
//  3. EMBEDDING_API_KEY overrides OPENAI_API_KEY / AZURE_OPENAI_API_KEY / GOOGLE_API_KEY
//  4. EMBEDDING_ENDPOINT overrides OLLAMA_HOST / AZURE_OPENAI_ENDPOINT
//  5. EMBEDDING_CACHE_SIZE and EMBEDDING_CACHE_TTL size the LRU cache
func SettingsFromEnv() (Settings, error) {
	const op = "embedder.SettingsFromEnv"

	s := Settings{
		Backend:   getEnvOrDefault("EMBEDDING_PROVIDER", BackendOllama),
		CacheSize: getEnvInt("EMBEDDING_CACHE_SIZE", DefaultCacheSize),
		CacheTTL:  DefaultCacheTTL,
	}
	if v := getEnv("EMBEDDING_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return s, apperr.New(apperr.KindConfiguration, op, fmt.Errorf("EMBEDDING_CACHE_TTL=%q: %w", v, err))
		}
		s.CacheTTL = d
	}

	switch s.Backend {
	case BackendOllama:
		s.Endpoint = firstNonEmpty(getEnv("EMBEDDING_ENDPOINT"), getEnv("OLLAMA_HOST"), "http://localhost:11434")
		s.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel)
		s.Dimensions = getEnvInt("EMBEDDING_DIMENSIONS", 0)

	case BackendOpenAI:
		s.APIKey = firstNonEmpty(getEnv("EMBEDDING_API_KEY"), getEnv("OPENAI_API_KEY"))
		if s.APIKey == "" {
			return s, apperr.New(apperr.KindConfiguration, op, errors.New("openai embedding requires OPENAI_API_KEY or EMBEDDING_API_KEY"))
		}
		s.Endpoint = firstNonEmpty(getEnv("EMBEDDING_ENDPOINT"), "https://api.openai.com/v1")
		s.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel)
		s.Dimensions = getEnvInt("EMBEDDING_DIMENSIONS", 0)

	case BackendAzure:
		s.APIKey = firstNonEmpty(getEnv("EMBEDDING_API_KEY"), getEnv("AZURE_OPENAI_API_KEY"))
		if s.APIKey == "" {
			return s, apperr.New(apperr.KindConfiguration, op, errors.New("azure embedding requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY"))
		}
		s.Endpoint = firstNonEmpty(getEnv("EMBEDDING_ENDPOINT"), getEnv("AZURE_OPENAI_ENDPOINT"))
		if s.Endpoint == "" {
			return s, apperr.New(apperr.KindConfiguration, op, errors.New("azure embedding requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT"))
		}
		s.APIVersion = getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-10-21")
		s.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel)
		s.Dimensions = getEnvInt("EMBEDDING_DIMENSIONS", 0)

	case BackendGemini:
		s.APIKey = firstNonEmpty(getEnv("EMBEDDING_API_KEY"), getEnv("GOOGLE_API_KEY"))
		if s.APIKey == "" {
			return s, apperr.New(apperr.KindConfiguration, op, errors.New("gemini embedding requires GOOGLE_API_KEY or EMBEDDING_API_KEY"))
		}
		s.Model = getEnvOrDefault("EMBEDDING_MODEL", defaultGeminiModel)
		s.Dimensions = getEnvInt("EMBEDDING_DIMENSIONS", 0)

	default:
		return s, apperr.Errorf(apperr.KindConfiguration, op,
			"unknown EMBEDDING_PROVIDER %q (valid: ollama, openai, azure, gemini)", s.Backend)
	}
	return s, nil
}

// New constructs the backend embedder described by s, without caching.
func New(ctx context.Context, s Settings) (rag.Embedder, error) {
	switch s.Backend {
	case BackendOllama:
		return NewOllamaEmbedder(&OllamaConfig{Host: s.Endpoint, Model: s.Model}), nil
	case BackendOpenAI:
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL: s.Endpoint, APIKey: s.APIKey, Model: s.Model, Dimensions: s.Dimensions,
		}), nil
	case BackendAzure:
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL: s.Endpoint, APIKey: s.APIKey, Model: s.Model, Dimensions: s.Dimensions,
			Azure: true, APIVersion: s.APIVersion,
		}), nil
	case BackendGemini:
		e, err := NewGeminiEmbedder(ctx, &GeminiConfig{APIKey: s.APIKey, Model: s.Model, Dimensions: s.Dimensions})
		if err != nil {
			return nil, apperr.New(apperr.KindConfiguration, "embedder.New", err)
		}
		return e, nil
	default:
		return nil, apperr.Errorf(apperr.KindConfiguration, "embedder.New", "unknown backend %q", s.Backend)
	}
}

// NewLazyFromEnv resolves settings eagerly, so configuration errors surface
// at startup, and defers loading the model until the first question.
// The returned embedder is instrumented and cached.
func NewLazyFromEnv(m *Metrics) (*Lazy, Settings, error) {
	s, err := SettingsFromEnv()
	if err != nil {
		return nil, s, err
	}
	l := NewLazy(func(ctx context.Context) (rag.Embedder, error) {
		inner, err := New(ctx, s)
		if err != nil {
			return nil, err
		}
		inner = Instrument(inner, s.Backend, m)
		return NewCachedEmbedder(inner, s.CacheSize, s.CacheTTL, m), nil
	})
	return l, s, nil
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the named env var, or fallback if unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named env var, or fallback if
// unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// firstNonEmpty returns the first non-empty argument.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
