// Package provider constructs the hosted chat models that answer case
// questions. Supported backends: Gemini, OpenAI, Azure OpenAI, Volcengine Ark,
// and a local Ollama instance. The self-hosted tunnel backend is not an eino
// model and lives in internal/generation.
package provider

import (
	"errors"
	"strings"

	"github.com/54b3r/casebot-go/internal/apperr"
)

// Backend enumerates the supported hosted inference providers.
type Backend string

const (
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendArk selects the Volcengine Ark model runtime.
	BackendArk Backend = "ark"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
)

// ProviderGemini holds Gemini credentials.
type ProviderGemini struct {
	APIKey string
	Model  string
}

// ProviderOpenAI holds OpenAI credentials. BaseURL is optional.
type ProviderOpenAI struct {
	APIKey  string
	Model   string
	BaseURL string
}

// ProviderAzureOpenAI holds Azure OpenAI settings.
type ProviderAzureOpenAI struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

// ProviderArk holds Volcengine Ark settings. BaseURL is optional.
type ProviderArk struct {
	APIKey  string
	Model   string
	BaseURL string
}

// ProviderOllama holds the local Ollama endpoint.
type ProviderOllama struct {
	Host  string
	Model string
}

// SharedTuning applies to every backend that accepts it.
type SharedTuning struct {
	// MaxTokens caps the number of tokens generated per answer.
	MaxTokens int
	// Temperature controls answer randomness (0.0–1.0).
	Temperature float32
}

// Config selects a backend and carries the settings for each one. Only the
// section for Backend is consulted.
type Config struct {
	Backend     Backend
	Gemini      ProviderGemini
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Ark         ProviderArk
	Ollama      ProviderOllama
	Tuning      SharedTuning
}

// Model returns the model or deployment name for the selected backend.
func (c *Config) Model() string {
	switch c.Backend {
	case BackendGemini:
		return c.Gemini.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendArk:
		return c.Ark.Model
	case BackendOllama:
		return c.Ollama.Model
	}
	return ""
}

// Validate reports missing settings for the selected backend. Errors name the
// environment variable to set and are tagged as configuration errors.
func (c *Config) Validate() error {
	var missing []string
	require := func(val, env string) {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, env)
		}
	}

	switch c.Backend {
	case BackendGemini:
		require(c.Gemini.APIKey, "GOOGLE_API_KEY")
		require(c.Gemini.Model, "GEMINI_MODEL")
	case BackendOpenAI:
		require(c.OpenAI.APIKey, "OPENAI_API_KEY")
		require(c.OpenAI.Model, "OPENAI_MODEL")
	case BackendAzure:
		require(c.AzureOpenAI.APIKey, "AZURE_OPENAI_API_KEY")
		require(c.AzureOpenAI.Endpoint, "AZURE_OPENAI_ENDPOINT")
		require(c.AzureOpenAI.Deployment, "AZURE_OPENAI_DEPLOYMENT")
	case BackendArk:
		require(c.Ark.APIKey, "ARK_API_KEY")
		require(c.Ark.Model, "ARK_MODEL")
	case BackendOllama:
		require(c.Ollama.Host, "OLLAMA_HOST")
		require(c.Ollama.Model, "OLLAMA_MODEL")
	default:
		return apperr.Errorf(apperr.KindConfiguration, "provider.Validate",
			"unknown backend %q (valid: gemini, openai, azure, ark, ollama)", c.Backend)
	}

	if len(missing) > 0 {
		return apperr.New(apperr.KindConfiguration, "provider.Validate",
			errors.New(string(c.Backend)+" backend requires "+strings.Join(missing, ", ")))
	}
	return nil
}

// isAzureReasoningModel reports whether an Azure deployment name refers to an
// o-series or codex model. Those reject temperature and max_tokens.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	for _, prefix := range []string{"o1", "o3", "o4", "codex"} {
		if d == prefix || strings.HasPrefix(d, prefix+"-") {
			return true
		}
	}
	return false
}
