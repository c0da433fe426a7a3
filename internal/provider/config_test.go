package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/casebot-go/internal/apperr"
)

// completeConfig has every backend section filled in.
func completeConfig(b Backend) Config {
	return Config{
		Backend: b,
		Gemini:  ProviderGemini{APIKey: "AIza-test", Model: "gemini-2.0-flash-exp"},
		OpenAI:  ProviderOpenAI{APIKey: "sk-test", Model: "gpt-4o"},
		AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     "azure-key",
			Endpoint:   "https://casebot.openai.azure.com",
			Deployment: "gpt-4o-cases",
			APIVersion: "2024-10-21",
		},
		Ark:    ProviderArk{APIKey: "ark-test", Model: "doubao-pro-32k"},
		Ollama: ProviderOllama{Host: "http://localhost:11434", Model: "llama3"},
	}
}

func TestConfigValidate_CompleteBackends(t *testing.T) {
	t.Parallel()

	for _, b := range []Backend{BackendGemini, BackendOpenAI, BackendAzure, BackendArk, BackendOllama} {
		cfg := completeConfig(b)
		assert.NoError(t, cfg.Validate(), "backend %s", b)
		assert.NotEmpty(t, cfg.Model(), "backend %s", b)
	}
}

func TestConfigValidate_NamesMissingVariable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		backend Backend
		blank   func(*Config)
		wantEnv string
	}{
		{BackendGemini, func(c *Config) { c.Gemini.APIKey = "" }, "GOOGLE_API_KEY"},
		{BackendGemini, func(c *Config) { c.Gemini.Model = "  " }, "GEMINI_MODEL"},
		{BackendOpenAI, func(c *Config) { c.OpenAI.APIKey = "" }, "OPENAI_API_KEY"},
		{BackendOpenAI, func(c *Config) { c.OpenAI.Model = "" }, "OPENAI_MODEL"},
		{BackendAzure, func(c *Config) { c.AzureOpenAI.APIKey = "" }, "AZURE_OPENAI_API_KEY"},
		{BackendAzure, func(c *Config) { c.AzureOpenAI.Endpoint = "" }, "AZURE_OPENAI_ENDPOINT"},
		{BackendAzure, func(c *Config) { c.AzureOpenAI.Deployment = "" }, "AZURE_OPENAI_DEPLOYMENT"},
		{BackendArk, func(c *Config) { c.Ark.APIKey = "" }, "ARK_API_KEY"},
		{BackendArk, func(c *Config) { c.Ark.Model = "" }, "ARK_MODEL"},
		{BackendOllama, func(c *Config) { c.Ollama.Host = "" }, "OLLAMA_HOST"},
		{BackendOllama, func(c *Config) { c.Ollama.Model = "" }, "OLLAMA_MODEL"},
	}

	for _, tc := range cases {
		t.Run(string(tc.backend)+"/"+tc.wantEnv, func(t *testing.T) {
			t.Parallel()

			cfg := completeConfig(tc.backend)
			tc.blank(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantEnv)
			assert.ErrorIs(t, err, apperr.ErrConfiguration)
		})
	}
}

func TestConfigValidate_OtherSectionsIgnored(t *testing.T) {
	t.Parallel()

	// Only the selected backend's section matters.
	cfg := Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: "http://gpu-box:11434", Model: "mistral"}}
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate_ReportsAllMissing(t *testing.T) {
	t.Parallel()

	err := (&Config{Backend: BackendAzure}).Validate()
	require.Error(t, err)
	for _, env := range []string{"AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_DEPLOYMENT"} {
		assert.Contains(t, err.Error(), env)
	}
}

func TestConfigValidate_UnknownBackend(t *testing.T) {
	t.Parallel()

	err := (&Config{Backend: "selfhosted"}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown backend "selfhosted"`)
	assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))
	assert.Empty(t, (&Config{Backend: "selfhosted"}).Model())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := New(t.Context(), &Config{Backend: BackendOpenAI})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestIsAzureReasoningModel(t *testing.T) {
	t.Parallel()

	reasoning := []string{"o1", "o1-preview", "o3-mini", "o3-pro", "o4-mini", "O1-PREVIEW", "codex", "codex-mini"}
	for _, d := range reasoning {
		assert.True(t, isAzureReasoningModel(d), d)
	}

	// "codex" only counts as a prefix.
	standard := []string{"gpt-4o", "gpt-4o-mini", "gpt-4.1", "gpt-35-turbo", "gpt-5.2-codex", "o1x", "", "cases-gpt4"}
	for _, d := range standard {
		assert.False(t, isAzureReasoningModel(d), d)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "AIza-env")
	t.Setenv("GEMINI_MODEL", "")
	t.Setenv("OLLAMA_HOST", "")
	t.Setenv("MODEL_MAX_TOKENS", "512")
	t.Setenv("MODEL_TEMPERATURE", "not-a-number")

	cfg := ConfigFromEnv(BackendGemini)
	assert.Equal(t, "AIza-env", cfg.Gemini.APIKey)
	assert.Equal(t, DefaultGeminiModel, cfg.Model())
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.Host)
	assert.Equal(t, 512, cfg.Tuning.MaxTokens)
	assert.InDelta(t, 0.2, cfg.Tuning.Temperature, 1e-6, "unparseable temperature falls back")
	assert.NoError(t, cfg.Validate())
}
