package generation

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/casebot-go/internal/apperr"
	"github.com/54b3r/casebot-go/internal/provider"
)

// DefaultBackend is used when GENERATION_BACKEND is unset.
const DefaultBackend = string(provider.BackendGemini)

// Settings is the resolved generation configuration.
type Settings struct {
	Backend    string
	Timeout    time.Duration
	SelfHosted SelfHostedConfig
	// StreamDefault is the CLI default for --stream.
	StreamDefault bool
}

// SettingsFromEnv resolves the generation backend and its timeout.
//
//	GENERATION_BACKEND       selfhosted | gemini | openai | azure | ark | ollama (default: gemini)
//	GENERATION_TIMEOUT       Go duration; default 1000s self-hosted, 200s hosted
//	SELFHOSTED_URL           default http://localhost:11434/api/generate
//	SELFHOSTED_MODEL         default llama3:8b
//	SELFHOSTED_STREAM        stream answers by default on the CLI
//	SELFHOSTED_INSECURE_TLS  skip certificate verification
func SettingsFromEnv() (Settings, error) {
	const op = "generation.SettingsFromEnv"

	s := Settings{Backend: getEnvOrDefault("GENERATION_BACKEND", DefaultBackend)}
	if v := os.Getenv("GENERATION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return s, apperr.Errorf(apperr.KindConfiguration, op, "GENERATION_TIMEOUT=%q is not a positive duration", v)
		}
		s.Timeout = d
	}

	switch s.Backend {
	case BackendSelfHosted:
		s.SelfHosted = SelfHostedConfig{
			URL:         getEnvOrDefault("SELFHOSTED_URL", DefaultSelfHostedURL),
			Model:       getEnvOrDefault("SELFHOSTED_MODEL", DefaultSelfHostedModel),
			Timeout:     s.Timeout,
			InsecureTLS: getEnvBool("SELFHOSTED_INSECURE_TLS"),
		}
		s.StreamDefault = getEnvBool("SELFHOSTED_STREAM")
		if s.Timeout == 0 {
			s.Timeout = DefaultSelfHostedTimeout
			s.SelfHosted.Timeout = s.Timeout
		}
	case string(provider.BackendGemini), string(provider.BackendOpenAI), string(provider.BackendAzure),
		string(provider.BackendArk), string(provider.BackendOllama):
		if s.Timeout == 0 {
			s.Timeout = DefaultHostedTimeout
		}
	default:
		return s, apperr.Errorf(apperr.KindConfiguration, op,
			"unknown GENERATION_BACKEND %q (valid: selfhosted, gemini, openai, azure, ark, ollama)", s.Backend)
	}
	return s, nil
}

// New constructs the client described by s. Hosted clients get the given
// callback handlers; metrics wrap every call when m is non-nil.
func New(ctx context.Context, s Settings, m *Metrics, handlers ...callbacks.Handler) (Client, error) {
	if s.Backend == BackendSelfHosted {
		cfg := s.SelfHosted
		cfg.Metrics = m
		c, err := NewSelfHosted(&cfg)
		if err != nil {
			return nil, err
		}
		return Instrument(c, m), nil
	}

	cm, err := provider.NewFromEnv(ctx, provider.Backend(s.Backend))
	if err != nil {
		return nil, fmt.Errorf("generation: %w", err)
	}
	return Instrument(NewHosted(cm, s.Backend, s.Timeout, WithCallbacks(handlers...)), m), nil
}

// NewFromEnv resolves settings and constructs the client.
func NewFromEnv(ctx context.Context, m *Metrics, handlers ...callbacks.Handler) (Client, Settings, error) {
	s, err := SettingsFromEnv()
	if err != nil {
		return nil, s, err
	}
	c, err := New(ctx, s, m, handlers...)
	return c, s, err
}

// getEnvOrDefault returns the named env var, or fallback if unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvBool reports whether the named env var parses as true.
func getEnvBool(key string) bool {
	b, _ := strconv.ParseBool(os.Getenv(key))
	return b
}
