package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	path, err := Load("/nonexistent/path/config.yaml", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
generation:
  backend: selfhosted
  timeout: 600s
  selfhosted:
    url: https://abc.ngrok-free.app/api/generate
    model: llama3:8b
    stream: true
embedding:
  provider: ollama
  model: nomic-embed-text
  cache_size: 256
index:
  backend: qdrant
  name: police-cases
  top_k: 30
  qdrant:
    host: qdrant.internal
    port: 6334
context:
  max_chars_per_record: 200
  fields: [case, date, url]
  low_confidence_threshold: 0.1
logging:
  level: debug
  format: text
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Clear env vars that the YAML should set.
	envKeys := []string{
		"GENERATION_BACKEND", "GENERATION_TIMEOUT",
		"SELFHOSTED_URL", "SELFHOSTED_MODEL", "SELFHOSTED_STREAM",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_CACHE_SIZE",
		"INDEX_BACKEND", "INDEX_NAME", "RAG_TOP_K", "QDRANT_HOST", "QDRANT_PORT",
		"CONTEXT_MAX_CHARS_PER_RECORD", "CONTEXT_FIELDS", "LOW_CONFIDENCE_THRESHOLD",
		"LOG_LEVEL", "LOG_FORMAT", "CASEBOT_ENV_FILE",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	log := slog.Default()
	loaded, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"GENERATION_BACKEND":           "selfhosted",
		"GENERATION_TIMEOUT":           "600s",
		"SELFHOSTED_URL":               "https://abc.ngrok-free.app/api/generate",
		"SELFHOSTED_MODEL":             "llama3:8b",
		"SELFHOSTED_STREAM":            "true",
		"EMBEDDING_PROVIDER":           "ollama",
		"EMBEDDING_MODEL":              "nomic-embed-text",
		"EMBEDDING_CACHE_SIZE":         "256",
		"INDEX_BACKEND":                "qdrant",
		"INDEX_NAME":                   "police-cases",
		"RAG_TOP_K":                    "30",
		"QDRANT_HOST":                  "qdrant.internal",
		"QDRANT_PORT":                  "6334",
		"CONTEXT_MAX_CHARS_PER_RECORD": "200",
		"CONTEXT_FIELDS":               "case,date,url",
		"LOW_CONFIDENCE_THRESHOLD":     "0.1",
		"LOG_LEVEL":                    "debug",
		"LOG_FORMAT":                   "text",
	}
	for k, want := range checks {
		got := os.Getenv(k)
		if got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
generation:
  backend: selfhosted
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Set before loading; the YAML value must not overwrite it.
	t.Setenv("GENERATION_BACKEND", "gemini")

	_, err := Load(cfgPath, slog.Default())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := os.Getenv("GENERATION_BACKEND"); got != "gemini" {
		t.Errorf("GENERATION_BACKEND: expected env override %q, got %q", "gemini", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(cfgPath, slog.Default())
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoadAll_DotEnvBeneathYAML(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "casebot.env")
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(envPath, []byte("SELFHOSTED_MODEL=mistral\nGOOGLE_API_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfgPath, []byte("generation:\n  selfhosted:\n    model: llama3:8b\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, k := range []string{"SELFHOSTED_MODEL", "GOOGLE_API_KEY"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Setenv("CASEBOT_ENV_FILE", envPath)

	src, err := LoadAll(cfgPath, slog.Default())
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if src.DotEnv != envPath || src.YAML != cfgPath {
		t.Errorf("sources: got %+v", src)
	}

	// The .env layer is applied first, so it wins over YAML for the same key.
	if got := os.Getenv("SELFHOSTED_MODEL"); got != "mistral" {
		t.Errorf("SELFHOSTED_MODEL: got %q, want %q", got, "mistral")
	}
	if got := os.Getenv("GOOGLE_API_KEY"); got != "from-dotenv" {
		t.Errorf("GOOGLE_API_KEY: got %q, want %q", got, "from-dotenv")
	}
}

func TestLoadAll_MissingExplicitEnvFile(t *testing.T) {
	t.Setenv("CASEBOT_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	if _, err := LoadAll("", slog.Default()); err == nil {
		t.Fatal("expected error for missing CASEBOT_ENV_FILE")
	}
}

func TestFloat32Str(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float32
		want string
	}{
		{0.0, ""},
		{0.1, "0.1"},
		{0.25, "0.25"},
		{1.0, "1"},
	}
	for _, tt := range tests {
		if got := float32Str(tt.in); got != tt.want {
			t.Errorf("float32Str(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoad_ZeroThresholdReachesEnv(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
context:
  low_confidence_threshold: 0
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LOW_CONFIDENCE_THRESHOLD", "")
	os.Unsetenv("LOW_CONFIDENCE_THRESHOLD")

	if _, err := Load(cfgPath, slog.Default()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := os.Getenv("LOW_CONFIDENCE_THRESHOLD"); got != "0" {
		t.Errorf("LOW_CONFIDENCE_THRESHOLD: got %q, want %q", got, "0")
	}
}

func TestFloat32PtrStr(t *testing.T) {
	t.Parallel()
	zero, quarter := float32(0), float32(0.25)
	tests := []struct {
		in   *float32
		want string
	}{
		{nil, ""},
		{&zero, "0"},
		{&quarter, "0.25"},
	}
	for _, tt := range tests {
		if got := float32PtrStr(tt.in); got != tt.want {
			t.Errorf("float32PtrStr(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
