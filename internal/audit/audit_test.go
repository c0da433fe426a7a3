package audit

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestSanitiseKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key, value, want string
	}{
		{"GOOGLE_API_KEY", "AIza-secret", "set"},
		{"GOOGLE_API_KEY", "", "unset"},
		{"PGVECTOR_DSN", "postgres://u:p@db/cases", "set"},
		{"GENERATION_BACKEND", "selfhosted", "selfhosted"},
		{"GENERATION_BACKEND", "", "unset"},
	}
	for _, tc := range tests {
		if got := SanitiseKey(tc.key, tc.value); got != tc.want {
			t.Errorf("SanitiseKey(%q, %q): got %q, want %q", tc.key, tc.value, got, tc.want)
		}
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()
	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitiseConfigPath("/tmp/casebot.yaml"); got != "/tmp/casebot.yaml" {
		t.Errorf("expected '/tmp/casebot.yaml', got %q", got)
	}
	home, err := os.UserHomeDir()
	if err == nil {
		p := home + "/.casebot/config.yaml"
		if got := sanitiseConfigPath(p); got != "~/.casebot/config.yaml" {
			t.Errorf("expected '~/.casebot/config.yaml', got %q", got)
		}
	}
}

func TestLogCommandStart_RedactsSecrets(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "AIza-very-secret")
	t.Setenv("GENERATION_BACKEND", "gemini")

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	LogCommandStart(log, "ask", "")

	out := buf.String()
	if strings.Contains(out, "AIza-very-secret") {
		t.Fatalf("secret leaked into audit log: %s", out)
	}
	if !strings.Contains(out, `"GOOGLE_API_KEY":"set"`) {
		t.Errorf("expected presence marker for GOOGLE_API_KEY, got %s", out)
	}
	if !strings.Contains(out, `"GENERATION_BACKEND":"gemini"`) {
		t.Errorf("expected GENERATION_BACKEND value, got %s", out)
	}
}
