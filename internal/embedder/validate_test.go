package embedder

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/casebot-go/internal/apperr"
	"github.com/54b3r/casebot-go/internal/logging"
)

func TestLooksLikeChatModel(t *testing.T) {
	t.Parallel()

	for _, m := range []string{"gpt-4o", "llama3:8b", "Mistral-7B", "qwen2.5", "claude-3-haiku"} {
		assert.True(t, looksLikeChatModel(m), m)
	}
	for _, m := range []string{"all-minilm", "text-embedding-3-small", "text-embedding-004", "nomic-embed-text", "mxbai-embed-large", ""} {
		assert.False(t, looksLikeChatModel(m), m)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name     string
		env      map[string]string
		wantKind apperr.Kind
		wantLog  string
	}{
		{
			name: "default ollama is quiet",
			env:  map[string]string{"EMBEDDING_PROVIDER": "", "EMBEDDING_MODEL": ""},
		},
		{
			name:    "chat model warns",
			env:     map[string]string{"EMBEDDING_PROVIDER": "ollama", "EMBEDDING_MODEL": "llama3:8b"},
			wantLog: "looks like a chat model",
		},
		{
			name:    "custom ollama model without dimensions",
			env:     map[string]string{"EMBEDDING_PROVIDER": "ollama", "EMBEDDING_MODEL": "nomic-embed-text", "EMBEDDING_DIMENSIONS": ""},
			wantLog: "checked on first use",
		},
		{
			name:     "azure without key",
			env:      map[string]string{"EMBEDDING_PROVIDER": "azure", "EMBEDDING_API_KEY": "", "AZURE_OPENAI_API_KEY": ""},
			wantKind: apperr.KindConfiguration,
		},
		{
			name:     "unknown provider",
			env:      map[string]string{"EMBEDDING_PROVIDER": "pinecone"},
			wantKind: apperr.KindConfiguration,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			var buf bytes.Buffer
			err := Validate(logging.NewWriter(&buf, "debug", "text"))

			if tc.wantKind != "" {
				require.Error(t, err)
				assert.Equal(t, tc.wantKind, apperr.KindOf(err))
				return
			}
			require.NoError(t, err)
			if tc.wantLog == "" {
				assert.Empty(t, buf.String())
			} else {
				assert.Contains(t, buf.String(), tc.wantLog)
			}
		})
	}
}
