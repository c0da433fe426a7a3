//go:build integration

package embedder

import (
	"context"
	"os"
	"slices"
	"testing"
	"time"
)

// TestOllamaEmbedder_Integration embeds two case questions against a locally
// running Ollama and checks the vectors are deterministic and distinct.
//
// Prerequisites:
//
//	ollama pull all-minilm
//
// Run with:
//
//	go test -tags=integration -run TestOllamaEmbedder_Integration ./internal/embedder/
func TestOllamaEmbedder_Integration(t *testing.T) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = defaultOllamaModel
	}

	emb := NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	texts := []string{
		"excessive force cases in 2020",
		"officers disciplined for untruthfulness",
	}

	first, err := emb.Embed(ctx, texts)
	if err != nil {
		t.Fatalf("Embed() failed: %v\n\nEnsure Ollama is running and %q is pulled:\n  ollama pull %s", err, model, model)
	}
	if len(first) != len(texts) {
		t.Fatalf("expected %d embeddings, got %d", len(texts), len(first))
	}
	if slices.Equal(first[0], first[1]) {
		t.Error("distinct questions produced identical vectors")
	}

	second, err := emb.Embed(ctx, texts[:1])
	if err != nil {
		t.Fatalf("second Embed() failed: %v", err)
	}
	if !slices.Equal(first[0], second[0]) {
		t.Error("embedding is not deterministic for a fixed model")
	}

	t.Logf("model=%s dim=%d", model, len(first[0]))
}
