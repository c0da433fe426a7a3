package embedder

import (
	"log/slog"
	"os"
	"strings"
)

// chatModelMarkers are name fragments of chat models. Vectors from a chat
// model are meaningless against an index built with a sentence embedder.
var chatModelMarkers = []string{
	"gpt-4", "gpt-3.5", "gpt-35", "o1", "o3",
	"llama", "mistral", "mixtral", "gemma",
	"phi-", "phi3", "claude", "command-r", "deepseek", "qwen",
}

// looksLikeChatModel reports whether model resembles a chat model rather
// than an embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, marker := range chatModelMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Validate checks the embedding settings before anything is built. Broken
// settings are returned as configuration errors; suspicious ones (a chat
// model name, or an Ollama model other than the one the index was built
// with and no EMBEDDING_DIMENSIONS) are only logged.
func Validate(log *slog.Logger) error {
	s, err := SettingsFromEnv()
	if err != nil {
		return err
	}

	if looksLikeChatModel(s.Model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model",
			slog.String("model", s.Model),
			slog.String("hint", "use an embedding model such as all-minilm or text-embedding-3-small"),
		)
	}
	if s.Backend == BackendOllama && s.Model != defaultOllamaModel && os.Getenv("EMBEDDING_DIMENSIONS") == "" {
		log.Info("embedder: custom ollama model; the index dimension is checked on first use",
			slog.String("model", s.Model),
		)
	}
	return nil
}
