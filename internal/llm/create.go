package llm

import (
	"log/slog"
	"strings"
)

// ProviderOptions selects and configures a text generator.
type ProviderOptions struct {
	Provider        string
	Model           string
	OllamaURL       string
	OpenAIModel     string
	OpenAIKeyEnv    string
	AnthropicModel  string
	AnthropicKeyEnv string
	Temperature     float64
}

// CreateProvider creates an LLM provider based on configuration. Ollama falls
// back to OpenAI, and OpenAI falls back to Anthropic. Returns nil when nothing
// is usable.
func CreateProvider(opts ProviderOptions) Provider {
	name := strings.ToLower(opts.Provider)

	if name == "ollama" || name == "" {
		p := NewOllamaProvider(opts.Model, opts.OllamaURL, opts.Temperature)
		if p.IsConfigured() {
			slog.Info("using ollama", "model", opts.Model)
			return p
		}
		slog.Warn("ollama not available, trying OpenAI fallback")
	}

	if name != "anthropic" {
		p := NewOpenAIProvider(opts.OpenAIModel, opts.OpenAIKeyEnv, opts.Temperature)
		if p.IsConfigured() {
			slog.Info("using openai", "model", opts.OpenAIModel)
			return p
		}
	}

	p := NewAnthropicProvider(opts.AnthropicModel, opts.AnthropicKeyEnv, opts.Temperature)
	if p.IsConfigured() {
		slog.Info("using anthropic", "model", opts.AnthropicModel)
		return p
	}

	slog.Error("no LLM provider available; start Ollama or set OPENAI_API_KEY / ANTHROPIC_API_KEY")
	return nil
}

// EmbedderOptions selects and configures an embedder.
type EmbedderOptions struct {
	Provider     string
	Model        string
	Dimension    int
	OllamaURL    string
	OpenAIKeyEnv string
}

// CreateEmbedder creates an embedder. Unknown providers use feature hashing.
func CreateEmbedder(opts EmbedderOptions) Embedder {
	switch strings.ToLower(opts.Provider) {
	case "ollama":
		return NewOllamaEmbedder(opts.Model, opts.OllamaURL)
	case "openai":
		return NewOpenAIEmbedder(opts.Model, opts.OpenAIKeyEnv, opts.Dimension)
	case "hash", "":
	default:
		slog.Warn("unknown embedding provider, using hash embedder", "provider", opts.Provider)
	}
	return NewHashEmbedder(opts.Dimension)
}
