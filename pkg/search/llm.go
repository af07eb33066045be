package search

import (
	"fmt"
	"strings"

	"github.com/memlens/memlens-go/pkg/llm"
	ollamaLLM "github.com/memlens/memlens-go/pkg/llm/ollama"
	openaiLLM "github.com/memlens/memlens-go/pkg/llm/openai"
	qwenLLM "github.com/memlens/memlens-go/pkg/llm/qwen"
)

// ProviderConfig selects and configures the generation backend used for
// query rewriting.
type ProviderConfig struct {
	// Provider is the backend name: "openai", "qwen", or "ollama".
	Provider string

	// APIKey is the provider API key (unused by ollama).
	APIKey string

	// Model is the model name (provider default when empty).
	Model string

	// BaseURL overrides the API endpoint (provider default when empty).
	BaseURL string
}

// NewProvider creates an llm.Provider from configuration.
func NewProvider(cfg *ProviderConfig) (llm.Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("search: nil provider config")
	}

	switch strings.ToLower(cfg.Provider) {
	case "openai":
		return openaiLLM.NewClient(&openaiLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "qwen":
		return qwenLLM.NewClient(&qwenLLM.Config{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	case "ollama":
		return ollamaLLM.NewClient(&ollamaLLM.Config{
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		})
	default:
		return nil, fmt.Errorf("search: unsupported llm provider: %s", cfg.Provider)
	}
}
