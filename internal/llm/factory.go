package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/ohmexport/internal/model"
)

// NewProvider creates a provider based on configuration. An empty provider
// name returns nil: translation is disabled.
func NewProvider(config Config) (Provider, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "openai":
		return NewOpenAIProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown translation provider: %s (supported: openai, ollama)", config.Provider)
	}
}

// ConfigFromModel converts the convert settings to a provider config
func ConfigFromModel(c model.ConvertConfig) Config {
	return Config{
		Provider: c.Provider,
		Model:    c.Model,
		APIKey:   c.APIKey,
		BaseURL:  c.BaseURL,
		Timeout:  c.RequestTimeout,
	}
}
