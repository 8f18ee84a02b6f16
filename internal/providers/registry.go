package providers

import (
	"fmt"
	"strings"

	"github.com/rotbotlabs/rotbot/internal/config"
)

// providerNames lists every registered provider in resolution order.
// All entries but ollama speak the OpenAI-compatible protocol.
var providerNames = []string{
	"ollama",
	"openai",
	"anthropic",
	"gemini",
	"openrouter",
	"deepseek",
	"groq",
	"siliconflow",
	"minimax",
	"moonshot",
	"dashscope",
	"custom",
}

// Available returns the names of all supported providers.
func Available() []string {
	out := make([]string, len(providerNames))
	copy(out, providerNames)
	return out
}

// New builds the provider registered under name.
func New(name string, cfg config.ProviderConfig) (Provider, error) {
	if name == "ollama" {
		return NewOllamaProvider(cfg), nil
	}
	for _, known := range providerNames {
		if name == known {
			return NewOpenAICompatProvider(name, cfg), nil
		}
	}
	return nil, fmt.Errorf("unknown provider %q (available: %s)", name, strings.Join(providerNames, ", "))
}

// FromConfig builds the named provider using its section of the config.
// A missing section is fine: known providers work with their built-in
// defaults (ollama localhost, known API bases).
func FromConfig(cfg *config.Config, name string) (Provider, error) {
	return New(name, cfg.Providers[name])
}
