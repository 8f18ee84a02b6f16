package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"
)

// Load reads config from a JSON file, then overlays env vars.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values; channels are auto-enabled
// when their credentials arrive via env.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("ROTBOT_TELEGRAM_TOKEN"); v != "" {
		c.Channels.Telegram.Token = v
		c.Channels.Telegram.Enabled = true
	}
	if v := os.Getenv("ROTBOT_TELEGRAM_ADMIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Channels.Telegram.AdminID = id
		}
	}
	if v := os.Getenv("ROTBOT_DISCORD_TOKEN"); v != "" {
		c.Channels.Discord.Token = v
		c.Channels.Discord.Enabled = true
	}
	if v := os.Getenv("ROTBOT_SIGNAL_PHONE"); v != "" {
		c.Channels.Signal.Phone = v
		c.Channels.Signal.Enabled = true
	}

	// Provider API keys: ROTBOT_<NAME>_API_KEY creates or updates the
	// matching providers entry.
	for _, name := range knownProviderNames {
		v := os.Getenv("ROTBOT_" + envUpper(name) + "_API_KEY")
		if v == "" {
			continue
		}
		if c.Providers == nil {
			c.Providers = map[string]ProviderConfig{}
		}
		p := c.Providers[name]
		p.APIKey = v
		c.Providers[name] = p
	}

	if ollama, ok := c.Providers["ollama"]; ok {
		envStr("ROTBOT_OLLAMA_BASE_URL", &ollama.BaseURL)
		c.Providers["ollama"] = ollama
	}

	envStr("ROTBOT_PROVIDER", &c.Agents.Defaults.Provider)
	envStr("ROTBOT_MODEL", &c.Agents.Defaults.Model)
}

// knownProviderNames are the OpenAI-compatible services with an
// auto-detected API base; see providers.KnownBases.
var knownProviderNames = []string{
	"openai", "anthropic", "gemini", "deepseek", "groq",
	"openrouter", "siliconflow", "minimax", "moonshot", "dashscope",
}

func envUpper(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'a' && b[i] <= 'z' {
			b[i] -= 'a' - 'A'
		}
	}
	return string(b)
}

// Save writes the config to a JSON file with owner-only permissions.
func Save(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

const secretMask = "***"

// MaskedCopy returns a deep copy of the config with secret fields masked,
// for display by the status command.
func (c *Config) MaskedCopy() *Config {
	data, err := json.Marshal(c)
	if err != nil {
		return &Config{}
	}
	cp := Default()
	if err := json.Unmarshal(data, cp); err != nil {
		return &Config{}
	}

	for name, p := range cp.Providers {
		maskNonEmpty(&p.APIKey)
		cp.Providers[name] = p
	}
	maskNonEmpty(&cp.Channels.Telegram.Token)
	maskNonEmpty(&cp.Channels.Discord.Token)

	return cp
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
