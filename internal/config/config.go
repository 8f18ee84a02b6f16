package config

// Config is the root configuration for rotbot, persisted at ~/.rotbot/config.json.
type Config struct {
	Providers  map[string]ProviderConfig `json:"providers"`
	Agents     AgentsConfig              `json:"agents"`
	Channels   ChannelsConfig            `json:"channels"`
	Tools      ToolsConfig               `json:"tools"`
	Guardrails GuardrailsConfig          `json:"guardrails"`
	Memory     MemoryConfig              `json:"memory"`
	RAG        RAGConfig                 `json:"rag,omitempty"`
	Cron       CronConfig                `json:"cron,omitempty"`
}

// ProviderConfig configures one LLM backend entry in the providers map.
// Ollama-style entries use BaseURL; OpenAI-compatible entries use
// APIKey/APIBase (APIBase is auto-detected for known provider names).
type ProviderConfig struct {
	BaseURL      string            `json:"base_url,omitempty"`
	APIKey       string            `json:"apiKey,omitempty"`
	APIBase      string            `json:"apiBase,omitempty"`
	DefaultModel string            `json:"default_model,omitempty"`
	Models       map[string]string `json:"models,omitempty"` // mode -> model (coding, reasoning, vision)
}

// ModelFor returns the model mapped to a mode, falling back to the default.
func (p ProviderConfig) ModelFor(mode string) string {
	if m, ok := p.Models[mode]; ok && m != "" {
		return m
	}
	return p.DefaultModel
}

// AgentsConfig contains agent defaults.
type AgentsConfig struct {
	Defaults AgentDefaults `json:"defaults"`
}

// AgentDefaults are default settings for the agent loop.
type AgentDefaults struct {
	Provider      string  `json:"provider"`
	Model         string  `json:"model"`
	MaxIterations int     `json:"max_iterations"`
	MemoryWindow  int     `json:"memory_window"`
	Temperature   float64 `json:"temperature,omitempty"`
	MaxTokens     int     `json:"max_tokens,omitempty"`
}

// ChannelsConfig holds per-transport adapter settings.
type ChannelsConfig struct {
	Discord  DiscordConfig  `json:"discord"`
	Telegram TelegramConfig `json:"telegram"`
	Signal   SignalConfig   `json:"signal"`
	Web      WebConfig      `json:"web,omitempty"`
}

// DiscordConfig configures the Discord bot adapter.
type DiscordConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	AdminID string `json:"admin_id,omitempty"`
}

// TelegramConfig configures the Telegram bot adapter.
type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	AdminID int64  `json:"admin_id"`
}

// SignalConfig configures the signal-cli JSON-RPC adapter.
type SignalConfig struct {
	Enabled bool   `json:"enabled"`
	Phone   string `json:"phone"`
	Host    string `json:"host,omitempty"`
	Port    int    `json:"port,omitempty"`
}

// WebConfig configures the browser chat adapter (WebSocket endpoint).
type WebConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host,omitempty"`
	Port    int    `json:"port,omitempty"`
}

// ToolsConfig selects built-in tools and external MCP servers.
type ToolsConfig struct {
	Builtin             []string                   `json:"builtin"`
	RestrictToWorkspace bool                       `json:"restrictToWorkspace"`
	MCPServers          map[string]MCPServerConfig `json:"mcpServers,omitempty"`
}

// MCPServerConfig describes one MCP tool server launched over stdio,
// or reached over HTTP when URL is set.
type MCPServerConfig struct {
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
}

// GuardrailsConfig toggles the safety filter pipeline.
type GuardrailsConfig struct {
	Enabled bool `json:"enabled"`
}

// MemoryConfig tunes long-term memory consolidation.
type MemoryConfig struct {
	ConsolidationThreshold int `json:"consolidation_threshold"`
}

// RAGConfig tunes the local document index used by rag_search.
type RAGConfig struct {
	MaxResults int `json:"max_results,omitempty"`
}

// CronConfig declares scheduled agent prompts.
type CronConfig struct {
	Jobs []CronJob `json:"jobs,omitempty"`
}

// CronJob fires a synthetic inbound message on a cron schedule.
type CronJob struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Channel  string `json:"channel"`
	ChatID   string `json:"chat_id"`
	Prompt   string `json:"prompt"`
}

// Default returns a Config with sensible defaults: a local Ollama
// provider, all transports disabled, guardrails on.
func Default() *Config {
	return &Config{
		Providers: map[string]ProviderConfig{
			"ollama": {
				BaseURL:      "http://localhost:11434",
				DefaultModel: "llama3.1:8b",
				Models: map[string]string{
					"coding":    "qwen3-coder:480b-cloud",
					"reasoning": "deepseek-r1:8b",
					"vision":    "llava",
				},
			},
		},
		Agents: AgentsConfig{
			Defaults: AgentDefaults{
				Provider:      "ollama",
				Model:         "llama3.1:8b",
				MaxIterations: 20,
				MemoryWindow:  20,
			},
		},
		Channels: ChannelsConfig{
			Signal: SignalConfig{Host: "localhost", Port: 7583},
			Web:    WebConfig{Host: "127.0.0.1", Port: 8793},
		},
		Tools: ToolsConfig{
			Builtin:    []string{"web_search", "math_solver", "url_reader", "shell", "file_ops"},
			MCPServers: map[string]MCPServerConfig{},
		},
		Guardrails: GuardrailsConfig{Enabled: true},
		Memory:     MemoryConfig{ConsolidationThreshold: 20},
		RAG:        RAGConfig{MaxResults: 5},
	}
}
