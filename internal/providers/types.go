// Package providers implements the LLM backend contract and its two
// built-in variants: a local Ollama backend and a generic
// OpenAI-compatible backend for BYOK services.
package providers

import "context"

// Provider is the interface all LLM backends implement.
type Provider interface {
	// Generate returns a complete response in one call.
	Generate(ctx context.Context, req Request) (*Response, error)

	// StreamGenerate returns a finite sequence of chunks. Exactly one
	// chunk has IsFinal set and it is the last one emitted; stream
	// errors arrive as a terminal chunk whose text describes the error
	// instead of an out-of-band failure.
	StreamGenerate(ctx context.Context, req Request) <-chan StreamChunkData

	// ListModels returns the models available on the backend.
	ListModels(ctx context.Context) ([]string, error)

	// Name returns the configured provider identifier (e.g. "ollama").
	Name() string

	// SupportsVision reports whether the backend accepts image content.
	SupportsVision() bool

	// SupportsTools reports whether the backend handles tool calling.
	SupportsTools() bool

	// Close releases HTTP client resources.
	Close() error
}

// Request is the input to Generate and StreamGenerate.
type Request struct {
	Messages    []Message
	Model       string // overrides the provider default when set
	Tools       []ToolDefinition
	Temperature float64 // 0 means the 0.7 default
	MaxTokens   int     // 0 means the 1024 default
}

// Response is the normalized result from any backend.
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string // stop, length, tool_calls, error
	Model        string
	Usage        Usage
}

// StreamChunkData is one chunk of a streaming response.
type StreamChunkData struct {
	Text    string
	IsFinal bool

	// Terminal-chunk fields.
	FinishReason string
	ToolCalls    []ToolCall
	Model        string
	Usage        *Usage
}

// Message is one conversation entry in provider wire order.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	Images     []string   `json:"images,omitempty"` // base64-encoded, for vision models
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // for role=tool results
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDefinition describes one tool advertised to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function ToolFunctionSchema `json:"function"`
}

// ToolFunctionSchema is the JSON-schema shape of a function tool.
type ToolFunctionSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 1024
)

func (r *Request) temperature() float64 {
	if r.Temperature == 0 {
		return defaultTemperature
	}
	return r.Temperature
}

func (r *Request) maxTokens() int {
	if r.MaxTokens == 0 {
		return defaultMaxTokens
	}
	return r.MaxTokens
}
