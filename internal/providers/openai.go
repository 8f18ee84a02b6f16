package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/rotbotlabs/rotbot/internal/config"
)

// knownBases maps provider names to their OpenAI-compatible endpoints,
// so BYOK configs only need an API key.
var knownBases = map[string]string{
	"openai":      "https://api.openai.com/v1",
	"anthropic":   "https://api.anthropic.com/v1",
	"gemini":      "https://generativelanguage.googleapis.com/v1beta/openai",
	"deepseek":    "https://api.deepseek.com/v1",
	"groq":        "https://api.groq.com/openai/v1",
	"openrouter":  "https://openrouter.ai/api/v1",
	"siliconflow": "https://api.siliconflow.cn/v1",
	"minimax":     "https://api.minimax.chat/v1",
	"moonshot":    "https://api.moonshot.cn/v1",
	"dashscope":   "https://dashscope.aliyuncs.com/compatible-mode/v1",
}

// KnownBase returns the built-in API base for a provider name, or ""
// for providers that need explicit configuration (ollama, custom).
func KnownBase(name string) string { return knownBases[name] }

// OpenAICompatProvider speaks the OpenAI chat completions protocol.
// It covers OpenAI itself and every service exposing a compatible
// endpoint (Anthropic, Gemini, DeepSeek, Groq, OpenRouter, vLLM, ...).
type OpenAICompatProvider struct {
	name         string
	apiKey       string
	apiBase      string
	defaultModel string
	client       *http.Client
}

func NewOpenAICompatProvider(name string, cfg config.ProviderConfig) *OpenAICompatProvider {
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = knownBases[name]
	}
	return &OpenAICompatProvider{
		name:         name,
		apiKey:       cfg.APIKey,
		apiBase:      strings.TrimRight(apiBase, "/"),
		defaultModel: cfg.DefaultModel,
		client:       &http.Client{Timeout: requestTimeout},
	}
}

func (p *OpenAICompatProvider) Name() string         { return p.name }
func (p *OpenAICompatProvider) SupportsTools() bool  { return true }
func (p *OpenAICompatProvider) SupportsVision() bool { return false }

func (p *OpenAICompatProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// Wire shapes. Tool call arguments travel as a JSON string on the wire
// but as a map internally, so messages are converted both ways.

type oaiFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaiToolCall struct {
	ID       string      `json:"id"`
	Type     string      `json:"type"`
	Function oaiFunction `json:"function"`
}

type oaiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	ToolCalls  []oaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type oaiChatRequest struct {
	Model       string           `json:"model"`
	Messages    []oaiMessage     `json:"messages"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens"`
	Stream      bool             `json:"stream"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
}

func toWireMessages(messages []Message) []oaiMessage {
	out := make([]oaiMessage, len(messages))
	for i, m := range messages {
		wire := oaiMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			args, err := json.Marshal(tc.Arguments)
			if err != nil {
				args = []byte("{}")
			}
			wire.ToolCalls = append(wire.ToolCalls, oaiToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: oaiFunction{Name: tc.Name, Arguments: string(args)},
			})
		}
		out[i] = wire
	}
	return out
}

func fromWireToolCalls(wire []oaiToolCall) []ToolCall {
	if len(wire) == 0 {
		return nil
	}
	out := make([]ToolCall, 0, len(wire))
	for _, tc := range wire {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				args = map[string]any{}
			}
		}
		out = append(out, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	return out
}

func (p *OpenAICompatProvider) chatRequest(req Request, stream bool) oaiChatRequest {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	return oaiChatRequest{
		Model:       model,
		Messages:    toWireMessages(applyDirective(req.Messages)),
		Temperature: req.temperature(),
		MaxTokens:   req.maxTokens(),
		Stream:      stream,
		Tools:       req.Tools,
	}
}

func (p *OpenAICompatProvider) post(ctx context.Context, payload oaiChatRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.apiBase+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	return p.client.Do(httpReq)
}

type oaiChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      oaiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *OpenAICompatProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	payload := p.chatRequest(req, false)

	resp, err := p.post(ctx, payload)
	if err != nil {
		if isConnectError(err) {
			return &Response{
				Content:      fmt.Sprintf("Error: Cannot connect to %s", p.apiBase),
				FinishReason: "error",
				Model:        payload.Model,
			}, nil
		}
		slog.Error("chat completion failed", "provider", p.name, "error", err)
		return &Response{Content: fmt.Sprintf("Error: %v", err), FinishReason: "error", Model: payload.Model}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errText, _ := io.ReadAll(resp.Body)
		return &Response{
			Content:      fmt.Sprintf("API Error (%d): %s", resp.StatusCode, errText),
			FinishReason: "error",
			Model:        payload.Model,
		}, nil
	}

	var data oaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return &Response{Content: fmt.Sprintf("Error: %v", err), FinishReason: "error", Model: payload.Model}, nil
	}
	if len(data.Choices) == 0 {
		return &Response{Content: "Error: empty choices in response", FinishReason: "error", Model: payload.Model}, nil
	}

	choice := data.Choices[0]
	finish := choice.FinishReason
	if finish == "" {
		finish = "stop"
	}
	model := data.Model
	if model == "" {
		model = payload.Model
	}
	return &Response{
		Content:      choice.Message.Content,
		ToolCalls:    fromWireToolCalls(choice.Message.ToolCalls),
		FinishReason: finish,
		Model:        model,
		Usage:        Usage{PromptTokens: data.Usage.PromptTokens, CompletionTokens: data.Usage.CompletionTokens},
	}, nil
}

type oaiStreamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// toolCallAccum rebuilds tool calls from per-index argument fragments.
type toolCallAccum struct {
	id   string
	name string
	args strings.Builder
}

// StreamGenerate streams SSE chunks, accumulating any tool call deltas
// so the terminal chunk carries complete calls.
func (p *OpenAICompatProvider) StreamGenerate(ctx context.Context, req Request) <-chan StreamChunkData {
	ch := make(chan StreamChunkData)
	payload := p.chatRequest(req, true)

	go func() {
		defer close(ch)
		send := func(c StreamChunkData) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		resp, err := p.post(ctx, payload)
		if err != nil {
			text := fmt.Sprintf("Error: %v", err)
			if isConnectError(err) {
				text = fmt.Sprintf("Error: Cannot connect to %s", p.apiBase)
			}
			send(StreamChunkData{Text: text, IsFinal: true, FinishReason: "error", Model: payload.Model})
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			errText, _ := io.ReadAll(resp.Body)
			send(StreamChunkData{
				Text:         fmt.Sprintf("API Error (%d): %s", resp.StatusCode, errText),
				IsFinal:      true,
				FinishReason: "error",
				Model:        payload.Model,
			})
			return
		}

		accum := map[int]*toolCallAccum{}
		model := payload.Model

		finalize := func(finish string) StreamChunkData {
			calls := collectToolCalls(accum)
			if finish == "" {
				finish = "stop"
				if len(calls) > 0 {
					finish = "tool_calls"
				}
			}
			return StreamChunkData{IsFinal: true, FinishReason: finish, ToolCalls: calls, Model: model}
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "data: [DONE]" {
				send(finalize(""))
				return
			}
			line = strings.TrimPrefix(line, "data: ")

			var chunk oaiStreamChunk
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				continue
			}
			if chunk.Model != "" {
				model = chunk.Model
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]

			for _, tc := range choice.Delta.ToolCalls {
				acc, ok := accum[tc.Index]
				if !ok {
					acc = &toolCallAccum{}
					accum[tc.Index] = acc
				}
				if tc.ID != "" {
					acc.id = tc.ID
				}
				if tc.Function.Name != "" {
					acc.name = tc.Function.Name
				}
				acc.args.WriteString(tc.Function.Arguments)
			}

			if choice.Delta.Content != "" {
				if !send(StreamChunkData{Text: choice.Delta.Content}) {
					return
				}
			}
			if choice.FinishReason != "" {
				send(finalize(choice.FinishReason))
				return
			}
		}

		final := finalize("")
		if err := scanner.Err(); err != nil {
			final.Text = fmt.Sprintf("Error: %v", err)
			final.FinishReason = "error"
		}
		send(final)
	}()

	return ch
}

func collectToolCalls(accum map[int]*toolCallAccum) []ToolCall {
	if len(accum) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(accum))
	for i := range accum {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	calls := make([]ToolCall, 0, len(indexes))
	for _, i := range indexes {
		acc := accum[i]
		args := map[string]any{}
		if s := acc.args.String(); s != "" {
			if err := json.Unmarshal([]byte(s), &args); err != nil {
				args = map[string]any{}
			}
		}
		calls = append(calls, ToolCall{ID: acc.id, Name: acc.name, Arguments: args})
	}
	return calls
}

// ListModels queries the /models endpoint.
func (p *OpenAICompatProvider) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", p.apiBase+"/models", nil)
	if err != nil {
		return nil, err
	}
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list models: status %d", resp.StatusCode)
	}

	var data struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(data.Data))
	for _, m := range data.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}
