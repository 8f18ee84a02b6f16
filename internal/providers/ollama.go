package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotbotlabs/rotbot/internal/config"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3.1:8b"
	requestTimeout     = 180 * time.Second
	ollamaNumCtx       = 4096
)

const ollamaConnectError = "Error: Cannot connect to Ollama. Make sure it's running."

// OllamaProvider talks to a local Ollama server over its native API.
type OllamaProvider struct {
	baseURL      string
	defaultModel string
	models       map[string]string // mode -> model
	client       *http.Client
}

func NewOllamaProvider(cfg config.ProviderConfig) *OllamaProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	model := cfg.DefaultModel
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaProvider{
		baseURL:      strings.TrimRight(baseURL, "/"),
		defaultModel: model,
		models:       cfg.Models,
		client:       &http.Client{Timeout: requestTimeout},
	}
}

func (p *OllamaProvider) Name() string         { return "ollama" }
func (p *OllamaProvider) SupportsTools() bool  { return false }
func (p *OllamaProvider) SupportsVision() bool { return p.models["vision"] != "" }

func (p *OllamaProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
	NumCtx      int     `json:"num_ctx"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	Error           string        `json:"error,omitempty"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

func (p *OllamaProvider) chatRequest(req Request, stream bool) ollamaChatRequest {
	guarded := applyDirective(req.Messages)
	messages := make([]ollamaMessage, len(guarded))
	for i, m := range guarded {
		messages[i] = ollamaMessage{Role: m.Role, Content: m.Content, Images: m.Images}
	}
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}
	return ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   stream,
		Options: ollamaOptions{
			Temperature: req.temperature(),
			NumPredict:  req.maxTokens(),
			NumCtx:      ollamaNumCtx,
		},
	}
}

func (p *OllamaProvider) post(ctx context.Context, payload ollamaChatRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return p.client.Do(httpReq)
}

// Generate returns a complete response via /api/chat. Transport and
// server failures come back as a Response with FinishReason "error" so
// the caller has one error surface for both.
func (p *OllamaProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	payload := p.chatRequest(req, false)

	resp, err := p.post(ctx, payload)
	if err != nil {
		if isConnectError(err) {
			return &Response{Content: ollamaConnectError, FinishReason: "error", Model: payload.Model}, nil
		}
		slog.Error("ollama generate failed", "error", err)
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

	var data ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return &Response{Content: fmt.Sprintf("Error: %v", err), FinishReason: "error", Model: payload.Model}, nil
	}
	model := data.Model
	if model == "" {
		model = payload.Model
	}
	return &Response{
		Content:      strings.TrimSpace(data.Message.Content),
		FinishReason: "stop",
		Model:        model,
		Usage:        Usage{PromptTokens: data.PromptEvalCount, CompletionTokens: data.EvalCount},
	}, nil
}

// StreamGenerate streams /api/chat as JSON lines. The channel always
// ends with exactly one final chunk.
func (p *OllamaProvider) StreamGenerate(ctx context.Context, req Request) <-chan StreamChunkData {
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
				text = ollamaConnectError
			}
			send(StreamChunkData{Text: text, IsFinal: true, FinishReason: "error", Model: payload.Model})
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			errBody, _ := io.ReadAll(resp.Body)
			msg := string(errBody)
			var parsed struct {
				Error string `json:"error"`
			}
			if json.Unmarshal(errBody, &parsed) == nil && parsed.Error != "" {
				msg = parsed.Error
			}
			send(StreamChunkData{
				Text:         fmt.Sprintf("API Error (%d): %s", resp.StatusCode, msg),
				IsFinal:      true,
				FinishReason: "error",
				Model:        payload.Model,
			})
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			var data ollamaChatResponse
			if err := json.Unmarshal(line, &data); err != nil {
				continue
			}
			if data.Error != "" {
				send(StreamChunkData{
					Text:         fmt.Sprintf("Error: %s", data.Error),
					IsFinal:      true,
					FinishReason: "error",
					Model:        payload.Model,
				})
				return
			}
			if data.Done {
				model := data.Model
				if model == "" {
					model = payload.Model
				}
				send(StreamChunkData{
					Text:         data.Message.Content,
					IsFinal:      true,
					FinishReason: "stop",
					Model:        model,
					Usage:        &Usage{PromptTokens: data.PromptEvalCount, CompletionTokens: data.EvalCount},
				})
				return
			}
			if data.Message.Content != "" {
				if !send(StreamChunkData{Text: data.Message.Content}) {
					return
				}
			}
		}

		// Body ended without a done marker.
		final := StreamChunkData{IsFinal: true, FinishReason: "stop", Model: payload.Model}
		if err := scanner.Err(); err != nil {
			final.Text = fmt.Sprintf("Error: %v", err)
			final.FinishReason = "error"
		}
		send(final)
	}()

	return ch
}

// ListModels returns the models installed on the server via /api/tags.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "GET", p.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
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
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(data.Models))
	for _, m := range data.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// KeepAlive asks the server to pre-load a model so the first turn does
// not pay the load cost.
func (p *OllamaProvider) KeepAlive(ctx context.Context, model string) {
	if model == "" {
		model = p.defaultModel
	}
	body, _ := json.Marshal(map[string]any{"model": model, "prompt": "", "keep_alive": "10m"})
	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(httpReq)
	if err != nil {
		slog.Warn("model keep-alive failed", "model", model, "error", err)
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	slog.Info("pre-loaded model", "model", model)
}

// ModelForMode returns the model configured for a mode, falling back to
// the default model.
func (p *OllamaProvider) ModelForMode(mode string) string {
	if m := p.models[mode]; m != "" {
		return m
	}
	return p.defaultModel
}

// isConnectError reports transport-level failures (connection refused,
// DNS) as opposed to timeouts and protocol errors.
func isConnectError(err error) bool {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return !uerr.Timeout() && !errors.Is(err, context.Canceled)
	}
	return false
}
