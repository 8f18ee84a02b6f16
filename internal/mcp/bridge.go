package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/rotbotlabs/rotbot/internal/tools"
)

// toolCaller is the slice of the MCP client the bridge needs.
type toolCaller interface {
	CallTool(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error)
}

// BridgeTool exposes one MCP server tool through the agent's tool
// interface. The registered name is {server}_{tool} so servers cannot
// shadow each other.
type BridgeTool struct {
	serverName string
	tool       mcpgo.Tool
	client     toolCaller
	connected  *atomic.Bool
}

func NewBridgeTool(serverName string, tool mcpgo.Tool, client toolCaller, connected *atomic.Bool) *BridgeTool {
	return &BridgeTool{
		serverName: serverName,
		tool:       tool,
		client:     client,
		connected:  connected,
	}
}

func (b *BridgeTool) Name() string {
	return b.serverName + "_" + b.tool.Name
}

func (b *BridgeTool) Description() string {
	return b.tool.Description
}

func (b *BridgeTool) Parameters() map[string]any {
	return schemaToMap(b.tool.InputSchema)
}

func (b *BridgeTool) Execute(ctx context.Context, args map[string]any) *tools.Result {
	if !b.connected.Load() {
		return tools.Errorf("MCP server '%s' not running", b.serverName)
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	req := mcpgo.CallToolRequest{}
	req.Params.Name = b.tool.Name
	req.Params.Arguments = args

	result, err := b.client.CallTool(ctx, req)
	if err != nil {
		return tools.Errorf("MCP tool error: %v", err)
	}
	if result == nil {
		return tools.ErrorResult("MCP tool error: empty result")
	}

	text := extractText(result)
	if result.IsError {
		return tools.ErrorResult(text)
	}
	return tools.NewResult(text)
}

// schemaToMap converts the typed input schema to the generic JSON
// schema map the provider layer expects.
func schemaToMap(schema mcpgo.ToolInputSchema) map[string]any {
	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// extractText joins the text contents of a call result. Non-text
// contents fall back to their JSON form so nothing is silently lost.
func extractText(res *mcpgo.CallToolResult) string {
	var texts []string
	for _, c := range res.Content {
		if tc, ok := mcpgo.AsTextContent(c); ok {
			texts = append(texts, tc.Text)
		}
	}
	if len(texts) > 0 {
		return strings.Join(texts, "\n")
	}
	raw, err := json.Marshal(res.Content)
	if err != nil {
		return ""
	}
	return string(raw)
}
