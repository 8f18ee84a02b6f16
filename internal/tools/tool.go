// Package tools implements the agent's tool surface: the registry the
// loop executes against, and the built-in tools (filesystem, shell, web
// search, calculator, knowledge base) gated by the config allowlist.
package tools

import (
	"context"

	"github.com/rotbotlabs/rotbot/internal/providers"
)

// Tool is one callable capability advertised to the model.
type Tool interface {
	Name() string
	Description() string

	// Parameters returns the JSON schema for the tool's arguments.
	Parameters() map[string]any

	// Execute runs the tool. Failures are reported inside the Result,
	// never as a panic or raised error.
	Execute(ctx context.Context, args map[string]any) *Result
}

// ToProviderDef converts a tool to the schema shape providers advertise.
func ToProviderDef(t Tool) providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}

// stringArg reads a string argument, tolerating absence.
func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// intArg reads an integer argument; JSON decoding delivers numbers as
// float64, so both shapes are accepted.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}
