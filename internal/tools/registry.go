package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/rotbotlabs/rotbot/internal/config"
	"github.com/rotbotlabs/rotbot/internal/providers"
)

// Registry holds the tools available to an agent. Registration order is
// preserved so the schema list advertised to providers is stable.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any previous tool of the same name in
// place.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Unregister removes a tool by name. Unknown names are ignored.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; !exists {
		return
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns tool names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Schemas returns provider-shaped definitions for every registered tool,
// in registration order.
func (r *Registry) Schemas() []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]providers.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, ToProviderDef(r.tools[name]))
	}
	return defs
}

// Execute runs a named tool. Unknown names and panics inside tools are
// reported as error results so a misbehaving tool can never take down
// the agent loop.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (res *Result) {
	tool, ok := r.Get(name)
	if !ok {
		available := strings.Join(r.List(), ", ")
		return Errorf("Error: Unknown tool '%s'. Available: %s", name, available)
	}
	defer func() {
		if p := recover(); p != nil {
			slog.Error("tool panicked", "tool", name, "panic", p)
			res = Errorf("Error executing %s: %v", name, p)
		}
	}()
	return tool.Execute(ctx, args)
}

// RegisterBuiltins registers the built-in tools named by the config
// allowlist. Unknown entries are skipped with a warning so an old config
// keeps working after a tool is retired.
func RegisterBuiltins(r *Registry, cfg *config.Config) {
	workspace := config.WorkspaceDir()
	restrict := cfg.Tools.RestrictToWorkspace

	for _, name := range cfg.Tools.Builtin {
		switch name {
		case "web_search":
			r.Register(NewWebSearchTool())
		case "math_solver":
			r.Register(NewCalculateTool())
		case "shell":
			r.Register(NewShellTool(workspace, restrict))
		case "file_ops":
			r.Register(NewReadFileTool(workspace, restrict))
			r.Register(NewWriteFileTool(workspace, restrict))
			r.Register(NewAppendFileTool(workspace, restrict))
			r.Register(NewListFilesTool(workspace, restrict))
		case "rag_search":
			r.Register(NewRAGSearchTool(config.RAGDir()))
			r.Register(NewRAGIngestTool(config.RAGDir()))
		case "url_reader":
			// Retired; kept in default configs for compatibility.
		default:
			slog.Warn("unknown builtin tool in config", "name", name)
		}
	}

	slog.Info(fmt.Sprintf("registered %d tools: %s", r.Count(), strings.Join(r.List(), ", ")))
}
