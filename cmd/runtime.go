package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/rotbotlabs/rotbot/internal/agent"
	"github.com/rotbotlabs/rotbot/internal/bus"
	"github.com/rotbotlabs/rotbot/internal/channels"
	"github.com/rotbotlabs/rotbot/internal/config"
	"github.com/rotbotlabs/rotbot/internal/mcp"
	"github.com/rotbotlabs/rotbot/internal/memory"
	"github.com/rotbotlabs/rotbot/internal/providers"
	"github.com/rotbotlabs/rotbot/internal/sessions"
	"github.com/rotbotlabs/rotbot/internal/skills"
	"github.com/rotbotlabs/rotbot/internal/tools"
	"github.com/rotbotlabs/rotbot/internal/workspace"
)

// runtime bundles the components every chat surface needs: the bus, the
// agent loop, and the channel manager. agent and gateway both boot
// through here so a one-shot message and a long-running daemon see the
// same tool and skill setup.
type runtime struct {
	cfg      *config.Config
	bus      *bus.MessageBus
	manager  *channels.Manager
	loop     *agent.Loop
	provider providers.Provider
	tools    *tools.Registry
	skills   *skills.Loader
	mcp      *mcp.Manager
}

// newRuntime assembles the agent runtime from config. The MCP manager
// is started here because bridge tools must be registered before the
// loop advertises schemas.
func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	if err := config.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("create data dirs: %w", err)
	}

	seeded, err := workspace.EnsureFiles(config.WorkspaceDir())
	if err != nil {
		slog.Warn("workspace template seeding failed", "error", err)
	} else if len(seeded) > 0 {
		slog.Info("seeded workspace templates", "files", seeded)
	}

	provider, err := providers.FromConfig(cfg, cfg.Agents.Defaults.Provider)
	if err != nil {
		return nil, err
	}

	sessStore, err := sessions.NewStore(config.SessionsDir())
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	memStore, err := memory.NewStore(config.MemoryDir())
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}

	toolsReg := tools.NewRegistry()
	tools.RegisterBuiltins(toolsReg, cfg)

	var mcpMgr *mcp.Manager
	if len(cfg.Tools.MCPServers) > 0 {
		mcpMgr = mcp.NewManager(toolsReg, cfg.Tools.MCPServers)
		if err := mcpMgr.Start(ctx); err != nil {
			slog.Warn("mcp startup incomplete", "error", err)
		}
		slog.Info("mcp servers initialized", "tools", len(mcpMgr.ToolNames()))
	}

	skillsLoader := skills.NewLoader(config.SkillsDir())
	skillsLoader.LoadAll()

	msgBus := bus.New()
	loop := agent.New(agent.Config{
		Bus:       msgBus,
		Sessions:  sessStore,
		Memory:    memStore,
		Provider:  provider,
		Tools:     toolsReg,
		Skills:    skillsLoader,
		Defaults:  cfg.Agents.Defaults,
		Workspace: config.WorkspaceDir(),
	})

	return &runtime{
		cfg:      cfg,
		bus:      msgBus,
		manager:  channels.NewManager(msgBus),
		loop:     loop,
		provider: provider,
		tools:    toolsReg,
		skills:   skillsLoader,
		mcp:      mcpMgr,
	}, nil
}

func (rt *runtime) close() {
	if rt.mcp != nil {
		rt.mcp.Stop()
	}
	if err := rt.provider.Close(); err != nil {
		slog.Debug("provider close error", "error", err)
	}
	rt.bus.Stop()
}

// loadConfig reads the resolved config file. A missing file yields the
// defaults so `rotbot agent` works against a local Ollama with zero
// setup.
func loadConfig() *config.Config {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
