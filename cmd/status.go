package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rotbotlabs/rotbot/internal/config"
	"github.com/rotbotlabs/rotbot/internal/providers"
	"github.com/rotbotlabs/rotbot/internal/rag"
	"github.com/rotbotlabs/rotbot/internal/sessions"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show system status",
		Run: func(cmd *cobra.Command, args []string) {
			runStatus()
		},
	}
}

func runStatus() {
	cfg := loadConfig()

	fmt.Println("rotbot status")
	fmt.Printf("  %-12s %s\n", "Version:", Version)
	fmt.Printf("  %-12s %s\n", "Config:", friendlyPath(resolveConfigPath()))
	fmt.Printf("  %-12s %s\n", "Data dir:", friendlyPath(config.RotbotDir()))

	provider := cfg.Agents.Defaults.Provider
	if provider == "" {
		provider = "ollama"
	}
	fmt.Println()
	fmt.Printf("  %-15s %s\n", "Provider:", provider)
	fmt.Printf("  %-15s %s\n", "Default model:", cfg.Agents.Defaults.Model)

	if provider == "ollama" {
		fmt.Printf("  %-15s %s\n", "Ollama:", checkOllama(cfg))
	}

	fmt.Println()
	fmt.Println("  Channels:")
	printTable([]string{"Channel", "Status"}, [][]string{
		{"discord", enabledWord(cfg.Channels.Discord.Enabled)},
		{"telegram", enabledWord(cfg.Channels.Telegram.Enabled)},
		{"signal", enabledWord(cfg.Channels.Signal.Enabled)},
		{"web", enabledWord(cfg.Channels.Web.Enabled)},
	})

	sessionCount := 0
	if store, err := sessions.NewStore(config.SessionsDir()); err == nil {
		sessionCount = len(store.List())
	}
	fmt.Println()
	fmt.Printf("  Sessions: %d\n", sessionCount)

	collections := rag.ListCollections(config.RAGDir())
	totalDocs := 0
	for _, c := range collections {
		if store, err := rag.New(config.RAGDir(), c); err == nil {
			totalDocs += store.Count()
		}
	}
	fmt.Printf("  RAG collections: %d (%d documents)\n", len(collections), totalDocs)

	fmt.Printf("  Tools: %d built-in, %d MCP servers\n", len(cfg.Tools.Builtin), len(cfg.Tools.MCPServers))
}

// checkOllama probes the configured Ollama server and reports either
// the model count or the unreachable endpoint.
func checkOllama(cfg *config.Config) string {
	base := cfg.Providers["ollama"].BaseURL
	if base == "" {
		base = "http://localhost:11434"
	}

	p, err := providers.FromConfig(cfg, "ollama")
	if err != nil {
		return fmt.Sprintf("not reachable at %s", base)
	}
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	models, err := p.ListModels(ctx)
	if err != nil {
		return fmt.Sprintf("not reachable at %s", base)
	}
	return fmt.Sprintf("connected (%d models)", len(models))
}

func enabledWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

// friendlyPath shows ~/... instead of the full absolute path.
func friendlyPath(p string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return p
	}
	if rel, err := filepath.Rel(home, p); err == nil && !strings.HasPrefix(rel, "..") {
		return "~/" + filepath.ToSlash(rel)
	}
	return p
}
