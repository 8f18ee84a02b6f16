package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rotbotlabs/rotbot/internal/config"
)

// Version is set at build time via -ldflags "-X github.com/rotbotlabs/rotbot/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "rotbot",
	Short: "rotbot — the open agent framework for every platform",
	Long:  "rotbot: a local-first AI agent you can talk to from the terminal, Telegram, Discord, Signal, or a browser. One agent loop, one memory, every channel.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.rotbot/config.json or $ROTBOT_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(onboardCmd())
	rootCmd.AddCommand(agentCmd())
	rootCmd.AddCommand(gatewayCmd())
	rootCmd.AddCommand(providerCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("rotbot %s\n", Version)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return config.ExpandHome(cfgFile)
	}
	if v := os.Getenv("ROTBOT_CONFIG"); v != "" {
		return config.ExpandHome(v)
	}
	return config.ConfigPath()
}

// setupLogging installs the default text handler. Commands pick the
// base level: the gateway talks at info, the chat surfaces stay quiet
// at warn unless --logs or --verbose asks for more.
func setupLogging(level slog.Level) {
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// Execute runs the root cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
