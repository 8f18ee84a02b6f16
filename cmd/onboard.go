package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/rotbotlabs/rotbot/internal/config"
	"github.com/rotbotlabs/rotbot/internal/workspace"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive setup wizard for first-time users",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runOnboard(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		},
	}
}

func runOnboard() error {
	fmt.Println("Welcome to rotbot!")
	fmt.Println("The open agent framework for every platform.")
	fmt.Println()
	fmt.Println("Let's get you set up.")

	cfgPath := resolveConfigPath()

	if _, err := os.Stat(cfgPath); err == nil {
		overwrite := false
		if err := huh.NewConfirm().
			Title("Config already exists. Overwrite?").
			Value(&overwrite).
			Run(); err != nil {
			return err
		}
		if !overwrite {
			fmt.Println("Keeping existing config.")
			return nil
		}
	}

	cfg := config.Default()

	if err := onboardProvider(cfg); err != nil {
		return err
	}
	if err := onboardChannels(cfg); err != nil {
		return err
	}

	fmt.Println("\nStep 3: Creating workspace...")
	if err := config.EnsureDirs(); err != nil {
		return fmt.Errorf("create data dirs: %w", err)
	}
	for _, dir := range []string{
		config.WorkspaceDir(), config.MemoryDir(), config.SessionsDir(), config.SkillsDir(),
	} {
		fmt.Printf("  Created %s\n", dir)
	}
	if _, err := workspace.EnsureFiles(config.WorkspaceDir()); err != nil {
		fmt.Printf("  Warning: could not seed workspace files: %v\n", err)
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("\n  Config saved to %s\n", cfgPath)

	fmt.Println("\nSetup complete!")
	fmt.Println()
	fmt.Printf("Config: %s\n", cfgPath)
	fmt.Printf("Workspace: %s\n", config.WorkspaceDir())
	fmt.Println()
	fmt.Println("Quick start:")
	fmt.Println("  rotbot agent        — Chat in terminal")
	fmt.Println("  rotbot gateway      — Start all channels")
	fmt.Println("  rotbot status       — Check system status")
	fmt.Println("  rotbot provider add — Add another provider")
	return nil
}

// onboardProvider runs step 1 of the wizard: pick the primary LLM
// provider and its model.
func onboardProvider(cfg *config.Config) error {
	fmt.Println("\nStep 1: LLM Provider")
	fmt.Println("rotbot works with Ollama (free, local) or any cloud provider (BYOK).")

	provider := "ollama"
	if err := huh.NewSelect[string]().
		Title("Primary provider").
		Options(
			huh.NewOption("ollama", "ollama"),
			huh.NewOption("openai", "openai"),
			huh.NewOption("anthropic", "anthropic"),
			huh.NewOption("gemini", "gemini"),
			huh.NewOption("openrouter", "openrouter"),
			huh.NewOption("custom", "custom"),
		).
		Value(&provider).
		Run(); err != nil {
		return err
	}

	if provider == "ollama" {
		baseURL := "http://localhost:11434"
		model := "llama3.1:8b"
		if err := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Ollama URL").Value(&baseURL),
			huh.NewInput().Title("Default model").Value(&model),
		)).Run(); err != nil {
			return err
		}
		pc := cfg.Providers["ollama"]
		pc.BaseURL = baseURL
		pc.DefaultModel = model
		cfg.Providers["ollama"] = pc
		cfg.Agents.Defaults.Provider = "ollama"
		cfg.Agents.Defaults.Model = model
		return nil
	}

	var apiKey, model string
	if err := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title(provider+" API key").EchoMode(huh.EchoModePassword).Value(&apiKey),
		huh.NewInput().Title("Default model").Value(&model),
	)).Run(); err != nil {
		return err
	}
	cfg.Providers[provider] = config.ProviderConfig{
		APIKey:       apiKey,
		DefaultModel: model,
	}
	cfg.Agents.Defaults.Provider = provider
	cfg.Agents.Defaults.Model = model
	return nil
}

// onboardChannels runs step 2: optionally enable chat transports.
// Everything here can also be flipped later in config.json.
func onboardChannels(cfg *config.Config) error {
	fmt.Println("\nStep 2: Chat Channels (optional)")
	fmt.Println("You can always add channels later in config.json.")

	enableDiscord := false
	if err := huh.NewConfirm().Title("Enable Discord?").Value(&enableDiscord).Run(); err != nil {
		return err
	}
	if enableDiscord {
		var token string
		if err := huh.NewInput().Title("Discord bot token").EchoMode(huh.EchoModePassword).Value(&token).Run(); err != nil {
			return err
		}
		cfg.Channels.Discord.Enabled = true
		cfg.Channels.Discord.Token = token
	}

	enableTelegram := false
	if err := huh.NewConfirm().Title("Enable Telegram?").Value(&enableTelegram).Run(); err != nil {
		return err
	}
	if enableTelegram {
		var token string
		adminID := "0"
		if err := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Telegram bot token").EchoMode(huh.EchoModePassword).Value(&token),
			huh.NewInput().Title("Your Telegram user ID (admin)").Value(&adminID),
		)).Run(); err != nil {
			return err
		}
		cfg.Channels.Telegram.Enabled = true
		cfg.Channels.Telegram.Token = token
		if id, err := strconv.ParseInt(adminID, 10, 64); err == nil {
			cfg.Channels.Telegram.AdminID = id
		}
	}

	enableSignal := false
	if err := huh.NewConfirm().Title("Enable Signal?").Value(&enableSignal).Run(); err != nil {
		return err
	}
	if enableSignal {
		var phone string
		if err := huh.NewInput().Title("Signal phone number (e.g. +1234567890)").Value(&phone).Run(); err != nil {
			return err
		}
		cfg.Channels.Signal.Enabled = true
		cfg.Channels.Signal.Phone = phone
	}

	return nil
}
