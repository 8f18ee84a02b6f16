package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/rotbotlabs/rotbot/internal/config"
	"github.com/rotbotlabs/rotbot/internal/providers"
)

func providerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Manage LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Usage: rotbot provider [add|list|login]")
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add",
		Short: "Interactively add a new provider",
		Run: func(cmd *cobra.Command, args []string) {
			if err := runProviderAdd(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured providers",
		Run: func(cmd *cobra.Command, args []string) {
			runProviderList()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "login",
		Short: "Log in to a provider via OAuth",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("OAuth login not yet implemented.")
		},
	})

	return cmd
}

// providerOptions labels each selectable provider with its endpoint so
// the picker doubles as documentation.
func providerOptions() []huh.Option[string] {
	names := providers.Available()
	opts := make([]huh.Option[string], 0, len(names))
	for _, name := range names {
		label := name
		switch {
		case name == "ollama":
			label += " — local"
		case name == "custom":
			label += " — custom URL"
		case providers.KnownBase(name) != "":
			label += " — " + providers.KnownBase(name)
		}
		opts = append(opts, huh.NewOption(label, name))
	}
	return opts
}

func runProviderAdd() error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("\nAdd a new LLM provider")

	var name string
	if err := huh.NewSelect[string]().
		Title("Provider").
		Options(providerOptions()...).
		Value(&name).
		Run(); err != nil {
		return err
	}

	pc := cfg.Providers[name]
	model := ""

	switch name {
	case "ollama":
		baseURL := "http://localhost:11434"
		model = "llama3.1:8b"
		if err := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Ollama URL").Value(&baseURL),
			huh.NewInput().Title("Default model").Value(&model),
		)).Run(); err != nil {
			return err
		}
		pc.BaseURL = baseURL
		pc.DefaultModel = model

	case "custom":
		var apiBase, apiKey string
		if err := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("API base URL (e.g. http://localhost:8000/v1)").Value(&apiBase),
			huh.NewInput().Title("API key (leave empty if none)").EchoMode(huh.EchoModePassword).Value(&apiKey),
			huh.NewInput().Title("Default model name").Value(&model),
		)).Run(); err != nil {
			return err
		}
		pc.APIBase = apiBase
		pc.APIKey = apiKey
		pc.DefaultModel = model

	default:
		var apiKey string
		if err := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title(name+" API key").EchoMode(huh.EchoModePassword).Value(&apiKey),
			huh.NewInput().Title("Default model").Value(&model),
		)).Run(); err != nil {
			return err
		}
		pc.APIKey = apiKey
		pc.DefaultModel = model
	}

	if cfg.Providers == nil {
		cfg.Providers = map[string]config.ProviderConfig{}
	}
	cfg.Providers[name] = pc

	makeDefault := true
	if err := huh.NewConfirm().
		Title(fmt.Sprintf("Set %s as default provider?", name)).
		Value(&makeDefault).
		Run(); err != nil {
		return err
	}
	if makeDefault {
		cfg.Agents.Defaults.Provider = name
		cfg.Agents.Defaults.Model = model
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("\nProvider '%s' added successfully!\n", name)
	return nil
}

func runProviderList() {
	cfg := loadConfig()

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		ptype := "openai-compat"
		if name == "ollama" {
			ptype = "ollama"
		}
		mark := ""
		if name == cfg.Agents.Defaults.Provider {
			mark = "***"
		}
		rows = append(rows, []string{name, ptype, cfg.Providers[name].DefaultModel, mark})
	}

	if len(rows) == 0 {
		fmt.Println("No providers configured. Run 'rotbot provider add'.")
		return
	}

	fmt.Println("Configured Providers")
	printTable([]string{"Name", "Type", "Default Model", "Default"}, rows)
}

// printTable renders rows in aligned columns. Widths are computed with
// runewidth so CJK model names line up.
func printTable(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	line := "  "
	for i, h := range headers {
		line += runewidth.FillRight(h, widths[i]+2)
	}
	fmt.Println(strings.TrimRight(line, " "))

	for _, row := range rows {
		line = "  "
		for i, cell := range row {
			line += runewidth.FillRight(cell, widths[i]+2)
		}
		fmt.Println(strings.TrimRight(line, " "))
	}
}
