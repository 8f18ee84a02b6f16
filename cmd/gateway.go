package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rotbotlabs/rotbot/internal/access"
	"github.com/rotbotlabs/rotbot/internal/channels"
	"github.com/rotbotlabs/rotbot/internal/channels/discord"
	signalch "github.com/rotbotlabs/rotbot/internal/channels/signal"
	"github.com/rotbotlabs/rotbot/internal/channels/telegram"
	"github.com/rotbotlabs/rotbot/internal/channels/web"
	"github.com/rotbotlabs/rotbot/internal/config"
	"github.com/rotbotlabs/rotbot/internal/cron"
)

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the multi-channel gateway daemon",
		Long:  "Start the long-running gateway: connects every enabled channel (Telegram, Discord, Signal, web) to the agent loop and keeps them up until interrupted.",
		Run: func(cmd *cobra.Command, args []string) {
			setupLogging(slog.LevelInfo)
			runGateway()
		},
	}
}

func runGateway() {
	cfg := loadConfig()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintln(os.Stderr, "Run 'rotbot onboard' to configure a provider.")
		os.Exit(1)
	}
	defer rt.close()

	registered := registerChannels(rt)
	if registered == 0 {
		fmt.Println("No channels enabled. Edit ~/.rotbot/config.json or run 'rotbot onboard'.")
		return
	}
	fmt.Printf("Starting gateway with %d channel(s)...\n", registered)

	if err := rt.manager.StartAll(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rt.loop.Run(gctx)
		return nil
	})
	g.Go(func() error {
		cron.New(rt.bus, cfg.Cron.Jobs).Run(gctx)
		return nil
	})
	rt.skills.Watch(gctx)

	<-ctx.Done()
	slog.Info("shutting down gateway")

	rt.loop.Stop()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	rt.manager.StopAll(stopCtx)
	g.Wait()
}

// registerChannels builds an adapter for every enabled transport and
// registers it with the manager. A transport that fails to construct is
// logged and skipped so one bad token does not take down the rest.
func registerChannels(rt *runtime) int {
	cfg := rt.cfg

	store, err := access.Open(filepath.Join(config.RotbotDir(), "approved_users.json"))
	if err != nil {
		slog.Error("could not open access store, pairing disabled", "error", err)
	}

	registered := 0

	if cfg.Channels.Telegram.Enabled {
		adminID := ""
		if cfg.Channels.Telegram.AdminID != 0 {
			adminID = strconv.FormatInt(cfg.Channels.Telegram.AdminID, 10)
		}
		gate := channels.NewGate(store, "telegram", adminID)
		ch, err := telegram.New(cfg.Channels.Telegram, rt.bus, gate)
		if err != nil {
			slog.Error("telegram channel setup failed", "error", err)
		} else {
			rt.manager.Register(ch)
			registered++
		}
	}

	if cfg.Channels.Discord.Enabled {
		gate := channels.NewGate(store, "discord", cfg.Channels.Discord.AdminID)
		ch, err := discord.New(cfg.Channels.Discord, rt.bus, gate)
		if err != nil {
			slog.Error("discord channel setup failed", "error", err)
		} else {
			rt.manager.Register(ch)
			registered++
		}
	}

	if cfg.Channels.Signal.Enabled {
		gate := channels.NewGate(store, "signal", "")
		rt.manager.Register(signalch.New(cfg.Channels.Signal, rt.bus, gate))
		registered++
	}

	if cfg.Channels.Web.Enabled {
		rt.manager.Register(web.New(cfg.Channels.Web, rt.bus))
		registered++
	}

	return registered
}
