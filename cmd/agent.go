package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rotbotlabs/rotbot/internal/bus"
	"github.com/rotbotlabs/rotbot/internal/channels/cli"
)

// oneShotTimeout bounds a single -m turn. Generous because a local
// model on CPU can take minutes on a long tool chain.
const oneShotTimeout = 3 * time.Minute

func agentCmd() *cobra.Command {
	var (
		message    string
		noMarkdown bool
		showLogs   bool
	)

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Chat with the agent in your terminal",
		Long: `Chat with the agent interactively or send a one-shot message.

Examples:
  rotbot agent                      # Interactive REPL
  rotbot agent -m "What time is it?"    # One-shot message
  rotbot agent --logs               # Interactive with debug logging`,
		Run: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if showLogs {
				level = slog.LevelDebug
			}
			setupLogging(level)
			runAgent(message, noMarkdown)
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "one-shot message (omit for interactive mode)")
	cmd.Flags().BoolVar(&noMarkdown, "no-markdown", false, "strip markdown formatting from replies")
	cmd.Flags().BoolVar(&showLogs, "logs", false, "show agent logs while chatting")

	return cmd
}

func runAgent(message string, noMarkdown bool) {
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

	go rt.loop.Run(ctx)
	defer rt.loop.Stop()

	if message != "" {
		runOneShot(ctx, rt, message, noMarkdown)
		return
	}

	term := cli.New(rt.bus, rt.manager)
	term.SetPlain(noMarkdown)
	rt.manager.Register(term)

	if err := rt.manager.StartAll(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	select {
	case <-term.Done():
	case <-ctx.Done():
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	rt.manager.StopAll(stopCtx)
}

// runOneShot pushes one message through the full channel pipeline and
// waits for the final reply, so a scripted `rotbot agent -m` behaves
// exactly like a typed turn.
func runOneShot(ctx context.Context, rt *runtime, message string, noMarkdown bool) {
	term := cli.NewOneShot(rt.bus)
	term.SetPlain(noMarkdown)
	rt.manager.Register(term)

	if err := rt.manager.StartAll(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	done := rt.manager.TurnDone("cli:" + cli.ChatID)
	rt.bus.PublishInbound(bus.InboundMessage{
		Channel:   "cli",
		ChatID:    cli.ChatID,
		UserID:    cli.ChatID,
		Content:   message,
		Timestamp: time.Now(),
	})

	select {
	case <-done:
	case <-ctx.Done():
	case <-time.After(oneShotTimeout):
		fmt.Fprintln(os.Stderr, "Error: timed out waiting for a reply")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	rt.manager.StopAll(stopCtx)
}
