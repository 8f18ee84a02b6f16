package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"
)

const modelListTimeout = 10 * time.Second

const helpText = "**rotbot Commands:**\n" +
	"/chat — General mode\n" +
	"/coder — Coding mode\n" +
	"/think — Reasoning mode\n" +
	"/reset — Clear conversation\n" +
	"/setmodel <name> — Set custom model\n" +
	"/model — Show current model\n" +
	"/deepthink — Toggle reasoning display\n" +
	"/help — Show this help"

// handleCommand intercepts bot commands prefixed with / or !. It returns
// the reply text and true when the message was a recognized command;
// anything else falls through to the model as a regular message.
// Command text is lowercased wholesale, arguments included.
func (l *Loop) handleCommand(sessionKey, content string) (string, bool) {
	cmd := strings.ToLower(strings.TrimSpace(content))
	if !strings.HasPrefix(cmd, "/") && !strings.HasPrefix(cmd, "!") {
		return "", false
	}
	cmd = cmd[1:]

	command, arg := cmd, ""
	if i := strings.IndexFunc(cmd, unicode.IsSpace); i >= 0 {
		command, arg = cmd[:i], strings.TrimSpace(cmd[i:])
	}

	switch command {
	case "chat", "general":
		l.modes[sessionKey] = "general"
		return "Switched to **General** mode.", true

	case "coder", "code", "coding":
		l.modes[sessionKey] = "coding"
		return "Switched to **Coding** mode.", true

	case "think", "reason", "reasoning":
		l.modes[sessionKey] = "reasoning"
		return "Switched to **Reasoning** mode.", true

	case "reset":
		if err := l.sessions.Delete(sessionKey); err != nil {
			slog.Warn("session delete failed", "session", sessionKey, "error", err)
		}
		delete(l.modes, sessionKey)
		delete(l.models, sessionKey)
		return "Conversation reset.", true

	case "setmodel":
		if arg != "" {
			l.models[sessionKey] = arg
			return fmt.Sprintf("Model set to **%s**.", arg), true
		}
		return "Usage: /setmodel <model_name>", true

	case "model":
		return fmt.Sprintf("Current model: **%s** | Mode: **%s**",
			l.modelFor(sessionKey), l.modeFor(sessionKey)), true

	case "models":
		return l.listModels(), true

	case "deepthink":
		on := !l.deepThink[sessionKey]
		l.deepThink[sessionKey] = on
		state := "OFF"
		if on {
			state = "ON"
		}
		return fmt.Sprintf("Deep thinking display: **%s**", state), true

	case "help":
		return helpText, true
	}

	return "", false
}

// listModels queries the provider for its installed model names.
func (l *Loop) listModels() string {
	ctx, cancel := context.WithTimeout(context.Background(), modelListTimeout)
	defer cancel()

	models, err := l.provider.ListModels(ctx)
	if err != nil {
		return fmt.Sprintf("Could not fetch models: %v", err)
	}
	if len(models) == 0 {
		return "No models available."
	}

	var b strings.Builder
	b.WriteString("**Available models:**")
	for _, m := range models {
		b.WriteString("\n- ")
		b.WriteString(m)
	}
	return b.String()
}

// modeFor returns the session's conversation mode, defaulting to general.
func (l *Loop) modeFor(sessionKey string) string {
	if mode, ok := l.modes[sessionKey]; ok {
		return mode
	}
	return "general"
}

// modelFor returns the session's model override or the configured default.
func (l *Loop) modelFor(sessionKey string) string {
	if model, ok := l.models[sessionKey]; ok {
		return model
	}
	return l.defaultModel
}
