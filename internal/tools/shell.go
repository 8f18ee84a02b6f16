package tools

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotbotlabs/rotbot/internal/safety"
)

const (
	defaultShellTimeout = 30
	maxShellTimeout     = 120
	maxShellOutput      = 4000
)

// blockedCommands are denied by substring match on the lowercased
// command. Coarse on purpose: the first line of defense, not the last.
var blockedCommands = []string{
	"rm -rf /",
	"mkfs",
	"dd if=",
	":(){:|:&};:",
	"chmod -R 777 /",
}

// ShellTool executes shell commands on the host with a hard timeout.
type ShellTool struct {
	workspace string
	restrict  bool
}

func NewShellTool(workspace string, restrict bool) *ShellTool {
	return &ShellTool{workspace: workspace, restrict: restrict}
}

func (t *ShellTool) Name() string        { return "shell" }
func (t *ShellTool) Description() string { return "Execute a shell command and return its output" }
func (t *ShellTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The shell command to execute",
			},
			"timeout": map[string]any{
				"type":        "integer",
				"description": "Timeout in seconds (default 30, max 120)",
			},
		},
		"required": []string{"command"},
	}
}

func (t *ShellTool) Execute(ctx context.Context, args map[string]any) *Result {
	command := stringArg(args, "command")
	if command == "" {
		return ErrorResult("Error: No command provided")
	}

	lowered := strings.ToLower(strings.TrimSpace(command))
	for _, blocked := range blockedCommands {
		if strings.Contains(lowered, blocked) {
			slog.Warn("security.command_blocked", "command", safety.SanitizeForLog(command, 0))
			return ErrorResult("Blocked: dangerous command")
		}
	}

	timeout := intArg(args, "timeout", defaultShellTimeout)
	if timeout > maxShellTimeout {
		timeout = maxShellTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if t.restrict {
		cmd.Dir = t.workspace
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Debug("shell exec", "command", safety.SanitizeForLog(command, 0), "timeout", timeout)
	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return Errorf("Command timed out after %ds", timeout)
	}

	var parts []string
	if s := strings.TrimSpace(stdout.String()); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(stderr.String()); s != "" {
		parts = append(parts, "STDERR: "+s)
	}
	output := strings.Join(parts, "\n")
	if output == "" {
		output = "(no output)"
	}
	if utf8.RuneCountInString(output) > maxShellOutput {
		runes := []rune(output)
		output = string(runes[:maxShellOutput]) + "\n... (truncated)"
	}

	returnCode := 0
	if err != nil {
		returnCode = -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			returnCode = exitErr.ExitCode()
		} else if output == "(no output)" {
			return Errorf("Shell error: %v", err)
		}
	}

	return (&Result{Output: output, Success: returnCode == 0}).WithMeta("return_code", returnCode)
}
