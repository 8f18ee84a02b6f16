// Package agent drives the perceive-think-act cycle: it consumes inbound
// messages from the bus, assembles context, streams the provider response
// (executing tool calls along the way), and publishes the reply.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rotbotlabs/rotbot/internal/bus"
	"github.com/rotbotlabs/rotbot/internal/config"
	"github.com/rotbotlabs/rotbot/internal/memory"
	"github.com/rotbotlabs/rotbot/internal/providers"
	"github.com/rotbotlabs/rotbot/internal/safety"
	"github.com/rotbotlabs/rotbot/internal/sessions"
	"github.com/rotbotlabs/rotbot/internal/skills"
	"github.com/rotbotlabs/rotbot/internal/thinking"
	"github.com/rotbotlabs/rotbot/internal/tools"
	"github.com/rotbotlabs/rotbot/internal/workspace"
)

const (
	consumeTimeout       = time.Second
	consolidateTimeout   = 180 * time.Second
	defaultMaxIterations = 20
	defaultMemoryWindow  = 20
	defaultModelName     = "llama3.1:8b"

	// historyLineLimit caps the condensed per-turn line written to
	// HISTORY.md.
	historyLineLimit = 200
)

// skillRequestPattern matches the on-demand skill activation directive
// the skill summary section advertises to the model.
var skillRequestPattern = regexp.MustCompile(`LOAD_SKILL:\s*([\w-]+)`)

// Config wires the loop's collaborators. Bus, Sessions, Memory and
// Provider are required; the rest degrade gracefully when nil.
type Config struct {
	Bus      *bus.MessageBus
	Sessions *sessions.Store
	Memory   *memory.Store
	Provider providers.Provider
	Tools    *tools.Registry
	Skills   *skills.Loader
	Safety   *safety.Filter
	Defaults config.AgentDefaults

	// Workspace is the directory holding SOUL.md and USER.md overrides.
	Workspace string
}

// Loop processes inbound messages one at a time. All per-session state
// (modes, model overrides, deepthink flags) is touched only by the Run
// goroutine, so none of it needs locking.
type Loop struct {
	bus      *bus.MessageBus
	sessions *sessions.Store
	memory   *memory.Store
	provider providers.Provider
	tools    *tools.Registry
	skills   *skills.Loader
	safety   *safety.Filter

	maxIterations int
	memoryWindow  int
	defaultModel  string
	temperature   float64
	maxTokens     int

	soul        string
	userContext string

	modes     map[string]string
	models    map[string]string
	deepThink map[string]bool

	running atomic.Bool
}

// New builds a Loop, loading workspace persona files and applying
// defaults for unset knobs.
func New(cfg Config) *Loop {
	l := &Loop{
		bus:           cfg.Bus,
		sessions:      cfg.Sessions,
		memory:        cfg.Memory,
		provider:      cfg.Provider,
		tools:         cfg.Tools,
		skills:        cfg.Skills,
		safety:        cfg.Safety,
		maxIterations: cfg.Defaults.MaxIterations,
		memoryWindow:  cfg.Defaults.MemoryWindow,
		defaultModel:  cfg.Defaults.Model,
		temperature:   cfg.Defaults.Temperature,
		maxTokens:     cfg.Defaults.MaxTokens,
		modes:         make(map[string]string),
		models:        make(map[string]string),
		deepThink:     make(map[string]bool),
	}
	if l.maxIterations <= 0 {
		l.maxIterations = defaultMaxIterations
	}
	if l.memoryWindow <= 0 {
		l.memoryWindow = defaultMemoryWindow
	}
	if l.defaultModel == "" {
		l.defaultModel = defaultModelName
	}
	if l.safety == nil {
		l.safety = safety.New()
	}
	if cfg.Workspace != "" {
		l.soul = workspace.LoadFile(cfg.Workspace, workspace.SoulFile)
		l.userContext = workspace.LoadFile(cfg.Workspace, workspace.UserFile)
	}
	return l
}

// Run consumes inbound messages until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) {
	l.running.Store(true)
	slog.Info("agent loop started")

	for l.running.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, ok := l.bus.ConsumeInbound(consumeTimeout)
		if !ok {
			continue
		}
		l.handleInbound(ctx, msg)
	}
}

// Stop makes Run return at its next consume tick. Idempotent.
func (l *Loop) Stop() {
	l.running.Store(false)
}

// handleInbound shields the loop from per-turn failures: any error or
// panic becomes a short apology to the originating chat, and the loop
// moves on to the next message.
func (l *Loop) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while processing message",
				"channel", msg.Channel, "chat_id", msg.ChatID, "panic", r)
			l.sendError(msg, fmt.Sprintf("%v", r))
		}
	}()

	if err := l.processMessage(ctx, msg); err != nil {
		slog.Error("error processing message",
			"channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
		l.sendError(msg, err.Error())
	}
}

func (l *Loop) sendError(msg bus.InboundMessage, detail string) {
	l.publishFinal(msg, "Sorry, an error occurred: "+detail)
}

func (l *Loop) publishFinal(msg bus.InboundMessage, content string) {
	l.bus.PublishOutbound(bus.OutboundMessage{
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		Content:   content,
		IsFinal:   true,
		Timestamp: time.Now(),
	})
}

// processMessage runs one full turn. It returns an error only for
// failures that happen before the final response is published; anything
// after that point is logged and swallowed so a turn never produces two
// terminal messages.
func (l *Loop) processMessage(ctx context.Context, msg bus.InboundMessage) error {
	sessionKey := msg.SessionKey()
	runID := fmt.Sprintf("%s-%s", msg.Channel, uuid.NewString()[:8])
	start := time.Now()

	// 1. Commands short-circuit the turn.
	if reply, ok := l.handleCommand(sessionKey, msg.Content); ok {
		l.publishFinal(msg, reply)
		return nil
	}

	// 2. Input screening. Unsafe input is answered with the warning and
	// never reaches the session.
	verdict := l.safety.CheckInput(msg.Content, msg.UserID)
	if !verdict.Safe {
		warning := verdict.Warning
		if warning == "" {
			warning = "I can't process that request."
		}
		l.publishFinal(msg, warning)
		return nil
	}
	cleaned := verdict.Text

	// 3. Append the user turn.
	if err := l.sessions.Append(sessionKey, sessions.Turn{Role: "user", Content: cleaned}); err != nil {
		return fmt.Errorf("append user turn: %w", err)
	}

	// 4. Condensed history line. Best effort.
	if err := l.memory.AppendHistory(msg.Channel, msg.UserID, "user", condense(cleaned)); err != nil {
		slog.Warn("history append failed", "error", err)
	}

	// 5. Assemble the prompt.
	mode := l.modeFor(sessionKey)
	model := l.modelFor(sessionKey)
	session := l.sessions.Get(sessionKey)

	hasTools := l.provider.SupportsTools() && l.tools != nil && l.tools.Count() > 0
	var schemas []providers.ToolDefinition
	if hasTools {
		schemas = l.tools.Schemas()
	}

	systemPrompt := buildSystemPrompt(promptInputs{
		mode:         mode,
		soul:         l.soul,
		userContext:  l.userContext,
		memory:       l.memory,
		session:      session,
		toolSchemas:  schemas,
		skillPrompts: l.skillPrompts(),
	})
	messages := buildMessages(session, systemPrompt, l.memoryWindow)

	// 6+7. Stream, executing tool calls and skill loads between passes,
	// bounded by the iteration budget.
	reasoning := mode == "reasoning"
	showThinking := l.deepThink[sessionKey]
	streamed := &strings.Builder{}
	loaded := make(map[string]bool)

	var finalResponse string
	for iteration := 1; iteration <= l.maxIterations; iteration++ {
		slog.Debug("agent iteration", "run", runID, "iteration", iteration, "messages", len(messages))

		req := providers.Request{
			Messages:    messages,
			Model:       model,
			Tools:       schemas,
			Temperature: l.temperature,
			MaxTokens:   l.maxTokens,
		}

		accumulated, terminal := l.streamOnce(ctx, msg, req, reasoning, showThinking, streamed)
		finalResponse = accumulated

		if hasTools && len(terminal.ToolCalls) > 0 && iteration < l.maxIterations {
			messages = append(messages, providers.Message{
				Role:      "assistant",
				Content:   accumulated,
				ToolCalls: terminal.ToolCalls,
			})
			messages = append(messages, l.executeToolCalls(ctx, terminal.ToolCalls)...)
			continue
		}

		if skill := l.requestedSkill(accumulated, loaded); skill != nil && iteration < l.maxIterations {
			slog.Info("skill activated", "run", runID, "skill", skill.Name)
			loaded[skill.Name] = true
			messages = append(messages,
				providers.Message{Role: "assistant", Content: accumulated},
				providers.Message{Role: "system", Content: skill.FullPrompt()},
			)
			continue
		}

		break
	}

	// 8. Output screening.
	finalText, _, _ := safety.FilterOutput(finalResponse)

	// 9. Stats tail.
	if finalText != "" && !strings.HasPrefix(finalText, "Error:") {
		finalText += fmt.Sprintf("\n\n_(%.1fs | %s)_", time.Since(start).Seconds(), model)
	}

	// 10. Publish the terminal response. From here on failures are
	// logged, not returned.
	l.publishFinal(msg, finalText)

	// 11. Persist the assistant turn with reasoning stripped.
	if finalResponse != "" {
		clean := finalResponse
		if reasoning {
			clean = thinking.StripThinking(finalResponse)
		}
		if err := l.sessions.Append(sessionKey, sessions.Turn{Role: "assistant", Content: clean}); err != nil {
			slog.Error("assistant turn not persisted", "session", sessionKey, "error", err)
		}
		if err := l.memory.AppendHistory(msg.Channel, msg.UserID, "assistant", condense(clean)); err != nil {
			slog.Warn("history append failed", "error", err)
		}
	}

	// 12. Consolidation.
	l.maybeConsolidate(sessionKey)

	slog.Debug("turn complete", "run", runID, "session", sessionKey,
		"seconds", fmt.Sprintf("%.1f", time.Since(start).Seconds()))
	return nil
}

// streamOnce runs one streaming pass, publishing each displayable delta
// as a StreamChunk. In reasoning mode deltas are routed through the think
// parser and thinking text is surfaced only when showThinking is set.
// Returns the raw accumulated text and the terminal chunk.
func (l *Loop) streamOnce(ctx context.Context, msg bus.InboundMessage, req providers.Request, reasoning, showThinking bool, streamed *strings.Builder) (string, providers.StreamChunkData) {
	var parser *thinking.Parser
	if reasoning {
		parser = thinking.NewParser()
	}

	var accumulated strings.Builder
	var terminal providers.StreamChunkData

	for chunk := range l.provider.StreamGenerate(ctx, req) {
		if chunk.Text != "" {
			accumulated.WriteString(chunk.Text)

			display := chunk.Text
			if parser != nil {
				thinkingDelta, responseDelta := parser.Feed(chunk.Text)
				display = responseDelta
				if showThinking && thinkingDelta != "" {
					display = thinkingDelta + responseDelta
				}
			}
			if display != "" {
				streamed.WriteString(display)
				l.bus.PublishOutbound(bus.StreamChunk{
					Channel:     msg.Channel,
					ChatID:      msg.ChatID,
					Chunk:       display,
					Accumulated: streamed.String(),
				})
			}
		}

		if chunk.IsFinal {
			if parser != nil {
				parser.Finish()
			}
			terminal = chunk
			break
		}
	}

	return accumulated.String(), terminal
}

// executeToolCalls runs the requested tools and returns their results as
// tool-role messages in the order the model asked for them. A single call
// runs inline; multiple calls run concurrently.
func (l *Loop) executeToolCalls(ctx context.Context, calls []providers.ToolCall) []providers.Message {
	if len(calls) == 1 {
		return []providers.Message{l.toolMessage(ctx, calls[0])}
	}

	type indexedResult struct {
		idx int
		msg providers.Message
	}

	resultCh := make(chan indexedResult, len(calls))
	var wg sync.WaitGroup
	for i, tc := range calls {
		wg.Add(1)
		go func(i int, tc providers.ToolCall) {
			defer wg.Done()
			resultCh <- indexedResult{idx: i, msg: l.toolMessage(ctx, tc)}
		}(i, tc)
	}
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]indexedResult, 0, len(calls))
	for r := range resultCh {
		results = append(results, r)
	}
	sort.Slice(results, func(a, b int) bool { return results[a].idx < results[b].idx })

	messages := make([]providers.Message, len(results))
	for i, r := range results {
		messages[i] = r.msg
	}
	return messages
}

func (l *Loop) toolMessage(ctx context.Context, tc providers.ToolCall) providers.Message {
	slog.Info("tool call", "tool", tc.Name, "args", len(tc.Arguments))
	res := l.tools.Execute(ctx, tc.Name, tc.Arguments)
	if !res.Success {
		slog.Warn("tool failed", "tool", tc.Name, "output", truncateForLog(res.Output))
	}
	return providers.Message{Role: "tool", Content: res.Output, ToolCallID: tc.ID}
}

// requestedSkill returns the skill the response asks to activate, or nil
// when there is no directive, the skill is unknown, or it already loaded
// this turn.
func (l *Loop) requestedSkill(text string, loaded map[string]bool) *skills.Skill {
	if l.skills == nil {
		return nil
	}
	m := skillRequestPattern.FindStringSubmatch(text)
	if m == nil || loaded[m[1]] {
		return nil
	}
	return l.skills.Get(m[1])
}

// skillPrompts returns the always-loaded skill bodies plus the summary
// list of on-demand skills.
func (l *Loop) skillPrompts() []string {
	if l.skills == nil {
		return nil
	}
	prompts := l.skills.AlwaysLoadPrompts()
	if summary := l.skills.Summaries(); summary != "" {
		prompts = append(prompts, summary)
	}
	return prompts
}

// maybeConsolidate detaches everything before the trailing memory window
// once the session outgrows twice the window. The truncated session is
// rewritten immediately; the summarization itself runs in the background
// and is abandoned at shutdown.
func (l *Loop) maybeConsolidate(sessionKey string) {
	session := l.sessions.Get(sessionKey)
	if session.Len() <= l.memoryWindow*2 {
		return
	}

	cut := session.Len() - l.memoryWindow
	detached := make([]sessions.Turn, cut)
	copy(detached, session.Turns[:cut])

	session.Turns = session.Turns[cut:]
	session.LastConsolidated = session.Len()
	if err := l.sessions.Rewrite(session); err != nil {
		slog.Error("session rewrite failed", "session", sessionKey, "error", err)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), consolidateTimeout)
		defer cancel()
		if _, ok := l.memory.Consolidate(ctx, detached, l.provider); ok {
			slog.Info("memory consolidated", "session", sessionKey, "turns", len(detached))
		}
	}()
}

// condense trims a turn to the short form recorded in HISTORY.md.
func condense(s string) string {
	runes := []rune(s)
	if len(runes) <= historyLineLimit {
		return s
	}
	return string(runes[:historyLineLimit])
}

func truncateForLog(s string) string {
	runes := []rune(s)
	if len(runes) <= 200 {
		return s
	}
	return string(runes[:200]) + "..."
}
