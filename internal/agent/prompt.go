package agent

import (
	"strings"
	"time"

	"github.com/rotbotlabs/rotbot/internal/analysis"
	"github.com/rotbotlabs/rotbot/internal/memory"
	"github.com/rotbotlabs/rotbot/internal/providers"
	"github.com/rotbotlabs/rotbot/internal/sessions"
)

const defaultSystemPrompt = "You are rotbot, a helpful AI assistant. You are friendly, concise, and knowledgeable. " +
	"Answer questions clearly and provide helpful information. " +
	"If you don't know something, say so honestly."

// modePrompts is the persona used when the workspace carries no SOUL.md.
var modePrompts = map[string]string{
	"general": defaultSystemPrompt,
	"coding": "You are rotbot in coding mode. You are an expert software engineer. " +
		"Write clean, efficient, well-documented code. Explain your reasoning. " +
		"Use best practices and modern patterns. If asked to debug, identify the root cause first.",
	"reasoning": "You are rotbot in reasoning mode. Think step by step through problems. " +
		"Break complex questions into smaller parts. Show your reasoning process. " +
		"Use <think>...</think> tags to show your internal reasoning before giving the final answer.",
}

// promptInputs gathers everything the system prompt is assembled from.
type promptInputs struct {
	mode         string
	soul         string
	userContext  string
	memory       *memory.Store
	session      *sessions.Session
	toolSchemas  []providers.ToolDefinition
	skillPrompts []string
}

// buildSystemPrompt assembles the system message in fixed section order:
// persona, user context, long-term memory, conversation analysis, tool
// list, skills, current date. Sections with nothing to say are omitted.
func buildSystemPrompt(in promptInputs) string {
	var parts []string

	if in.soul != "" {
		parts = append(parts, in.soul)
	} else if p, ok := modePrompts[in.mode]; ok {
		parts = append(parts, p)
	} else {
		parts = append(parts, defaultSystemPrompt)
	}

	if in.userContext != "" {
		parts = append(parts, "\n## About the User\n"+in.userContext)
	}

	if in.memory != nil {
		if mem := in.memory.ReadMemory(); len(mem) > 50 {
			parts = append(parts, "\n## Your Memory\n"+mem)
		}
	}

	if in.session != nil && in.session.Len() > 0 {
		if lines := analysis.PromptLines(analysis.Analyze(in.session.Turns)); len(lines) > 0 {
			for i, l := range lines {
				lines[i] = "- " + l
			}
			parts = append(parts, "\n## Conversation Context\n"+strings.Join(lines, "\n"))
		}
	}

	if len(in.toolSchemas) > 0 {
		list := make([]string, 0, len(in.toolSchemas))
		for _, schema := range in.toolSchemas {
			list = append(list, "- **"+schema.Function.Name+"**: "+schema.Function.Description)
		}
		parts = append(parts, "\n## Available Tools\n"+strings.Join(list, "\n"))
	}

	for _, skill := range in.skillPrompts {
		if skill != "" {
			parts = append(parts, "\n"+skill)
		}
	}

	parts = append(parts, "\nCurrent date: "+time.Now().Format("2006-01-02"))

	return strings.Join(parts, "\n\n") + analysis.GuardrailReminder
}

// buildMessages prepends the system prompt to the trailing maxHistory
// session turns in provider wire order.
func buildMessages(session *sessions.Session, systemPrompt string, maxHistory int) []providers.Message {
	messages := make([]providers.Message, 0, maxHistory+1)
	messages = append(messages, providers.Message{Role: "system", Content: systemPrompt})
	for _, turn := range session.Recent(maxHistory) {
		messages = append(messages, providers.Message{Role: turn.Role, Content: turn.Content})
	}
	return messages
}
