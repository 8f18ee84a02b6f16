package agent

import (
	"strings"
	"testing"
	"time"

	"github.com/rotbotlabs/rotbot/internal/analysis"
	"github.com/rotbotlabs/rotbot/internal/memory"
	"github.com/rotbotlabs/rotbot/internal/providers"
	"github.com/rotbotlabs/rotbot/internal/sessions"
)

func TestBuildSystemPrompt_ModeDefault(t *testing.T) {
	got := buildSystemPrompt(promptInputs{mode: "coding"})
	if !strings.HasPrefix(got, "You are rotbot in coding mode.") {
		t.Errorf("coding persona missing, got prefix %q", got[:40])
	}

	date := "Current date: " + time.Now().Format("2006-01-02")
	if !strings.Contains(got, date) {
		t.Errorf("expected %q in prompt", date)
	}
	if !strings.HasSuffix(got, analysis.GuardrailReminder) {
		t.Error("guardrail reminder missing from prompt tail")
	}
}

func TestBuildSystemPrompt_UnknownModeFallsBack(t *testing.T) {
	got := buildSystemPrompt(promptInputs{mode: "pirate"})
	if !strings.HasPrefix(got, "You are rotbot, a helpful AI assistant.") {
		t.Errorf("expected default persona, got prefix %q", got[:40])
	}
}

func TestBuildSystemPrompt_SoulOverridesMode(t *testing.T) {
	got := buildSystemPrompt(promptInputs{mode: "coding", soul: "You are crabby the crab."})
	if !strings.HasPrefix(got, "You are crabby the crab.") {
		t.Errorf("soul override not applied, got prefix %q", got[:40])
	}
	if strings.Contains(got, "coding mode") {
		t.Error("mode persona should be replaced by the soul file")
	}
}

func TestBuildSystemPrompt_SectionOrder(t *testing.T) {
	mem, err := memory.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	session := &sessions.Session{Key: "cli:u", Turns: []sessions.Turn{
		{Role: "user", Content: "My python code throws an error, can you debug it?"},
		{Role: "assistant", Content: "Sure, share the traceback."},
		{Role: "user", Content: "Here is the python error traceback from my code"},
	}}

	got := buildSystemPrompt(promptInputs{
		mode:        "general",
		userContext: "Name: Sam. Timezone: UTC.",
		memory:      mem,
		session:     session,
		toolSchemas: []providers.ToolDefinition{{
			Type:     "function",
			Function: providers.ToolFunctionSchema{Name: "shell", Description: "Run a shell command"},
		}},
		skillPrompts: []string{"\n## Skill: github\nUse gh."},
	})

	markers := []string{
		"You are rotbot, a helpful AI assistant.",
		"## About the User\nName: Sam. Timezone: UTC.",
		"## Your Memory\n# rotbot Memory",
		"## Conversation Context\n- ",
		"## Available Tools\n- **shell**: Run a shell command",
		"## Skill: github",
		"Current date: ",
	}
	last := -1
	for _, m := range markers {
		idx := strings.Index(got, m)
		if idx < 0 {
			t.Fatalf("prompt missing %q:\n%s", m, got)
		}
		if idx < last {
			t.Errorf("section %q out of order", m)
		}
		last = idx
	}
}

func TestBuildSystemPrompt_OmitsEmptySections(t *testing.T) {
	got := buildSystemPrompt(promptInputs{mode: "general"})
	for _, header := range []string{"## About the User", "## Your Memory", "## Conversation Context", "## Available Tools"} {
		if strings.Contains(got, header) {
			t.Errorf("unexpected section %q in bare prompt", header)
		}
	}
}

func TestBuildMessages_WindowsHistory(t *testing.T) {
	session := &sessions.Session{Key: "cli:u"}
	for i := 0; i < 25; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		session.Turns = append(session.Turns, sessions.Turn{Role: role, Content: strings.Repeat("x", i+1)})
	}

	got := buildMessages(session, "SYSTEM", 20)
	if len(got) != 21 {
		t.Fatalf("expected 21 messages, got %d", len(got))
	}
	if got[0].Role != "system" || got[0].Content != "SYSTEM" {
		t.Errorf("first message = %+v, want system prompt", got[0])
	}
	if got[1].Content != strings.Repeat("x", 6) {
		t.Errorf("window should start at turn 6, got %q", got[1].Content)
	}
	if got[20].Content != strings.Repeat("x", 25) {
		t.Errorf("last message = %q, want the newest turn", got[20].Content)
	}
}
