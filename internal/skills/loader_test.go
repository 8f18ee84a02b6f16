package skills

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeSkill(t *testing.T, dir, filename, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644); err != nil {
		t.Fatalf("write skill file: %v", err)
	}
}

// TestParseFrontmatter verifies the frontmatter split and the simple
// key: value parsing with boolean coercion.
func TestParseFrontmatter(t *testing.T) {
	text := "---\nname: notes\ndescription: Take notes\nalwaysLoad: yes\n---\n# Notes\nBody here.\n"
	meta, content := parseFrontmatter(text)

	if meta["name"] != "notes" {
		t.Errorf("expected name notes, got %q", meta["name"])
	}
	if meta["description"] != "Take notes" {
		t.Errorf("expected description, got %q", meta["description"])
	}
	if !isTruthy(meta["alwaysLoad"]) {
		t.Error("expected alwaysLoad yes to be truthy")
	}
	if !strings.HasPrefix(content, "# Notes") {
		t.Errorf("expected content after frontmatter, got %q", content)
	}
}

// TestParseFrontmatter_Missing verifies files without frontmatter keep
// their full text as content.
func TestParseFrontmatter_Missing(t *testing.T) {
	meta, content := parseFrontmatter("# Just markdown\nno frontmatter")
	if len(meta) != 0 {
		t.Errorf("expected empty meta, got %v", meta)
	}
	if content != "# Just markdown\nno frontmatter" {
		t.Errorf("expected content unchanged, got %q", content)
	}
}

// TestParseSkill_Defaults verifies the filename stem names skills that
// omit a name field.
func TestParseSkill_Defaults(t *testing.T) {
	s := parseSkill("weather.md", "Just instructions, no frontmatter.\n")
	if s.Name != "weather" {
		t.Errorf("expected name from filename, got %q", s.Name)
	}
	if s.AlwaysLoad {
		t.Error("expected alwaysLoad false by default")
	}
	if s.Content != "Just instructions, no frontmatter." {
		t.Errorf("expected trimmed content, got %q", s.Content)
	}
}

// TestLoadAll_UserSkills verifies user directory loading, rendering of
// summaries, and the always-load split.
func TestLoadAll_UserSkills(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "deploy.md", "---\nname: deploy\ndescription: Deploy the app\nalwaysLoad: false\n---\nRun the deploy script.\n")
	writeSkill(t, dir, "tone.md", "---\nname: tone\ndescription: House writing style\nalwaysLoad: true\n---\nWrite in a friendly tone.\n")
	writeSkill(t, dir, "notes.txt", "not a skill file")

	l := NewLoader(dir)
	l.LoadAll()

	names := l.List()
	if len(names) != 3 { // builtin github + deploy + tone
		t.Fatalf("expected 3 skills, got %d: %v", len(names), names)
	}
	if l.Get("deploy") == nil || l.Get("tone") == nil || l.Get("github") == nil {
		t.Fatalf("missing expected skills, got %v", names)
	}
	if l.Get("notes") != nil {
		t.Error("expected non-md files to be skipped")
	}

	prompts := l.AlwaysLoadPrompts()
	if len(prompts) != 1 {
		t.Fatalf("expected 1 always-load prompt, got %d", len(prompts))
	}
	if prompts[0] != "\n## Skill: tone\nWrite in a friendly tone." {
		t.Errorf("unexpected full prompt: %q", prompts[0])
	}

	summaries := l.Summaries()
	if !strings.HasPrefix(summaries, "## Available Skills (use LOAD_SKILL: <name> to activate)") {
		t.Errorf("unexpected summaries header: %q", summaries)
	}
	if !strings.Contains(summaries, "- **deploy**: Deploy the app") {
		t.Errorf("expected deploy summary, got %q", summaries)
	}
	if strings.Contains(summaries, "tone") {
		t.Errorf("always-load skills must not appear in summaries: %q", summaries)
	}
}

// TestLoadAll_UserShadowsBuiltin verifies a user skill with a builtin's
// name replaces it.
func TestLoadAll_UserShadowsBuiltin(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "github.md", "---\nname: github\ndescription: Custom GitHub flow\n---\nUse the internal mirror.\n")

	l := NewLoader(dir)
	l.LoadAll()

	s := l.Get("github")
	if s == nil {
		t.Fatal("expected github skill")
	}
	if s.Description != "Custom GitHub flow" {
		t.Errorf("expected user skill to shadow builtin, got %q", s.Description)
	}
	if len(l.List()) != 1 {
		t.Errorf("expected shadowing not to duplicate, got %v", l.List())
	}
}

// TestLoadAll_ReloadDropsRemoved verifies a reload rebuilds the set so
// deleted files disappear.
func TestLoadAll_ReloadDropsRemoved(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "temp.md", "---\nname: temp\ndescription: Temporary\n---\nShort-lived.\n")

	l := NewLoader(dir)
	l.LoadAll()
	if l.Get("temp") == nil {
		t.Fatal("expected temp skill after first load")
	}

	os.Remove(filepath.Join(dir, "temp.md"))
	l.LoadAll()
	if l.Get("temp") != nil {
		t.Error("expected temp skill gone after reload")
	}
}

// TestSummaries_EmptyWhenAllAlwaysLoad verifies no advertisement
// section is produced when nothing is on-demand.
func TestSummaries_EmptyWhenAllAlwaysLoad(t *testing.T) {
	l := NewLoader(t.TempDir())
	l.mu.Lock()
	l.skills = map[string]*Skill{"tone": {Name: "tone", AlwaysLoad: true}}
	l.order = []string{"tone"}
	l.mu.Unlock()

	if got := l.Summaries(); got != "" {
		t.Errorf("expected empty summaries, got %q", got)
	}
}

// TestWatch_ReloadsOnChange verifies the fsnotify watcher picks up a
// new skill file.
func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader(dir)
	l.LoadAll()
	if l.Get("fresh") != nil {
		t.Fatal("unexpected fresh skill before write")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloaded := l.Watch(ctx)

	writeSkill(t, dir, "fresh.md", "---\nname: fresh\ndescription: Newly added\n---\nContent.\n")

	select {
	case _, ok := <-reloaded:
		if !ok {
			t.Fatal("reload channel closed before reload")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for skills reload")
	}

	if l.Get("fresh") == nil {
		t.Errorf("expected fresh skill after reload, got %v", l.List())
	}
}
