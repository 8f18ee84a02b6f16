// Package skills loads markdown skill files that extend the agent's
// system prompt.
//
// Skills are .md files with YAML frontmatter:
//
//	---
//	name: github
//	description: Interact with GitHub repositories
//	alwaysLoad: false
//	---
//	# GitHub Skill
//	Instructions for using GitHub...
//
// Two loading modes:
//   - alwaysLoad true: full content included in the system prompt
//   - alwaysLoad false: summary only, activated via LOAD_SKILL: <name>
package skills

import (
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

//go:embed builtin/*.md
var builtinFS embed.FS

// Skill is a loaded skill with metadata and content.
type Skill struct {
	Name        string
	Description string
	Content     string
	AlwaysLoad  bool
}

// Summary renders the one-line form used in the on-demand skill list.
func (s *Skill) Summary() string {
	return fmt.Sprintf("- **%s**: %s", s.Name, s.Description)
}

// FullPrompt renders the complete skill section for the system prompt.
func (s *Skill) FullPrompt() string {
	return fmt.Sprintf("\n## Skill: %s\n%s", s.Name, s.Content)
}

// Loader reads skills from the embedded builtin set and the user's
// skills directory. User skills with the same name shadow builtins.
type Loader struct {
	mu      sync.RWMutex
	userDir string
	skills  map[string]*Skill
	order   []string
}

func NewLoader(userDir string) *Loader {
	return &Loader{
		userDir: userDir,
		skills:  map[string]*Skill{},
	}
}

// LoadAll rebuilds the skill set from builtin and user files. Safe to
// call again at any time; the watcher uses it for hot reload.
func (l *Loader) LoadAll() {
	skills := map[string]*Skill{}
	var order []string
	add := func(s *Skill) {
		if _, exists := skills[s.Name]; !exists {
			order = append(order, s.Name)
		}
		skills[s.Name] = s
	}

	if entries, err := builtinFS.ReadDir("builtin"); err == nil {
		for _, e := range entries {
			raw, err := builtinFS.ReadFile(filepath.Join("builtin", e.Name()))
			if err != nil {
				slog.Warn("failed to load skill", "file", e.Name(), "error", err)
				continue
			}
			add(parseSkill(e.Name(), string(raw)))
		}
	}

	if entries, err := os.ReadDir(l.userDir); err == nil {
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
				continue
			}
			raw, err := os.ReadFile(filepath.Join(l.userDir, e.Name()))
			if err != nil {
				slog.Warn("failed to load skill", "file", e.Name(), "error", err)
				continue
			}
			add(parseSkill(e.Name(), string(raw)))
		}
	}

	l.mu.Lock()
	l.skills = skills
	l.order = order
	l.mu.Unlock()

	slog.Info(fmt.Sprintf("loaded %d skills: %s", len(order), strings.Join(order, ", ")))
}

var frontmatterRe = regexp.MustCompile(`(?s)\A---[ \t]*\n(.*?)\n---[ \t]*\n(.*)`)

// parseSkill splits frontmatter from content. Files without
// frontmatter become skills named after the file.
func parseSkill(filename, text string) *Skill {
	meta, content := parseFrontmatter(text)

	name := meta["name"]
	if name == "" {
		name = strings.TrimSuffix(filename, ".md")
	}
	return &Skill{
		Name:        name,
		Description: meta["description"],
		Content:     strings.TrimSpace(content),
		AlwaysLoad:  isTruthy(meta["alwaysLoad"]),
	}
}

func parseFrontmatter(text string) (map[string]string, string) {
	m := frontmatterRe.FindStringSubmatch(text)
	if m == nil {
		return map[string]string{}, text
	}

	meta := map[string]string{}
	for _, line := range strings.Split(m[1], "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		meta[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return meta, m[2]
}

func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "true", "yes":
		return true
	}
	return false
}

// AlwaysLoadPrompts returns full prompts for always-loaded skills, in
// load order.
func (l *Loader) AlwaysLoadPrompts() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var prompts []string
	for _, name := range l.order {
		if s := l.skills[name]; s.AlwaysLoad {
			prompts = append(prompts, s.FullPrompt())
		}
	}
	return prompts
}

// Summaries returns the on-demand skill list for the system prompt, or
// "" when every skill is always-loaded.
func (l *Loader) Summaries() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	lines := []string{"## Available Skills (use LOAD_SKILL: <name> to activate)"}
	for _, name := range l.order {
		if s := l.skills[name]; !s.AlwaysLoad {
			lines = append(lines, s.Summary())
		}
	}
	if len(lines) == 1 {
		return ""
	}
	return strings.Join(lines, "\n")
}

// Get returns the named skill, or nil.
func (l *Loader) Get(name string) *Skill {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.skills[name]
}

// List returns all skill names in load order.
func (l *Loader) List() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}
