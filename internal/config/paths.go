package config

import (
	"os"
	"path/filepath"
)

// RotbotDir returns the data directory (~/.rotbot), overridable via
// ROTBOT_DIR for tests and containers.
func RotbotDir() string {
	if v := os.Getenv("ROTBOT_DIR"); v != "" {
		return ExpandHome(v)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".rotbot"
	}
	return filepath.Join(home, ".rotbot")
}

// ConfigPath returns the config file location inside the data directory.
func ConfigPath() string {
	return filepath.Join(RotbotDir(), "config.json")
}

// WorkspaceDir is where the agent reads and writes files; holds SOUL.md
// and USER.md.
func WorkspaceDir() string {
	return filepath.Join(RotbotDir(), "workspace")
}

// SessionsDir holds one JSONL conversation log per session key.
func SessionsDir() string {
	return filepath.Join(RotbotDir(), "sessions")
}

// MemoryDir holds HISTORY.md, MEMORY.md and dated notes.
func MemoryDir() string {
	return filepath.Join(RotbotDir(), "memory")
}

// SkillsDir holds user-supplied skill markdown files.
func SkillsDir() string {
	return filepath.Join(RotbotDir(), "skills")
}

// RAGDir holds the local document index used by rag_search.
func RAGDir() string {
	return filepath.Join(RotbotDir(), "rag")
}

// EnsureDirs creates the data directory tree if missing.
func EnsureDirs() error {
	for _, dir := range []string{
		RotbotDir(), WorkspaceDir(), SessionsDir(), MemoryDir(), SkillsDir(), RAGDir(),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
