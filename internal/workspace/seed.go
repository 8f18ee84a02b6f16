// Package workspace seeds and reads the agent workspace directory,
// which holds the personality file (SOUL.md) and user context (USER.md).
package workspace

import (
	"embed"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

//go:embed templates/*.md
var templateFS embed.FS

const (
	// SoulFile carries the agent personality, injected verbatim as the
	// head of every system prompt.
	SoulFile = "SOUL.md"
	// UserFile carries user-supplied context about themselves.
	UserFile = "USER.md"
)

var templateFiles = []string{SoulFile, UserFile}

// EnsureFiles seeds template files into the workspace directory.
// Only writes files that don't already exist (will not overwrite).
// Returns the list of files that were created.
func EnsureFiles(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	var created []string
	for _, name := range templateFiles {
		ok, err := seedTemplate(dir, name)
		if err != nil {
			slog.Warn("workspace: failed to seed template", "file", name, "error", err)
			continue
		}
		if ok {
			created = append(created, name)
		}
	}
	return created, nil
}

// seedTemplate writes a template file to the workspace if it doesn't exist.
// Returns true if the file was created, false if it already exists.
func seedTemplate(dir, name string) (bool, error) {
	dstPath := filepath.Join(dir, name)

	f, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	content, err := templateFS.ReadFile(filepath.Join("templates", name))
	if err != nil {
		os.Remove(dstPath)
		return false, err
	}

	if _, err := f.Write(content); err != nil {
		return false, err
	}
	return true, nil
}

// LoadFile reads a workspace file, returning "" if it is missing or empty.
func LoadFile(dir, name string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
