package tools

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"unicode/utf8"
)

const (
	maxReadChars   = 8000
	maxListEntries = 100
)

// fsTool carries the shared workspace policy for the file tools. When
// restrict is set, every path is canonicalized and must land inside the
// workspace.
type fsTool struct {
	workspace string
	restrict  bool
}

// resolve validates a user-supplied path and returns the real path to
// operate on, or an error result ready to hand back to the model.
func (t fsTool) resolve(path string) (string, *Result) {
	if path == "" {
		return "", ErrorResult("Error: No path provided")
	}
	resolved, err := resolvePath(path, t.workspace, t.restrict)
	if err != nil {
		return "", ErrorResult("Error: Path outside workspace")
	}
	return resolved, nil
}

// ReadFileTool reads file contents, truncated past maxReadChars.
type ReadFileTool struct{ fsTool }

func NewReadFileTool(workspace string, restrict bool) *ReadFileTool {
	return &ReadFileTool{fsTool{workspace: workspace, restrict: restrict}}
}

func (t *ReadFileTool) Name() string        { return "read_file" }
func (t *ReadFileTool) Description() string { return "Read the contents of a file" }
func (t *ReadFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file to read",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]any) *Result {
	path := stringArg(args, "path")
	resolved, errRes := t.resolve(path)
	if errRes != nil {
		return errRes
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return Errorf("File not found: %s", path)
		}
		return Errorf("File operation error: %v", err)
	}

	content := string(data)
	size := utf8.RuneCountInString(content)
	if size > maxReadChars {
		runes := []rune(content)
		content = string(runes[:maxReadChars]) + "\n... (truncated)"
	}
	return NewResult(content).WithMeta("size", size)
}

// WriteFileTool writes content to a file, creating parent directories.
type WriteFileTool struct{ fsTool }

func NewWriteFileTool(workspace string, restrict bool) *WriteFileTool {
	return &WriteFileTool{fsTool{workspace: workspace, restrict: restrict}}
}

func (t *WriteFileTool) Name() string { return "write_file" }
func (t *WriteFileTool) Description() string {
	return "Write content to a file, creating parent directories as needed"
}
func (t *WriteFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file to write",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Content to write",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]any) *Result {
	path := stringArg(args, "path")
	content := stringArg(args, "content")
	resolved, errRes := t.resolve(path)
	if errRes != nil {
		return errRes
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return Errorf("File operation error: %v", err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return Errorf("File operation error: %v", err)
	}
	return NewResult(fmt.Sprintf("Written %d chars to %s", utf8.RuneCountInString(content), path)).
		WithMeta("path", resolved)
}

// AppendFileTool appends content to a file, creating it if missing.
type AppendFileTool struct{ fsTool }

func NewAppendFileTool(workspace string, restrict bool) *AppendFileTool {
	return &AppendFileTool{fsTool{workspace: workspace, restrict: restrict}}
}

func (t *AppendFileTool) Name() string        { return "append_file" }
func (t *AppendFileTool) Description() string { return "Append content to the end of a file" }
func (t *AppendFileTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Path to the file to append to",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Content to append",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *AppendFileTool) Execute(ctx context.Context, args map[string]any) *Result {
	path := stringArg(args, "path")
	content := stringArg(args, "content")
	resolved, errRes := t.resolve(path)
	if errRes != nil {
		return errRes
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return Errorf("File operation error: %v", err)
	}
	f, err := os.OpenFile(resolved, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return Errorf("File operation error: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return Errorf("File operation error: %v", err)
	}
	return NewResult(fmt.Sprintf("Appended %d chars to %s", utf8.RuneCountInString(content), path)).
		WithMeta("path", resolved)
}

// ListFilesTool lists a directory, directories first, capped at
// maxListEntries.
type ListFilesTool struct{ fsTool }

func NewListFilesTool(workspace string, restrict bool) *ListFilesTool {
	return &ListFilesTool{fsTool{workspace: workspace, restrict: restrict}}
}

func (t *ListFilesTool) Name() string        { return "list_files" }
func (t *ListFilesTool) Description() string { return "List files and directories at a path" }
func (t *ListFilesTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Directory to list",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ListFilesTool) Execute(ctx context.Context, args map[string]any) *Result {
	path := stringArg(args, "path")
	resolved, errRes := t.resolve(path)
	if errRes != nil {
		return errRes
	}

	info, err := os.Stat(resolved)
	if err != nil || !info.IsDir() {
		return Errorf("Not a directory: %s", path)
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return Errorf("File operation error: %v", err)
	}
	if len(entries) == 0 {
		return NewResult("(empty directory)").WithMeta("entry_count", 0)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	shown := entries
	if len(shown) > maxListEntries {
		shown = shown[:maxListEntries]
	}
	lines := make([]string, 0, len(shown))
	for _, e := range shown {
		if e.IsDir() {
			lines = append(lines, "d "+e.Name())
			continue
		}
		var size int64
		if fi, err := e.Info(); err == nil {
			size = fi.Size()
		}
		lines = append(lines, fmt.Sprintf("f %s (%dB)", e.Name(), size))
	}
	return NewResult(strings.Join(lines, "\n")).WithMeta("entry_count", len(entries))
}

// resolvePath resolves a path relative to the workspace. When restrict
// is set the result is canonicalized and must stay inside the workspace;
// symlink and hardlink escapes are rejected.
func resolvePath(path, workspace string, restrict bool) (string, error) {
	var resolved string
	if filepath.IsAbs(path) {
		resolved = filepath.Clean(path)
	} else {
		resolved = filepath.Clean(filepath.Join(workspace, path))
	}

	if !restrict {
		return resolved, nil
	}

	absWorkspace, _ := filepath.Abs(workspace)
	wsReal, err := filepath.EvalSymlinks(absWorkspace)
	if err != nil {
		wsReal = absWorkspace
	}

	absResolved, _ := filepath.Abs(resolved)
	real, err := filepath.EvalSymlinks(absResolved)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("security.path_resolve_failed", "path", path, "error", err)
			return "", fmt.Errorf("cannot resolve path")
		}
		if linfo, lerr := os.Lstat(absResolved); lerr == nil && linfo.Mode()&os.ModeSymlink != 0 {
			// Dangling symlink: validate where it points before allowing
			// a write to materialize the target.
			target, readErr := os.Readlink(absResolved)
			if readErr != nil {
				return "", fmt.Errorf("cannot resolve symlink")
			}
			if !filepath.IsAbs(target) {
				target = filepath.Join(filepath.Dir(absResolved), target)
			}
			real = resolveDeepestExisting(filepath.Clean(target))
			if !isPathInside(real, wsReal) {
				slog.Warn("security.broken_symlink_escape", "path", path, "target", real, "workspace", wsReal)
				return "", fmt.Errorf("symlink target outside workspace")
			}
		} else {
			// Not created yet: canonicalize the deepest existing ancestor
			// and re-attach the missing components.
			real = resolveDeepestExisting(absResolved)
		}
	}

	if !isPathInside(real, wsReal) {
		slog.Warn("security.path_escape", "path", path, "resolved", real, "workspace", wsReal)
		return "", fmt.Errorf("path outside workspace")
	}

	// A symlink whose parent directory is writable can be rebound between
	// resolution and use.
	if hasMutableSymlinkParent(real) {
		slog.Warn("security.mutable_symlink_parent", "path", path, "resolved", real)
		return "", fmt.Errorf("path contains mutable symlink component")
	}

	if err := checkHardlink(real); err != nil {
		return "", err
	}
	return real, nil
}

// isPathInside reports whether child is parent or inside it.
func isPathInside(child, parent string) bool {
	if child == parent {
		return true
	}
	return strings.HasPrefix(child, parent+string(filepath.Separator))
}

// resolveDeepestExisting canonicalizes a path that may not exist yet by
// walking up to the deepest existing ancestor, resolving its symlinks,
// and re-attaching the missing components.
func resolveDeepestExisting(path string) string {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real
	}
	current := path
	var tail []string
	for {
		parent := filepath.Dir(current)
		if parent == current {
			return filepath.Clean(path)
		}
		tail = append([]string{filepath.Base(current)}, tail...)
		current = parent
		if real, err := filepath.EvalSymlinks(current); err == nil {
			for _, component := range tail {
				real = filepath.Join(real, component)
			}
			return real
		}
	}
}

// hasMutableSymlinkParent reports whether any component of the path is a
// symlink sitting in a directory writable by this process.
func hasMutableSymlinkParent(path string) bool {
	clean := filepath.Clean(path)
	components := strings.Split(clean, string(filepath.Separator))
	current := string(filepath.Separator)
	for _, comp := range components {
		if comp == "" {
			continue
		}
		current = filepath.Join(current, comp)
		info, err := os.Lstat(current)
		if err != nil {
			break
		}
		if info.Mode()&os.ModeSymlink != 0 {
			if syscall.Access(filepath.Dir(current), 0x2 /* W_OK */) == nil {
				return true
			}
		}
	}
	return false
}

// checkHardlink rejects regular files with nlink > 1. Directories
// naturally have nlink > 1 and are exempt.
func checkHardlink(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return nil
	}
	if info.IsDir() {
		return nil
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok && stat.Nlink > 1 {
		slog.Warn("security.hardlink_rejected", "path", path, "nlink", stat.Nlink)
		return fmt.Errorf("hardlinked file not allowed")
	}
	return nil
}
