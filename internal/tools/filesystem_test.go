package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	ws := t.TempDir()
	ctx := context.Background()

	write := NewWriteFileTool(ws, true)
	res := write.Execute(ctx, map[string]any{"path": "note.txt", "content": "hello"})
	if !res.Success {
		t.Fatalf("write failed: %s", res.Output)
	}
	if res.Output != "Written 5 chars to note.txt" {
		t.Fatalf("write output = %q", res.Output)
	}

	read := NewReadFileTool(ws, true)
	res = read.Execute(ctx, map[string]any{"path": "note.txt"})
	if !res.Success || res.Output != "hello" {
		t.Fatalf("read back = %q (success=%v)", res.Output, res.Success)
	}
	if res.Metadata["size"] != 5 {
		t.Fatalf("size metadata = %v, want 5", res.Metadata["size"])
	}
}

func TestWriteCreatesParentDirs(t *testing.T) {
	ws := t.TempDir()
	write := NewWriteFileTool(ws, true)

	res := write.Execute(context.Background(), map[string]any{"path": "deep/nested/file.txt", "content": "x"})
	if !res.Success {
		t.Fatalf("deep write failed: %s", res.Output)
	}
	if _, err := os.Stat(filepath.Join(ws, "deep", "nested", "file.txt")); err != nil {
		t.Fatalf("file missing on disk: %v", err)
	}
}

func TestReadMissingFile(t *testing.T) {
	read := NewReadFileTool(t.TempDir(), true)
	res := read.Execute(context.Background(), map[string]any{"path": "missing.txt"})
	if res.Success {
		t.Fatal("reading a missing file reported success")
	}
	if res.Output != "File not found: missing.txt" {
		t.Fatalf("Output = %q", res.Output)
	}
}

func TestReadTruncatesLongFile(t *testing.T) {
	ws := t.TempDir()
	long := strings.Repeat("a", maxReadChars+500)
	if err := os.WriteFile(filepath.Join(ws, "big.txt"), []byte(long), 0o644); err != nil {
		t.Fatal(err)
	}

	read := NewReadFileTool(ws, true)
	res := read.Execute(context.Background(), map[string]any{"path": "big.txt"})
	if !res.Success {
		t.Fatalf("read failed: %s", res.Output)
	}
	if !strings.HasSuffix(res.Output, "\n... (truncated)") {
		t.Fatal("long read not truncated")
	}
	if got := strings.TrimSuffix(res.Output, "\n... (truncated)"); len(got) != maxReadChars {
		t.Fatalf("kept %d chars, want %d", len(got), maxReadChars)
	}
	if res.Metadata["size"] != maxReadChars+500 {
		t.Fatalf("size metadata = %v, want full length", res.Metadata["size"])
	}
}

func TestNoPathProvided(t *testing.T) {
	ws := t.TempDir()
	ctx := context.Background()
	tls := []Tool{
		NewReadFileTool(ws, true),
		NewWriteFileTool(ws, true),
		NewAppendFileTool(ws, true),
		NewListFilesTool(ws, true),
	}
	for _, tool := range tls {
		res := tool.Execute(ctx, map[string]any{})
		if res.Success || res.Output != "Error: No path provided" {
			t.Errorf("%s: Output = %q (success=%v)", tool.Name(), res.Output, res.Success)
		}
	}
}

func TestRestrictBlocksEscape(t *testing.T) {
	ws := t.TempDir()
	ctx := context.Background()
	read := NewReadFileTool(ws, true)

	for _, path := range []string{"../outside.txt", "/etc/passwd", "a/../../../etc/passwd"} {
		res := read.Execute(ctx, map[string]any{"path": path})
		if res.Success {
			t.Errorf("escape %q succeeded", path)
		}
		if res.Output != "Error: Path outside workspace" {
			t.Errorf("escape %q: Output = %q", path, res.Output)
		}
	}
}

func TestRestrictBlocksSymlinkEscape(t *testing.T) {
	ws := t.TempDir()
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(secret, []byte("top"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(secret, filepath.Join(ws, "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	read := NewReadFileTool(ws, true)
	res := read.Execute(context.Background(), map[string]any{"path": "link.txt"})
	if res.Success {
		t.Fatal("symlink escape succeeded")
	}
	if res.Output != "Error: Path outside workspace" {
		t.Fatalf("Output = %q", res.Output)
	}
}

func TestUnrestrictedAllowsOutsidePaths(t *testing.T) {
	ws := t.TempDir()
	outside := filepath.Join(t.TempDir(), "free.txt")

	write := NewWriteFileTool(ws, false)
	res := write.Execute(context.Background(), map[string]any{"path": outside, "content": "ok"})
	if !res.Success {
		t.Fatalf("unrestricted write failed: %s", res.Output)
	}
	if _, err := os.Stat(outside); err != nil {
		t.Fatalf("file missing: %v", err)
	}
}

func TestAppendFile(t *testing.T) {
	ws := t.TempDir()
	ctx := context.Background()
	app := NewAppendFileTool(ws, true)

	res := app.Execute(ctx, map[string]any{"path": "log.txt", "content": "abc"})
	if !res.Success || res.Output != "Appended 3 chars to log.txt" {
		t.Fatalf("first append: %q (success=%v)", res.Output, res.Success)
	}
	if res = app.Execute(ctx, map[string]any{"path": "log.txt", "content": "def"}); !res.Success {
		t.Fatalf("second append failed: %s", res.Output)
	}

	data, err := os.ReadFile(filepath.Join(ws, "log.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "abcdef" {
		t.Fatalf("file content = %q, want abcdef", data)
	}
}

func TestListFiles(t *testing.T) {
	ws := t.TempDir()
	ctx := context.Background()
	if err := os.Mkdir(filepath.Join(ws, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(ws, "b.txt"), []byte("bb"), 0o644)
	os.WriteFile(filepath.Join(ws, "a.txt"), []byte("a"), 0o644)

	list := NewListFilesTool(ws, true)
	res := list.Execute(ctx, map[string]any{"path": "."})
	if !res.Success {
		t.Fatalf("list failed: %s", res.Output)
	}
	want := "d sub\nf a.txt (1B)\nf b.txt (2B)"
	if res.Output != want {
		t.Fatalf("Output = %q, want %q", res.Output, want)
	}
	if res.Metadata["entry_count"] != 3 {
		t.Fatalf("entry_count = %v, want 3", res.Metadata["entry_count"])
	}

	res = list.Execute(ctx, map[string]any{"path": "sub"})
	if res.Output != "(empty directory)" {
		t.Fatalf("empty dir output = %q", res.Output)
	}

	res = list.Execute(ctx, map[string]any{"path": "a.txt"})
	if res.Success || res.Output != "Not a directory: a.txt" {
		t.Fatalf("file listing: %q (success=%v)", res.Output, res.Success)
	}
}
