// Package memory implements three-tier persistent memory: session
// history flows into HISTORY.md (append-only searchable log), which is
// consolidated into MEMORY.md (long-term facts), plus dated daily notes.
package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotbotlabs/rotbot/internal/providers"
	"github.com/rotbotlabs/rotbot/internal/sessions"
)

const (
	memoryHeader = "# rotbot Memory\n\n" +
		"Long-term facts and knowledge consolidated from conversations.\n\n"
	historyHeader = "# rotbot History\n\n" +
		"Searchable log of recent interactions.\n\n"

	consolidatePrompt = "Summarize the key facts, preferences, and important information " +
		"from this conversation. Be concise. Use bullet points. " +
		"Focus on what would be useful to remember for future conversations."

	// minConsolidateTurns is the floor below which consolidation is skipped.
	minConsolidateTurns = 5

	searchResultLimit = 20
)

// Store reads and writes the memory directory.
type Store struct {
	dir         string
	memoryFile  string
	historyFile string
}

// NewStore creates the memory directory and seeds the document headers.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	s := &Store{
		dir:         dir,
		memoryFile:  filepath.Join(dir, "MEMORY.md"),
		historyFile: filepath.Join(dir, "HISTORY.md"),
	}
	if err := seedFile(s.memoryFile, memoryHeader); err != nil {
		return nil, err
	}
	if err := seedFile(s.historyFile, historyHeader); err != nil {
		return nil, err
	}
	return s, nil
}

func seedFile(path, header string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()
	_, err = f.WriteString(header)
	return err
}

// AppendHistory writes one timestamped line to HISTORY.md.
func (s *Store) AppendHistory(channel, userID, role, content string) error {
	ts := time.Now().Format("2006-01-02 15:04:05")
	entry := fmt.Sprintf("[%s] [%s:%s] %s: %s\n", ts, channel, userID, role, content)

	f, err := os.OpenFile(s.historyFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(entry)
	return err
}

// ReadMemory returns the full MEMORY.md contents.
func (s *Store) ReadMemory() string {
	data, err := os.ReadFile(s.memoryFile)
	if err != nil {
		return ""
	}
	return string(data)
}

// ReadHistory returns the last n lines of HISTORY.md.
func (s *Store) ReadHistory(n int) string {
	data, err := os.ReadFile(s.historyFile)
	if err != nil {
		return ""
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// SearchHistory returns up to the trailing 20 case-insensitive substring
// matches from HISTORY.md.
func (s *Store) SearchHistory(query string) []string {
	f, err := os.Open(s.historyFile)
	if err != nil {
		return nil
	}
	defer f.Close()

	q := strings.ToLower(query)
	var results []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.Contains(strings.ToLower(line), q) {
			results = append(results, strings.TrimSpace(line))
		}
	}
	if len(results) > searchResultLimit {
		results = results[len(results)-searchResultLimit:]
	}
	return results
}

// SaveFact appends a dated section to MEMORY.md.
func (s *Store) SaveFact(fact string) error {
	f, err := os.OpenFile(s.memoryFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "\n## %s\n%s\n", time.Now().Format("2006-01-02"), fact)
	return err
}

// Summarizer is the slice of the provider contract consolidation needs.
type Summarizer interface {
	Generate(ctx context.Context, req providers.Request) (*providers.Response, error)
}

// Consolidate summarizes old session turns into MEMORY.md via the
// provider. Returns the summary and true when consolidation happened.
// Fewer than five turns, or any provider failure, yields ("", false);
// it never propagates an error to the caller.
func (s *Store) Consolidate(ctx context.Context, turns []sessions.Turn, p Summarizer) (string, bool) {
	if len(turns) < minConsolidateTurns {
		return "", false
	}

	var b strings.Builder
	for _, t := range turns {
		if t.Content == "" {
			continue
		}
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteString("\n")
	}

	resp, err := p.Generate(ctx, providers.Request{
		Messages: []providers.Message{
			{Role: "system", Content: consolidatePrompt},
			{Role: "user", Content: strings.TrimRight(b.String(), "\n")},
		},
	})
	if err != nil || resp == nil || resp.FinishReason == "error" || resp.Content == "" {
		return "", false
	}

	if err := s.SaveFact(resp.Content); err != nil {
		return "", false
	}
	return resp.Content, true
}

// DailyNotePath returns the path of today's note.
func (s *Store) DailyNotePath() string {
	return filepath.Join(s.dir, time.Now().Format("2006-01-02")+".md")
}

// AppendDailyNote appends a line to today's note, creating it with a
// date heading on first write.
func (s *Store) AppendDailyNote(content string) error {
	path := s.DailyNotePath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		header := fmt.Sprintf("# %s\n\n", time.Now().Format("2006-01-02"))
		if err := os.WriteFile(path, []byte(header), 0644); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(content + "\n")
	return err
}
