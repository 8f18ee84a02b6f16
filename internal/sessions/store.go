// Package sessions persists conversation history as one JSONL file per
// session key under the sessions directory.
package sessions

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Turn is one conversation entry.
type Turn struct {
	Role      string            `json:"role"` // user, assistant, system
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Session holds the ordered history for one channel:chat_id pair.
type Session struct {
	Key   string
	Turns []Turn

	// LastConsolidated is the history length at the last consolidation
	// pass, used to decide when the next one is due.
	LastConsolidated int
}

// Recent returns the trailing n turns.
func (s *Session) Recent(n int) []Turn {
	if n <= 0 || len(s.Turns) <= n {
		return s.Turns
	}
	return s.Turns[len(s.Turns)-n:]
}

// Len returns the number of turns.
func (s *Session) Len() int { return len(s.Turns) }

// Store manages sessions with a write-through in-memory cache.
type Store struct {
	mu    sync.Mutex
	dir   string
	cache map[string]*Session
}

// NewStore creates the sessions directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Store{dir: dir, cache: make(map[string]*Session)}, nil
}

// Get returns the cached session for key, loading it from disk on first
// touch. A missing file yields an empty session.
func (st *Store) Get(key string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	if s, ok := st.cache[key]; ok {
		return s
	}

	s := &Session{Key: key, Turns: loadJSONL(st.path(key))}
	st.cache[key] = s
	return s
}

// Append adds a turn to the cached session and appends the JSON record
// to the durable log, so the in-memory tail always matches the file tail.
func (st *Store) Append(key string, turn Turn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}

	st.mu.Lock()
	s, ok := st.cache[key]
	if !ok {
		s = &Session{Key: key, Turns: loadJSONL(st.path(key))}
		st.cache[key] = s
	}
	s.Turns = append(s.Turns, turn)
	st.mu.Unlock()

	data, err := json.Marshal(turn)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(st.path(key), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(data, '\n'))
	return err
}

// Rewrite atomically replaces the durable log with the session's current
// history. Used after consolidation truncates the prefix.
func (st *Store) Rewrite(s *Session) error {
	st.mu.Lock()
	st.cache[s.Key] = s
	turns := make([]Turn, len(s.Turns))
	copy(turns, s.Turns)
	st.mu.Unlock()

	tmp, err := os.CreateTemp(st.dir, "session-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	w := bufio.NewWriter(tmp)
	for _, turn := range turns {
		data, err := json.Marshal(turn)
		if err != nil {
			tmp.Close()
			return err
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	tmp.Close()

	if err := os.Rename(tmpPath, st.path(s.Key)); err != nil {
		return err
	}
	cleanup = false
	return nil
}

// Delete removes the cache entry and the durable log.
func (st *Store) Delete(key string) error {
	st.mu.Lock()
	delete(st.cache, key)
	st.mu.Unlock()

	if err := os.Remove(st.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List returns the sanitized keys of all persisted sessions.
func (st *Store) List() []string {
	entries, err := os.ReadDir(st.dir)
	if err != nil {
		return nil
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, ".jsonl"))
	}
	return keys
}

func (st *Store) path(key string) string {
	return filepath.Join(st.dir, sanitizeKey(key)+".jsonl")
}

// sanitizeKey makes a session key filesystem-safe.
func sanitizeKey(key string) string {
	key = strings.ReplaceAll(key, ":", "_")
	return strings.ReplaceAll(key, "/", "_")
}

// loadJSONL reads one JSON turn per line, skipping unreadable lines.
func loadJSONL(path string) []Turn {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var turns []Turn
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var turn Turn
		if err := json.Unmarshal([]byte(line), &turn); err != nil {
			continue
		}
		turns = append(turns, turn)
	}
	return turns
}
