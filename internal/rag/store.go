// Package rag is a lightweight document store with BM25 keyword search.
// No vector database: term-frequency scoring over JSONL collections is
// enough for local retrieval, and it works offline.
package rag

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Chunking defaults, in words.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// BM25 parameters.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// Document is one stored chunk.
type Document struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	DocID    string            `json:"doc_id"`
}

// NewDocument derives a stable id from the chunk head so re-ingesting
// identical content produces the same id.
func NewDocument(content string, metadata map[string]string) Document {
	head := content
	if len(head) > 200 {
		head = head[:200]
	}
	sum := md5.Sum([]byte(head))
	return Document{
		Content:  content,
		Metadata: metadata,
		DocID:    hex.EncodeToString(sum[:])[:12],
	}
}

// ScoredDocument pairs a search hit with its BM25 score.
type ScoredDocument struct {
	Document Document
	Score    float64
}

// Store holds one collection: a JSONL file under the rag directory plus
// an in-memory index rebuilt on load and ingest.
type Store struct {
	mu         sync.Mutex
	dir        string
	collection string
	path       string
	docs       []Document
	idf        map[string]float64
	loaded     bool
}

// New opens (lazily) the named collection under dir.
func New(dir, collection string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Store{
		dir:        dir,
		collection: collection,
		path:       filepath.Join(dir, collection+".jsonl"),
		idf:        make(map[string]float64),
	}, nil
}

// Collection returns the collection name.
func (s *Store) Collection() string { return s.collection }

func (s *Store) ensureLoaded() {
	if s.loaded {
		return
	}
	s.load()
	s.loaded = true
}

func (s *Store) load() {
	s.docs = s.docs[:0]
	f, err := os.Open(s.path)
	if err == nil {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var doc Document
			if err := json.Unmarshal([]byte(line), &doc); err != nil {
				continue
			}
			s.docs = append(s.docs, doc)
		}
	}
	s.rebuildIDF()
}

func (s *Store) appendDocument(doc Document) error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = f.Write(append(data, '\n'))
	return err
}

// IngestText splits text into overlapping chunks and stores them.
// Returns the number of chunks created.
func (s *Store) IngestText(text string, metadata map[string]string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	count := 0
	for _, chunk := range chunkText(text, DefaultChunkSize, DefaultChunkOverlap) {
		doc := NewDocument(chunk, metadata)
		s.docs = append(s.docs, doc)
		if err := s.appendDocument(doc); err != nil {
			return count, err
		}
		count++
	}
	s.rebuildIDF()
	return count, nil
}

// IngestFile reads a text file and ingests it with source metadata.
func (s *Store) IngestFile(path string, metadata map[string]string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("file not found: %s", path)
		}
		return 0, err
	}

	meta := map[string]string{
		"source":   path,
		"filename": filepath.Base(path),
	}
	for k, v := range metadata {
		meta[k] = v
	}
	return s.IngestText(string(data), meta)
}

// defaultExtensions are the file types IngestDirectory picks up when the
// caller passes none.
var defaultExtensions = []string{".txt", ".md", ".py", ".js", ".ts", ".json", ".yaml", ".yml", ".go"}

// IngestDirectory ingests all matching files under dir. Individual file
// failures are logged and skipped.
func (s *Store) IngestDirectory(dir string, extensions []string, recursive bool) (int, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", dir)
	}
	if len(extensions) == 0 {
		extensions = defaultExtensions
	}
	want := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		want[strings.ToLower(ext)] = true
	}

	total := 0
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !want[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		n, err := s.IngestFile(path, nil)
		if err != nil {
			slog.Warn("ingest failed", "file", path, "error", err)
			return nil
		}
		total += n
		return nil
	})
	return total, err
}

// Search runs BM25 keyword scoring over the collection and returns the
// top k hits with positive scores, best first.
func (s *Store) Search(query string, topK int) []ScoredDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	if len(s.docs) == 0 {
		return nil
	}
	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return nil
	}

	totalLen := 0
	for _, d := range s.docs {
		totalLen += len(tokenize(d.Content))
	}
	avgDL := float64(totalLen) / float64(len(s.docs))

	var hits []ScoredDocument
	for _, doc := range s.docs {
		docTerms := tokenize(doc.Content)
		tf := make(map[string]int, len(docTerms))
		for _, t := range docTerms {
			tf[t]++
		}

		score := 0.0
		for _, term := range queryTerms {
			freq := float64(tf[term])
			idf := s.idf[term]
			denom := freq + bm25K1*(1-bm25B+bm25B*float64(len(docTerms))/avgDL)
			if denom > 0 {
				score += idf * (freq * (bm25K1 + 1)) / denom
			}
		}
		if score > 0 {
			hits = append(hits, ScoredDocument{Document: doc, Score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

// SearchText returns just the content of the top hits.
func (s *Store) SearchText(query string, topK int) []string {
	hits := s.Search(query, topK)
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Document.Content)
	}
	return out
}

// BuildContext assembles a bounded context block for prompt injection.
// Returns "" when nothing matches.
func (s *Store) BuildContext(query string, topK, maxChars int) string {
	hits := s.Search(query, topK)
	if len(hits) == 0 {
		return ""
	}

	var parts []string
	total := 0
	for _, h := range hits {
		content := h.Document.Content
		if total+len(content) > maxChars {
			remaining := maxChars - total
			if remaining > 100 {
				parts = append(parts, content[:remaining]+"...")
			}
			break
		}
		parts = append(parts, content)
		total += len(content)
	}

	return "--- Relevant Context (from knowledge base) ---\n" +
		strings.Join(parts, "\n\n") +
		"\n--- End Context ---\n"
}

// Clear removes every document and deletes the collection file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs = nil
	s.idf = make(map[string]float64)
	s.loaded = true
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Count returns the number of stored chunks.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	return len(s.docs)
}

// ListCollections names every collection file in dir.
func ListCollections(dir string) []string {
	matches, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), ".jsonl"))
	}
	return names
}

// chunkText splits text into overlapping word-count chunks.
func chunkText(text string, chunkSize, overlap int) []string {
	words := strings.Fields(text)
	var chunks []string
	for start := 0; start < len(words); start += chunkSize - overlap {
		end := start + chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[start:end], " ")
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

var termPattern = regexp.MustCompile(`\w+`)

// tokenize lowercases and keeps alphanumeric runs longer than one char.
func tokenize(text string) []string {
	var terms []string
	for _, w := range termPattern.FindAllString(strings.ToLower(text), -1) {
		if len(w) > 1 {
			terms = append(terms, w)
		}
	}
	return terms
}

// rebuildIDF recomputes inverse document frequency for every term.
func (s *Store) rebuildIDF() {
	s.idf = make(map[string]float64)
	n := len(s.docs)
	if n == 0 {
		return
	}

	df := make(map[string]int)
	for _, doc := range s.docs {
		seen := make(map[string]bool)
		for _, term := range tokenize(doc.Content) {
			if !seen[term] {
				seen[term] = true
				df[term]++
			}
		}
	}
	for term, count := range df {
		s.idf[term] = math.Log((float64(n)-float64(count)+0.5)/(float64(count)+0.5) + 1)
	}
}
