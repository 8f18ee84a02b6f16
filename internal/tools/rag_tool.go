package tools

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rotbotlabs/rotbot/internal/rag"
)

const (
	defaultCollection  = "default"
	defaultTopK        = 5
	ragContextMaxChars = 3000
)

// RAGSearchTool searches the local knowledge base.
type RAGSearchTool struct {
	dir string
}

func NewRAGSearchTool(dir string) *RAGSearchTool {
	return &RAGSearchTool{dir: dir}
}

func (t *RAGSearchTool) Name() string { return "rag_search" }
func (t *RAGSearchTool) Description() string {
	return "Search the local knowledge base for relevant documents and context. " +
		"Use this when the user asks about topics you've previously ingested " +
		"or when you need to retrieve stored information."
}
func (t *RAGSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query to find relevant documents",
			},
			"collection": map[string]any{
				"type":        "string",
				"description": "The collection to search (default: 'default')",
				"default":     defaultCollection,
			},
			"top_k": map[string]any{
				"type":        "integer",
				"description": "Number of results to return (default 5)",
				"default":     defaultTopK,
			},
		},
		"required": []string{"query"},
	}
}

func (t *RAGSearchTool) Execute(ctx context.Context, args map[string]any) *Result {
	query := stringArg(args, "query")
	if query == "" {
		return ErrorResult("Error: No search query provided")
	}
	collection := stringArg(args, "collection")
	if collection == "" {
		collection = defaultCollection
	}
	topK := intArg(args, "top_k", defaultTopK)

	store, err := rag.New(t.dir, collection)
	if err != nil {
		slog.Error("rag search failed", "error", err)
		return Errorf("RAG search error: %v", err)
	}

	built := store.BuildContext(query, topK, ragContextMaxChars)
	if built == "" {
		return NewResult(fmt.Sprintf("No relevant documents found for: %s", query)).
			WithMeta("result_count", 0)
	}
	return NewResult(built).WithMeta("result_count", len(store.Search(query, topK)))
}

// RAGIngestTool adds documents to the knowledge base.
type RAGIngestTool struct {
	dir string
}

func NewRAGIngestTool(dir string) *RAGIngestTool {
	return &RAGIngestTool{dir: dir}
}

func (t *RAGIngestTool) Name() string { return "rag_ingest" }
func (t *RAGIngestTool) Description() string {
	return "Add documents to the local knowledge base. " +
		"Supports text files, markdown, and code files."
}
func (t *RAGIngestTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"source": map[string]any{
				"type":        "string",
				"description": "File path or directory to ingest",
			},
			"collection": map[string]any{
				"type":        "string",
				"description": "Collection name (default: 'default')",
				"default":     defaultCollection,
			},
			"text": map[string]any{
				"type":        "string",
				"description": "Direct text to ingest (alternative to file)",
			},
		},
		"required": []string{},
	}
}

func (t *RAGIngestTool) Execute(ctx context.Context, args map[string]any) *Result {
	source := stringArg(args, "source")
	collection := stringArg(args, "collection")
	if collection == "" {
		collection = defaultCollection
	}
	text := stringArg(args, "text")

	store, err := rag.New(t.dir, collection)
	if err != nil {
		slog.Error("rag ingest failed", "error", err)
		return Errorf("Ingest error: %v", err)
	}

	if text != "" {
		count, err := store.IngestText(text, nil)
		if err != nil {
			return Errorf("Ingest error: %v", err)
		}
		return NewResult(fmt.Sprintf("Ingested %d chunks from text into '%s'", count, collection)).
			WithMeta("chunk_count", count)
	}

	if source != "" {
		info, statErr := os.Stat(source)
		switch {
		case statErr == nil && info.IsDir():
			count, err := store.IngestDirectory(source, nil, true)
			if err != nil {
				return Errorf("Ingest error: %v", err)
			}
			return NewResult(fmt.Sprintf("Ingested %d chunks from directory '%s' into '%s'", count, source, collection)).
				WithMeta("chunk_count", count)
		case statErr == nil:
			count, err := store.IngestFile(source, nil)
			if err != nil {
				return Errorf("Ingest error: %v", err)
			}
			return NewResult(fmt.Sprintf("Ingested %d chunks from '%s' into '%s'", count, filepath.Base(source), collection)).
				WithMeta("chunk_count", count)
		default:
			return Errorf("Path not found: %s", source)
		}
	}

	return ErrorResult("Error: Provide 'source' (file/dir) or 'text'")
}
