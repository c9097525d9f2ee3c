// Package sourceindex embeds extracted source content so section writing can
// retrieve the passages relevant to each section.
package sourceindex

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mikeboe/research-canvas/pkg/state"
	"github.com/mikeboe/research-canvas/pkg/vectorstore"
)

// Embedder turns text into vectors.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Splitter cuts text into chunks.
type Splitter interface {
	SplitText(text string) ([]string, error)
}

// Store persists and searches embedded chunks.
type Store interface {
	AddChunks(ctx context.Context, chunks []vectorstore.Chunk) error
	SimilaritySearch(ctx context.Context, embedding []float32, topK int, f vectorstore.Filter) ([]vectorstore.SearchResult, error)
	HasSource(ctx context.Context, sessionID, source string) (bool, error)
}

// Index is scoped per call to the session carried by the context.
type Index struct {
	Embedder Embedder
	Splitter Splitter
	Store    Store
	Logger   *slog.Logger
}

func New(embedder Embedder, splitter Splitter, store Store) *Index {
	return &Index{Embedder: embedder, Splitter: splitter, Store: store, Logger: slog.Default()}
}

// Index chunks and embeds a source. Sources already indexed for the session
// are skipped.
func (ix *Index) Index(ctx context.Context, src state.Source) error {
	session := state.SessionFromContext(ctx)
	text := src.RawContent
	if text == "" {
		text = src.Content
	}
	if text == "" {
		return nil
	}

	exists, err := ix.Store.HasSource(ctx, session, src.URL)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	parts, err := ix.Splitter.SplitText(text)
	if err != nil {
		return fmt.Errorf("failed to split %s: %w", src.URL, err)
	}
	if len(parts) == 0 {
		return nil
	}
	vecs, err := ix.Embedder.EmbedDocuments(ctx, parts)
	if err != nil {
		return fmt.Errorf("failed to embed %s: %w", src.URL, err)
	}

	chunks := make([]vectorstore.Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = vectorstore.Chunk{
			SessionID: session,
			Source:    src.URL,
			Title:     src.Title,
			Content:   p,
			Embedding: vecs[i],
		}
	}
	if err := ix.Store.AddChunks(ctx, chunks); err != nil {
		return err
	}
	ix.Logger.Info("Indexed source", "session", session, "url", src.URL, "chunks", len(chunks))
	return nil
}

// Retrieve returns the k passages of the session closest to query, each
// prefixed with its source.
func (ix *Index) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	results, err := ix.Search(ctx, query, k, nil)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, fmt.Sprintf("[%s](%s)\n%s", r.Chunk.Title, r.Chunk.Source, r.Chunk.Content))
	}
	return out, nil
}

// Search runs a similarity search within the session, optionally limited to
// some sources.
func (ix *Index) Search(ctx context.Context, query string, k int, sources []string) ([]vectorstore.SearchResult, error) {
	vec, err := ix.Embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return ix.Store.SimilaritySearch(ctx, vec, k, vectorstore.Filter{
		SessionID: state.SessionFromContext(ctx),
		Sources:   sources,
	})
}
