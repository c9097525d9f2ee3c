package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Chunk is one embedded piece of a source, scoped to a session.
type Chunk struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Source    string    `json:"source"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`
}

type chunkMeta struct {
	Session string `json:"session"`
	Source  string `json:"source"`
	Title   string `json:"title"`
}

// Filter narrows a search. Empty fields match everything.
type Filter struct {
	SessionID string
	Sources   []string
}

// PGVectorStore handles pgvector operations
type PGVectorStore struct {
	pool      *pgxpool.Pool
	tableName string
}

// isValidTableName validates that a table name contains only safe characters
// to prevent SQL injection attacks
func isValidTableName(name string) bool {
	// Table names must start with a letter or underscore and be between 1-63 chars (PostgreSQL limit)
	matched, _ := regexp.MatchString(`^[a-z_][a-zA-Z0-9_]{0,62}$`, name)
	return matched
}

// NewPGVectorStore creates a new PGVector store
func NewPGVectorStore(pool *pgxpool.Pool, tableName string) (*PGVectorStore, error) {
	if !isValidTableName(tableName) {
		return nil, fmt.Errorf("invalid table name: must contain only alphanumeric characters and underscores, start with a letter or underscore, and be 1-63 characters long")
	}
	return &PGVectorStore{
		pool:      pool,
		tableName: tableName,
	}, nil
}

func (vs *PGVectorStore) table() string {
	return pgx.Identifier{vs.tableName}.Sanitize()
}

// AddChunks inserts chunks with their embeddings in one batch.
func (vs *PGVectorStore) AddChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (content, metadata, embedding)
		VALUES ($1, $2, $3)
	`, vs.table())

	batch := &pgx.Batch{}
	for _, c := range chunks {
		meta, err := json.Marshal(chunkMeta{Session: c.SessionID, Source: c.Source, Title: c.Title})
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		batch.Queue(query, c.Content, meta, pgvector.NewVector(c.Embedding))
	}

	br := vs.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range chunks {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}
	return nil
}

// SearchResult is a chunk with its cosine similarity to the query.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// SimilaritySearch returns the topK chunks closest to the query embedding.
func (vs *PGVectorStore) SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, f Filter) ([]SearchResult, error) {
	args := []any{pgvector.NewVector(queryEmbedding)}
	where := f.where(&args)
	args = append(args, topK)

	query := fmt.Sprintf(`
		SELECT id, content, metadata, 1 - (embedding <=> $1) as similarity
		FROM %s
		WHERE %s
		ORDER BY embedding <=> $1
		LIMIT $%d
	`, vs.table(), where, len(args))

	rows, err := vs.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute similarity search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var c Chunk
		var meta []byte
		var similarity float64
		if err := rows.Scan(&c.ID, &c.Content, &meta, &similarity); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := c.setMeta(meta); err != nil {
			return nil, err
		}
		results = append(results, SearchResult{Chunk: c, Score: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}

// HasSource reports whether a session already indexed a source.
func (vs *PGVectorStore) HasSource(ctx context.Context, sessionID, source string) (bool, error) {
	args := []any{}
	where := Filter{SessionID: sessionID, Sources: []string{source}}.where(&args)
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s)`, vs.table(), where)

	var exists bool
	if err := vs.pool.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check source: %w", err)
	}
	return exists, nil
}

// DeleteSession removes every chunk of a session.
func (vs *PGVectorStore) DeleteSession(ctx context.Context, sessionID string) error {
	args := []any{}
	where := Filter{SessionID: sessionID}.where(&args)
	_, err := vs.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s`, vs.table(), where), args...)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (c *Chunk) setMeta(raw []byte) error {
	var m chunkMeta
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	c.SessionID, c.Source, c.Title = m.Session, m.Source, m.Title
	return nil
}

// where renders the filter, appending its parameters to args.
func (f Filter) where(args *[]any) string {
	var conds []string
	if f.SessionID != "" {
		*args = append(*args, f.SessionID)
		conds = append(conds, fmt.Sprintf("metadata->>'session' = $%d", len(*args)))
	}
	if len(f.Sources) > 0 {
		*args = append(*args, f.Sources)
		conds = append(conds, fmt.Sprintf("metadata->>'source' = ANY($%d)", len(*args)))
	}
	if len(conds) == 0 {
		return "TRUE"
	}
	return strings.Join(conds, " AND ")
}
