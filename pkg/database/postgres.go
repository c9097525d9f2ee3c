package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	maxConns = 25
	minConns = 2

	// hnsw and ivfflat stop at 2000 dimensions; wider vectors fall back to exact search.
	maxIndexedDimension = 2000
)

// PostgresDB wraps the database connection pool
type PostgresDB struct {
	Pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	config.MaxConns = maxConns
	config.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresDB{Pool: pool}, nil
}

func (db *PostgresDB) Close() {
	db.Pool.Close()
}

// InitSourceIndex prepares the chunk table of the source index: the pgvector
// extension, the table, a cosine index on the embedding and an index on the
// owning session. tableName must already be validated by the caller.
func (db *PostgresDB) InitSourceIndex(ctx context.Context, tableName string, dimension int) error {
	if _, err := db.Pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector: %w", err)
	}

	stmts := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				content TEXT NOT NULL,
				metadata JSONB,
				embedding vector(%d),
				created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
			)
		`, tableName, dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_session_idx ON %s ((metadata->>'session'))`, tableName, tableName),
	}
	if dimension <= maxIndexedDimension {
		stmts = append(stmts, fmt.Sprintf(`
			CREATE INDEX IF NOT EXISTS %s_embedding_idx
			ON %s USING hnsw (embedding vector_cosine_ops)
		`, tableName, tableName))
	}

	for _, stmt := range stmts {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to prepare source index table %s: %w", tableName, err)
		}
	}
	return nil
}
