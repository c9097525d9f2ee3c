package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mikeboe/research-canvas/pkg/database"
)

// PostgresStore keeps checkpoints in the research_sessions table.
type PostgresStore struct {
	DB *database.PostgresDB
}

func NewPostgresStore(db *database.PostgresDB) *PostgresStore {
	return &PostgresStore{DB: db}
}

func (s *PostgresStore) Save(ctx context.Context, cp *Checkpoint) error {
	data, err := cp.State.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	updated := cp.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	query := `
		INSERT INTO research_sessions (id, title, node, state, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET title = EXCLUDED.title, node = EXCLUDED.node, state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.DB.Pool.Exec(ctx, query, cp.SessionID, cp.State.Title, cp.Node, data, updated); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, sessionID string) (*Checkpoint, error) {
	var node string
	var data []byte
	var updated time.Time
	err := s.DB.Pool.QueryRow(ctx,
		`SELECT node, state, updated_at FROM research_sessions WHERE id = $1`, sessionID,
	).Scan(&node, &data, &updated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return decode(sessionID, node, data, updated)
}

func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.DB.Pool.Exec(ctx, `DELETE FROM research_sessions WHERE id = $1`, sessionID)
	return err
}

func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Pool.Query(ctx, `SELECT id FROM research_sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
