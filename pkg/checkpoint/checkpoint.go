// Package checkpoint persists suspended and finished workflow turns so a
// session can continue in another request or process.
package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/mikeboe/research-canvas/pkg/state"
)

// ErrNotFound is returned when a session has no checkpoint.
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint is a serialized continuation: the node to resume at and the
// full document at that point.
type Checkpoint struct {
	SessionID string       `json:"session_id"`
	Node      string       `json:"node"`
	State     *state.State `json:"state"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Store persists checkpoints by session.
type Store interface {
	Save(ctx context.Context, cp *Checkpoint) error
	Load(ctx context.Context, sessionID string) (*Checkpoint, error)
	Delete(ctx context.Context, sessionID string) error
	List(ctx context.Context) ([]string, error)
}

// decode restores empty containers the JSON form may have dropped.
func decode(sessionID, node string, data []byte, updated time.Time) (*Checkpoint, error) {
	st, err := state.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &Checkpoint{SessionID: sessionID, Node: node, State: st, UpdatedAt: updated}, nil
}
