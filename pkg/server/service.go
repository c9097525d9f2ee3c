package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/mikeboe/research-canvas/pkg/checkpoint"
	"github.com/mikeboe/research-canvas/pkg/database"
	"github.com/mikeboe/research-canvas/pkg/research"
	"github.com/mikeboe/research-canvas/pkg/sourceindex"
	"github.com/mikeboe/research-canvas/pkg/state"
)

type Service struct {
	Engine *research.Engine
	// DB and Index are optional.
	DB    *database.PostgresDB
	Index *sourceindex.Index
}

func NewService(engine *research.Engine, db *database.PostgresDB, index *sourceindex.Index) *Service {
	return &Service{Engine: engine, DB: db, Index: index}
}

// Session is the external view of a research session.
type Session struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"` // "idle" or "awaiting_review"
	State     *state.State    `json:"state"`
	Proposal  *state.Proposal `json:"proposal,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

const (
	StatusIdle           = "idle"
	StatusAwaitingReview = "awaiting_review"
)

// StreamEvent represents a single event in the turn stream
type StreamEvent struct {
	Type    string      `json:"type"` // "state", "section_stream", "interrupt", "done", "error"
	Payload interface{} `json:"payload"`
}

func (s *Service) CreateSession(ctx context.Context) (*Session, error) {
	cp := &checkpoint.Checkpoint{
		SessionID: uuid.NewString(),
		Node:      string(research.NodeDecision),
		State:     state.New(),
		UpdatedAt: time.Now(),
	}
	if err := s.Engine.Store.Save(ctx, cp); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sessionView(cp), nil
}

func (s *Service) GetSession(ctx context.Context, id string) (*Session, error) {
	cp, err := s.Engine.Store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return sessionView(cp), nil
}

func (s *Service) ListSessions(ctx context.Context) ([]string, error) {
	return s.Engine.Store.List(ctx)
}

func (s *Service) DeleteSession(ctx context.Context, id string) error {
	return s.Engine.Store.Delete(ctx, id)
}

func sessionView(cp *checkpoint.Checkpoint) *Session {
	v := &Session{ID: cp.SessionID, Status: StatusIdle, State: cp.State, UpdatedAt: cp.UpdatedAt}
	if research.Node(cp.Node) == research.NodeFeedback {
		v.Status = StatusAwaitingReview
		v.Proposal = cp.State.Proposal
	}
	return v
}

// SendMessage starts a turn with a human message.
func (s *Service) SendMessage(ctx context.Context, id, content string) (iter.Seq2[StreamEvent, error], error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status == StatusAwaitingReview {
		return nil, research.ErrAwaitingFeedback
	}
	return s.turn(ctx, id, research.Input{Message: content}), nil
}

// Resume continues a suspended turn with the reviewed proposal.
func (s *Service) Resume(ctx context.Context, id string, reviewed state.Proposal) (iter.Seq2[StreamEvent, error], error) {
	sess, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status != StatusAwaitingReview {
		return nil, research.ErrNotSuspended
	}
	return s.turn(ctx, id, research.Input{Resume: &reviewed}), nil
}

// turn runs the engine in the background and yields what it publishes. The
// turn is not cancelled when the consumer goes away, so it still reaches its
// checkpoint.
func (s *Service) turn(ctx context.Context, id string, in research.Input) iter.Seq2[StreamEvent, error] {
	return func(yield func(StreamEvent, error) bool) {
		events := make(chan StreamEvent, 64)
		stop := make(chan struct{})
		defer close(stop)

		pub := state.PublisherFunc(func(_ context.Context, ev state.Event) {
			se := StreamEvent{Type: string(ev.Type), Payload: ev.State}
			if ev.Stream != nil {
				se.Payload = ev.Stream
			}
			select {
			case events <- se:
			case <-stop:
			}
		})

		type outcome struct {
			res *research.Result
			err error
		}
		done := make(chan outcome, 1)
		go func() {
			res, err := s.Engine.Run(context.WithoutCancel(ctx), id, in, pub)
			done <- outcome{res, err}
		}()

		for {
			select {
			case ev := <-events:
				if !yield(ev, nil) {
					return
				}
			case out := <-done:
				// Everything published before Run returned is buffered.
				for len(events) > 0 {
					if !yield(<-events, nil) {
						return
					}
				}
				if out.err != nil {
					yield(StreamEvent{Type: "error", Payload: out.err.Error()}, out.err)
					return
				}
				if out.res.Suspended() {
					yield(StreamEvent{Type: "interrupt", Payload: out.res.Interrupt}, nil)
					return
				}
				yield(StreamEvent{Type: "done", Payload: out.res}, nil)
				return
			}
		}
	}
}

// Report renders the session's sections as markdown.
func (s *Service) Report(ctx context.Context, id string) (string, error) {
	cp, err := s.Engine.Store.Load(ctx, id)
	if err != nil {
		return "", err
	}
	return cp.State.Markdown(), nil
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

func (s *Service) GetSessionLogs(ctx context.Context, id string) ([]LogEntry, error) {
	if s.DB == nil {
		return []LogEntry{}, nil
	}
	query := `
		SELECT id, timestamp, level, message, metadata
		FROM research_logs
		WHERE session_id = $1
		ORDER BY id ASC
	`
	rows, err := s.DB.Pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			continue
		}
		logs = append(logs, l)
	}
	return logs, nil
}

// SearchContent runs a semantic search over the indexed sources of a session.
func (s *Service) SearchContent(ctx context.Context, id, query string, topK int, source string) (string, error) {
	if s.Index == nil {
		return "", errors.New("source indexing is not enabled")
	}
	if topK <= 0 {
		topK = 5
	}
	var sources []string
	if source != "" {
		sources = []string{source}
	}
	results, err := s.Index.Search(state.WithSession(ctx, id), query, topK, sources)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No results found.", nil
	}

	var out string
	for _, r := range results {
		out += fmt.Sprintf("# Source: %s (%s)\nScore: %.2f\n\n%s\n\n", r.Chunk.Title, r.Chunk.Source, r.Score, r.Chunk.Content)
	}
	return out, nil
}
