package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mikeboe/research-canvas/pkg/checkpoint"
	"github.com/mikeboe/research-canvas/pkg/llm"
	"github.com/mikeboe/research-canvas/pkg/metrics"
	"github.com/mikeboe/research-canvas/pkg/research/tools"
	"github.com/mikeboe/research-canvas/pkg/state"
)

// Engine runs research turns. Each session is driven by at most one turn at
// a time; turns of different sessions run independently.
type Engine struct {
	Model   llm.Model
	Tools   *tools.Registry
	Store   checkpoint.Store
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	config    Config
	prompts   *Prompts
	directive *directiveBuilder
	locks     sync.Map
}

func NewEngine(model llm.Model, registry *tools.Registry, store checkpoint.Store, cfg Config) (*Engine, error) {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 40
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	prompts := cfg.Prompts
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	directive, err := newDirectiveBuilder(prompts)
	if err != nil {
		return nil, err
	}

	return &Engine{
		Model:     model,
		Tools:     registry,
		Store:     store,
		Logger:    slog.Default(),
		config:    cfg,
		prompts:   prompts,
		directive: directive,
	}, nil
}

// Run executes one turn of a session. The turn ends at the terminal node or
// at a suspension for review. Nothing is checkpointed when it fails, so the
// session stays at its previous checkpoint.
func (e *Engine) Run(ctx context.Context, sessionID string, in Input, pub state.Publisher) (*Result, error) {
	mu, _ := e.locks.LoadOrStore(sessionID, &sync.Mutex{})
	lock := mu.(*sync.Mutex)
	if !lock.TryLock() {
		return nil, ErrSessionBusy
	}
	defer lock.Unlock()

	if pub == nil {
		pub = state.Discard
	}
	ctx = state.WithSession(ctx, sessionID)

	st, suspended, err := e.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	t := &turn{
		engine:  e,
		session: sessionID,
		st:      st,
		pub:     pub,
		logger:  e.Logger.With("session", sessionID),
	}

	start := NodeDecision
	switch {
	case in.Resume != nil:
		if !suspended {
			return nil, ErrNotSuspended
		}
		start = NodeFeedback
		t.resume = in.Resume
	case suspended:
		return nil, ErrAwaitingFeedback
	case in.Message != "":
		st.AppendMessage(state.UserMessage(in.Message))
	}

	return t.run(ctx, start)
}

// State returns the last checkpointed document of a session.
func (e *Engine) State(ctx context.Context, sessionID string) (*state.State, bool, error) {
	return e.load(ctx, sessionID)
}

func (e *Engine) load(ctx context.Context, sessionID string) (*state.State, bool, error) {
	cp, err := e.Store.Load(ctx, sessionID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return state.New(), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session: %w", err)
	}
	return cp.State, Node(cp.Node) == NodeFeedback, nil
}

// turn is the control flow of one Run. It exclusively owns st.
type turn struct {
	engine  *Engine
	session string
	st      *state.State
	pub     state.Publisher
	logger  *slog.Logger
	resume  *state.Proposal
}

func (t *turn) run(ctx context.Context, node Node) (*Result, error) {
	e := t.engine
	for steps := 0; ; steps++ {
		if steps >= e.config.MaxSteps {
			t.logger.Error("Step limit reached", "steps", steps)
			return nil, ErrStepLimit
		}
		e.Metrics.VisitNode(string(node))
		t.logger.Debug("Entering node", "node", node)

		var next Node
		var err error
		switch node {
		case NodeDecision:
			next, err = t.decide(ctx)
		case NodeDispatch:
			next, err = t.dispatch(ctx)
		case NodeFeedback:
			var interrupt *Interrupt
			next, interrupt, err = t.feedback(ctx)
			if err == nil && interrupt != nil {
				return &Result{State: t.st, Interrupt: interrupt}, nil
			}
		case NodeTerminal:
			return t.finish(ctx)
		default:
			return nil, fmt.Errorf("unknown node %q", node)
		}
		if err != nil {
			return nil, err
		}
		if !canTransition(node, next) {
			return nil, fmt.Errorf("illegal transition %s -> %s", node, next)
		}
		node = next
	}
}

// finish checkpoints the session so the next turn re-enters at Decision.
func (t *turn) finish(ctx context.Context) (*Result, error) {
	if err := t.save(ctx, NodeDecision); err != nil {
		return nil, err
	}
	res := &Result{State: t.st}
	if last, ok := t.st.LastMessage(); ok && last.Role == state.RoleAssistant {
		res.Reply = last.Content
	}
	t.logger.Info("Turn completed", "messages", len(t.st.Messages), "sections", len(t.st.Sections))
	return res, nil
}

func (t *turn) save(ctx context.Context, node Node) error {
	err := t.engine.Store.Save(ctx, &checkpoint.Checkpoint{
		SessionID: t.session,
		Node:      string(node),
		State:     t.st,
		UpdatedAt: t.engine.config.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (t *turn) publish(ctx context.Context) {
	state.PublishState(ctx, t.pub, t.st)
}
