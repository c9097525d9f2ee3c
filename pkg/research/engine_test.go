package research

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/research-canvas/pkg/checkpoint"
	"github.com/mikeboe/research-canvas/pkg/llm"
	"github.com/mikeboe/research-canvas/pkg/research/tools"
	"github.com/mikeboe/research-canvas/pkg/state"
)

// scriptedModel replies with the queued messages in order.
type scriptedModel struct {
	mu       sync.Mutex
	replies  []state.Message
	requests []llm.Request
}

func (m *scriptedModel) Invoke(_ context.Context, req llm.Request) (state.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.replies) == 0 {
		return state.Message{}, errors.New("no scripted reply left")
	}
	msg := m.replies[0]
	m.replies = m.replies[1:]
	return msg, nil
}

func text(s string) state.Message {
	return state.Message{Role: state.RoleAssistant, Content: s}
}

func calls(cs ...state.ToolCall) state.Message {
	return state.Message{Role: state.RoleAssistant, ToolCalls: cs}
}

type fakeTool struct {
	kind  tools.Kind
	run   func(snap *state.State) (*state.State, string, error)
	calls []string
}

func (f *fakeTool) Kind() tools.Kind { return f.kind }

func (f *fakeTool) Schema() llm.ToolSchema { return llm.ToolSchema{Name: f.kind.String()} }

func (f *fakeTool) Run(_ context.Context, args string, snap *state.State, _ state.Publisher) (*state.State, string, error) {
	f.calls = append(f.calls, args)
	return f.run(snap)
}

type recorder struct {
	mu     sync.Mutex
	states []*state.State
}

func (r *recorder) Publish(_ context.Context, ev state.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev.Type == state.EventState {
		r.states = append(r.states, ev.State)
	}
}

func newTestEngine(t *testing.T, model llm.Model, ts ...tools.Tool) (*Engine, checkpoint.Store) {
	t.Helper()
	store := checkpoint.NewMemoryStore()
	e, err := NewEngine(model, tools.NewRegistryWith(ts...), store, Config{
		Now: func() time.Time { return time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return e, store
}

func searchTool() *fakeTool {
	return &fakeTool{kind: tools.KindSearch, run: func(snap *state.State) (*state.State, string, error) {
		snap.MergeSources([]state.Source{{URL: "https://a", Title: "A", Score: 0.9}})
		return snap, "found https://a", nil
	}}
}

func outlineTool() *fakeTool {
	return &fakeTool{kind: tools.KindOutline, run: func(snap *state.State) (*state.State, string, error) {
		snap.Proposal = &state.Proposal{Sections: map[string]state.ProposalSection{
			"s1": {Title: "A", Description: "d"},
			"s2": {Title: "B", Description: "e"},
		}}
		return snap, "proposed", nil
	}}
}

func TestRun_TerminalReply(t *testing.T) {
	model := &scriptedModel{replies: []state.Message{text("Hello, what should we research?")}}
	e, store := newTestEngine(t, model)

	res, err := e.Run(context.Background(), "s", Input{Message: "hi"}, nil)

	require.NoError(t, err)
	assert.False(t, res.Suspended())
	assert.Equal(t, "Hello, what should we research?", res.Reply)
	require.Len(t, res.State.Messages, 2)
	assert.Equal(t, state.RoleUser, res.State.Messages[0].Role)

	cp, err := store.Load(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, string(NodeDecision), cp.Node)

	require.Len(t, model.requests, 1)
	assert.True(t, model.requests[0].SequentialToolCalls)
	assert.Contains(t, model.requests[0].Directive, "March 14, 2025")
}

func TestRun_DispatchesSequentially(t *testing.T) {
	search := searchTool()
	var sawSource bool
	outline := &fakeTool{kind: tools.KindOutline, run: func(snap *state.State) (*state.State, string, error) {
		_, sawSource = snap.Sources["https://a"]
		for _, m := range snap.Messages {
			assert.Empty(t, m.ToolCalls)
		}
		snap.Proposal = &state.Proposal{Sections: map[string]state.ProposalSection{}}
		return snap, "proposed", nil
	}}
	model := &scriptedModel{replies: []state.Message{
		calls(
			state.ToolCall{ID: "c1", Name: "web_search", Arguments: `{"queries":[]}`},
			state.ToolCall{ID: "c2", Name: "outline_writer", Arguments: `{"query":"q"}`},
		),
		text("done"),
	}}
	e, _ := newTestEngine(t, model, search, outline)
	pub := &recorder{}

	res, err := e.Run(context.Background(), "s", Input{Message: "research"}, pub)

	require.NoError(t, err)
	assert.True(t, sawSource)
	assert.Equal(t, "done", res.Reply)

	msgs := res.State.Messages
	require.Len(t, msgs, 5)
	assert.Equal(t, state.Message{Role: state.RoleTool, Content: "found https://a", ToolCallID: "c1", Name: "web_search"}, msgs[2])
	assert.Equal(t, "c2", msgs[3].ToolCallID)
	assert.Empty(t, res.State.Tool)

	var toolMarks []string
	for _, s := range pub.states {
		if s.Tool != "" {
			toolMarks = append(toolMarks, s.Tool)
		}
	}
	assert.Contains(t, toolMarks, "web_search")
	assert.Contains(t, toolMarks, "outline_writer")
	assert.GreaterOrEqual(t, len(pub.states), 5)
}

func TestRun_ReviewSuspendsAndResumes(t *testing.T) {
	outline := outlineTool()
	section := &fakeTool{kind: tools.KindSection, run: func(snap *state.State) (*state.State, string, error) {
		return snap, "wrote", nil
	}}
	model := &scriptedModel{replies: []state.Message{
		calls(
			state.ToolCall{ID: "c1", Name: "outline_writer", Arguments: `{}`},
			state.ToolCall{ID: "c2", Name: "review_proposal", Arguments: `{}`},
			state.ToolCall{ID: "c3", Name: "section_writer", Arguments: `{"idx":0}`},
		),
		text("Outline approved, writing next."),
	}}
	e, store := newTestEngine(t, model, outline, section)
	ctx := context.Background()

	res, err := e.Run(ctx, "s", Input{Message: "research"}, nil)
	require.NoError(t, err)
	require.True(t, res.Suspended())
	assert.Equal(t, "A", res.Interrupt.Proposal.Sections["s1"].Title)
	assert.Empty(t, section.calls)

	msgs := res.State.Messages
	require.Len(t, msgs, 5)
	assert.Equal(t, "c2", msgs[3].ToolCallID)
	assert.Empty(t, msgs[3].Content)
	assert.Equal(t, "c3", msgs[4].ToolCallID)
	assert.Equal(t, DefaultPrompts().SkippedCall, msgs[4].Content)

	cp, err := store.Load(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, string(NodeFeedback), cp.Node)

	_, err = e.Run(ctx, "s", Input{Message: "hello?"}, nil)
	assert.ErrorIs(t, err, ErrAwaitingFeedback)

	res, err = e.Run(ctx, "s", Input{Resume: &state.Proposal{
		Approved: true,
		Sections: map[string]state.ProposalSection{
			"s1": {Title: "A", Description: "d", Approved: true},
			"s2": {Title: "B", Description: "e", Approved: false},
		},
	}}, nil)
	require.NoError(t, err)
	assert.False(t, res.Suspended())
	assert.Equal(t, map[string]state.OutlineEntry{"s1": {Title: "A", Description: "d"}}, res.State.Outline)
	assert.Equal(t, "2025-03-14T09:00:00Z", res.State.Proposal.ReviewedAt)
	assert.Len(t, outline.calls, 1)
	assert.Empty(t, section.calls)

	msgs = res.State.Messages
	assert.Equal(t, state.RoleSystem, msgs[5].Role)
	assert.Equal(t, DefaultPrompts().FeedbackApproved, msgs[5].Content)
	assert.Contains(t, model.requests[1].Directive, "0. A: d")
}

func TestRun_RejectedProposalKeepsRemarks(t *testing.T) {
	model := &scriptedModel{replies: []state.Message{
		calls(
			state.ToolCall{ID: "c1", Name: "outline_writer", Arguments: `{}`},
			state.ToolCall{ID: "c2", Name: "review_proposal", Arguments: `{}`},
		),
		text("I'll revise it."),
	}}
	e, _ := newTestEngine(t, model, outlineTool())
	ctx := context.Background()

	_, err := e.Run(ctx, "s", Input{Message: "research"}, nil)
	require.NoError(t, err)

	res, err := e.Run(ctx, "s", Input{Resume: &state.Proposal{
		Sections: map[string]state.ProposalSection{"s1": {Title: "A", Approved: true}},
		Remarks:  "Add a section on costs",
	}}, nil)
	require.NoError(t, err)

	assert.Empty(t, res.State.Outline)
	assert.Equal(t, "Add a section on costs", res.State.Proposal.Remarks)
	assert.Contains(t, model.requests[1].Directive, "Add a section on costs")
}

func TestRun_ReviewWithoutProposalContinues(t *testing.T) {
	model := &scriptedModel{replies: []state.Message{
		calls(state.ToolCall{ID: "c1", Name: "review_proposal", Arguments: `{}`}),
		text("ok"),
	}}
	e, _ := newTestEngine(t, model)

	res, err := e.Run(context.Background(), "s", Input{Message: "review"}, nil)

	require.NoError(t, err)
	assert.False(t, res.Suspended())
	assert.Equal(t, "ok", res.Reply)
}

func TestRun_UnknownToolIsFatal(t *testing.T) {
	search := searchTool()
	model := &scriptedModel{replies: []state.Message{
		calls(
			state.ToolCall{ID: "c1", Name: "web_search", Arguments: `{}`},
			state.ToolCall{ID: "c2", Name: "drop_tables", Arguments: `{}`},
		),
	}}
	e, store := newTestEngine(t, model, search)

	_, err := e.Run(context.Background(), "s", Input{Message: "go"}, nil)

	var unknown *tools.UnknownToolError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "drop_tables", unknown.Name)
	assert.Empty(t, search.calls)

	_, err = store.Load(context.Background(), "s")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestRun_UnregisteredKindIsFatal(t *testing.T) {
	model := &scriptedModel{replies: []state.Message{
		calls(state.ToolCall{ID: "c1", Name: "web_extract", Arguments: `{}`}),
	}}
	e, _ := newTestEngine(t, model)

	_, err := e.Run(context.Background(), "s", Input{Message: "go"}, nil)

	var unknown *tools.UnknownToolError
	assert.ErrorAs(t, err, &unknown)
}

func TestRun_ToolErrorPropagates(t *testing.T) {
	broken := &fakeTool{kind: tools.KindSearch, run: func(*state.State) (*state.State, string, error) {
		return nil, "", errors.New("disk on fire")
	}}
	model := &scriptedModel{replies: []state.Message{
		calls(state.ToolCall{ID: "c1", Name: "web_search", Arguments: `{}`}),
	}}
	e, _ := newTestEngine(t, model, broken)

	_, err := e.Run(context.Background(), "s", Input{Message: "go"}, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestRun_StepLimit(t *testing.T) {
	var replies []state.Message
	for i := 0; i < 10; i++ {
		replies = append(replies, calls(state.ToolCall{ID: "c", Name: "web_search", Arguments: `{}`}))
	}
	model := &scriptedModel{replies: replies}
	store := checkpoint.NewMemoryStore()
	e, err := NewEngine(model, tools.NewRegistryWith(searchTool()), store, Config{MaxSteps: 5})
	require.NoError(t, err)

	_, err = e.Run(context.Background(), "s", Input{Message: "loop"}, nil)

	assert.ErrorIs(t, err, ErrStepLimit)
}

func TestRun_ResumeWhenNotSuspended(t *testing.T) {
	e, _ := newTestEngine(t, &scriptedModel{})

	_, err := e.Run(context.Background(), "s", Input{Resume: &state.Proposal{}}, nil)

	assert.ErrorIs(t, err, ErrNotSuspended)
}

func TestRun_SessionBusy(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	model := llm.ModelFunc(func(context.Context, llm.Request) (state.Message, error) {
		close(entered)
		<-release
		return text("done"), nil
	})
	e, _ := newTestEngine(t, model)

	errc := make(chan error, 1)
	go func() {
		_, err := e.Run(context.Background(), "s", Input{Message: "first"}, nil)
		errc <- err
	}()
	<-entered

	_, err := e.Run(context.Background(), "s", Input{Message: "second"}, nil)
	assert.ErrorIs(t, err, ErrSessionBusy)

	close(release)
	require.NoError(t, <-errc)
}

func TestRun_NormalizesMalformedHistory(t *testing.T) {
	model := &scriptedModel{replies: []state.Message{text("one"), text("two")}}
	e, store := newTestEngine(t, model)
	ctx := context.Background()

	_, err := e.Run(ctx, "s", Input{Message: "hi"}, nil)
	require.NoError(t, err)

	cp, err := store.Load(ctx, "s")
	require.NoError(t, err)
	cp.State.Messages[0].Role = "human"
	require.NoError(t, store.Save(ctx, cp))

	res, err := e.Run(ctx, "s", Input{Message: "again"}, nil)
	require.NoError(t, err)
	assert.Equal(t, state.RoleUser, res.State.Messages[0].Role)
	assert.Equal(t, "hi", res.State.Messages[0].Content)
}
