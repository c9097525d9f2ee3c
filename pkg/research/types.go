package research

import (
	"errors"
	"time"

	"github.com/mikeboe/research-canvas/pkg/state"
)

// Node is a state of the workflow machine.
type Node string

const (
	NodeDecision Node = "decision"
	NodeDispatch Node = "dispatch"
	NodeFeedback Node = "feedback"
	NodeTerminal Node = "terminal"
)

// transitions lists the legal edges of the machine.
var transitions = map[Node][]Node{
	NodeDecision: {NodeTerminal, NodeDispatch},
	NodeDispatch: {NodeFeedback, NodeDecision},
	NodeFeedback: {NodeDecision},
}

func canTransition(from, to Node) bool {
	for _, n := range transitions[from] {
		if n == to {
			return true
		}
	}
	return false
}

var (
	ErrSessionBusy      = errors.New("session is already running a turn")
	ErrNotSuspended     = errors.New("session is not waiting for proposal review")
	ErrAwaitingFeedback = errors.New("session is waiting for proposal review")
	ErrStepLimit        = errors.New("step limit reached")
)

// Config holds runtime configuration
type Config struct {
	// MaxSteps bounds the node visits of one turn.
	MaxSteps int
	Prompts  *Prompts
	Now      func() time.Time
}

// Input starts a turn: either a new human message or the reviewed proposal
// of a suspended session.
type Input struct {
	Message string
	Resume  *state.Proposal
}

// Interrupt is returned when a turn stops for proposal review.
type Interrupt struct {
	Proposal *state.Proposal `json:"proposal"`
}

// Result is the outcome of a turn.
type Result struct {
	State     *state.State `json:"state"`
	Interrupt *Interrupt   `json:"interrupt,omitempty"`
	// Reply is the final assistant message when the turn ended normally.
	Reply string `json:"reply,omitempty"`
}

// Suspended reports whether the turn stopped for review.
func (r *Result) Suspended() bool { return r.Interrupt != nil }
