// Package llm defines the model capability the workflow depends on. The
// workflow never talks to a provider SDK directly; it hands a directive, the
// visible history and a tool catalog to a Model and gets back one message.
package llm

import (
	"context"
	"fmt"

	"github.com/mikeboe/research-canvas/pkg/state"
)

// ToolSchema describes a tool the model may call. Parameters is a JSON
// schema object.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request is one model invocation.
type Request struct {
	Directive string
	History   []state.Message
	Tools     []ToolSchema

	// SequentialToolCalls limits the reply to a single tool call; later tools
	// read state an earlier one writes.
	SequentialToolCalls bool
	// JSONMode asks for a bare JSON object as the reply content.
	JSONMode bool
	// ForceTool requires the reply to call the named tool.
	ForceTool string
	// OnToolArgs receives tool argument text as it is generated.
	OnToolArgs func(delta string)
}

// Model is the opaque LLM capability.
type Model interface {
	Invoke(ctx context.Context, req Request) (state.Message, error)
}

// ModelFunc adapts a function to Model.
type ModelFunc func(ctx context.Context, req Request) (state.Message, error)

func (f ModelFunc) Invoke(ctx context.Context, req Request) (state.Message, error) {
	return f(ctx, req)
}

// Error wraps a failure of the model provider.
type Error struct {
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("llm: %v", e.Err) }

func (e *Error) Unwrap() error { return e.Err }
