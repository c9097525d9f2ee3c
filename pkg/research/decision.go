package research

import (
	"context"
	"fmt"

	"github.com/mikeboe/research-canvas/pkg/llm"
	"github.com/mikeboe/research-canvas/pkg/state"
)

// decide asks the model for the next step. No tool calls ends the turn.
func (t *turn) decide(ctx context.Context) (Node, error) {
	e := t.engine
	for _, err := range state.NormalizeMessages(t.st.Messages) {
		t.logger.Warn("Coerced malformed message", "error", err)
	}

	directive, err := e.directive.build(t.st, e.config.Now())
	if err != nil {
		return "", err
	}

	msg, err := e.Model.Invoke(ctx, llm.Request{
		Directive:           directive,
		History:             t.st.Messages,
		Tools:               e.Tools.Catalog(),
		SequentialToolCalls: true,
	})
	if err != nil {
		return "", fmt.Errorf("decision: %w", err)
	}
	msg.Role = state.RoleAssistant
	t.st.AppendMessage(msg)
	t.publish(ctx)

	if len(msg.ToolCalls) == 0 {
		return NodeTerminal, nil
	}
	t.logger.Info("Model requested tools", "count", len(msg.ToolCalls), "first", msg.ToolCalls[0].Name)
	return NodeDispatch, nil
}
