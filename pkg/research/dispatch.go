package research

import (
	"context"
	"fmt"

	"github.com/mikeboe/research-canvas/pkg/research/tools"
	"github.com/mikeboe/research-canvas/pkg/state"
)

// dispatch runs the tool calls of the last assistant message in order. A
// review call stops the batch and routes to Feedback; calls after it are
// answered as not executed so the history stays well formed.
func (t *turn) dispatch(ctx context.Context) (Node, error) {
	e := t.engine
	last, ok := t.st.LastMessage()
	if !ok || len(last.ToolCalls) == 0 {
		return NodeDecision, nil
	}

	invs, err := tools.Resolve(last.ToolCalls)
	if err != nil {
		return "", err
	}

	defer func() { t.st.Tool = "" }()
	for i, inv := range invs {
		if inv.IsReview() {
			t.st.AppendMessage(state.ToolResult(inv.Call, ""))
			for _, rest := range invs[i+1:] {
				t.st.AppendMessage(state.ToolResult(rest.Call, e.prompts.SkippedCall))
			}
			t.publish(ctx)
			return NodeFeedback, nil
		}

		tool, err := e.Tools.Get(inv.Kind)
		if err != nil {
			return "", err
		}

		t.st.Tool = inv.Kind.String()
		t.publish(ctx)

		logger := t.logger.With("tool", inv.Kind.String(), "call_id", inv.Call.ID)
		logger.Info("Running tool")
		start := e.config.Now()
		frag, summary, err := tool.Run(ctx, inv.Call.Arguments, t.st.Snapshot(), t.pub)
		e.Metrics.ObserveTool(inv.Kind.String(), e.config.Now().Sub(start), err)
		if err != nil {
			logger.Error("Tool failed", "error", err)
			return "", fmt.Errorf("tool %s: %w", inv.Kind, err)
		}

		t.st.AppendMessage(state.ToolResult(inv.Call, summary))
		t.st.Merge(frag)
		t.publish(ctx)
	}
	return NodeDecision, nil
}
