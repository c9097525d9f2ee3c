package research

import (
	"context"

	"github.com/mikeboe/research-canvas/pkg/state"
)

// feedback suspends the turn with the current proposal, or, when resumed,
// applies the reviewed proposal and returns to Decision.
func (t *turn) feedback(ctx context.Context) (Node, *Interrupt, error) {
	e := t.engine
	if t.resume == nil {
		if t.st.Proposal == nil {
			t.st.AppendMessage(state.SystemMessage(e.prompts.NoProposal))
			return NodeDecision, nil, nil
		}
		if err := t.save(ctx, NodeFeedback); err != nil {
			return "", nil, err
		}
		e.Metrics.Suspended()
		t.logger.Info("Suspended for proposal review", "sections", len(t.st.Proposal.Sections))
		t.publish(ctx)
		return "", &Interrupt{Proposal: t.st.Proposal.Clone()}, nil
	}

	reviewed := *t.resume
	t.resume = nil
	t.st.ApplyFeedback(reviewed, e.config.Now())

	note := e.prompts.FeedbackRejected
	if reviewed.Approved {
		note = e.prompts.FeedbackApproved
	}
	t.st.AppendMessage(state.SystemMessage(note))
	e.Metrics.Resumed()
	t.logger.Info("Applied proposal review", "approved", reviewed.Approved, "outline", len(t.st.Outline))
	t.publish(ctx)
	return NodeDecision, nil, nil
}
