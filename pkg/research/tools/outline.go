package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/mikeboe/research-canvas/pkg/llm"
	"github.com/mikeboe/research-canvas/pkg/state"
)

// OutlineArgs are the arguments of outline_writer.
type OutlineArgs struct {
	Query string `mapstructure:"query"`
}

// Outline asks the model for a reviewable outline proposal.
type Outline struct {
	model  llm.Model
	logger *slog.Logger
	now    func() time.Time
}

func NewOutline(deps Deps) *Outline {
	deps.defaults()
	return &Outline{model: deps.Model, logger: deps.Logger, now: deps.Now}
}

func (o *Outline) Kind() Kind { return KindOutline }

func (o *Outline) Schema() llm.ToolSchema {
	return llm.ToolSchema{
		Name:        KindOutline.String(),
		Description: "Propose an outline for the report based on the gathered sources. The proposal must then be reviewed with review_proposal.",
		Parameters: jsonSchema(map[string]any{
			"query": map[string]any{"type": "string", "description": "The research question the report answers."},
		}, "query"),
	}
}

const outlineSystemPrompt = `You are a research editor.
Propose an outline for a report answering the user's research query, using the sources listed below.
Each section needs a short title and a one or two sentence description of what it covers.
Set "approved" to false for every section; the user decides.`

const outlineSchema = `Return the JSON object directly without any formatting or additional text. The JSON object should have the following structure:
{
  "title": "report title",
  "sections": {
    "<section key>": {"title": "string", "description": "string", "approved": false}
  }
}`

type outlineResponse struct {
	Title    string                           `json:"title"`
	Sections map[string]state.ProposalSection `json:"sections"`
}

func (o *Outline) Run(ctx context.Context, raw string, snap *state.State, pub state.Publisher) (*state.State, string, error) {
	var args OutlineArgs
	if err := decodeArgs(raw, &args); err != nil {
		return invalidArgs(KindOutline, snap, err)
	}

	i := snap.PushLog("Drafting an outline proposal")
	state.PublishState(ctx, pub, snap)

	prior := snap.Proposal
	resp, err := o.propose(ctx, args.Query, snap)
	stamp := o.now().UTC().Format(time.RFC3339)
	if err != nil {
		o.logger.Warn("Outline proposal failed", "error", err)
		snap.Proposal = &state.Proposal{
			Sections:  map[string]state.ProposalSection{},
			Timestamp: stamp,
			Error:     err.Error(),
		}
		snap.ClearLogs()
		return snap, fmt.Sprintf("Error generating outline proposal: %v", err), nil
	}

	sections := reconcileProposal(prior, resp.Sections)
	snap.Proposal = &state.Proposal{
		Sections:  sections,
		Approved:  false,
		Timestamp: stamp,
	}
	if snap.Title == "" && resp.Title != "" {
		snap.Title = resp.Title
	}

	snap.DoneLog(i)
	state.PublishState(ctx, pub, snap)
	snap.ClearLogs()

	return snap, proposalSummary(sections), nil
}

func (o *Outline) propose(ctx context.Context, query string, snap *state.State) (*outlineResponse, error) {
	msg, err := o.model.Invoke(ctx, llm.Request{
		Directive: outlineSystemPrompt + "\n\n" + outlineContext(snap) + "\n\n# Response Format:\n" + outlineSchema,
		History:   []state.Message{state.UserMessage(query)},
		JSONMode:  true,
	})
	if err != nil {
		return nil, &CapabilityError{Capability: "outline model", Err: err}
	}

	var resp outlineResponse
	var top map[string]json.RawMessage
	content := stripFences(msg.Content)
	if err := json.Unmarshal([]byte(content), &top); err != nil {
		return nil, &ValidationError{Tool: KindOutline.String(), Err: fmt.Errorf("not a JSON object: %w", err)}
	}
	if _, ok := top["sections"]; !ok {
		return nil, &ValidationError{Tool: KindOutline.String(), Err: fmt.Errorf("missing required key %q", "sections")}
	}
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return nil, &ValidationError{Tool: KindOutline.String(), Err: err}
	}
	if resp.Sections == nil {
		resp.Sections = map[string]state.ProposalSection{}
	}
	return &resp, nil
}

func outlineContext(snap *state.State) string {
	var sb strings.Builder
	sb.WriteString("# Sources\n")
	for _, src := range snap.SortedSources() {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", src.Title, src.URL, src.Content)
	}

	p := snap.Proposal
	if p != nil && p.ReviewedAt != "" {
		sb.WriteString("\n# Previous proposal\n")
		for _, k := range sortedKeys(p.Sections) {
			sec := p.Sections[k]
			verdict := "rejected"
			if sec.Approved {
				verdict = "approved"
			}
			fmt.Fprintf(&sb, "- %s: %s [%s]\n", sec.Title, sec.Description, verdict)
		}
		sb.WriteString("Keep every approved section. Drop rejected sections unless the remarks ask for them.\n")
		if p.Remarks != "" {
			fmt.Fprintf(&sb, "\n# Remarks from the user\n%s\n", p.Remarks)
		}
	}
	return sb.String()
}

// reconcileProposal enforces what a re-proposal must keep: sections approved
// in the last review survive, sections rejected in it are dropped unless the
// remarks mention them.
func reconcileProposal(prior *state.Proposal, next map[string]state.ProposalSection) map[string]state.ProposalSection {
	out := make(map[string]state.ProposalSection, len(next))
	for k, v := range next {
		out[k] = v
	}
	if prior == nil || prior.ReviewedAt == "" {
		return out
	}

	remarks := strings.ToLower(prior.Remarks)
	titles := map[string]string{}
	for k, v := range out {
		titles[strings.ToLower(v.Title)] = k
	}

	for _, k := range sortedKeys(prior.Sections) {
		old := prior.Sections[k]
		title := strings.ToLower(old.Title)
		key, present := titles[title]
		switch {
		case old.Approved && present:
			sec := out[key]
			sec.Approved = true
			out[key] = sec
		case old.Approved:
			nk := k
			for n := 2; ; n++ {
				if _, taken := out[nk]; !taken {
					break
				}
				nk = fmt.Sprintf("%s_%d", k, n)
			}
			out[nk] = old
			titles[title] = nk
		case present && !strings.Contains(remarks, title):
			delete(out, key)
			delete(titles, title)
		}
	}
	return out
}

func proposalSummary(sections map[string]state.ProposalSection) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Proposed an outline with %d section(s):\n", len(sections))
	for _, k := range sortedKeys(sections) {
		fmt.Fprintf(&sb, "- %s: %s\n", k, sections[k].Title)
	}
	sb.WriteString("Call review_proposal so the user can review it.")
	return sb.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stripFences removes a markdown code fence around a JSON reply.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
