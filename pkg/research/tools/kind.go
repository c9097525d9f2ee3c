package tools

import (
	"fmt"

	"github.com/mikeboe/research-canvas/pkg/state"
)

// Kind enumerates the tools the workflow knows about.
type Kind int

const (
	KindSearch Kind = iota + 1
	KindExtract
	KindOutline
	KindSection
	// KindReview has no body. Requesting it suspends the workflow for human
	// review of the current proposal.
	KindReview
)

var kindNames = map[Kind]string{
	KindSearch:  "web_search",
	KindExtract: "web_extract",
	KindOutline: "outline_writer",
	KindSection: "section_writer",
	KindReview:  "review_proposal",
}

// Kinds lists every tool kind in catalog order.
var Kinds = []Kind{KindSearch, KindExtract, KindOutline, KindReview, KindSection}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a tool name emitted by the model to its kind.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, &UnknownToolError{Name: name}
}

// Invocation is a resolved tool call.
type Invocation struct {
	Kind Kind
	Call state.ToolCall
}

// IsReview reports whether the invocation should suspend for review.
func (i Invocation) IsReview() bool { return i.Kind == KindReview }

// Resolve turns every call of an assistant message into an invocation.
// An unknown tool name fails the whole batch.
func Resolve(calls []state.ToolCall) ([]Invocation, error) {
	out := make([]Invocation, 0, len(calls))
	for _, c := range calls {
		k, err := ParseKind(c.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, Invocation{Kind: k, Call: c})
	}
	return out, nil
}
