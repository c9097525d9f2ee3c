package main

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/research-canvas/pkg/state"
)

func TestReviewProposal(t *testing.T) {
	p := &state.Proposal{Sections: map[string]state.ProposalSection{
		"a_intro":   {Title: "Intro", Description: "why"},
		"b_history": {Title: "History", Description: "how"},
	}}
	// Keep intro, drop history, approve, remarks.
	in := bufio.NewReader(strings.NewReader("\nn\ny\nmore on safety\n"))
	var out bytes.Buffer

	reviewed, err := reviewProposal(in, &out, p)

	require.NoError(t, err)
	assert.True(t, reviewed.Approved)
	assert.True(t, reviewed.Sections["a_intro"].Approved)
	assert.False(t, reviewed.Sections["b_history"].Approved)
	assert.Equal(t, "more on safety", reviewed.Remarks)
	assert.False(t, p.Sections["a_intro"].Approved, "input proposal is not modified")
	assert.Less(t, strings.Index(out.String(), "Intro"), strings.Index(out.String(), "History"))
}

func TestReviewProposal_Rejected(t *testing.T) {
	p := &state.Proposal{Sections: map[string]state.ProposalSection{"s": {Title: "S"}}}
	in := bufio.NewReader(strings.NewReader("y\nno\nshorter please\n"))

	reviewed, err := reviewProposal(in, io.Discard, p)

	require.NoError(t, err)
	assert.False(t, reviewed.Approved)
	assert.Equal(t, "shorter please", reviewed.Remarks)
}

func TestReviewProposal_EOF(t *testing.T) {
	p := &state.Proposal{Sections: map[string]state.ProposalSection{"s": {Title: "S"}}}
	_, err := reviewProposal(bufio.NewReader(strings.NewReader("")), io.Discard, p)
	assert.ErrorIs(t, err, io.EOF)
}
