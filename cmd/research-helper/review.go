package main

import (
	"bufio"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/mikeboe/research-canvas/pkg/state"
)

// reviewProposal asks about each proposed section, then about the outline as
// a whole. An empty answer accepts the default shown in brackets.
func reviewProposal(in *bufio.Reader, out io.Writer, p *state.Proposal) (state.Proposal, error) {
	if p == nil {
		return state.Proposal{Sections: map[string]state.ProposalSection{}}, nil
	}
	reviewed := *p.Clone()

	fmt.Fprintln(out, "\nProposed outline:")
	if reviewed.Error != "" {
		fmt.Fprintf(out, "  (the outline could not be generated: %s)\n", reviewed.Error)
	}
	for _, key := range slices.Sorted(maps.Keys(reviewed.Sections)) {
		sec := reviewed.Sections[key]
		fmt.Fprintf(out, "\n  %s\n  %s\n", sec.Title, sec.Description)
		ok, err := confirm(in, out, "  Keep this section? [Y/n] ", true)
		if err != nil {
			return state.Proposal{}, err
		}
		sec.Approved = ok
		reviewed.Sections[key] = sec
	}

	ok, err := confirm(in, out, "\nApprove the outline? [Y/n] ", true)
	if err != nil {
		return state.Proposal{}, err
	}
	reviewed.Approved = ok

	fmt.Fprint(out, "Remarks (optional): ")
	remarks, err := readLine(in)
	if err != nil {
		return state.Proposal{}, err
	}
	reviewed.Remarks = remarks
	return reviewed, nil
}

func confirm(in *bufio.Reader, out io.Writer, prompt string, def bool) (bool, error) {
	fmt.Fprint(out, prompt)
	answer, err := readLine(in)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "":
		return def, nil
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

func readLine(in *bufio.Reader) (string, error) {
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
