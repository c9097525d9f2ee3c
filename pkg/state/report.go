package state

import (
	"fmt"
	"strings"
)

// Markdown renders the written sections as a single report.
func (s *State) Markdown() string {
	var b strings.Builder
	if s.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", s.Title)
	}
	for _, sec := range s.OrderedSections() {
		fmt.Fprintf(&b, "## %s\n\n", sec.Title)
		if c := strings.TrimSpace(sec.Content); c != "" {
			b.WriteString(c)
			b.WriteString("\n\n")
		}
		if f := strings.TrimSpace(sec.Footer); f != "" {
			b.WriteString(f)
			b.WriteString("\n\n")
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}
