package research

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mikeboe/research-canvas/pkg/state"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Prompts is the replaceable wording of the workflow.
type Prompts struct {
	Directive        string `yaml:"directive"`
	FeedbackApproved string `yaml:"feedback_approved"`
	FeedbackRejected string `yaml:"feedback_rejected"`
	SkippedCall      string `yaml:"skipped_call"`
	NoProposal       string `yaml:"no_proposal"`
}

// DefaultPrompts returns the embedded prompts.
func DefaultPrompts() *Prompts {
	var p Prompts
	if err := yaml.Unmarshal(defaultPrompts, &p); err != nil {
		panic(fmt.Sprintf("embedded prompts: %v", err))
	}
	return &p
}

// LoadPrompts reads a YAML file over the defaults. Keys missing from the
// file keep their default.
func LoadPrompts(path string) (*Prompts, error) {
	p := DefaultPrompts()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts: %w", err)
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse prompts: %w", err)
	}
	return p, nil
}

type directiveData struct {
	Date            string
	Title           string
	NeedsReproposal bool
	Remarks         string
	Outline         []state.OutlineEntry
	Sections        []state.Section
}

// directiveBuilder renders the system directive from the live state.
type directiveBuilder struct {
	tmpl *template.Template
}

func newDirectiveBuilder(p *Prompts) (*directiveBuilder, error) {
	tmpl, err := template.New("directive").Parse(p.Directive)
	if err != nil {
		return nil, fmt.Errorf("failed to parse directive template: %w", err)
	}
	return &directiveBuilder{tmpl: tmpl}, nil
}

func (b *directiveBuilder) build(st *state.State, now time.Time) (string, error) {
	data := directiveData{
		Date:     now.Format("January 2, 2006"),
		Title:    st.Title,
		Sections: st.OrderedSections(),
	}
	if p := st.Proposal; p != nil && p.Remarks != "" && len(st.Outline) == 0 {
		data.NeedsReproposal = true
		data.Remarks = p.Remarks
	}

	keys := make([]string, 0, len(st.Outline))
	for k := range st.Outline {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		data.Outline = append(data.Outline, st.Outline[k])
	}

	var sb strings.Builder
	if err := b.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render directive: %w", err)
	}
	return sb.String(), nil
}
