package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mikeboe/research-canvas/pkg/llm"
	"github.com/mikeboe/research-canvas/pkg/state"
)

// SectionArgs are the arguments of section_writer.
type SectionArgs struct {
	Idx         int    `mapstructure:"idx"`
	Title       string `mapstructure:"title"`
	Description string `mapstructure:"description"`
	Query       string `mapstructure:"query"`
}

type writeSectionArgs struct {
	Title   string `mapstructure:"title"`
	Content string `mapstructure:"content"`
	Footer  string `mapstructure:"footer"`
}

const writeSectionTool = "write_section"

// streamedFields are the write_section arguments published while generated.
var streamedFields = []string{"content", "footer"}

// SectionWriter writes a new section or edits the one at the requested idx.
type SectionWriter struct {
	model  llm.Model
	index  SourceIndex
	logger *slog.Logger
	newID  func() string
}

func NewSectionWriter(deps Deps) *SectionWriter {
	deps.defaults()
	return &SectionWriter{model: deps.Model, index: deps.Index, logger: deps.Logger, newID: deps.NewID}
}

func (w *SectionWriter) Kind() Kind { return KindSection }

func (w *SectionWriter) Schema() llm.ToolSchema {
	return llm.ToolSchema{
		Name: KindSection.String(),
		Description: "Write the section at idx from the approved outline, or edit it if it already exists. " +
			"Sections are written one at a time in outline order.",
		Parameters: jsonSchema(map[string]any{
			"idx":         map[string]any{"type": "integer", "description": "0-based position of the section in the report."},
			"title":       map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"query":       map[string]any{"type": "string", "description": "The research question the report answers."},
		}, "idx", "title"),
	}
}

// WriteSectionSchema is the structured output the model fills in.
func WriteSectionSchema() llm.ToolSchema {
	return llm.ToolSchema{
		Name:        writeSectionTool,
		Description: "Submit the finished section.",
		Parameters: jsonSchema(map[string]any{
			"title":   map[string]any{"type": "string"},
			"content": map[string]any{"type": "string", "description": "Markdown body with footnote references like [^1]. No heading."},
			"footer":  map[string]any{"type": "string", "description": "Footnote definitions, [^1]: Title - URL, one per line."},
		}, "title", "content", "footer"),
	}
}

const writeSectionPrompt = `You are a research writer.
Write one section of a report in markdown, based only on the sources below.
Cite sources with footnotes. Numbering starts at [^1] in every section.
Footnote definitions go in footer, never in content.
Submit the result with the write_section tool.`

const editSectionPrompt = `You are a research editor.
Edit the existing section below according to the user's latest request.
Change only the part the request refers to and keep everything else verbatim.
Footnote numbering stays local to the section and definitions stay in footer.
Submit the full edited section with the write_section tool.`

func (w *SectionWriter) Run(ctx context.Context, raw string, snap *state.State, pub state.Publisher) (*state.State, string, error) {
	var args SectionArgs
	if err := decodeArgs(raw, &args); err != nil {
		return invalidArgs(KindSection, snap, err)
	}

	existing, editing := snap.SectionAt(args.Idx)
	id := existing.ID
	if !editing || id == "" {
		id = w.newID()
	}

	verb := "Writing"
	if editing {
		verb = "Editing"
	}
	i := snap.PushLog(fmt.Sprintf("%s section '%s'", verb, args.Title))
	state.PublishState(ctx, pub, snap)

	req := llm.Request{
		Directive: w.directive(ctx, args, snap, existing, editing),
		History:   []state.Message{state.UserMessage(w.request(args, snap, editing))},
		Tools:     []llm.ToolSchema{WriteSectionSchema()},
		ForceTool: writeSectionTool,
	}
	stream := w.streamer(ctx, pub, args, id)
	req.OnToolArgs = stream.feed

	msg, err := w.model.Invoke(ctx, req)
	if err != nil {
		w.logger.Warn("Section generation failed", "idx", args.Idx, "error", err)
		stream.finish()
		snap.ClearLogs()
		return snap, fmt.Sprintf("Error generating section: %v", err), nil
	}

	out, err := sectionFromReply(msg)
	if err != nil {
		stream.finish()
		snap.ClearLogs()
		return snap, fmt.Sprintf("Error generating section: %v", err), nil
	}

	title := out.Title
	if title == "" {
		title = args.Title
	}
	if title == "" {
		title = existing.Title
	}
	snap.UpsertSection(state.Section{
		Idx:     args.Idx,
		ID:      id,
		Title:   title,
		Content: out.Content,
		Footer:  out.Footer,
	})

	stream.finish()
	snap.DoneLog(i)
	state.PublishState(ctx, pub, snap)
	snap.ClearLogs()

	return snap, fmt.Sprintf("Wrote the %s Section, idx: %d", title, args.Idx), nil
}

func (w *SectionWriter) request(args SectionArgs, snap *state.State, editing bool) string {
	if editing {
		if m := snap.LastUserMessage(); m != "" {
			return m
		}
	}
	if args.Description != "" {
		return fmt.Sprintf("Write the section %q (%s) for the report on: %s", args.Title, args.Description, args.Query)
	}
	return fmt.Sprintf("Write the section %q for the report on: %s", args.Title, args.Query)
}

func (w *SectionWriter) directive(ctx context.Context, args SectionArgs, snap *state.State, existing state.Section, editing bool) string {
	var sb strings.Builder
	if editing {
		sb.WriteString(editSectionPrompt)
		fmt.Fprintf(&sb, "\n\n# Existing section (idx %d)\n## %s\n\n%s\n\n# Existing footer\n%s\n",
			existing.Idx, existing.Title, existing.Content, existing.Footer)
	} else {
		sb.WriteString(writeSectionPrompt)
	}

	if snap.Title != "" {
		fmt.Fprintf(&sb, "\n# Report title\n%s\n", snap.Title)
	}
	if len(snap.Outline) > 0 {
		sb.WriteString("\n# Outline\n")
		for _, k := range sortedKeys(snap.Outline) {
			fmt.Fprintf(&sb, "- %s: %s\n", snap.Outline[k].Title, snap.Outline[k].Description)
		}
	}

	sb.WriteString("\n# Sources\n")
	for _, src := range snap.SortedSources() {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", src.Title, src.URL, src.Content)
	}

	if w.index != nil {
		excerpts, err := w.index.Retrieve(ctx, strings.TrimSpace(args.Title+" "+args.Query), 5)
		if err != nil {
			w.logger.Warn("Failed to retrieve source excerpts", "error", err)
		}
		if len(excerpts) > 0 {
			sb.WriteString("\n# Relevant excerpts\n")
			for _, e := range excerpts {
				sb.WriteString(e + "\n---\n")
			}
		}
	}
	return sb.String()
}

// sectionFromReply reads the write_section call, falling back to plain
// content when the model answered in text.
func sectionFromReply(msg state.Message) (writeSectionArgs, error) {
	var out writeSectionArgs
	for _, c := range msg.ToolCalls {
		if c.Name != writeSectionTool {
			continue
		}
		if err := decodeArgs(c.Arguments, &out); err != nil {
			return out, &ValidationError{Tool: writeSectionTool, Err: err}
		}
		return out, nil
	}
	if strings.TrimSpace(msg.Content) == "" {
		return out, &ValidationError{Tool: writeSectionTool, Err: fmt.Errorf("empty response")}
	}
	out.Content = msg.Content
	return out, nil
}

// sectionStreamer publishes content and footer while the model writes them.
type sectionStreamer struct {
	ctx  context.Context
	pub  state.Publisher
	base state.SectionStream
	buf  strings.Builder
	last map[string]string
}

func (w *SectionWriter) streamer(ctx context.Context, pub state.Publisher, args SectionArgs, id string) *sectionStreamer {
	return &sectionStreamer{
		ctx:  ctx,
		pub:  pub,
		base: state.SectionStream{Idx: args.Idx, SectionID: id, Title: args.Title},
		last: map[string]string{},
	}
}

func (s *sectionStreamer) feed(delta string) {
	s.buf.WriteString(delta)
	fields := partialFields(s.buf.String())
	for _, f := range streamedFields {
		v, ok := fields[f]
		if !ok || v == s.last[f] {
			continue
		}
		s.last[f] = v
		ev := s.base
		ev.Field = f
		ev.Value = v
		state.PublishStream(s.ctx, s.pub, ev)
	}
}

// finish clears the intermediate streams.
func (s *sectionStreamer) finish() {
	for _, f := range streamedFields {
		ev := s.base
		ev.Field = f
		ev.Done = true
		state.PublishStream(s.ctx, s.pub, ev)
	}
}
