package state

import (
	"encoding/json"
	"sort"
	"time"
)

// NoTitle replaces an empty source title so renderers never see blanks.
const NoTitle = "No Title, Invalid Link"

// Clone returns a deep copy of the document.
func (s *State) Clone() *State {
	out := &State{
		Title: s.Title,
		Tool:  s.Tool,
	}

	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		out.Messages[i] = m
		if m.ToolCalls != nil {
			out.Messages[i].ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
		}
	}

	out.Sources = make(map[string]Source, len(s.Sources))
	for k, v := range s.Sources {
		out.Sources[k] = v
	}

	if s.Proposal != nil {
		out.Proposal = s.Proposal.Clone()
	}

	out.Outline = make(map[string]OutlineEntry, len(s.Outline))
	for k, v := range s.Outline {
		out.Outline[k] = v
	}

	out.Sections = append(make([]Section, 0, len(s.Sections)), s.Sections...)
	out.Logs = append(make([]LogEntry, 0, len(s.Logs)), s.Logs...)
	return out
}

// Clone returns a deep copy of the proposal.
func (p *Proposal) Clone() *Proposal {
	out := *p
	out.Sections = make(map[string]ProposalSection, len(p.Sections))
	for k, v := range p.Sections {
		out.Sections[k] = v
	}
	return &out
}

// Snapshot is the read-only view handed to a tool. Message history is
// projected down to role and content; tool call descriptors do not cross
// the tool boundary.
func (s *State) Snapshot() *State {
	out := s.Clone()
	for i, m := range out.Messages {
		out.Messages[i] = Message{Role: m.Role, Content: m.Content}
	}
	return out
}

// Merge copies the mergeable fields of a tool's returned document into s.
// Messages and anything else a tool carries are dropped.
func (s *State) Merge(frag *State) {
	if frag == nil {
		return
	}
	s.Title = frag.Title
	s.Outline = frag.Outline
	if s.Outline == nil {
		s.Outline = map[string]OutlineEntry{}
	}
	s.Sections = frag.Sections
	if s.Sections == nil {
		s.Sections = []Section{}
	}
	s.Sources = frag.Sources
	if s.Sources == nil {
		s.Sources = map[string]Source{}
	}
	s.Proposal = frag.Proposal
	s.Logs = frag.Logs
	if s.Logs == nil {
		s.Logs = []LogEntry{}
	}
	s.Tool = frag.Tool
}

// AppendMessage adds a turn record to the history.
func (s *State) AppendMessage(m Message) {
	s.Messages = append(s.Messages, m)
}

// LastMessage returns the newest message, if any.
func (s *State) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// LastUserMessage returns the content of the most recent human message.
func (s *State) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// MergeSources adds documents keyed by URL. URLs already present are left
// untouched. Returns the documents that were actually added.
func (s *State) MergeSources(docs []Source) []Source {
	if s.Sources == nil {
		s.Sources = map[string]Source{}
	}
	var added []Source
	for _, d := range docs {
		if d.URL == "" {
			continue
		}
		if _, ok := s.Sources[d.URL]; ok {
			continue
		}
		s.Sources[d.URL] = d
		added = append(added, d)
	}
	s.defaultTitles()
	return added
}

// SetRawContent attaches full page content to a source, creating the entry
// when the URL is new.
func (s *State) SetRawContent(url, raw string) {
	if s.Sources == nil {
		s.Sources = map[string]Source{}
	}
	src, ok := s.Sources[url]
	if !ok {
		src = Source{URL: url}
	}
	src.RawContent = raw
	s.Sources[url] = src
	s.defaultTitles()
}

func (s *State) defaultTitles() {
	for k, v := range s.Sources {
		if v.Title == "" {
			v.Title = NoTitle
			s.Sources[k] = v
		}
	}
}

// SortedSources returns sources ordered by descending score, then URL.
func (s *State) SortedSources() []Source {
	out := make([]Source, 0, len(s.Sources))
	for _, v := range s.Sources {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].URL < out[j].URL
	})
	return out
}

// DeriveOutline filters the approved sections of a proposal.
func DeriveOutline(p *Proposal) map[string]OutlineEntry {
	out := map[string]OutlineEntry{}
	if p == nil {
		return out
	}
	for k, v := range p.Sections {
		if v.Approved {
			out[k] = OutlineEntry{Title: v.Title, Description: v.Description}
		}
	}
	return out
}

// ApplyFeedback stores a reviewed proposal. The outline is recomputed only
// when the review approves the proposal as a whole; the proposal itself is
// always replaced so remarks survive a rejection.
func (s *State) ApplyFeedback(reviewed Proposal, at time.Time) {
	p := reviewed.Clone()
	if p.Sections == nil {
		p.Sections = map[string]ProposalSection{}
	}
	p.ReviewedAt = at.UTC().Format(time.RFC3339)
	if p.Approved {
		s.Outline = DeriveOutline(p)
	}
	s.Proposal = p
}

// SectionAt returns the section written at idx.
func (s *State) SectionAt(idx int) (Section, bool) {
	for _, sec := range s.Sections {
		if sec.Idx == idx {
			return sec, true
		}
	}
	return Section{}, false
}

// UpsertSection replaces the section at sec.Idx in place, or appends it.
// Reports whether an existing section was replaced.
func (s *State) UpsertSection(sec Section) bool {
	for i := range s.Sections {
		if s.Sections[i].Idx == sec.Idx {
			s.Sections[i] = sec
			return true
		}
	}
	s.Sections = append(s.Sections, sec)
	return false
}

// OrderedSections returns the sections sorted by idx.
func (s *State) OrderedSections() []Section {
	out := append([]Section(nil), s.Sections...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Idx < out[j].Idx })
	return out
}

// PushLog appends a pending progress entry and returns its position.
func (s *State) PushLog(msg string) int {
	s.Logs = append(s.Logs, LogEntry{Message: msg})
	return len(s.Logs) - 1
}

// DoneLog marks the entry at i as finished.
func (s *State) DoneLog(i int) {
	if i >= 0 && i < len(s.Logs) {
		s.Logs[i].Done = true
	}
}

// ClearLogs drops all progress entries.
func (s *State) ClearLogs() {
	s.Logs = []LogEntry{}
}

// Marshal encodes the document as JSON.
func (s *State) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal decodes a document and restores empty containers.
func Unmarshal(data []byte) (*State, error) {
	st := New()
	if err := json.Unmarshal(data, st); err != nil {
		return nil, err
	}
	if st.Messages == nil {
		st.Messages = []Message{}
	}
	if st.Sources == nil {
		st.Sources = map[string]Source{}
	}
	if st.Outline == nil {
		st.Outline = map[string]OutlineEntry{}
	}
	if st.Sections == nil {
		st.Sections = []Section{}
	}
	if st.Logs == nil {
		st.Logs = []LogEntry{}
	}
	return st, nil
}
