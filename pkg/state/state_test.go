package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeSources_FirstWriteWins(t *testing.T) {
	s := New()

	added := s.MergeSources([]Source{
		{URL: "https://a", Title: "A", Content: "first", Score: 0.9},
		{URL: "https://b", Content: "no title", Score: 0.5},
	})
	require.Len(t, added, 2)

	added = s.MergeSources([]Source{
		{URL: "https://a", Title: "A2", Content: "second", Score: 0.99},
		{URL: "https://c", Title: "C", Score: 0.6},
	})
	require.Len(t, added, 1)
	assert.Equal(t, "https://c", added[0].URL)

	assert.Len(t, s.Sources, 3)
	assert.Equal(t, "first", s.Sources["https://a"].Content)
	assert.Equal(t, NoTitle, s.Sources["https://b"].Title)
}

func TestMergeSources_Idempotent(t *testing.T) {
	docs := []Source{{URL: "u1", Title: "t"}, {URL: "u2", Title: "t"}}
	s := New()
	s.MergeSources(docs)
	before := s.Clone()
	s.MergeSources(docs)
	assert.Equal(t, before.Sources, s.Sources)
}

func TestSetRawContent(t *testing.T) {
	s := New()
	s.MergeSources([]Source{{URL: "u1", Title: "T", Content: "c"}})

	s.SetRawContent("u1", "full")
	s.SetRawContent("u2", "other")

	assert.Equal(t, "full", s.Sources["u1"].RawContent)
	assert.Equal(t, "c", s.Sources["u1"].Content)
	assert.Equal(t, "other", s.Sources["u2"].RawContent)
	assert.Equal(t, NoTitle, s.Sources["u2"].Title)
}

func TestApplyFeedback(t *testing.T) {
	tests := []struct {
		name        string
		reviewed    Proposal
		wantOutline map[string]OutlineEntry
	}{
		{
			name: "approved filters sections",
			reviewed: Proposal{
				Approved: true,
				Sections: map[string]ProposalSection{
					"s1": {Title: "A", Description: "d", Approved: true},
					"s2": {Title: "B", Description: "e", Approved: false},
				},
			},
			wantOutline: map[string]OutlineEntry{"s1": {Title: "A", Description: "d"}},
		},
		{
			name: "rejected keeps previous outline",
			reviewed: Proposal{
				Approved: false,
				Remarks:  "add a history section",
				Sections: map[string]ProposalSection{
					"s1": {Title: "A", Approved: true},
				},
			},
			wantOutline: map[string]OutlineEntry{"old": {Title: "Old"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			s.Outline = map[string]OutlineEntry{"old": {Title: "Old"}}

			s.ApplyFeedback(tt.reviewed, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

			assert.Equal(t, tt.wantOutline, s.Outline)
			require.NotNil(t, s.Proposal)
			assert.Equal(t, tt.reviewed.Remarks, s.Proposal.Remarks)
			assert.Equal(t, tt.reviewed.Approved, s.Proposal.Approved)
			if tt.reviewed.Approved {
				assert.Equal(t, DeriveOutline(s.Proposal), s.Outline)
			}
		})
	}
}

func TestUpsertSection(t *testing.T) {
	s := New()
	assert.False(t, s.UpsertSection(Section{Idx: 0, ID: "a", Title: "Intro"}))
	assert.False(t, s.UpsertSection(Section{Idx: 1, ID: "b", Title: "Body"}))

	replaced := s.UpsertSection(Section{Idx: 0, ID: "c", Title: "Intro v2", Content: "new"})
	assert.True(t, replaced)
	require.Len(t, s.Sections, 2)
	assert.Equal(t, "Intro v2", s.Sections[0].Title)
	assert.Equal(t, Section{Idx: 1, ID: "b", Title: "Body"}, s.Sections[1])

	assert.False(t, s.UpsertSection(Section{Idx: 5, ID: "d"}))
	assert.Len(t, s.Sections, 3)
}

func TestMerge_AllowList(t *testing.T) {
	s := New()
	s.AppendMessage(UserMessage("hello"))

	frag := s.Snapshot()
	frag.Title = "Report"
	frag.Messages = append(frag.Messages, Message{Role: RoleAssistant, Content: "leak"})
	frag.Sections = append(frag.Sections, Section{Idx: 0, ID: "x"})
	frag.Tool = "search"

	s.Merge(frag)

	assert.Equal(t, "Report", s.Title)
	assert.Len(t, s.Sections, 1)
	assert.Equal(t, "search", s.Tool)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, "hello", s.Messages[0].Content)
}

func TestSnapshot_ProjectsMessages(t *testing.T) {
	s := New()
	s.AppendMessage(Message{
		Role:      RoleAssistant,
		Content:   "calling",
		ToolCalls: []ToolCall{{ID: "1", Name: "search", Arguments: "{}"}},
	})

	snap := s.Snapshot()
	assert.Empty(t, snap.Messages[0].ToolCalls)
	assert.Equal(t, "calling", snap.Messages[0].Content)
	assert.Len(t, s.Messages[0].ToolCalls, 1)
}

func TestNormalizeMessages(t *testing.T) {
	msgs := []Message{
		{Role: RoleUser, Content: "a"},
		{Role: "function", Content: "b"},
	}
	errs := NormalizeMessages(msgs)
	require.Len(t, errs, 1)
	var mm *MalformedMessageError
	assert.ErrorAs(t, errs[0], &mm)
	assert.Equal(t, 1, mm.Index)
	assert.Equal(t, Message{Role: RoleUser, Content: "b"}, msgs[1])
}

func TestLogs(t *testing.T) {
	s := New()
	i := s.PushLog("working")
	assert.False(t, s.Logs[i].Done)
	s.DoneLog(i)
	assert.True(t, s.Logs[i].Done)
	s.ClearLogs()
	assert.Empty(t, s.Logs)
}

func TestUnmarshal_RestoresContainers(t *testing.T) {
	st, err := Unmarshal([]byte(`{"title":"x","sources":null}`))
	require.NoError(t, err)
	assert.Equal(t, "x", st.Title)
	assert.NotNil(t, st.Sources)
	assert.NotNil(t, st.Sections)
}

func TestPublishState_SendsCopy(t *testing.T) {
	var got []Event
	p := PublisherFunc(func(_ context.Context, ev Event) { got = append(got, ev) })

	s := New()
	s.Title = "before"
	PublishState(context.Background(), p, s)
	s.Title = "after"

	require.Len(t, got, 1)
	assert.Equal(t, "before", got[0].State.Title)
}

func TestSectionStreamKey(t *testing.T) {
	k := SectionStream{Field: "content", Idx: 2, SectionID: "ab12", Title: "Intro"}.Key()
	assert.Equal(t, "section_stream.content.2.ab12.Intro", k)
}

func TestMarkdown(t *testing.T) {
	s := New()
	s.Title = "Report"
	s.UpsertSection(Section{Idx: 1, Title: "Second", Content: "two"})
	s.UpsertSection(Section{Idx: 0, Title: "First", Content: "one", Footer: "[^1]: ref"})

	want := "# Report\n\n## First\n\none\n\n[^1]: ref\n\n## Second\n\ntwo\n"
	assert.Equal(t, want, s.Markdown())
}
