package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/research-canvas/pkg/state"
)

type memIndex struct {
	indexed []string
}

func (m *memIndex) Index(_ context.Context, src state.Source) error {
	m.indexed = append(m.indexed, src.URL)
	return nil
}

func (m *memIndex) Retrieve(context.Context, string, int) ([]string, error) {
	return []string{"excerpt"}, nil
}

func TestExtract_MergesRawContent(t *testing.T) {
	extractor := extractFunc(func(_ context.Context, urls []string) ([]Extracted, error) {
		out := make([]Extracted, 0, len(urls))
		for _, u := range urls {
			out = append(out, Extracted{URL: u, RawContent: "full " + u})
		}
		return out, nil
	})
	idx := &memIndex{}
	tool := NewExtract(Deps{Extractor: extractor, Index: idx})

	snap := state.New()
	snap.Sources["https://known"] = state.Source{URL: "https://known", Title: "Known", Content: "snippet", Score: 0.7}

	out, summary, err := tool.Run(context.Background(), `{"urls":["https://known","https://new"]}`, snap, state.Discard)

	require.NoError(t, err)
	assert.Equal(t, "full https://known", out.Sources["https://known"].RawContent)
	assert.Equal(t, "snippet", out.Sources["https://known"].Content)
	assert.Equal(t, state.Source{URL: "https://new", Title: state.NoTitle, RawContent: "full https://new"}, out.Sources["https://new"])
	assert.Contains(t, summary, "https://new")
	assert.Empty(t, out.Logs)
	assert.Equal(t, []string{"https://known", "https://new"}, idx.indexed)
}

func TestExtract_FailureLeavesStateUnchanged(t *testing.T) {
	extractor := extractFunc(func(context.Context, []string) ([]Extracted, error) {
		return nil, errors.New("timeout")
	})
	tool := NewExtract(Deps{Extractor: extractor})

	snap := state.New()
	out, summary, err := tool.Run(context.Background(), `{"urls":["https://x"]}`, snap, state.Discard)

	require.NoError(t, err)
	assert.Empty(t, summary)
	assert.Empty(t, out.Sources)
	assert.Empty(t, out.Logs)
}
