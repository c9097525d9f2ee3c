package tools

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/research-canvas/pkg/state"
)

func TestSearch_OneQueryFailsOtherMerges(t *testing.T) {
	searcher := searchFunc(func(_ context.Context, q Query) ([]state.Source, error) {
		if strings.HasPrefix(q.Text, "broken") {
			return nil, errors.New("backend down")
		}
		return []state.Source{
			{URL: "https://ok/1", Title: "One", Score: 0.9},
			{URL: "https://ok/2", Title: "Two", Score: 0.2},
		}, nil
	})
	tool := NewSearch(Deps{Searcher: searcher, Now: fixedNow})
	pub := &recorder{}

	snap := state.New()
	out, summary, err := tool.Run(context.Background(),
		`{"queries":[{"query":"broken"},{"query":"fine","topic":"news","days":"7"}]}`, snap, pub)

	require.NoError(t, err)
	require.Len(t, out.Sources, 1)
	assert.Contains(t, out.Sources, "https://ok/1")
	assert.Contains(t, summary, "https://ok/1")
	assert.NotContains(t, summary, "https://ok/2")
	assert.Empty(t, out.Logs)
	assert.NotEmpty(t, pub.states())
}

func TestSearch_PanickingQueryIsContained(t *testing.T) {
	searcher := searchFunc(func(_ context.Context, q Query) ([]state.Source, error) {
		if strings.HasPrefix(q.Text, "boom") {
			panic("nil map")
		}
		return []state.Source{{URL: "https://ok", Score: 0.8}}, nil
	})
	tool := NewSearch(Deps{Searcher: searcher, Now: fixedNow})

	out, _, err := tool.Run(context.Background(), `{"queries":[{"query":"boom"},{"query":"fine"}]}`, state.New(), state.Discard)

	require.NoError(t, err)
	assert.Len(t, out.Sources, 1)
	assert.Equal(t, state.NoTitle, out.Sources["https://ok"].Title)
}

func TestSearch_QueryShaping(t *testing.T) {
	var mu sync.Mutex
	var got []Query
	searcher := searchFunc(func(_ context.Context, q Query) ([]state.Source, error) {
		mu.Lock()
		got = append(got, q)
		mu.Unlock()
		return nil, nil
	})
	tool := NewSearch(Deps{Searcher: searcher, Now: fixedNow})

	_, _, err := tool.Run(context.Background(), `{"queries":[{"query":"llm agents","topic":"sports"}]}`, state.New(), state.Discard)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "llm agents 03-2025", got[0].Text)
	assert.Equal(t, "general", got[0].Topic)
	assert.Equal(t, 10, got[0].MaxResults)
}

func TestSearch_FirstWriteWins(t *testing.T) {
	searcher := searchFunc(func(_ context.Context, q Query) ([]state.Source, error) {
		return []state.Source{{URL: "https://a", Title: "fresh", Score: 0.9}}, nil
	})
	tool := NewSearch(Deps{Searcher: searcher, Now: fixedNow})

	snap := state.New()
	snap.Sources["https://a"] = state.Source{URL: "https://a", Title: "original", Score: 0.5}

	out, summary, err := tool.Run(context.Background(), `{"queries":[{"query":"q"}]}`, snap, state.Discard)

	require.NoError(t, err)
	assert.Equal(t, "original", out.Sources["https://a"].Title)
	assert.True(t, strings.HasSuffix(summary, "[]"))
}

func TestSearch_InvalidArguments(t *testing.T) {
	tool := NewSearch(Deps{Searcher: searchFunc(nil), Now: fixedNow})

	out, summary, err := tool.Run(context.Background(), `not json`, state.New(), state.Discard)

	require.NoError(t, err)
	assert.Empty(t, out.Sources)
	assert.Contains(t, summary, "Invalid arguments for web_search")
}
