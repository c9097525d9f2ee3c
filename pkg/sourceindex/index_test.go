package sourceindex

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikeboe/research-canvas/pkg/splitter"
	"github.com/mikeboe/research-canvas/pkg/state"
	"github.com/mikeboe/research-canvas/pkg/vectorstore"
)

type lenEmbedder struct{}

func (lenEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text))}, nil
}

func (lenEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

type memStore struct {
	chunks []vectorstore.Chunk
	filter vectorstore.Filter
}

func (m *memStore) AddChunks(_ context.Context, chunks []vectorstore.Chunk) error {
	m.chunks = append(m.chunks, chunks...)
	return nil
}

func (m *memStore) SimilaritySearch(_ context.Context, _ []float32, topK int, f vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	m.filter = f
	var out []vectorstore.SearchResult
	for _, c := range m.chunks {
		if c.SessionID == f.SessionID && len(out) < topK {
			out = append(out, vectorstore.SearchResult{Chunk: c, Score: 1})
		}
	}
	return out, nil
}

func (m *memStore) HasSource(_ context.Context, sessionID, source string) (bool, error) {
	for _, c := range m.chunks {
		if c.SessionID == sessionID && c.Source == source {
			return true, nil
		}
	}
	return false, nil
}

func TestIndex_ScopedToSession(t *testing.T) {
	store := &memStore{}
	ix := New(lenEmbedder{}, splitter.NewRecursiveCharacterTextSplitter(40, 0), store)
	ctx := state.WithSession(context.Background(), "s1")
	src := state.Source{URL: "https://a", Title: "A", RawContent: strings.Repeat("photovoltaic cells. ", 8)}

	require.NoError(t, ix.Index(ctx, src))
	n := len(store.chunks)
	require.Greater(t, n, 1)
	for _, c := range store.chunks {
		assert.Equal(t, "s1", c.SessionID)
		assert.Equal(t, "https://a", c.Source)
	}

	require.NoError(t, ix.Index(ctx, src))
	assert.Len(t, store.chunks, n)

	got, err := ix.Retrieve(ctx, "cells", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.True(t, strings.HasPrefix(got[0], "[A](https://a)\n"))
	assert.Equal(t, "s1", store.filter.SessionID)

	other, err := ix.Retrieve(state.WithSession(context.Background(), "s2"), "cells", 2)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestIndex_SkipsEmptySources(t *testing.T) {
	store := &memStore{}
	ix := New(lenEmbedder{}, splitter.NewRecursiveCharacterTextSplitter(40, 0), store)

	require.NoError(t, ix.Index(context.Background(), state.Source{URL: "https://empty"}))
	assert.Empty(t, store.chunks)
}
