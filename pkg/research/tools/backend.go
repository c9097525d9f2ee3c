package tools

import (
	"context"

	"github.com/mikeboe/research-canvas/pkg/state"
)

// Query is one search request.
type Query struct {
	Text       string
	Topic      string // "general" or "news"
	Days       int
	MaxResults int
	Domains    []string
}

// Searcher returns ranked documents for a query.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]state.Source, error)
}

// Extracted is the full content fetched for one URL.
type Extracted struct {
	URL        string `json:"url"`
	RawContent string `json:"raw_content"`
}

// Extractor fetches full page content.
type Extractor interface {
	Extract(ctx context.Context, urls []string) ([]Extracted, error)
}
