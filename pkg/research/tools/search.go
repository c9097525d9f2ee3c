package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mikeboe/research-canvas/pkg/llm"
	"github.com/mikeboe/research-canvas/pkg/state"
)

// SearchQuery is one independent sub-query.
type SearchQuery struct {
	Query   string   `mapstructure:"query"`
	Topic   string   `mapstructure:"topic"`
	Days    int      `mapstructure:"days"`
	Domains []string `mapstructure:"domains"`
}

// SearchArgs are the arguments of web_search.
type SearchArgs struct {
	Queries []SearchQuery `mapstructure:"queries"`
}

// Search runs sub-queries concurrently and merges the relevant results into
// the sources.
type Search struct {
	searcher   Searcher
	logger     *slog.Logger
	maxResults int
	threshold  float64
	now        func() time.Time
}

func NewSearch(deps Deps) *Search {
	deps.defaults()
	return &Search{
		searcher:   deps.Searcher,
		logger:     deps.Logger,
		maxResults: deps.MaxResults,
		threshold:  deps.ScoreThreshold,
		now:        deps.Now,
	}
}

func (s *Search) Kind() Kind { return KindSearch }

func (s *Search) Schema() llm.ToolSchema {
	return llm.ToolSchema{
		Name:        KindSearch.String(),
		Description: "Search the web for sources. Pass one or more independent queries; they run concurrently.",
		Parameters: jsonSchema(map[string]any{
			"queries": map[string]any{
				"type": "array",
				"items": jsonSchema(map[string]any{
					"query": map[string]any{"type": "string", "description": "The search query."},
					"topic": map[string]any{
						"type":        "string",
						"enum":        []string{"general", "news"},
						"description": "Use news only for recent events.",
					},
					"days":    map[string]any{"type": "integer", "description": "Lookback window in days, news only."},
					"domains": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				}, "query"),
			},
		}, "queries"),
	}
}

func (s *Search) Run(ctx context.Context, raw string, snap *state.State, pub state.Publisher) (*state.State, string, error) {
	var args SearchArgs
	if err := decodeArgs(raw, &args); err != nil {
		return invalidArgs(KindSearch, snap, err)
	}

	suffix := " " + s.now().Format("01-2006")

	var mu sync.Mutex
	for _, q := range args.Queries {
		snap.PushLog(fmt.Sprintf("Searching the web: '%s'", q.Query))
	}
	state.PublishState(ctx, pub, snap)

	results := make([][]state.Source, len(args.Queries))
	var wg sync.WaitGroup
	for i, q := range args.Queries {
		wg.Add(1)
		go func(i int, q SearchQuery) {
			defer wg.Done()
			results[i] = s.runQuery(ctx, q, suffix)

			mu.Lock()
			snap.DoneLog(i)
			state.PublishState(ctx, pub, snap)
			mu.Unlock()
		}(i, q)
	}
	wg.Wait()

	var relevant []state.Source
	for _, docs := range results {
		for _, d := range docs {
			if d.Score > s.threshold {
				relevant = append(relevant, d)
			}
		}
	}
	added := snap.MergeSources(relevant)
	snap.ClearLogs()

	if added == nil {
		added = []state.Source{}
	}
	data, err := json.Marshal(added)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal search results: %w", err)
	}
	return snap, "In search, found the following new documents:\n" + string(data), nil
}

// runQuery never fails; a failing or panicking backend yields no results for
// this query only.
func (s *Search) runQuery(ctx context.Context, q SearchQuery, suffix string) (docs []state.Source) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Search query panicked", "query", q.Query, "panic", r)
			docs = nil
		}
	}()

	topic := q.Topic
	if topic != "general" && topic != "news" {
		topic = "general"
	}
	docs, err := s.searcher.Search(ctx, Query{
		Text:       q.Query + suffix,
		Topic:      topic,
		Days:       q.Days,
		MaxResults: s.maxResults,
		Domains:    q.Domains,
	})
	if err != nil {
		s.logger.Warn("Search query failed", "query", q.Query, "error", err)
		return nil
	}
	return docs
}
