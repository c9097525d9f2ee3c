package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mikeboe/research-canvas/pkg/llm"
	"github.com/mikeboe/research-canvas/pkg/state"
)

// ExtractArgs are the arguments of web_extract.
type ExtractArgs struct {
	URLs []string `mapstructure:"urls"`
}

// Extract fetches the full content of sources.
type Extract struct {
	extractor Extractor
	index     SourceIndex
	logger    *slog.Logger
}

func NewExtract(deps Deps) *Extract {
	deps.defaults()
	return &Extract{extractor: deps.Extractor, index: deps.Index, logger: deps.Logger}
}

func (e *Extract) Kind() Kind { return KindExtract }

func (e *Extract) Schema() llm.ToolSchema {
	return llm.ToolSchema{
		Name:        KindExtract.String(),
		Description: "Fetch the full content of one or more URLs, usually sources found by web_search.",
		Parameters: jsonSchema(map[string]any{
			"urls": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		}, "urls"),
	}
}

func (e *Extract) Run(ctx context.Context, raw string, snap *state.State, pub state.Publisher) (*state.State, string, error) {
	var args ExtractArgs
	if err := decodeArgs(raw, &args); err != nil {
		return invalidArgs(KindExtract, snap, err)
	}

	i := snap.PushLog(fmt.Sprintf("Extracting %d page(s)", len(args.URLs)))
	state.PublishState(ctx, pub, snap)

	pages, err := e.fetch(ctx, args.URLs)
	if err != nil {
		e.logger.Warn("Extraction failed", "urls", args.URLs, "error", err)
		snap.ClearLogs()
		return snap, "", nil
	}

	var sb strings.Builder
	sb.WriteString("Extracted the following pages:\n")
	for _, p := range pages {
		snap.SetRawContent(p.URL, p.RawContent)
		sb.WriteString("- " + p.URL + "\n")
		if e.index != nil {
			if err := e.index.Index(ctx, snap.Sources[p.URL]); err != nil {
				e.logger.Warn("Failed to index source", "url", p.URL, "error", err)
			}
		}
	}

	snap.DoneLog(i)
	state.PublishState(ctx, pub, snap)
	snap.ClearLogs()
	return snap, sb.String(), nil
}

func (e *Extract) fetch(ctx context.Context, urls []string) (pages []Extracted, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &CapabilityError{Capability: "extract", Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return e.extractor.Extract(ctx, urls)
}
