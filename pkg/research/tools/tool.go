package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/mikeboe/research-canvas/pkg/llm"
	"github.com/mikeboe/research-canvas/pkg/state"
)

// Tool is one invokable capability. Run receives a snapshot it may mutate
// freely and returns the updated document plus a summary for the model.
// Failures of external calls are reported in the summary; a returned error
// aborts the turn.
type Tool interface {
	Kind() Kind
	Schema() llm.ToolSchema
	Run(ctx context.Context, args string, snap *state.State, pub state.Publisher) (*state.State, string, error)
}

// SourceIndex stores extracted content for retrieval while writing.
type SourceIndex interface {
	Index(ctx context.Context, src state.Source) error
	Retrieve(ctx context.Context, query string, k int) ([]string, error)
}

// Deps are the capability handles shared by the tools.
type Deps struct {
	Model     llm.Model
	Searcher  Searcher
	Extractor Extractor
	// Index is optional.
	Index  SourceIndex
	Logger *slog.Logger

	MaxResults     int
	ScoreThreshold float64

	Now   func() time.Time
	NewID func() string
}

func (d *Deps) defaults() {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.MaxResults <= 0 {
		d.MaxResults = 10
	}
	if d.ScoreThreshold == 0 {
		d.ScoreThreshold = 0.45
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = RandomID
	}
}

// Registry maps each executable kind to its tool.
type Registry struct {
	tools map[Kind]Tool
}

// NewRegistry builds the standard tool set.
func NewRegistry(deps Deps) *Registry {
	deps.defaults()
	return NewRegistryWith(
		NewSearch(deps),
		NewExtract(deps),
		NewOutline(deps),
		NewSectionWriter(deps),
	)
}

// NewRegistryWith registers the given tools. A review tool is never
// registered; review is a routing decision, not an execution.
func NewRegistryWith(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[Kind]Tool, len(tools))}
	for _, t := range tools {
		if t.Kind() == KindReview {
			continue
		}
		r.tools[t.Kind()] = t
	}
	return r
}

// Get returns the tool for k.
func (r *Registry) Get(k Kind) (Tool, error) {
	t, ok := r.tools[k]
	if !ok {
		return nil, &UnknownToolError{Name: k.String()}
	}
	return t, nil
}

// Catalog returns the schemas offered to the model, review included.
func (r *Registry) Catalog() []llm.ToolSchema {
	out := make([]llm.ToolSchema, 0, len(r.tools)+1)
	for _, k := range Kinds {
		if k == KindReview {
			out = append(out, ReviewSchema())
			continue
		}
		if t, ok := r.tools[k]; ok {
			out = append(out, t.Schema())
		}
	}
	return out
}

// ReviewSchema describes the review marker tool.
func ReviewSchema() llm.ToolSchema {
	return llm.ToolSchema{
		Name:        KindReview.String(),
		Description: "Present the current outline proposal to the user for approval. Call this right after outline_writer.",
		Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
	}
}

// decodeArgs parses the model's JSON arguments into a typed struct. Scalars
// are coerced, so "7" decodes into an int field.
func decodeArgs(raw string, out any) error {
	var m map[string]any
	if strings.TrimSpace(raw) == "" {
		m = map[string]any{}
	} else if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return fmt.Errorf("arguments are not a JSON object: %w", err)
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(m)
}

// invalidArgs returns the snapshot untouched with a summary the model can act on.
func invalidArgs(k Kind, snap *state.State, err error) (*state.State, string, error) {
	snap.ClearLogs()
	return snap, fmt.Sprintf("Invalid arguments for %s: %v", k, err), nil
}

const idAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomID returns a short random alphanumeric token.
func RandomID() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = idAlphabet[rand.IntN(len(idAlphabet))]
	}
	return string(b)
}

func jsonSchema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
