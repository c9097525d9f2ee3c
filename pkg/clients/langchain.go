package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"

	"github.com/mikeboe/research-canvas/pkg/config"
	"github.com/mikeboe/research-canvas/pkg/llm"
	"github.com/mikeboe/research-canvas/pkg/state"
)

// LangChainModel implements llm.Model on top of any langchaingo chat model.
type LangChainModel struct {
	LLM    llms.Model
	Logger *slog.Logger
	// ToolArgs decodes a provider stream chunk into tool argument text. Nil
	// when the provider cannot stream tool arguments; the arguments are then
	// delivered once the reply is complete.
	ToolArgs func(chunk []byte) string
}

func NewLangChainModel(m llms.Model) *LangChainModel {
	return &LangChainModel{LLM: m, Logger: slog.Default()}
}

// New builds the named model of the provider selected in the config. An
// empty name selects the provider default.
func New(ctx context.Context, cfg *config.Config, model string) (*LangChainModel, error) {
	switch cfg.LLMProvider {
	case "", "googleai":
		m, err := GoogleAi(ctx, cfg.GoogleApiKey, ModelType(model))
		if err != nil {
			return nil, err
		}
		return NewLangChainModel(m), nil
	case "openai":
		m, err := OpenAI(cfg.OpenAIApiKey, model)
		if err != nil {
			return nil, err
		}
		lc := NewLangChainModel(m)
		lc.ToolArgs = OpenAIToolArgs
		return lc, nil
	case "anthropic":
		m, err := Anthropic(cfg.AnthropicApiKey, model)
		if err != nil {
			return nil, err
		}
		return NewLangChainModel(m), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.LLMProvider)
	}
}

func (m *LangChainModel) Invoke(ctx context.Context, req llm.Request) (state.Message, error) {
	var opts []llms.CallOption
	if len(req.Tools) > 0 {
		opts = append(opts, llms.WithTools(toTools(req.Tools)))
	}
	if req.ForceTool != "" {
		opts = append(opts, llms.WithToolChoice(llms.ToolChoice{
			Type:     "function",
			Function: &llms.FunctionReference{Name: req.ForceTool},
		}))
	}
	if req.JSONMode {
		opts = append(opts, llms.WithJSONMode())
	}
	streamed := false
	if req.OnToolArgs != nil && m.ToolArgs != nil {
		decode, onArgs := m.ToolArgs, req.OnToolArgs
		opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			if delta := decode(chunk); delta != "" {
				streamed = true
				onArgs(delta)
			}
			return nil
		}))
	}

	resp, err := m.LLM.GenerateContent(ctx, toMessageContent(req.Directive, req.History), opts...)
	if err != nil {
		return state.Message{}, &llm.Error{Err: err}
	}
	if len(resp.Choices) == 0 {
		return state.Message{}, &llm.Error{Err: fmt.Errorf("llm returned no choices")}
	}

	msg := fromChoice(resp.Choices[0])
	if req.OnToolArgs != nil && !streamed {
		for _, tc := range msg.ToolCalls {
			if req.ForceTool == "" || tc.Name == req.ForceTool {
				req.OnToolArgs(tc.Arguments)
				break
			}
		}
	}
	if req.SequentialToolCalls && len(msg.ToolCalls) > 1 {
		m.Logger.Warn("Dropping extra tool calls", "requested", len(msg.ToolCalls))
		msg.ToolCalls = msg.ToolCalls[:1]
	}
	return msg, nil
}

func toTools(schemas []llm.ToolSchema) []llms.Tool {
	tools := make([]llms.Tool, 0, len(schemas))
	for _, s := range schemas {
		tools = append(tools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return tools
}

func toMessageContent(directive string, history []state.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(history)+1)
	if directive != "" {
		out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, directive))
	}

	for _, msg := range history {
		switch msg.Role {
		case state.RoleSystem:
			// Only the directive occupies the system slot; some providers keep
			// just one system message.
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, msg.Content))
		case state.RoleAssistant:
			var parts []llms.ContentPart
			if msg.Content != "" {
				parts = append(parts, llms.TextContent{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, llms.ToolCall{
					ID:   tc.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			if len(parts) == 0 {
				parts = append(parts, llms.TextContent{Text: ""})
			}
			out = append(out, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts})
		case state.RoleTool:
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: msg.ToolCallID,
					Name:       msg.Name,
					Content:    msg.Content,
				}},
			})
		default:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, msg.Content))
		}
	}
	return out
}

func fromChoice(choice *llms.ContentChoice) state.Message {
	msg := state.Message{Role: state.RoleAssistant, Content: choice.Content}
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		id := tc.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		msg.ToolCalls = append(msg.ToolCalls, state.ToolCall{
			ID:        id,
			Name:      tc.FunctionCall.Name,
			Arguments: tc.FunctionCall.Arguments,
		})
	}
	return msg
}

// OpenAIToolArgs extracts the argument text from an openai stream chunk.
// Tool call deltas arrive as a JSON array of calls; plain content chunks
// carry no arguments.
func OpenAIToolArgs(chunk []byte) string {
	if len(chunk) == 0 || chunk[0] != '[' {
		return ""
	}
	var deltas []struct {
		Function struct {
			Arguments string `json:"arguments"`
		} `json:"function"`
	}
	if err := json.Unmarshal(chunk, &deltas); err != nil {
		return ""
	}
	var b strings.Builder
	for _, d := range deltas {
		b.WriteString(d.Function.Arguments)
	}
	return b.String()
}
