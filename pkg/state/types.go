package state

// Role tags a message in the conversation history.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ToolCall is a structured request, emitted by the model, to run a tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON object
}

// Message is one turn record in the conversation history.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// Source is a document gathered by search or extraction, keyed by URL.
type Source struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Content    string  `json:"content"`
	RawContent string  `json:"raw_content,omitempty"`
	Score      float64 `json:"score"`
}

// ProposalSection is one reviewable entry of an outline proposal.
type ProposalSection struct {
	Title       string `json:"title" mapstructure:"title"`
	Description string `json:"description" mapstructure:"description"`
	Approved    bool   `json:"approved" mapstructure:"approved"`
}

// Proposal is the outline structure put up for human review.
type Proposal struct {
	Sections  map[string]ProposalSection `json:"sections" mapstructure:"sections"`
	Approved  bool                       `json:"approved" mapstructure:"approved"`
	Remarks   string                     `json:"remarks,omitempty" mapstructure:"remarks"`
	Timestamp string                     `json:"timestamp,omitempty" mapstructure:"timestamp"`
	// ReviewedAt is set when a human review is applied.
	ReviewedAt string `json:"reviewed_at,omitempty" mapstructure:"reviewed_at"`
	// Error is set on fallback proposals produced from an invalid model response.
	Error string `json:"error,omitempty" mapstructure:"error"`
}

// OutlineEntry is an approved proposal section.
type OutlineEntry struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Section is one written unit of the report.
type Section struct {
	Idx     int    `json:"idx"`
	ID      string `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Footer  string `json:"footer"`
}

// LogEntry is an ephemeral progress line shown to observers.
type LogEntry struct {
	Message string `json:"message"`
	Done    bool   `json:"done"`
}

// State is the shared research document of a session.
type State struct {
	Messages []Message               `json:"messages"`
	Title    string                  `json:"title"`
	Sources  map[string]Source       `json:"sources"`
	Proposal *Proposal               `json:"proposal,omitempty"`
	Outline  map[string]OutlineEntry `json:"outline"`
	Sections []Section               `json:"sections"`
	Logs     []LogEntry              `json:"logs"`
	// Tool is scratch space for the running tool; holds its name while active.
	Tool string `json:"tool,omitempty"`
}

// New returns a document with empty containers.
func New() *State {
	return &State{
		Messages: []Message{},
		Sources:  map[string]Source{},
		Outline:  map[string]OutlineEntry{},
		Sections: []Section{},
		Logs:     []LogEntry{},
	}
}
