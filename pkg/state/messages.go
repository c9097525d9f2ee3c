package state

import "fmt"

// MalformedMessageError describes a history entry whose role is not one of
// the recognized kinds.
type MalformedMessageError struct {
	Index int
	Role  Role
}

func (e *MalformedMessageError) Error() string {
	return fmt.Sprintf("message %d has unrecognized role %q", e.Index, e.Role)
}

// Valid reports whether the role is one the model understands.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// NormalizeMessages coerces unrecognized messages into plain user messages,
// keeping their content. It returns one error per coerced message so callers
// can log them; none of them is fatal.
func NormalizeMessages(msgs []Message) []error {
	var errs []error
	for i, m := range msgs {
		if m.Role.Valid() {
			continue
		}
		errs = append(errs, &MalformedMessageError{Index: i, Role: m.Role})
		msgs[i] = Message{Role: RoleUser, Content: m.Content}
	}
	return errs
}

// UserMessage builds a human message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// SystemMessage builds a system note.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// ToolResult builds a tool-result message correlated to a call.
func ToolResult(call ToolCall, content string) Message {
	return Message{Role: RoleTool, Content: content, Name: call.Name, ToolCallID: call.ID}
}
