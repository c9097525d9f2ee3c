package tools

import "fmt"

// UnknownToolError is returned when the model requests a tool that is not
// registered. It means the catalog and the registry disagree.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// ValidationError is a structured model response that does not match the
// shape a tool expects.
type ValidationError struct {
	Tool string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid response: %v", e.Tool, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// CapabilityError is a failure of a search or extraction backend.
type CapabilityError struct {
	Capability string
	Err        error
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Capability, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }
