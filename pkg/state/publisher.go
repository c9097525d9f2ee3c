package state

import (
	"context"
	"fmt"
)

// EventType distinguishes full document updates from per-field section streams.
type EventType string

const (
	EventState         EventType = "state"
	EventSectionStream EventType = "section_stream"
)

// SectionStream is an in-progress value of one field of a section being
// written, so observers can render it before the tool returns.
type SectionStream struct {
	Field     string `json:"field"` // "content" or "footer"
	Idx       int    `json:"idx"`
	SectionID string `json:"section_id"`
	Title     string `json:"title"`
	Value     string `json:"value"`
	Done      bool   `json:"done"`
}

// Key identifies the stream the way frontends subscribe to it.
func (s SectionStream) Key() string {
	return fmt.Sprintf("section_stream.%s.%d.%s.%s", s.Field, s.Idx, s.SectionID, s.Title)
}

// Event is one publication to observers.
type Event struct {
	Type   EventType      `json:"type"`
	State  *State         `json:"state,omitempty"`
	Stream *SectionStream `json:"stream,omitempty"`
}

// Publisher receives state updates. Publishing is fire-and-forget and never
// affects correctness.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev Event)

func (f PublisherFunc) Publish(ctx context.Context, ev Event) { f(ctx, ev) }

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(context.Context, Event) {})

// PublishState sends a copy of s so later mutation cannot race observers.
func PublishState(ctx context.Context, p Publisher, s *State) {
	if p == nil {
		return
	}
	p.Publish(ctx, Event{Type: EventState, State: s.Clone()})
}

// PublishStream sends a section stream update.
func PublishStream(ctx context.Context, p Publisher, stream SectionStream) {
	if p == nil {
		return
	}
	p.Publish(ctx, Event{Type: EventSectionStream, Stream: &stream})
}
