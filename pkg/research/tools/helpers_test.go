package tools

import (
	"context"
	"sync"
	"time"

	"github.com/mikeboe/research-canvas/pkg/state"
)

type searchFunc func(ctx context.Context, q Query) ([]state.Source, error)

func (f searchFunc) Search(ctx context.Context, q Query) ([]state.Source, error) { return f(ctx, q) }

type extractFunc func(ctx context.Context, urls []string) ([]Extracted, error)

func (f extractFunc) Extract(ctx context.Context, urls []string) ([]Extracted, error) {
	return f(ctx, urls)
}

type recorder struct {
	mu     sync.Mutex
	events []state.Event
}

func (r *recorder) Publish(_ context.Context, ev state.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) streams() []state.SectionStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []state.SectionStream
	for _, ev := range r.events {
		if ev.Type == state.EventSectionStream {
			out = append(out, *ev.Stream)
		}
	}
	return out
}

func (r *recorder) states() []*state.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*state.State
	for _, ev := range r.events {
		if ev.Type == state.EventState {
			out = append(out, ev.State)
		}
	}
	return out
}

func fixedNow() time.Time {
	return time.Date(2025, time.March, 14, 9, 0, 0, 0, time.UTC)
}
