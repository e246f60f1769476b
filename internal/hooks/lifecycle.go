package hooks

import (
	"context"

	"agentcore/internal/domain"
)

// EventKind identifies which point in turn processing a LifecycleEvent
// fired at.
type EventKind int

const (
	EventStart EventKind = iota
	EventEnd
	EventRequest
	EventResponse
	EventToolcallStart
	EventToolcallEnd
)

// LifecycleEvent is a single point in conversation processing a Hook can
// observe and react to. Only the fields relevant to Kind are populated.
type LifecycleEvent struct {
	Kind EventKind

	AgentID      string
	ModelID      string
	RequestCount int

	Response   domain.CompletionFull
	ToolCall   domain.ToolCallFull
	ToolResult domain.ToolResult
}

// Step is what an EventHandle returns: either proceed, or interrupt turn
// processing with a reason that becomes the Conversation's stop cause.
type Step struct {
	interrupt bool
	reason    domain.InterruptionReason
}

// Proceed returns a Step that continues processing.
func Proceed() Step { return Step{} }

// Interrupt returns a Step that halts processing with reason.
func Interrupt(reason domain.InterruptionReason) Step {
	return Step{interrupt: true, reason: reason}
}

// ShouldProceed reports whether this step continues processing.
func (s Step) ShouldProceed() bool { return !s.interrupt }

// ShouldInterrupt reports whether this step halts processing.
func (s Step) ShouldInterrupt() bool { return s.interrupt }

// Reason returns the interrupt reason, valid only when ShouldInterrupt is true.
func (s Step) Reason() domain.InterruptionReason { return s.reason }

// EventHandle reacts to a lifecycle event and decides whether turn
// processing should continue.
type EventHandle interface {
	Handle(ctx context.Context, event LifecycleEvent, conversation *domain.Conversation) (Step, error)
}

// LifecycleHandlerFunc adapts a plain function to EventHandle.
type LifecycleHandlerFunc func(ctx context.Context, event LifecycleEvent, conversation *domain.Conversation) (Step, error)

// Handle calls f.
func (f LifecycleHandlerFunc) Handle(ctx context.Context, event LifecycleEvent, conversation *domain.Conversation) (Step, error) {
	return f(ctx, event, conversation)
}

// NoOpHandler is an EventHandle that always proceeds; it is the default
// for any lifecycle slot a Hook doesn't care about.
type NoOpHandler struct{}

// Handle always returns Proceed.
func (NoOpHandler) Handle(context.Context, LifecycleEvent, *domain.Conversation) (Step, error) {
	return Proceed(), nil
}

// And combines first and second with short-circuit behavior: second only
// runs if first returns Proceed. If second needs to always run (cleanup,
// metrics), write a single handler instead of relying on And.
func And(first, second EventHandle) EventHandle {
	return combinedHandler{first, second}
}

type combinedHandler struct {
	first, second EventHandle
}

func (c combinedHandler) Handle(ctx context.Context, event LifecycleEvent, conversation *domain.Conversation) (Step, error) {
	step, err := c.first.Handle(ctx, event, conversation)
	if err != nil {
		return Step{}, err
	}
	if step.ShouldInterrupt() {
		return step, nil
	}
	return c.second.Handle(ctx, event, conversation)
}

// Hook bundles one EventHandle per lifecycle slot. The zero value is not
// usable directly — construct via NewHook, which fills every slot with
// NoOpHandler so a caller only needs to override the slots it cares about.
type Hook struct {
	OnStart         EventHandle
	OnEnd           EventHandle
	OnRequest       EventHandle
	OnResponse      EventHandle
	OnToolcallStart EventHandle
	OnToolcallEnd   EventHandle
}

// NewHook returns a Hook with every slot set to NoOpHandler.
func NewHook() *Hook {
	return &Hook{
		OnStart:         NoOpHandler{},
		OnEnd:           NoOpHandler{},
		OnRequest:       NoOpHandler{},
		OnResponse:      NoOpHandler{},
		OnToolcallStart: NoOpHandler{},
		OnToolcallEnd:   NoOpHandler{},
	}
}

// WithOnStart sets the Start handler.
func (h *Hook) WithOnStart(handler EventHandle) *Hook { h.OnStart = handler; return h }

// WithOnEnd sets the End handler.
func (h *Hook) WithOnEnd(handler EventHandle) *Hook { h.OnEnd = handler; return h }

// WithOnRequest sets the Request handler.
func (h *Hook) WithOnRequest(handler EventHandle) *Hook { h.OnRequest = handler; return h }

// WithOnResponse sets the Response handler.
func (h *Hook) WithOnResponse(handler EventHandle) *Hook { h.OnResponse = handler; return h }

// WithOnToolcallStart sets the ToolcallStart handler.
func (h *Hook) WithOnToolcallStart(handler EventHandle) *Hook { h.OnToolcallStart = handler; return h }

// WithOnToolcallEnd sets the ToolcallEnd handler.
func (h *Hook) WithOnToolcallEnd(handler EventHandle) *Hook { h.OnToolcallEnd = handler; return h }

// Zip combines h with other, pairing each lifecycle slot with And — both
// hooks' handlers for a given event run in sequence, short-circuiting on
// the first interrupt.
func (h *Hook) Zip(other *Hook) *Hook {
	return &Hook{
		OnStart:         And(h.OnStart, other.OnStart),
		OnEnd:           And(h.OnEnd, other.OnEnd),
		OnRequest:       And(h.OnRequest, other.OnRequest),
		OnResponse:      And(h.OnResponse, other.OnResponse),
		OnToolcallStart: And(h.OnToolcallStart, other.OnToolcallStart),
		OnToolcallEnd:   And(h.OnToolcallEnd, other.OnToolcallEnd),
	}
}

// Handle dispatches event to the slot matching event.Kind.
func (h *Hook) Handle(ctx context.Context, event LifecycleEvent, conversation *domain.Conversation) (Step, error) {
	switch event.Kind {
	case EventStart:
		return h.OnStart.Handle(ctx, event, conversation)
	case EventEnd:
		return h.OnEnd.Handle(ctx, event, conversation)
	case EventRequest:
		return h.OnRequest.Handle(ctx, event, conversation)
	case EventResponse:
		return h.OnResponse.Handle(ctx, event, conversation)
	case EventToolcallStart:
		return h.OnToolcallStart.Handle(ctx, event, conversation)
	case EventToolcallEnd:
		return h.OnToolcallEnd.Handle(ctx, event, conversation)
	default:
		return Proceed(), nil
	}
}
