package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcore/internal/domain"
	"agentcore/internal/hooks"
)

func fire(t *testing.T, h *hooks.Hook, event hooks.LifecycleEvent) hooks.Step {
	t.Helper()
	step, err := h.Handle(context.Background(), event, nil)
	require.NoError(t, err)
	return step
}

func TestLimitsRequestCap(t *testing.T) {
	limits := NewLimits(LimitsConfig{MaxRequestsPerTurn: 2})
	hook := limits.Hook()

	for i := 1; i <= 2; i++ {
		step := fire(t, hook, hooks.LifecycleEvent{Kind: hooks.EventRequest, RequestCount: i})
		assert.True(t, step.ShouldProceed(), "request %d should proceed", i)
	}

	step := fire(t, hook, hooks.LifecycleEvent{Kind: hooks.EventRequest, RequestCount: 3})
	require.True(t, step.ShouldInterrupt())
	assert.Equal(t, domain.InterruptMaxIterations, step.Reason().Kind)
}

func TestLimitsRequestCapResetAllowsContinuation(t *testing.T) {
	limits := NewLimits(LimitsConfig{MaxRequestsPerTurn: 1})
	hook := limits.Hook()

	fire(t, hook, hooks.LifecycleEvent{Kind: hooks.EventRequest})
	step := fire(t, hook, hooks.LifecycleEvent{Kind: hooks.EventRequest})
	require.True(t, step.ShouldInterrupt())

	limits.Reset(step.Reason().Kind)

	step = fire(t, hook, hooks.LifecycleEvent{Kind: hooks.EventRequest})
	assert.True(t, step.ShouldProceed(), "counter should restart after Reset")
}

func TestLimitsRequestCapDisabled(t *testing.T) {
	limits := NewLimits(LimitsConfig{})
	hook := limits.Hook()

	for i := 1; i <= 50; i++ {
		step := fire(t, hook, hooks.LifecycleEvent{Kind: hooks.EventRequest, RequestCount: i})
		assert.True(t, step.ShouldProceed())
	}
}

func TestLimitsConsecutiveToolFailures(t *testing.T) {
	limits := NewLimits(LimitsConfig{MaxConsecutiveToolFailures: 3})
	hook := limits.Hook()

	failed := hooks.LifecycleEvent{Kind: hooks.EventToolcallEnd, ToolResult: domain.ToolResult{IsError: true}}
	ok := hooks.LifecycleEvent{Kind: hooks.EventToolcallEnd, ToolResult: domain.ToolResult{}}

	assert.True(t, fire(t, hook, failed).ShouldProceed())
	assert.True(t, fire(t, hook, failed).ShouldProceed())

	// A success in between resets the streak.
	assert.True(t, fire(t, hook, ok).ShouldProceed())
	assert.True(t, fire(t, hook, failed).ShouldProceed())
	assert.True(t, fire(t, hook, failed).ShouldProceed())

	step := fire(t, hook, failed)
	require.True(t, step.ShouldInterrupt())
	assert.Equal(t, domain.InterruptToolFailureBudget, step.Reason().Kind)
}

func TestLimitsTokenBudget(t *testing.T) {
	limits := NewLimits(LimitsConfig{MaxTotalTokens: 100})
	hook := limits.Hook()

	response := func(total int) hooks.LifecycleEvent {
		return hooks.LifecycleEvent{
			Kind:     hooks.EventResponse,
			Response: domain.CompletionFull{Usage: domain.Usage{TotalTokens: total}},
		}
	}

	assert.True(t, fire(t, hook, response(40)).ShouldProceed())
	assert.True(t, fire(t, hook, response(40)).ShouldProceed())

	step := fire(t, hook, response(40))
	require.True(t, step.ShouldInterrupt())
	assert.Equal(t, domain.InterruptTokenBudget, step.Reason().Kind)
}

func TestLimitsStartResetsAllCounters(t *testing.T) {
	limits := NewLimits(LimitsConfig{MaxRequestsPerTurn: 1, MaxTotalTokens: 50})
	hook := limits.Hook()

	fire(t, hook, hooks.LifecycleEvent{Kind: hooks.EventRequest})
	fire(t, hook, hooks.LifecycleEvent{
		Kind:     hooks.EventResponse,
		Response: domain.CompletionFull{Usage: domain.Usage{TotalTokens: 49}},
	})

	// A new turn begins: everything is back to zero.
	assert.True(t, fire(t, hook, hooks.LifecycleEvent{Kind: hooks.EventStart}).ShouldProceed())
	assert.True(t, fire(t, hook, hooks.LifecycleEvent{Kind: hooks.EventRequest}).ShouldProceed())
}

func TestLimitsZipShortCircuit(t *testing.T) {
	// When the limits hook interrupts, a hook zipped to its right must not
	// run for that event.
	limits := NewLimits(LimitsConfig{MaxRequestsPerTurn: 1})

	var rightRan bool
	right := hooks.NewHook().WithOnRequest(hooks.LifecycleHandlerFunc(
		func(context.Context, hooks.LifecycleEvent, *domain.Conversation) (hooks.Step, error) {
			rightRan = true
			return hooks.Proceed(), nil
		}))

	combined := limits.Hook().Zip(right)

	fire(t, combined, hooks.LifecycleEvent{Kind: hooks.EventRequest})
	assert.True(t, rightRan)

	rightRan = false
	step := fire(t, combined, hooks.LifecycleEvent{Kind: hooks.EventRequest})
	require.True(t, step.ShouldInterrupt())
	assert.False(t, rightRan, "right hook must be skipped after an interrupt")
}
