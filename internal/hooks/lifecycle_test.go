package hooks

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"agentcore/internal/domain"
)

func TestStepProceed(t *testing.T) {
	step := Proceed()
	assert.True(t, step.ShouldProceed())
	assert.False(t, step.ShouldInterrupt())
}

func TestStepInterrupt(t *testing.T) {
	reason := domain.InterruptionReason{Kind: domain.InterruptTokenBudget, Message: "limit reached"}
	step := Interrupt(reason)

	assert.False(t, step.ShouldProceed())
	assert.True(t, step.ShouldInterrupt())
	assert.Equal(t, reason, step.Reason())
}

func TestHookOnStart(t *testing.T) {
	var mu sync.Mutex
	var seen []LifecycleEvent

	hook := NewHook().WithOnStart(LifecycleHandlerFunc(
		func(_ context.Context, event LifecycleEvent, _ *domain.Conversation) (Step, error) {
			mu.Lock()
			seen = append(seen, event)
			mu.Unlock()
			return Proceed(), nil
		},
	))

	conv := &domain.Conversation{}
	step, err := hook.Handle(context.Background(), LifecycleEvent{Kind: EventStart, AgentID: "a", ModelID: "m"}, conv)
	assert.NoError(t, err)
	assert.True(t, step.ShouldProceed())
	assert.Len(t, seen, 1)
	assert.Equal(t, EventStart, seen[0].Kind)
}

func TestHookAllEvents(t *testing.T) {
	var mu sync.Mutex
	count := 0
	record := LifecycleHandlerFunc(func(_ context.Context, _ LifecycleEvent, _ *domain.Conversation) (Step, error) {
		mu.Lock()
		count++
		mu.Unlock()
		return Proceed(), nil
	})

	hook := &Hook{
		OnStart:         record,
		OnEnd:           record,
		OnRequest:       record,
		OnResponse:      record,
		OnToolcallStart: record,
		OnToolcallEnd:   record,
	}

	conv := &domain.Conversation{}
	events := []LifecycleEvent{
		{Kind: EventStart},
		{Kind: EventEnd},
		{Kind: EventRequest},
		{Kind: EventResponse},
		{Kind: EventToolcallStart},
		{Kind: EventToolcallEnd},
	}
	for _, e := range events {
		_, err := hook.Handle(context.Background(), e, conv)
		assert.NoError(t, err)
	}
	assert.Equal(t, 6, count)
}

func TestStepHaltVariant(t *testing.T) {
	hook := NewHook().WithOnStart(LifecycleHandlerFunc(
		func(_ context.Context, _ LifecycleEvent, _ *domain.Conversation) (Step, error) {
			return Interrupt(domain.InterruptionReason{Kind: domain.InterruptMaxIterations}), nil
		},
	))

	conv := &domain.Conversation{}
	step, err := hook.Handle(context.Background(), LifecycleEvent{Kind: EventStart}, conv)
	assert.NoError(t, err)
	assert.True(t, step.ShouldInterrupt())
	assert.False(t, step.ShouldProceed())
	assert.Equal(t, domain.InterruptMaxIterations, step.Reason().Kind)
}

func TestHookZip(t *testing.T) {
	var mu sync.Mutex
	var counter1, counter2 int

	hook1 := NewHook().WithOnStart(LifecycleHandlerFunc(
		func(_ context.Context, _ LifecycleEvent, _ *domain.Conversation) (Step, error) {
			mu.Lock()
			counter1++
			mu.Unlock()
			return Proceed(), nil
		},
	))
	hook2 := NewHook().WithOnStart(LifecycleHandlerFunc(
		func(_ context.Context, _ LifecycleEvent, _ *domain.Conversation) (Step, error) {
			mu.Lock()
			counter2++
			mu.Unlock()
			return Proceed(), nil
		},
	))

	combined := hook1.Zip(hook2)
	conv := &domain.Conversation{}
	_, err := combined.Handle(context.Background(), LifecycleEvent{Kind: EventStart}, conv)
	assert.NoError(t, err)
	assert.Equal(t, 1, counter1)
	assert.Equal(t, 1, counter2)
}

func TestHookZipShortCircuitsOnInterrupt(t *testing.T) {
	var mu sync.Mutex
	secondCalled := false

	hook1 := NewHook().WithOnStart(LifecycleHandlerFunc(
		func(_ context.Context, _ LifecycleEvent, _ *domain.Conversation) (Step, error) {
			return Interrupt(domain.InterruptionReason{Kind: domain.InterruptUserCancelled}), nil
		},
	))
	hook2 := NewHook().WithOnStart(LifecycleHandlerFunc(
		func(_ context.Context, _ LifecycleEvent, _ *domain.Conversation) (Step, error) {
			mu.Lock()
			secondCalled = true
			mu.Unlock()
			return Proceed(), nil
		},
	))

	combined := hook1.Zip(hook2)
	conv := &domain.Conversation{}
	step, err := combined.Handle(context.Background(), LifecycleEvent{Kind: EventStart}, conv)
	assert.NoError(t, err)
	assert.True(t, step.ShouldInterrupt())
	assert.False(t, secondCalled)
}

func TestEventHandleAndChain(t *testing.T) {
	var mu sync.Mutex
	var order []string

	h1 := LifecycleHandlerFunc(func(_ context.Context, _ LifecycleEvent, _ *domain.Conversation) (Step, error) {
		mu.Lock()
		order = append(order, "h1")
		mu.Unlock()
		return Proceed(), nil
	})
	h2 := LifecycleHandlerFunc(func(_ context.Context, _ LifecycleEvent, _ *domain.Conversation) (Step, error) {
		mu.Lock()
		order = append(order, "h2")
		mu.Unlock()
		return Proceed(), nil
	})
	h3 := LifecycleHandlerFunc(func(_ context.Context, _ LifecycleEvent, _ *domain.Conversation) (Step, error) {
		mu.Lock()
		order = append(order, "h3")
		mu.Unlock()
		return Proceed(), nil
	})

	combined := And(And(h1, h2), h3)
	conv := &domain.Conversation{}
	_, err := combined.Handle(context.Background(), LifecycleEvent{Kind: EventStart}, conv)
	assert.NoError(t, err)
	assert.Equal(t, []string{"h1", "h2", "h3"}, order)
}
