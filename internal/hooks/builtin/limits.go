package builtin

import (
	"context"
	"fmt"
	"sync"

	"agentcore/internal/domain"
	"agentcore/internal/hooks"
)

// LimitsConfig configures the turn-budget handlers. A zero value disables
// the corresponding limit.
type LimitsConfig struct {
	// MaxRequestsPerTurn caps provider requests within a single turn.
	MaxRequestsPerTurn int
	// MaxConsecutiveToolFailures caps back-to-back failed tool calls.
	MaxConsecutiveToolFailures int
	// MaxTotalTokens caps the cumulative token usage of a turn.
	MaxTotalTokens int
}

// Limits bundles the three standard turn-budget handlers — per-turn
// request counter, consecutive tool-failure counter, and token-budget
// watchdog — behind one lifecycle Hook. Each handler interrupts turn
// processing when its threshold is crossed; the orchestrator relays the
// interrupt to the client as a continue/stop choice and calls Reset with
// the interruption kind when the user elects to continue.
type Limits struct {
	cfg LimitsConfig

	mu                  sync.Mutex
	requests            int
	consecutiveFailures int
	totalTokens         int
}

// NewLimits creates the bundle. Counters start at zero and persist until
// Reset or ResetAll.
func NewLimits(cfg LimitsConfig) *Limits {
	return &Limits{cfg: cfg}
}

// Hook returns a lifecycle Hook with the three handlers bound to their
// slots: request counting on Request, failure counting on ToolcallEnd,
// token accounting on Response.
func (l *Limits) Hook() *hooks.Hook {
	return hooks.NewHook().
		WithOnStart(hooks.LifecycleHandlerFunc(l.onStart)).
		WithOnRequest(hooks.LifecycleHandlerFunc(l.onRequest)).
		WithOnResponse(hooks.LifecycleHandlerFunc(l.onResponse)).
		WithOnToolcallEnd(hooks.LifecycleHandlerFunc(l.onToolcallEnd))
}

// Reset clears the counter behind the given interruption kind, so a
// user-approved continuation doesn't immediately re-trip the same limit.
func (l *Limits) Reset(kind string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch kind {
	case domain.InterruptMaxIterations:
		l.requests = 0
	case domain.InterruptToolFailureBudget:
		l.consecutiveFailures = 0
	case domain.InterruptTokenBudget:
		l.totalTokens = 0
	}
}

// ResetAll clears every counter. Called at the start of a fresh turn.
func (l *Limits) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = 0
	l.consecutiveFailures = 0
	l.totalTokens = 0
}

func (l *Limits) onStart(context.Context, hooks.LifecycleEvent, *domain.Conversation) (hooks.Step, error) {
	l.ResetAll()
	return hooks.Proceed(), nil
}

func (l *Limits) onRequest(_ context.Context, event hooks.LifecycleEvent, _ *domain.Conversation) (hooks.Step, error) {
	if l.cfg.MaxRequestsPerTurn <= 0 {
		return hooks.Proceed(), nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	// Trust the orchestrator's request count when it supplies one, so the
	// two never drift; fall back to local counting otherwise.
	if event.RequestCount > 0 {
		l.requests = event.RequestCount
	} else {
		l.requests++
	}
	if l.requests > l.cfg.MaxRequestsPerTurn {
		return hooks.Interrupt(domain.InterruptionReason{
			Kind:    domain.InterruptMaxIterations,
			Message: fmt.Sprintf("reached the per-turn request limit of %d", l.cfg.MaxRequestsPerTurn),
		}), nil
	}
	return hooks.Proceed(), nil
}

func (l *Limits) onResponse(_ context.Context, event hooks.LifecycleEvent, _ *domain.Conversation) (hooks.Step, error) {
	if l.cfg.MaxTotalTokens <= 0 {
		return hooks.Proceed(), nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totalTokens += event.Response.Usage.TotalTokens
	if l.totalTokens >= l.cfg.MaxTotalTokens {
		return hooks.Interrupt(domain.InterruptionReason{
			Kind:    domain.InterruptTokenBudget,
			Message: fmt.Sprintf("turn has used %d tokens of a %d token budget", l.totalTokens, l.cfg.MaxTotalTokens),
		}), nil
	}
	return hooks.Proceed(), nil
}

func (l *Limits) onToolcallEnd(_ context.Context, event hooks.LifecycleEvent, _ *domain.Conversation) (hooks.Step, error) {
	if l.cfg.MaxConsecutiveToolFailures <= 0 {
		return hooks.Proceed(), nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if event.ToolResult.IsError {
		l.consecutiveFailures++
	} else {
		l.consecutiveFailures = 0
	}
	if l.consecutiveFailures >= l.cfg.MaxConsecutiveToolFailures {
		return hooks.Interrupt(domain.InterruptionReason{
			Kind:    domain.InterruptToolFailureBudget,
			Message: fmt.Sprintf("%d consecutive tool calls failed", l.consecutiveFailures),
		}), nil
	}
	return hooks.Proceed(), nil
}
