package aggregator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcore/internal/domain"
)

func TestPushPlainContentPassesThrough(t *testing.T) {
	a := New()
	events, err := a.Push(Chunk{ContentDelta: "hello "})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "hello ", events[0].Content)

	events, err = a.Push(Chunk{ContentDelta: "world"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "world", events[0].Content)

	out, err := a.Finish()
	require.NoError(t, err)
	assert.Equal(t, "hello world", out.Content)
}

func TestSentinelNeverLeaksPartialTag(t *testing.T) {
	a := New()
	var forwarded string
	for _, delta := range []string{"before ", "<for", "ge_tool_call>args</forge_tool_", "call>", " after"} {
		events, err := a.Push(Chunk{ContentDelta: delta})
		require.NoError(t, err)
		for _, e := range events {
			assert.NotContains(t, e.Content, "<for")
			forwarded += e.Content
		}
	}
	out, err := a.Finish()
	require.NoError(t, err)
	assert.Equal(t, "before <forge_tool_call>args</forge_tool_call> after", out.Content)
	assert.Equal(t, out.Content, forwarded)
}

func TestSentinelBufferFlushedAtStreamEndIfNeverClosed(t *testing.T) {
	a := New()
	_, err := a.Push(Chunk{ContentDelta: "partial <forge_"})
	require.NoError(t, err)
	out, err := a.Finish()
	require.NoError(t, err)
	assert.Equal(t, "partial <forge_", out.Content)
}

func TestInterruptOnInlineXML(t *testing.T) {
	a := New()
	a.InterruptOnInlineXML = true
	_, err := a.Push(Chunk{ContentDelta: "<forge_x>y</forge_tool_call>"})
	var interrupted *Interrupted
	require.True(t, errors.As(err, &interrupted))
}

func TestToolCallReassemblyByIndex(t *testing.T) {
	a := New()
	_, _ = a.Push(Chunk{ToolCall: &domain.ToolCallPart{Index: 0, CallID: "call_1", Name: "fs_read", ArgumentsPart: `{"path":`}})
	_, _ = a.Push(Chunk{ToolCall: &domain.ToolCallPart{Index: 0, ArgumentsPart: `"a.go"}`}})
	out, err := a.Finish()
	require.NoError(t, err)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "call_1", out.ToolCalls[0].CallID)
	assert.Equal(t, "fs_read", out.ToolCalls[0].Name)
	assert.Equal(t, `{"path":"a.go"}`, string(out.ToolCalls[0].Arguments))
}

func TestMultipleToolCallsPreserveOrder(t *testing.T) {
	a := New()
	_, _ = a.Push(Chunk{ToolCall: &domain.ToolCallPart{Index: 1, CallID: "b", Name: "fs_write", ArgumentsPart: "{}"}})
	_, _ = a.Push(Chunk{ToolCall: &domain.ToolCallPart{Index: 0, CallID: "a", Name: "fs_read", ArgumentsPart: "{}"}})
	out, err := a.Finish()
	require.NoError(t, err)
	require.Len(t, out.ToolCalls, 2)
	assert.Equal(t, "b", out.ToolCalls[0].CallID)
	assert.Equal(t, "a", out.ToolCalls[1].CallID)
}

func TestEmptyCompletionIsRetryable(t *testing.T) {
	a := New()
	_, err := a.Finish()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRetryable)
}

func TestThinkingFallsBackToContentWhenContentEmpty(t *testing.T) {
	a := New()
	_, _ = a.Push(Chunk{ThinkingDelta: "the model reasoned here"})
	out, err := a.Finish()
	require.NoError(t, err)
	assert.Equal(t, "the model reasoned here", out.Content)
	assert.Equal(t, "the model reasoned here", out.Reasoning)
}

func TestUsageAndFinishReasonCarried(t *testing.T) {
	a := New()
	_, _ = a.Push(Chunk{ContentDelta: "ok"})
	_, _ = a.Push(Chunk{Usage: &domain.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, FinishReason: domain.FinishReasonToolCalls})
	out, err := a.Finish()
	require.NoError(t, err)
	assert.Equal(t, 15, out.Usage.TotalTokens)
	assert.Equal(t, domain.FinishReasonToolCalls, out.FinishReason)
}
