// Package aggregator folds a provider's streamed chat events into UI-facing
// events plus a single terminal domain.CompletionFull, the way
// StandardOrchestrator.callProvider folds a provider.Stream channel — but
// factored out as its own state machine so it can be unit-tested against
// the sentinel-buffering and tool-call-reassembly invariants directly.
package aggregator

import (
	"strings"

	"agentcore/internal/domain"
)

// sentinelOpenPrefix / sentinelClose bound the inline-XML tool-call block
// some providers emit inline in assistant content instead of (or in
// addition to) a structured tool_calls field. A UI sink must never see a
// partial tag, so content ending in a prefix of sentinelOpenPrefix is held
// back until it either completes into a full sentinel block or turns out to
// be ordinary text.
const (
	sentinelOpenPrefix = "<forge_"
	sentinelClose      = "</forge_tool_call>"
)

// EventKind tags a UIEvent.
type EventKind int

const (
	EventContent EventKind = iota
	EventThinking
	EventToolCallUpdate
)

// UIEvent is one unit of output safe to forward to a display sink: it never
// contains a partial sentinel tag.
type UIEvent struct {
	Kind           EventKind
	Content        string
	Thinking       string
	ToolCallUpdate *domain.ToolCallPart
}

// pendingToolCall accumulates fragments for one in-flight tool call,
// addressed by streaming Index the way provider wire formats require
// (arguments for a single call can arrive split across many chunks that
// all share the same Index but not necessarily the same CallID on every
// fragment).
type pendingToolCall struct {
	index     int
	callID    string
	name      string
	arguments strings.Builder
}

// Aggregator folds a stream of provider chunks into UIEvents and a final
// CompletionFull. It is not safe for concurrent use; one Aggregator serves
// one in-flight completion.
type Aggregator struct {
	content   strings.Builder
	reasoning strings.Builder

	buffered         strings.Builder
	startedBuffering bool
	lastWasReasoning bool

	partsByIndex map[int]*pendingToolCall
	order        []int

	usage        domain.Usage
	finishReason domain.FinishReason

	// InterruptOnInlineXML, when true, makes Push return an interrupt
	// signal the first time a sentinel block is detected instead of
	// silently swallowing it into tool-call assembly. Defaults to false.
	InterruptOnInlineXML bool
}

// New returns a ready-to-use Aggregator.
func New() *Aggregator {
	return &Aggregator{
		partsByIndex: make(map[int]*pendingToolCall),
		finishReason: domain.FinishReasonStop,
	}
}

// Chunk is one incoming fragment from a provider's stream, normalized to
// the subset callProvider actually branches on.
type Chunk struct {
	ContentDelta   string
	ThinkingDelta  string
	ToolCall       *domain.ToolCallPart
	FinishReason   domain.FinishReason
	Usage          *domain.Usage
}

// Interrupted is returned by Push when InterruptOnInlineXML is set and an
// inline sentinel block was just detected and fully consumed into the
// buffer; the caller's turn loop may choose to stop streaming further
// content once it sees this.
type Interrupted struct {
	Reason domain.InterruptionReason
}

func (i *Interrupted) Error() string { return i.Reason.String() }

// Push folds one chunk into the aggregator's state and returns the UIEvents
// now safe to forward downstream (zero, one, or more — sentinel buffering
// can hold a fragment back across several Push calls and flush several
// events once the tag resolves).
func (a *Aggregator) Push(c Chunk) ([]UIEvent, error) {
	var out []UIEvent

	if c.ThinkingDelta != "" {
		a.reasoning.WriteString(c.ThinkingDelta)
		a.lastWasReasoning = true
		out = append(out, UIEvent{Kind: EventThinking, Thinking: c.ThinkingDelta})
	}

	if c.ContentDelta != "" {
		a.lastWasReasoning = false
		events, err := a.pushContent(c.ContentDelta)
		if err != nil {
			return out, err
		}
		out = append(out, events...)
	}

	if c.ToolCall != nil {
		a.foldToolCallPart(*c.ToolCall)
		out = append(out, UIEvent{Kind: EventToolCallUpdate, ToolCallUpdate: c.ToolCall})
	}

	if c.FinishReason != "" {
		a.finishReason = c.FinishReason
	}
	if c.Usage != nil {
		a.usage = *c.Usage
	}

	return out, nil
}

// pushContent runs the sentinel-buffering state machine over one content
// delta. The buffer only ever holds a suffix that is a strict prefix of
// sentinelOpenPrefix or text following a detected sentinelOpenPrefix up to
// (and including) sentinelClose.
func (a *Aggregator) pushContent(delta string) ([]UIEvent, error) {
	var out []UIEvent
	text := delta
	if a.startedBuffering {
		a.buffered.WriteString(delta)
		text = a.buffered.String()
		a.buffered.Reset()
	}

	for {
		if !a.startedBuffering {
			idx := firstPartialOrFullPrefixIndex(text, sentinelOpenPrefix)
			if idx < 0 {
				// No sentinel anywhere in sight: flush everything as content.
				if text != "" {
					a.content.WriteString(text)
					out = append(out, UIEvent{Kind: EventContent, Content: text})
				}
				return out, nil
			}
			// Flush the safe prefix before the candidate sentinel start.
			if idx > 0 {
				safe := text[:idx]
				a.content.WriteString(safe)
				out = append(out, UIEvent{Kind: EventContent, Content: safe})
			}
			text = text[idx:]
			if len(text) < len(sentinelOpenPrefix) {
				// Only a partial prefix arrived so far; hold it and wait
				// for more chunks rather than leaking it to the UI sink.
				a.buffered.WriteString(text)
				a.startedBuffering = true
				return out, nil
			}
			if !strings.HasPrefix(text, sentinelOpenPrefix) {
				// Looked like a prefix but diverged once we had enough
				// bytes; it was ordinary text after all.
				a.content.WriteString(text)
				out = append(out, UIEvent{Kind: EventContent, Content: text})
				return out, nil
			}
			a.startedBuffering = true
		}

		closeIdx := strings.Index(text, sentinelClose)
		if closeIdx < 0 {
			// Sentinel block still open; keep buffering silently (none of
			// it is forwarded to the UI sink until it resolves).
			a.buffered.WriteString(text)
			return out, nil
		}

		block := text[:closeIdx+len(sentinelClose)]
		a.startedBuffering = false
		remainder := text[closeIdx+len(sentinelClose):]

		if a.InterruptOnInlineXML {
			return out, &Interrupted{Reason: domain.InterruptionReason{
				Kind:    domain.InterruptHookPolicy,
				Message: "inline tool-call sentinel detected",
			}}
		}

		// Inline sentinel tool calls are folded into content verbatim —
		// a downstream parser (outside this package) is responsible for
		// extracting a ToolCallFull from the block if the provider chose
		// to emit a call this way instead of a structured tool_calls
		// field. The aggregator's job is only to never leak a partial tag.
		a.content.WriteString(block)
		out = append(out, UIEvent{Kind: EventContent, Content: block})

		if remainder == "" {
			return out, nil
		}
		text = remainder
	}
}

// firstPartialOrFullPrefixIndex returns the index in s of the earliest
// position where prefix could plausibly start — either a full match or a
// suffix of s that is itself a prefix of prefix. Returns -1 if neither
// occurs anywhere in s.
func firstPartialOrFullPrefixIndex(s, prefix string) int {
	if idx := strings.Index(s, prefix); idx >= 0 {
		return idx
	}
	maxLen := len(prefix) - 1
	if maxLen > len(s) {
		maxLen = len(s)
	}
	for l := maxLen; l > 0; l-- {
		if strings.HasSuffix(s, prefix[:l]) {
			return len(s) - l
		}
	}
	return -1
}

func (a *Aggregator) foldToolCallPart(part domain.ToolCallPart) {
	existing, ok := a.partsByIndex[part.Index]
	if !ok {
		existing = &pendingToolCall{index: part.Index, callID: part.CallID, name: part.Name}
		a.partsByIndex[part.Index] = existing
		a.order = append(a.order, part.Index)
	}
	if part.CallID != "" {
		existing.callID = part.CallID
	}
	if part.Name != "" {
		existing.name = part.Name
	}
	existing.arguments.WriteString(part.ArgumentsPart)
}

// Finish closes the aggregator out, folding any still-buffered sentinel
// prefix back into content (a partial tag left open at stream end was never
// going to resolve) and returning the terminal CompletionFull.
//
// Per the empty-completion invariant: if content, reasoning, and tool calls
// are all empty, Finish returns domain.ErrRetryable instead of a zero-value
// CompletionFull, since an empty assistant turn is never a valid terminal
// state — it signals a transport hiccup the orchestrator should retry.
func (a *Aggregator) Finish() (domain.CompletionFull, error) {
	if a.startedBuffering && a.buffered.Len() > 0 {
		a.content.WriteString(a.buffered.String())
		a.buffered.Reset()
		a.startedBuffering = false
	}

	result := domain.CompletionFull{
		Content:      a.content.String(),
		Reasoning:    a.reasoning.String(),
		Usage:        a.usage,
		FinishReason: a.finishReason,
	}
	for _, idx := range a.order {
		p := a.partsByIndex[idx]
		result.ToolCalls = append(result.ToolCalls, domain.ToolCallFull{
			CallID:    p.callID,
			Name:      p.name,
			Arguments: []byte(p.arguments.String()),
		})
	}

	// Fallback observed in callProvider: some models put all output in the
	// reasoning channel and leave content empty. Surface it as content so
	// downstream consumers that only read Content still see the answer.
	if result.Content == "" && result.Reasoning != "" && len(result.ToolCalls) == 0 {
		result.Content = result.Reasoning
	}

	if result.Content == "" && result.Reasoning == "" && len(result.ToolCalls) == 0 {
		return domain.CompletionFull{}, domain.ErrRetryable
	}

	return result, nil
}
