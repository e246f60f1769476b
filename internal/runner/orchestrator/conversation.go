package orchestrator

import (
	"strings"
	"time"

	"agentcore/internal/domain"
	"agentcore/internal/provider"
	"agentcore/internal/storage"
)

// newConversation starts the turn-scoped domain.Conversation the
// lifecycle chain observes: its Context mirrors the wire-format history
// sent to the provider, its Events log every loop transition append-only,
// and its Metrics are filled from the per-file mutation records the tool
// executor persisted once the turn ends.
func newConversation(sessionID string) *domain.Conversation {
	return &domain.Conversation{
		ID:      domain.ConversationID(sessionID),
		Metrics: make(map[string]*domain.Metrics),
	}
}

// appendConvEvent appends one entry to the conversation's event log. Seq
// is monotone and entries are never rewritten in place.
func appendConvEvent(conv *domain.Conversation, kind string, payload any) {
	if conv == nil {
		return
	}
	conv.Events = append(conv.Events, domain.Event{
		Seq:       int64(len(conv.Events) + 1),
		Kind:      kind,
		Payload:   payload,
		CreatedAt: time.Now(),
	})
}

// contextFromMessages maps the wire-format history onto the domain
// context. System messages are regrouped to the front so the context
// invariant (system messages contiguous before any other role) holds
// even when a compaction notice or hook interleaved one.
func contextFromMessages(messages []provider.Message) domain.Context {
	out := make([]domain.ContextMessage, 0, len(messages))
	for i := range messages {
		out = append(out, contextMessageFrom(messages[i]))
	}
	return domain.Context{Messages: groupSystemFirst(out)}
}

// contextFromCompaction maps a compacted history onto the domain
// context, preserving what compaction erased: every message synthesized
// by the compactor (a summary or notice absent from the pre-compaction
// history) carries the dropped messages' pre-compaction text in
// OriginalContent. OriginalContent is never sent to a provider — only
// history views and later summarization rounds read it.
func contextFromCompaction(before, after []provider.Message) domain.Context {
	prior := make(map[string]bool, len(before))
	for i := range before {
		prior[messageKey(before[i])] = true
	}
	surviving := make(map[string]bool, len(after))
	for i := range after {
		surviving[messageKey(after[i])] = true
	}

	var dropped []string
	for i := range before {
		if !surviving[messageKey(before[i])] && before[i].Content != "" {
			dropped = append(dropped, before[i].Content)
		}
	}
	original := strings.Join(dropped, "\n")

	out := make([]domain.ContextMessage, 0, len(after))
	for i := range after {
		cm := contextMessageFrom(after[i])
		if original != "" && cm.Kind == domain.MessageKindText && !prior[messageKey(after[i])] {
			cm.OriginalContent = original
		}
		out = append(out, cm)
	}
	return domain.Context{Messages: groupSystemFirst(out)}
}

// refreshContext rebuilds conv.Context from the current wire history,
// carrying forward OriginalContent recorded by earlier compaction passes
// for messages that survived unchanged.
func refreshContext(conv *domain.Conversation, messages []provider.Message) {
	if conv == nil {
		return
	}
	preserved := make(map[string]string)
	for _, m := range conv.Context.Messages {
		if m.OriginalContent != "" {
			preserved[string(m.Role)+"\x00"+m.Content] = m.OriginalContent
		}
	}
	next := contextFromMessages(messages)
	for i := range next.Messages {
		if oc, ok := preserved[string(next.Messages[i].Role)+"\x00"+next.Messages[i].Content]; ok {
			next.Messages[i].OriginalContent = oc
		}
	}
	conv.Context = next
}

func contextMessageFrom(m provider.Message) domain.ContextMessage {
	cm := domain.ContextMessage{
		Role:    domain.Role(m.Role),
		Content: m.Content,
	}
	switch {
	case len(m.ToolCalls) > 0:
		cm.Kind = domain.MessageKindAssistantToolCalls
		// Tool calls imply the assistant role.
		cm.Role = domain.RoleAssistant
		for i := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, toolCallToFull(&m.ToolCalls[i]))
		}
	case m.ToolCallID != "":
		cm.Kind = domain.MessageKindToolResult
		cm.ToolCallID = m.ToolCallID
	default:
		cm.Kind = domain.MessageKindText
	}
	return cm
}

func groupSystemFirst(messages []domain.ContextMessage) []domain.ContextMessage {
	var system, rest []domain.ContextMessage
	for _, m := range messages {
		if m.Role == domain.RoleSystem {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}
	if len(system) == 0 {
		return rest
	}
	return append(system, rest...)
}

func messageKey(m provider.Message) string {
	return m.Role + "\x00" + m.ToolCallID + "\x00" + m.Content
}

// loadConversationMetrics fills conv.Metrics from the per-file mutation
// records the tool executor persisted during this session, keyed by path.
func loadConversationMetrics(conv *domain.Conversation, metrics []storage.FileMetric) {
	for _, fm := range metrics {
		conv.Metrics[fm.Path] = &domain.Metrics{
			Path:         fm.Path,
			LinesAdded:   fm.LinesAdded,
			LinesRemoved: fm.LinesRemoved,
			ContentHash:  fm.ContentHash,
		}
	}
}
