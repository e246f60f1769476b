package domain

import "github.com/google/uuid"

// ConversationID identifies a single conversation (one turn-loop lifetime).
type ConversationID string

// SessionID identifies a runtime session, which may outlive a single
// conversation turn (load_session can resume it).
type SessionID string

// NewConversationID mints a fresh random conversation identifier.
func NewConversationID() ConversationID {
	return ConversationID(uuid.New().String())
}

// NewSessionID mints a fresh random session identifier.
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}
