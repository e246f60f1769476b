package acp

import "context"

// NotificationSink is the boundary through which orchestrator-level
// events reach a connected client as session_notification messages, and
// through which a pending tool call can synchronously ask the client for
// permission. internal/server.Services holds one of these per running
// agent so the orchestrator never needs to know about JSON-RPC framing.
type NotificationSink interface {
	// Notify streams one session update to the client. Implementations
	// must not block the caller for longer than it takes to enqueue the
	// frame; slow clients should not stall the orchestrator.
	Notify(ctx context.Context, sessionID string, update SessionUpdate) error

	// RequestPermission synchronously asks the client to approve a tool
	// call, blocking until the client replies or ctx is cancelled.
	RequestPermission(ctx context.Context, sessionID string, call ToolCallSummary, options []PermissionOption) (PermissionOption, error)
}
