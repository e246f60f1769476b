package acp

import "context"

// AgentHandler is the business-logic boundary behind the protocol
// dispatcher: internal/server wires a concrete implementation backed by
// internal/runtime (session store) and internal/runner/orchestrator
// (turn loop) and hands it to NewServer. Keeping this as an interface
// lets the protocol layer stay ignorant of orchestrator internals.
type AgentHandler interface {
	Initialize(ctx context.Context, params InitializeParams) (InitializeResult, error)
	Authenticate(ctx context.Context, params AuthenticateParams) (AuthenticateResult, error)
	NewSession(ctx context.Context, params NewSessionParams) (NewSessionResult, error)
	LoadSession(ctx context.Context, params LoadSessionParams) (LoadSessionResult, error)
	Prompt(ctx context.Context, params PromptParams) (PromptResult, error)
	Cancel(ctx context.Context, params CancelParams) error
	SetSessionMode(ctx context.Context, params SetSessionModeParams) error
	SetSessionModel(ctx context.Context, params SetSessionModelParams) error
}
