package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"agentcore/internal/acp"
	"agentcore/internal/domain"
	"agentcore/internal/mcp"
	"agentcore/internal/provider"
	"agentcore/internal/runner"
	"agentcore/internal/runtime"
	"agentcore/internal/skills"
)

// Agent implements acp.AgentHandler, the business-logic boundary the
// protocol server (internal/acp.Server) dispatches JSON-RPC requests
// into: new_session/load_session resolve a conversation through
// Services.Sessions, prompt drives
// Services.Run's turn loop and translates each runner.Event into a
// session_notification on Services.Sink, and cancel reaches into
// Services.Runtime for the CancellationHandle registered at the start
// of the in-flight turn.
type Agent struct {
	svc *Services

	mu             sync.RWMutex
	workspaces     map[string]string
	skillsWatcher  *skills.Watcher
	skillsWatchDir string
}

// NewAgent builds an Agent around a fully-wired Services bundle. It
// registers itself as svc.Run's workspace resolver so the orchestrator
// can inject each session's cwd into the rendered system prompt, which
// the workspace-scoped tool policy depends on.
func NewAgent(svc *Services) *Agent {
	a := &Agent{svc: svc, workspaces: make(map[string]string)}
	if svc.Run != nil {
		svc.Run.SetWorkspaceResolver(a.workspaceFor)
		svc.Run.SetPermissionRequester(a.requestContinue)
	}
	return a
}

// requestContinue relays a turn-budget interrupt to the client as a
// request_permission RPC carrying a continue/stop choice. With no sink
// attached (headless run) there is no one to ask, so the interrupt
// stands and the turn ends.
func (a *Agent) requestContinue(ctx context.Context, sessionID string, reason domain.InterruptionReason) (bool, error) {
	sink := a.svc.Sink
	if sink == nil {
		return false, nil
	}
	selected, err := sink.RequestPermission(ctx, sessionID, acp.ToolCallSummary{
		ID:   reason.Kind,
		Name: reason.String(),
	}, []acp.PermissionOption{
		{OptionID: "continue", Kind: "allow_once", Name: "Continue"},
		{OptionID: "stop", Kind: "reject_once", Name: "Stop"},
	})
	if err != nil {
		return false, err
	}
	return selected.OptionID == "continue", nil
}

func (a *Agent) workspaceFor(sessionID string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.workspaces[sessionID]
}

func (a *Agent) setWorkspace(sessionID, cwd string) {
	if cwd == "" {
		return
	}
	a.mu.Lock()
	a.workspaces[sessionID] = cwd
	a.mu.Unlock()

	a.ensureSkillsWatch(cwd)
}

// ensureSkillsWatch points the shared skill manager at dir's .forge/skills/
// discovery path and (re)starts a Watcher on it, so skills
// added, edited, or removed on disk for the most recently attached
// workspace are picked up without a restart. A single Watcher is kept
// per process — the common case is one workspace per running agent
// process — and is replaced, not stacked, if a later session attaches a
// different cwd.
func (a *Agent) ensureSkillsWatch(cwd string) {
	if a.svc == nil || a.svc.Skills == nil {
		return
	}

	a.mu.Lock()
	if a.skillsWatchDir == cwd {
		a.mu.Unlock()
		return
	}
	prev := a.skillsWatcher
	a.skillsWatchDir = cwd
	a.skillsWatcher = nil
	a.mu.Unlock()

	if prev != nil {
		prev.Stop()
	}

	skillsDir := filepath.Join(cwd, ".forge", "skills")
	a.svc.Skills.SetDiscoveryPaths([]string{skillsDir})
	if err := a.svc.Skills.ScanAllPaths(); err != nil {
		log.Warn().Err(err).Str("dir", skillsDir).Msg("server: initial skill scan failed")
		return
	}

	watcher, err := skills.NewWatcher(a.svc.Skills)
	if err != nil {
		log.Warn().Err(err).Str("dir", skillsDir).Msg("server: failed to start skills watcher")
		return
	}
	watcher.Start()

	a.mu.Lock()
	a.skillsWatcher = watcher
	a.mu.Unlock()
}

// Close releases process-wide resources the Agent started, such as the
// skills filesystem watcher.
func (a *Agent) Close() {
	a.mu.Lock()
	w := a.skillsWatcher
	a.skillsWatcher = nil
	a.mu.Unlock()

	if w != nil {
		w.Stop()
	}
}

// Initialize reports this agent's capabilities.
func (a *Agent) Initialize(ctx context.Context, params acp.InitializeParams) (acp.InitializeResult, error) {
	return acp.InitializeResult{
		ProtocolVersion: acp.ProtocolVersion,
		AgentInfo: acp.AgentInfo{
			Name:    "agentcore",
			Version: "0.1.0",
		},
		AgentCapabilities: acp.AgentCapabilities{
			LoadSession: true,
			SetMode:     true,
			SetModel:    true,
			Models:      a.models(),
		},
	}, nil
}

func (a *Agent) models() []string {
	if a.svc.Provider == nil {
		return nil
	}
	return a.svc.Provider.Models()
}

// Authenticate is a no-op for this local, single-tenant agent; auth is
// handled by the CLI host before the agent process is even spawned.
func (a *Agent) Authenticate(ctx context.Context, params acp.AuthenticateParams) (acp.AuthenticateResult, error) {
	return acp.AuthenticateResult{Authenticated: true}, nil
}

// NewSession creates a fresh Conversation (persisted via Services.Sessions)
// and a runtime.Session to track it: a durable ConversationId the model
// sees, and an ephemeral runtime Session holding the cancellation handle
// for whatever turn is active.
func (a *Agent) NewSession(ctx context.Context, params acp.NewSessionParams) (acp.NewSessionResult, error) {
	if a.svc.Sessions == nil {
		return acp.NewSessionResult{}, errors.New("server: session manager not configured")
	}

	metadata, err := json.Marshal(map[string]string{"cwd": params.Cwd})
	if err != nil {
		return acp.NewSessionResult{}, fmt.Errorf("server: marshal session metadata: %w", err)
	}

	cached, err := a.svc.Sessions.Create(metadata)
	if err != nil {
		return acp.NewSessionResult{}, fmt.Errorf("server: create session: %w", err)
	}
	sessionID := cached.Session.ID

	if err := a.svc.Runtime.Create(sessionID, &runtime.Session{
		ConversationID: string(domain.NewConversationID()),
		AgentID:        "default",
	}); err != nil {
		return acp.NewSessionResult{}, fmt.Errorf("server: register runtime session: %w", err)
	}

	a.registerMCPServers(params.McpServers)
	a.setWorkspace(sessionID, params.Cwd)

	return acp.NewSessionResult{SessionID: sessionID}, nil
}

// LoadSession resumes an existing conversation: the session row and its
// cached messages already live in Services.Sessions (SQLite-backed), so
// this only needs to re-register the ephemeral runtime.Session that was
// lost when the previous process (or connection) went away.
func (a *Agent) LoadSession(ctx context.Context, params acp.LoadSessionParams) (acp.LoadSessionResult, error) {
	if a.svc.Sessions == nil {
		return acp.LoadSessionResult{}, errors.New("server: session manager not configured")
	}

	cached, err := a.svc.Sessions.Get(params.SessionID)
	if err != nil {
		return acp.LoadSessionResult{}, fmt.Errorf("server: load session: %w", err)
	}

	if _, err := a.svc.Runtime.Get(params.SessionID); err != nil {
		if err := a.svc.Runtime.Create(params.SessionID, &runtime.Session{
			ConversationID: params.SessionID,
			AgentID:        "default",
			Model:          cached.Session.Model,
		}); err != nil && !errors.Is(err, runtime.ErrSessionExists) {
			return acp.LoadSessionResult{}, fmt.Errorf("server: register runtime session: %w", err)
		}
	}

	a.registerMCPServers(params.McpServers)
	if params.Cwd != "" {
		a.setWorkspace(params.SessionID, params.Cwd)
	}

	return acp.LoadSessionResult{SessionID: params.SessionID}, nil
}

func (a *Agent) registerMCPServers(servers []acp.MCPServer) {
	// MCP server ingestion: persist the descriptor so a future
	// `agentcore mcp` management command or the next process start can
	// reconnect it. Actually dialing the server is left to the explicit
	// mcp_add tool call (internal/tools/builtin/mcp.go) rather than done
	// implicitly on every new_session/load_session, since a client-listed
	// server the user never asked this turn to use shouldn't block
	// session creation on a network round-trip.
	for _, srv := range servers {
		if srv.Name == "" {
			continue
		}
		_ = mcp.AddServerToConfig(mcp.ServerPersist{
			Name:    srv.Name,
			Type:    srv.Type,
			URL:     srv.URL,
			Command: srv.Command,
			Args:    srv.Args,
		})
	}
}

// Cancel triggers the CancellationHandle registered for the session's
// in-flight turn. It is delivered as a JSON-RPC notification, so no
// reply is expected either way.
func (a *Agent) Cancel(ctx context.Context, params acp.CancelParams) error {
	if a.svc.Run != nil {
		a.svc.Run.CancelSession(params.SessionID)
	}
	if err := a.svc.Runtime.Cancel(params.SessionID); err != nil && !errors.Is(err, runtime.ErrSessionNotFound) {
		return err
	}
	return nil
}

// SetSessionMode records which agent definition a session should use for
// subsequent turns.
func (a *Agent) SetSessionMode(ctx context.Context, params acp.SetSessionModeParams) error {
	return a.svc.Runtime.Modify(params.SessionID, func(s *runtime.Session) {
		s.Mode = params.ModeID
		s.AgentID = params.ModeID
	})
}

// SetSessionModel updates the persisted session row's model (so it
// survives across load_session) and the in-memory runtime record (so the
// next prompt observes it without a cache round-trip).
func (a *Agent) SetSessionModel(ctx context.Context, params acp.SetSessionModelParams) error {
	if a.svc.Storage != nil {
		if err := a.svc.Storage.UpdateSessionModel(params.SessionID, params.ModelID); err != nil {
			return fmt.Errorf("server: update session model: %w", err)
		}
	}
	if a.svc.Sessions != nil {
		a.svc.Sessions.Invalidate(params.SessionID)
	}
	return a.svc.Runtime.Modify(params.SessionID, func(s *runtime.Session) {
		s.Model = params.ModelID
	})
}

// Prompt drives one full turn of the orchestrator's loop: a fresh
// CancellationHandle is scoped to this turn and registered on the
// session, runner.Events stream out of Services.Run.Run are translated
// into session_notification updates on Services.Sink in causal order,
// and the call returns the StopReason once the channel closes.
func (a *Agent) Prompt(ctx context.Context, params acp.PromptParams) (acp.PromptResult, error) {
	sessionID := params.SessionID
	if _, err := a.svc.Runtime.Get(sessionID); err != nil {
		return acp.PromptResult{}, fmt.Errorf("server: prompt: %w", err)
	}

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := a.svc.Runtime.Modify(sessionID, func(s *runtime.Session) {
		s.CancellationHandle = cancel
	}); err != nil {
		return acp.PromptResult{}, fmt.Errorf("server: prompt: %w", err)
	}

	userText, attachments := flattenPrompt(params.Prompt)

	if a.svc.Run == nil {
		return acp.PromptResult{}, errors.New("server: runner not configured")
	}
	events, err := a.svc.Run.Run(turnCtx, sessionID, userText, attachments...)
	if err != nil {
		return acp.PromptResult{}, fmt.Errorf("server: run turn: %w", err)
	}

	var turnErr error
	for ev := range events {
		if turnCtx.Err() != nil {
			// Cancellation observed: stop forwarding notifications for
			// this turn even if more events are already buffered in the
			// channel.
			continue
		}
		a.forward(ctx, sessionID, ev)
		if ev.Type == runner.EventTypeError && ev.Error != nil {
			turnErr = ev.Error
		}
	}

	if turnCtx.Err() != nil {
		return acp.PromptResult{StopReason: acp.StopReasonCancelled}, nil
	}
	if turnErr != nil {
		return acp.PromptResult{}, turnErr
	}
	return acp.PromptResult{StopReason: acp.StopReasonEndTurn}, nil
}

// forward maps one runner.Event onto the session_notification shape the
// client understands. Best-effort: a Notify error (closed sink, slow
// client) never aborts the turn — UI delivery is best-effort.
func (a *Agent) forward(ctx context.Context, sessionID string, ev runner.Event) {
	if a.svc.Sink == nil {
		return
	}
	switch ev.Type {
	case runner.EventTypeContent:
		if ev.Content == "" {
			return
		}
		_ = a.svc.Sink.Notify(ctx, sessionID, acp.SessionUpdate{
			Kind:         acp.UpdateAgentMessageChunk,
			AgentMessage: &acp.TextChunk{Text: ev.Content},
		})

	case runner.EventTypeToolCall:
		if ev.ToolCall == nil {
			return
		}
		_ = a.svc.Sink.Notify(ctx, sessionID, acp.SessionUpdate{
			Kind: acp.UpdateToolCallUpdate,
			ToolCallUpdate: &acp.ToolCallUpdate{
				ToolCallID: ev.ToolCall.ID,
				Title:      ev.ToolCall.GetName(),
				Status:     "pending",
			},
		})

	case runner.EventTypeToolResult:
		if ev.ToolResult == nil {
			return
		}
		status := "completed"
		if ev.ToolResult.IsError {
			status = "failed"
		}
		_ = a.svc.Sink.Notify(ctx, sessionID, acp.SessionUpdate{
			Kind: acp.UpdateToolCallUpdate,
			ToolCallUpdate: &acp.ToolCallUpdate{
				ToolCallID: ev.ToolResult.ToolCallID,
				Title:      ev.ToolResult.ToolName,
				Status:     status,
				Content:    ev.ToolResult.Output,
			},
		})

	case runner.EventTypeDone, runner.EventTypeHeartbeat, runner.EventTypeError:
		// Done carries only usage accounting (already persisted by the
		// runner), heartbeats exist to keep long tool calls from looking
		// stalled, and errors are surfaced as the RPC's return value
		// instead of a notification — none of the three render as a
		// session_notification.
	}
}

// flattenPrompt concatenates the text blocks of a multi-part prompt into
// the single string Runner.Run expects, and turns resource blocks into
// attachments. ResourceLink blocks become an `@[path]` reference the
// attachment expansion inside the prompt builder resolves.
func flattenPrompt(blocks []acp.PromptContent) (string, []provider.Attachment) {
	var text string
	var attachments []provider.Attachment
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if text != "" {
				text += "\n"
			}
			text += b.Text
		case "resource_link":
			text += fmt.Sprintf(" @[%s]", b.Text)
		case "resource":
			attachments = append(attachments, provider.Attachment{
				Type: "text",
				Text: b.Text,
			})
		}
	}
	return text, attachments
}
