package acp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"agentcore/internal/acp/transport"
	"agentcore/pkg/logger"
)

// Server dispatches JSON-RPC requests arriving on a transport.Conn to an
// AgentHandler, and doubles as the NotificationSink the handler's
// orchestrator uses to stream updates and request permission back over
// the same connection.
type Server struct {
	conn    transport.Conn
	handler AgentHandler

	nextID  int64
	mu      sync.Mutex
	pending map[int64]chan Response
}

// NewServer builds a protocol server around conn and handler. Call Serve
// to run its read loop; it returns when the connection closes.
func NewServer(conn transport.Conn, handler AgentHandler) *Server {
	return &Server{
		conn:    conn,
		handler: handler,
		pending: make(map[int64]chan Response),
	}
}

// Serve runs the read loop until the connection errors or ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		raw, err := s.conn.ReadMessage()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("acp: read: %w", err)
		}

		var env struct {
			ID *int64 `json:"id"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			logger.Warn().Err(err).Msg("acp: discarding unparseable frame")
			continue
		}

		// A reply to a request this server initiated (request_permission).
		if s.isPendingReply(raw) {
			continue
		}

		go s.handleRequest(ctx, raw)
	}
}

func (s *Server) isPendingReply(raw []byte) bool {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Method != "" || resp.ID == nil {
		return false
	}
	s.mu.Lock()
	ch, ok := s.pending[*resp.ID]
	if ok {
		delete(s.pending, *resp.ID)
	}
	s.mu.Unlock()
	if ok {
		ch <- resp
	}
	return ok
}

func (s *Server) handleRequest(ctx context.Context, raw []byte) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		s.writeError(nil, ErrCodeParseError, err.Error())
		return
	}

	result, rpcErr := s.dispatch(ctx, req)
	if req.IsNotification() {
		return
	}
	if rpcErr != nil {
		s.writeError(req.ID, rpcErr.Code, rpcErr.Message)
		return
	}
	s.writeResult(req.ID, result)
}

func (s *Server) dispatch(ctx context.Context, req Request) (any, *Error) {
	switch req.Method {
	case MethodInitialize:
		var p InitializeParams
		if err := decode(req.Params, &p); err != nil {
			return nil, invalidParams(err)
		}
		res, err := s.handler.Initialize(ctx, p)
		return res, internalErr(err)

	case MethodAuthenticate:
		var p AuthenticateParams
		if err := decode(req.Params, &p); err != nil {
			return nil, invalidParams(err)
		}
		res, err := s.handler.Authenticate(ctx, p)
		return res, internalErr(err)

	case MethodNewSession:
		var p NewSessionParams
		if err := decode(req.Params, &p); err != nil {
			return nil, invalidParams(err)
		}
		res, err := s.handler.NewSession(ctx, p)
		return res, internalErr(err)

	case MethodLoadSession:
		var p LoadSessionParams
		if err := decode(req.Params, &p); err != nil {
			return nil, invalidParams(err)
		}
		res, err := s.handler.LoadSession(ctx, p)
		return res, internalErr(err)

	case MethodPrompt:
		var p PromptParams
		if err := decode(req.Params, &p); err != nil {
			return nil, invalidParams(err)
		}
		res, err := s.handler.Prompt(ctx, p)
		return res, internalErr(err)

	case MethodCancel:
		var p CancelParams
		if err := decode(req.Params, &p); err != nil {
			return nil, invalidParams(err)
		}
		return nil, internalErr(s.handler.Cancel(ctx, p))

	case MethodSetSessionMode:
		var p SetSessionModeParams
		if err := decode(req.Params, &p); err != nil {
			return nil, invalidParams(err)
		}
		return nil, internalErr(s.handler.SetSessionMode(ctx, p))

	case MethodSetSessionModel:
		var p SetSessionModelParams
		if err := decode(req.Params, &p); err != nil {
			return nil, invalidParams(err)
		}
		return nil, internalErr(s.handler.SetSessionModel(ctx, p))

	default:
		return nil, &Error{Code: ErrCodeMethodNotFound, Message: "unknown method: " + req.Method}
	}
}

// Notify implements NotificationSink by writing a session_notification
// message to the connection. It never waits for acknowledgement.
func (s *Server) Notify(ctx context.Context, sessionID string, update SessionUpdate) error {
	params, err := json.Marshal(SessionNotificationParams{SessionID: sessionID, Update: update})
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Response{JSONRPC: "2.0", Method: MethodSessionNotification, Params: params})
	if err != nil {
		return err
	}
	return s.conn.WriteMessage(frame)
}

// RequestPermission implements NotificationSink by sending a
// request_permission RPC and blocking for the matching reply or ctx
// cancellation.
func (s *Server) RequestPermission(ctx context.Context, sessionID string, call ToolCallSummary, options []PermissionOption) (PermissionOption, error) {
	id := atomic.AddInt64(&s.nextID, 1)
	params, err := json.Marshal(RequestPermissionParams{SessionID: sessionID, ToolCall: call, Options: options})
	if err != nil {
		return PermissionOption{}, err
	}

	ch := make(chan Response, 1)
	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()

	frame, err := json.Marshal(Request{JSONRPC: "2.0", ID: &id, Method: MethodRequestPermission, Params: params})
	if err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return PermissionOption{}, err
	}
	if err := s.conn.WriteMessage(frame); err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return PermissionOption{}, err
	}

	select {
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return PermissionOption{}, ctx.Err()
	case resp := <-ch:
		if resp.Error != nil {
			return PermissionOption{}, resp.Error
		}
		var result RequestPermissionResult
		if err := json.Unmarshal(resp.Result, &result); err != nil {
			return PermissionOption{}, err
		}
		for _, opt := range options {
			if opt.OptionID == result.OptionID {
				return opt, nil
			}
		}
		return PermissionOption{OptionID: result.OptionID}, nil
	}
}

func (s *Server) writeResult(id *int64, result any) {
	raw, err := json.Marshal(result)
	if err != nil {
		s.writeError(id, ErrCodeInternal, err.Error())
		return
	}
	frame, err := json.Marshal(Response{JSONRPC: "2.0", ID: id, Result: raw})
	if err != nil {
		logger.Error().Err(err).Msg("acp: failed to marshal response")
		return
	}
	if err := s.conn.WriteMessage(frame); err != nil {
		logger.Error().Err(err).Msg("acp: failed to write response")
	}
}

func (s *Server) writeError(id *int64, code int, message string) {
	frame, err := json.Marshal(Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: message}})
	if err != nil {
		logger.Error().Err(err).Msg("acp: failed to marshal error response")
		return
	}
	if err := s.conn.WriteMessage(frame); err != nil {
		logger.Error().Err(err).Msg("acp: failed to write error response")
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func invalidParams(err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: ErrCodeInvalidParams, Message: err.Error()}
}

func internalErr(err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: ErrCodeInternal, Message: err.Error()}
}
