// Package transport provides the line-protocol bindings that frame
// internal/acp's JSON-RPC method handlers: a stdio binding (the default
// used by the CLI host) and an optional gorilla/websocket binding for
// remote clients, mirroring the transport-agnostic framing of
// session/new, session/prompt, and session/update used in
// internal/provider/copilot/acp_client.go.
package transport

// Conn is the minimal duplex message channel internal/acp needs: a
// stream of whole JSON-RPC frames in each direction. Both the stdio and
// websocket bindings implement it so acp.Server.Serve treats them
// identically.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}
