package transport

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"agentcore/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WebSocketConn adapts a single *websocket.Conn to the Conn interface,
// one socket per agent session. This is the gorilla/websocket binding
// called out alongside the stdio transport: both frame the same
// internal/acp method handlers.
type WebSocketConn struct {
	conn *websocket.Conn
}

// NewWebSocketConn wraps an already-upgraded websocket connection.
func NewWebSocketConn(conn *websocket.Conn) *WebSocketConn {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &WebSocketConn{conn: conn}
}

// ReadMessage returns the next whole text frame.
func (c *WebSocketConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// WriteMessage sends data as a single text frame.
func (c *WebSocketConn) WriteMessage(data []byte) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the underlying socket.
func (c *WebSocketConn) Close() error { return c.conn.Close() }

// Ping keeps NAT/proxy connections alive; callers run this in a goroutine
// alongside the read loop.
func (c *WebSocketConn) Ping() error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// Upgrade upgrades an HTTP request to a WebSocketConn. Handler
// implementations call this per incoming connection, then hand the
// result to acp.Server.Serve in its own goroutine.
func Upgrade(w http.ResponseWriter, r *http.Request) (*WebSocketConn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("acp: websocket upgrade failed")
		return nil, err
	}
	return NewWebSocketConn(conn), nil
}

// ListenAndServeFunc starts an HTTP server whose single route upgrades
// to a websocket and calls serve for each accepted connection.
func ListenAndServeFunc(addr, path string, serve func(*WebSocketConn)) error {
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrade(w, r)
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			serve(conn)
		}()
	})
	return http.ListenAndServe(addr, mux)
}
