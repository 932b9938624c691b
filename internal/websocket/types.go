package websocket

import (
	"time"

	"github.com/coder/websocket"
)

// Message types understood by the injected client script.
const (
	MessageConnected  = "connected"
	MessageFullReload = "full_reload"
	MessageCSSReload  = "css_reload"
)

// Client represents a WebSocket client connection
type Client struct {
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
}

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Session   string    `json:"session,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OriginValidator interface for WebSocket origin validation
type OriginValidator interface {
	IsAllowedOrigin(origin string) bool
}
