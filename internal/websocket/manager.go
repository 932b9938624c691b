// Package websocket runs the live-reload hub: browsers connect through the
// injected client script and receive reload notices after each rebuild.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/websites-starter/wsbuild/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 16
)

// ErrShutdown is returned by Broadcast after Shutdown.
var ErrShutdown = errors.New("websocket manager is shut down")

// WebSocketManager handles all WebSocket connection management and broadcasting.
//
// A single hub goroutine owns registration, unregistration and fan-out;
// clients map access is additionally guarded by clientsMutex so counts can
// be read from other goroutines.
type WebSocketManager struct {
	clients      map[*websocket.Conn]*Client
	clientsMutex sync.RWMutex

	broadcast  chan []byte
	register   chan *Client
	unregister chan *websocket.Conn

	originValidator OriginValidator
	session         string
	logger          logging.Logger

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	isShutdown   atomic.Bool
}

// NewWebSocketManager creates a manager and starts its hub. session is
// stamped on every outgoing message so clients can tell restarts apart.
func NewWebSocketManager(originValidator OriginValidator, session string, logger logging.Logger) *WebSocketManager {
	if originValidator == nil {
		panic("WebSocketManager: originValidator cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())

	manager := &WebSocketManager{
		clients:         make(map[*websocket.Conn]*Client),
		broadcast:       make(chan []byte, 64),
		register:        make(chan *Client, 32),
		unregister:      make(chan *websocket.Conn, 32),
		originValidator: originValidator,
		session:         session,
		logger:          logger.WithComponent("websocket"),
		ctx:             ctx,
		cancel:          cancel,
	}

	go manager.runHub()

	return manager
}

// HandleWebSocket upgrades the request and registers the client.
func (wm *WebSocketManager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if wm.isShutdown.Load() {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	origin := r.Header.Get("Origin")
	if origin != "" && !wm.originValidator.IsAllowedOrigin(origin) {
		wm.logger.Warn(r.Context(), nil, "WebSocket connection rejected", "origin", origin, "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origin is checked above against the proxy host.
		InsecureSkipVerify: true,
		CompressionMode:    websocket.CompressionDisabled,
	})
	if err != nil {
		wm.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "remote", r.RemoteAddr)
		return
	}

	client := &Client{
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		remoteAddr: r.RemoteAddr,
	}

	hello, _ := json.Marshal(UpdateMessage{Type: MessageConnected, Session: wm.session, Timestamp: time.Now()})
	client.send <- hello

	select {
	case wm.register <- client:
	case <-wm.ctx.Done():
		_ = conn.Close(websocket.StatusServiceRestart, "Server shutting down")
		return
	}

	go wm.handleClient(client)
}

func (wm *WebSocketManager) runHub() {
	for {
		select {
		case client := <-wm.register:
			wm.registerClient(client)

		case conn := <-wm.unregister:
			wm.unregisterClient(conn)

		case message := <-wm.broadcast:
			wm.broadcastToClients(message)

		case <-wm.ctx.Done():
			return
		}
	}
}

func (wm *WebSocketManager) registerClient(client *Client) {
	wm.clientsMutex.Lock()
	wm.clients[client.conn] = client
	total := len(wm.clients)
	wm.clientsMutex.Unlock()

	wm.logger.Debug(wm.ctx, "Browser connected", "remote", client.remoteAddr, "clients", total)
}

func (wm *WebSocketManager) unregisterClient(conn *websocket.Conn) {
	wm.clientsMutex.Lock()
	client, exists := wm.clients[conn]
	if exists {
		delete(wm.clients, conn)
		close(client.send)
	}
	total := len(wm.clients)
	wm.clientsMutex.Unlock()

	if exists {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		wm.logger.Debug(wm.ctx, "Browser disconnected", "remote", client.remoteAddr, "clients", total)
	}
}

func (wm *WebSocketManager) broadcastToClients(message []byte) {
	// Held for the whole fan-out so Shutdown cannot close a send channel
	// underneath it.
	wm.clientsMutex.RLock()
	defer wm.clientsMutex.RUnlock()

	for _, client := range wm.clients {
		select {
		case client.send <- message:
		default:
			// Slow browser; drop it rather than stall the hub.
			go func(c *Client) {
				select {
				case wm.unregister <- c.conn:
				case <-wm.ctx.Done():
				}
			}(client)
		}
	}
}

func (wm *WebSocketManager) handleClient(client *Client) {
	defer func() {
		select {
		case wm.unregister <- client.conn:
		case <-wm.ctx.Done():
		}
	}()

	go wm.writeToClient(client)

	wm.readFromClient(client)
}

// readFromClient drains the connection until it closes. Browsers never send
// anything meaningful; reading keeps control frames flowing.
func (wm *WebSocketManager) readFromClient(client *Client) {
	for {
		_, _, err := client.conn.Read(wm.ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && wm.ctx.Err() == nil {
				wm.logger.Debug(wm.ctx, "WebSocket read ended", "error", err.Error())
			}
			return
		}
	}
}

func (wm *WebSocketManager) writeToClient(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-client.send:
			if !ok {
				return
			}

			ctx, cancel := context.WithTimeout(wm.ctx, writeWait)
			err := client.conn.Write(ctx, websocket.MessageText, message)
			cancel()

			if err != nil {
				wm.logger.Debug(wm.ctx, "WebSocket write failed", "error", err.Error())
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(wm.ctx, writeWait)
			err := client.conn.Ping(ctx)
			cancel()

			if err != nil {
				return
			}

		case <-wm.ctx.Done():
			return
		}
	}
}

// BroadcastMessage sends message to every connected browser.
func (wm *WebSocketManager) BroadcastMessage(message UpdateMessage) error {
	if wm.isShutdown.Load() {
		return ErrShutdown
	}
	if message.Session == "" {
		message.Session = wm.session
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case wm.broadcast <- data:
		return nil
	case <-wm.ctx.Done():
		return ErrShutdown
	default:
		return errors.New("broadcast channel full")
	}
}

// GetConnectedClients returns the number of connected clients
func (wm *WebSocketManager) GetConnectedClients() int {
	wm.clientsMutex.RLock()
	defer wm.clientsMutex.RUnlock()
	return len(wm.clients)
}

// Shutdown closes every client connection and stops the hub.
func (wm *WebSocketManager) Shutdown(ctx context.Context) error {
	wm.shutdownOnce.Do(func() {
		wm.isShutdown.Store(true)
		wm.cancel()

		wm.clientsMutex.Lock()
		for conn, client := range wm.clients {
			close(client.send)
			_ = conn.Close(websocket.StatusGoingAway, "Server shutdown")
		}
		wm.clients = make(map[*websocket.Conn]*Client)
		wm.clientsMutex.Unlock()

		wm.logger.Debug(ctx, "WebSocket manager shut down")
	})

	return nil
}

// IsShutdown returns whether the WebSocket manager has been shut down
func (wm *WebSocketManager) IsShutdown() bool {
	return wm.isShutdown.Load()
}
