// Package server runs the live-reload proxy used by watch --sync: every
// request is forwarded to the configured site, HTML responses get the
// reload client injected, and rebuilds are announced over a WebSocket.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/websites-starter/wsbuild/internal/config"
	pipelineerrors "github.com/websites-starter/wsbuild/internal/errors"
	"github.com/websites-starter/wsbuild/internal/logging"
	"github.com/websites-starter/wsbuild/internal/validation"
	"github.com/websites-starter/wsbuild/internal/websocket"
)

// Reserved paths served by the proxy itself.
const (
	PathPrefix = "/__wsbuild/"
	ClientPath = PathPrefix + "client.js"
	SocketPath = PathPrefix + "ws"
)

const shutdownTimeout = 5 * time.Second

// ReloadServer proxies the development site and pushes reload messages.
type ReloadServer struct {
	target  *url.URL
	port    int
	session string
	hub     *websocket.WebSocketManager
	proxy   *httputil.ReverseProxy
	logger  logging.Logger

	serverMutex sync.Mutex
	httpServer  *http.Server
}

// New creates a server proxying opts.ProxyTarget on opts.Port.
func New(opts config.BuildOptions, session string, logger logging.Logger) (*ReloadServer, error) {
	if err := validation.ValidateURL(opts.ProxyTarget); err != nil {
		return nil, pipelineerrors.NewConfigError(pipelineerrors.ErrCodeConfigInvalid, fmt.Sprintf("invalid proxy target: %v", err))
	}
	target, err := url.Parse(opts.ProxyTarget)
	if err != nil {
		return nil, err
	}

	port := strconv.Itoa(opts.Port)
	origins := websocket.NewHostOriginValidator(
		net.JoinHostPort("localhost", port),
		net.JoinHostPort("127.0.0.1", port),
		net.JoinHostPort("::1", port),
	)

	logger = logger.WithComponent("server")
	s := &ReloadServer{
		target:  target,
		port:    opts.Port,
		session: session,
		hub:     websocket.NewWebSocketManager(origins, session, logger),
		logger:  logger,
	}
	s.proxy = s.newProxy()

	return s, nil
}

func (s *ReloadServer) newProxy() *httputil.ReverseProxy {
	proxy := httputil.NewSingleHostReverseProxy(s.target)
	director := proxy.Director
	proxy.Director = func(r *http.Request) {
		director(r)
		// Virtual-hosted sites route on Host; rewritten bodies must be plain.
		r.Host = s.target.Host
		r.Header.Del("Accept-Encoding")
	}
	proxy.ModifyResponse = s.modifyResponse
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		s.logger.Warn(r.Context(), err, "Proxy request failed", "path", r.URL.Path)
		http.Error(w, "wsbuild: cannot reach "+s.target.String(), http.StatusBadGateway)
	}
	return proxy
}

func (s *ReloadServer) modifyResponse(resp *http.Response) error {
	if location := resp.Header.Get("Location"); location != "" {
		resp.Header.Set("Location", localizeURL(location, s.target))
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "text/html") || resp.Header.Get("Content-Encoding") != "" {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return err
	}

	rewritten, injected, err := injectClient(body, s.target)
	if err != nil {
		s.logger.Debug(resp.Request.Context(), "Leaving unparsable HTML untouched", "error", err.Error())
		rewritten = body
	}
	if injected {
		s.logger.Debug(resp.Request.Context(), "Injected reload client", "path", resp.Request.URL.Path)
	}

	resp.Header.Set("Cache-Control", "no-store")
	resp.Header.Del("ETag")
	resp.Body = io.NopCloser(bytes.NewReader(rewritten))
	resp.ContentLength = int64(len(rewritten))
	resp.Header.Set("Content-Length", strconv.Itoa(len(rewritten)))
	return nil
}

// Handler returns the proxy's routes.
func (s *ReloadServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(SocketPath, s.hub.HandleWebSocket)
	mux.HandleFunc(ClientPath, s.handleClient)
	mux.Handle("/", chain(s.proxy, s.logRequests, unconditional))
	return mux
}

func (s *ReloadServer) handleClient(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = io.WriteString(w, clientScript)
}

// Start listens on the configured port and serves until ctx is cancelled.
func (s *ReloadServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return pipelineerrors.NewIOError(pipelineerrors.ErrCodeListenFailed, "cannot listen for live reload", err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is cancelled.
func (s *ReloadServer) Serve(ctx context.Context, listener net.Listener) error {
	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	s.logger.Info(ctx, "Live reload proxy started",
		"proxy", s.target.String(),
		"url", "http://localhost:"+strconv.Itoa(s.port),
		"session", s.session)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Reload tells every connected browser to reload. kind is one of the
// websocket message types.
func (s *ReloadServer) Reload(ctx context.Context, kind string) error {
	if err := s.hub.BroadcastMessage(websocket.UpdateMessage{Type: kind}); err != nil {
		return pipelineerrors.NewIOError(pipelineerrors.ErrCodeBroadcastFailed, "cannot notify browsers", err)
	}
	s.logger.Debug(ctx, "Reload broadcast", "type", kind, "clients", s.hub.GetConnectedClients())
	return nil
}

// Clients returns the number of connected browsers.
func (s *ReloadServer) Clients() int {
	return s.hub.GetConnectedClients()
}

// Shutdown closes browser connections and stops the HTTP server.
func (s *ReloadServer) Shutdown(ctx context.Context) error {
	_ = s.hub.Shutdown(ctx)

	s.serverMutex.Lock()
	server := s.httpServer
	s.serverMutex.Unlock()

	if server == nil {
		return nil
	}
	return server.Shutdown(ctx)
}
