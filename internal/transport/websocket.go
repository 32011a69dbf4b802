// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	applog "playhead/internal/log"
)

// WebSocketPath is where the JSON position feed is served.
const WebSocketPath = "/position"

const (
	broadcastQueue = 256
	writeTimeout   = time.Second
)

var wsLog = applog.New("WebSocketTransport")

// WebSocketTransport broadcasts every message as JSON to all connected
// clients. A client that connects receives the latest PositionMessage
// straight away.
// Messages are dropped when the broadcast queue is full.
type WebSocketTransport struct {
	addr      string
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]struct{}
	clientsMu sync.Mutex
	last      any
	broadcast chan any
	done      chan struct{}
	closeOnce sync.Once
	server    *http.Server
	listener  net.Listener
}

// NewWebSocketTransport creates a transport that will listen on addr once
// Start is called. It can also be mounted on any server as an http.Handler.
func NewWebSocketTransport(addr string) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan any, broadcastQueue),
		done:      make(chan struct{}),
	}
	go wst.handleBroadcasts()
	return wst
}

// Start binds the listen address and serves WebSocketPath in the background.
func (wst *WebSocketTransport) Start() error {
	ln, err := net.Listen("tcp", wst.addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle(WebSocketPath, wst)

	wst.listener = ln
	wst.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		wsLog.Infof("Serving ws://%s%s", ln.Addr(), WebSocketPath)
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			wsLog.Errorf("Server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address after Start, or the configured one.
func (wst *WebSocketTransport) Addr() string {
	if wst.listener != nil {
		return wst.listener.Addr().String()
	}
	return wst.addr
}

// ClientCount returns the number of connected clients.
func (wst *WebSocketTransport) ClientCount() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// ServeHTTP upgrades the request and registers the client.
func (wst *WebSocketTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wsLog.Warnf("Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	select {
	case <-wst.done:
		wst.clientsMu.Unlock()
		_ = conn.Close()
		return
	default:
	}
	wst.clients[conn] = struct{}{}
	if wst.last != nil {
		wst.write(conn, wst.last)
	}
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	wsLog.Infof("Client connected from %s, total: %d", r.RemoteAddr, total)

	// The feed is one-way; reading only detects the close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wst.drop(conn)
				return
			}
		}
	}()
}

// write sends data to one client, dropping it on failure. clientsMu must be held.
func (wst *WebSocketTransport) write(conn *websocket.Conn, data any) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(data); err != nil {
		wsLog.Debugf("Error sending to client: %v", err)
		_ = conn.Close()
		delete(wst.clients, conn)
	}
}

func (wst *WebSocketTransport) drop(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	_ = conn.Close()
	if ok {
		wsLog.Infof("Client disconnected, total: %d", total)
	}
}

func (wst *WebSocketTransport) handleBroadcasts() {
	for {
		select {
		case data := <-wst.broadcast:
			wst.clientsMu.Lock()
			if isPosition(data) {
				wst.last = data
			}
			for client := range wst.clients {
				wst.write(client, data)
			}
			wst.clientsMu.Unlock()
		case <-wst.done:
			return
		}
	}
}

// isPosition reports whether data is worth replaying to late clients.
func isPosition(data any) bool {
	switch data.(type) {
	case PositionMessage, *PositionMessage:
		return true
	}
	return false
}

// Send queues data for broadcast. It never blocks.
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case <-wst.done:
		return ErrClosed
	default:
	}
	select {
	case wst.broadcast <- data:
	default:
		wsLog.Debugf("Broadcast queue full, dropping %T", data)
	}
	return nil
}

// Close disconnects every client and shuts the server down.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		wsLog.Infof("Closing server")
		close(wst.done)

		wst.clientsMu.Lock()
		for client := range wst.clients {
			_ = client.Close()
		}
		clear(wst.clients)
		wst.clientsMu.Unlock()

		if wst.server != nil {
			err = wst.server.Close()
		}
	})
	return err
}

var (
	_ Transport    = (*WebSocketTransport)(nil)
	_ http.Handler = (*WebSocketTransport)(nil)
)
