// Package web serves a WebSocket chat endpoint so a browser page can
// talk to the agent. Each connection is its own conversation.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rotbotlabs/rotbot/internal/bus"
	"github.com/rotbotlabs/rotbot/internal/channels"
	"github.com/rotbotlabs/rotbot/internal/config"
)

// connRateLimit bounds connection attempts per client IP per minute.
const connRateLimit = 30

// frame is the wire format both directions. Inbound frames carry
// content; outbound frames are streaming chunks or the final reply.
type frame struct {
	Type        string `json:"type,omitempty"`
	Content     string `json:"content,omitempty"`
	Chunk       string `json:"chunk,omitempty"`
	Accumulated string `json:"accumulated,omitempty"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes
}

func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Channel is the browser chat adapter.
type Channel struct {
	*channels.BaseChannel
	config   config.WebConfig
	upgrader websocket.Upgrader
	limiter  *channels.ConnRateLimiter

	mu      sync.RWMutex
	clients map[string]*client

	server       *http.Server
	serveDone    chan struct{}
	addr         string
	shutdownOnce sync.Once
}

// New creates the web channel from config.
func New(cfg config.WebConfig, msgBus *bus.MessageBus) *Channel {
	return &Channel{
		BaseChannel: channels.NewBaseChannel("web", msgBus),
		config:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Local single-user endpoint; the browser page is served
			// from anywhere (file://, localhost).
			CheckOrigin: func(*http.Request) bool { return true },
		},
		limiter: channels.NewConnRateLimiter(connRateLimit, time.Minute),
		clients: make(map[string]*client),
	}
}

// Start binds the listener and serves the WebSocket endpoint.
func (c *Channel) Start(ctx context.Context) error {
	host := c.config.Host
	if host == "" {
		host = "127.0.0.1"
	}
	addr := fmt.Sprintf("%s:%d", host, c.config.Port)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", c.handleWS)
	mux.HandleFunc("/health", c.handleHealth)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("web channel listen on %s: %w", addr, err)
	}
	c.addr = ln.Addr().String()
	c.server = &http.Server{Handler: mux}
	c.serveDone = make(chan struct{})

	go func() {
		defer close(c.serveDone)
		if err := c.server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("web channel server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		c.shutdown()
	}()

	c.SetRunning(true)
	slog.Info("web channel listening", "addr", c.addr)
	return nil
}

// Stop shuts the HTTP server down and waits for it to finish.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)
	c.shutdown()
	if c.serveDone != nil {
		<-c.serveDone
	}
	return nil
}

// Addr returns the bound listen address, useful when the configured port
// is 0.
func (c *Channel) Addr() string {
	return c.addr
}

func (c *Channel) shutdown() {
	c.shutdownOnce.Do(func() {
		if c.server == nil {
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.server.Shutdown(shutdownCtx)
	})
}

func (c *Channel) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"ok","channel":"web"}`)
}

// handleWS upgrades the connection and reads user messages until the
// client goes away. Each connection gets a fresh chat ID, so a page
// reload starts a new conversation.
func (c *Channel) handleWS(w http.ResponseWriter, r *http.Request) {
	if !c.limiter.Allow(remoteIP(r)) {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	chatID := uuid.NewString()
	cl := &client{conn: conn}

	c.mu.Lock()
	c.clients[chatID] = cl
	c.mu.Unlock()
	slog.Info("web client connected", "chat_id", chatID, "remote", r.RemoteAddr)

	defer func() {
		c.mu.Lock()
		delete(c.clients, chatID)
		c.mu.Unlock()
		conn.Close()
		slog.Info("web client disconnected", "chat_id", chatID)
	}()

	for {
		var in frame
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		content := strings.TrimSpace(in.Content)
		if content == "" {
			continue
		}
		c.PublishInbound(chatID, chatID, content, nil, map[string]string{
			"remote_addr": r.RemoteAddr,
		})
	}
}

func (c *Channel) lookup(chatID string) *client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clients[chatID]
}

// SendMessage delivers the finished reply to the connection that owns
// the chat. A missing client means the browser already left.
func (c *Channel) SendMessage(_ context.Context, chatID, content string) error {
	cl := c.lookup(chatID)
	if cl == nil {
		slog.Warn("no web client for chat", "chat_id", chatID)
		return nil
	}
	return cl.writeJSON(frame{Type: "final", Content: content})
}

// SendStreamChunk forwards each streaming chunk to the client; browsers
// render the growing text themselves.
func (c *Channel) SendStreamChunk(_ context.Context, chunk bus.StreamChunk) error {
	if chunk.IsFinal {
		return nil
	}
	cl := c.lookup(chunk.ChatID)
	if cl == nil {
		return nil
	}
	return cl.writeJSON(frame{Type: "chunk", Chunk: chunk.Chunk, Accumulated: chunk.Accumulated})
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
