// Package signal connects the agent to Signal through a signal-cli
// daemon speaking newline-delimited JSON-RPC over TCP. Signal cannot
// edit sent messages, so streaming shows a typing indicator and the
// reply is delivered whole.
package signal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rotbotlabs/rotbot/internal/bus"
	"github.com/rotbotlabs/rotbot/internal/channels"
	"github.com/rotbotlabs/rotbot/internal/config"
)

const (
	// messageLimit caps one Signal message.
	messageLimit = 4000

	// reconnectDelay spaces reconnection attempts to the daemon.
	reconnectDelay = 5 * time.Second
)

// isGroupID distinguishes group chats from direct ones. Group IDs are
// long base64 strings; phone numbers never exceed 20 characters.
func isGroupID(recipient string) bool {
	return len(recipient) > 20
}

// Channel connects to a signal-cli JSON-RPC daemon.
type Channel struct {
	*channels.BaseChannel
	config config.SignalConfig
	gate   *channels.Gate
	addr   string

	mu        sync.Mutex
	conn      net.Conn
	requestID int

	listenCancel context.CancelFunc
	listenDone   chan struct{}
}

// rpcNotification is the subset of signal-cli's receive notification the
// channel consumes.
type rpcNotification struct {
	Method string `json:"method"`
	Params struct {
		Envelope struct {
			Source      string `json:"source"`
			DataMessage struct {
				Message   string `json:"message"`
				GroupInfo struct {
					GroupID string `json:"groupId"`
				} `json:"groupInfo"`
			} `json:"dataMessage"`
		} `json:"envelope"`
	} `json:"params"`
}

// New creates a Signal channel from config. gate may be nil to admit
// every sender.
func New(cfg config.SignalConfig, msgBus *bus.MessageBus, gate *channels.Gate) *Channel {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 7583
	}

	return &Channel{
		BaseChannel: channels.NewBaseChannel("signal", msgBus),
		config:      cfg,
		gate:        gate,
		addr:        net.JoinHostPort(host, strconv.Itoa(port)),
	}
}

// Start connects to the signal-cli daemon and begins listening.
func (c *Channel) Start(ctx context.Context) error {
	if err := c.connect(); err != nil {
		return fmt.Errorf("connect to signal-cli at %s: %w", c.addr, err)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	c.listenCancel = cancel
	c.listenDone = make(chan struct{})
	go c.listenLoop(listenCtx)

	c.SetRunning(true)
	slog.Info("signal channel connected", "addr", c.addr)
	return nil
}

// Stop closes the daemon connection and waits for the listener to exit.
func (c *Channel) Stop(_ context.Context) error {
	c.SetRunning(false)

	if c.listenCancel != nil {
		c.listenCancel()
	}
	c.dropConn()

	if c.listenDone != nil {
		select {
		case <-c.listenDone:
		case <-time.After(5 * time.Second):
			slog.Warn("signal listener did not exit within timeout")
		}
	}
	return nil
}

func (c *Channel) connect() error {
	conn, err := net.Dial("tcp", c.addr)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

func (c *Channel) currentConn() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Channel) dropConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// listenLoop reads daemon notifications, reconnecting with a delay when
// the connection drops.
func (c *Channel) listenLoop(ctx context.Context) {
	defer close(c.listenDone)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn := c.currentConn()
		if conn == nil {
			if err := c.connect(); err != nil {
				slog.Warn("signal connection failed, retrying", "addr", c.addr, "error", err)
				if !sleepCtx(ctx, reconnectDelay) {
					return
				}
				continue
			}
			conn = c.currentConn()
		}

		reader := bufio.NewReader(conn)
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("signal connection closed, reconnecting")
				c.dropConn()
				if !sleepCtx(ctx, reconnectDelay) {
					return
				}
				break
			}
			c.handleLine(line)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (c *Channel) handleLine(line []byte) {
	var note rpcNotification
	if err := json.Unmarshal(line, &note); err != nil {
		// Not every daemon line is a notification; skip quietly.
		return
	}
	if note.Method != "receive" {
		return
	}

	message := note.Params.Envelope.DataMessage.Message
	if message == "" {
		return
	}

	source := note.Params.Envelope.Source
	groupID := note.Params.Envelope.DataMessage.GroupInfo.GroupID

	chatID := source
	if groupID != "" {
		chatID = groupID
	}

	if !c.gate.Allowed(source) {
		if c.gate.RequestAccess(source, nil) {
			if err := c.SendMessage(context.Background(), chatID, c.gate.PendingReply(source)); err != nil {
				slog.Warn("signal pending reply failed", "user_id", source, "error", err)
			}
		}
		return
	}

	c.PublishInbound(chatID, source, message, nil, map[string]string{
		"is_group": strconv.FormatBool(groupID != ""),
		"group_id": groupID,
	})
}

// SendMessage delivers content, split at the message cap. Failed parts
// are logged and the rest are still attempted.
func (c *Channel) SendMessage(_ context.Context, chatID, content string) error {
	for _, part := range channels.SplitMessage(content, messageLimit) {
		params := map[string]any{
			"account": c.config.Phone,
			"message": part,
		}
		if isGroupID(chatID) {
			params["groupId"] = chatID
		} else {
			params["recipient"] = []string{chatID}
		}
		if err := c.call("send", params); err != nil {
			slog.Error("signal send failed", "chat_id", chatID, "error", err)
		}
	}
	return nil
}

// SendStreamChunk shows a typing indicator while the reply is generated
// and sends the whole text when the stream finishes.
func (c *Channel) SendStreamChunk(ctx context.Context, chunk bus.StreamChunk) error {
	if !chunk.IsFinal {
		_ = c.sendTyping(chunk.ChatID)
	}
	return c.BufferUntilFinal(ctx, chunk, c.SendMessage)
}

func (c *Channel) sendTyping(recipient string) error {
	params := map[string]any{
		"account":   c.config.Phone,
		"recipient": []string{},
		"groupId":   "",
	}
	if isGroupID(recipient) {
		params["groupId"] = recipient
	} else {
		params["recipient"] = []string{recipient}
	}
	return c.call("sendTyping", params)
}

// call writes one JSON-RPC request to the daemon.
func (c *Channel) call(method string, params map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("signal: not connected")
	}

	c.requestID++
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      c.requestID,
		"method":  method,
		"params":  params,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("signal %s: %w", method, err)
	}
	data = append(data, '\n')
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("signal %s: %w", method, err)
	}
	return nil
}
