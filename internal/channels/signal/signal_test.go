package signal

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rotbotlabs/rotbot/internal/bus"
	"github.com/rotbotlabs/rotbot/internal/config"
)

const testGroupID = "Z3JvdXAtaWRlbnRpZmllci1sb25n" // >20 chars, like real group IDs

// fakeDaemon stands in for signal-cli: accepts the channel's connection,
// captures written JSON-RPC lines and can push notifications.
type fakeDaemon struct {
	ln    net.Listener
	mu    sync.Mutex
	conns []net.Conn
	lines chan map[string]any
}

func newFakeDaemon(t *testing.T) *fakeDaemon {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d := &fakeDaemon{ln: ln, lines: make(chan map[string]any, 16)}
	go d.acceptLoop()
	t.Cleanup(func() { ln.Close() })
	return d
}

func (d *fakeDaemon) acceptLoop() {
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return
		}
		d.mu.Lock()
		d.conns = append(d.conns, conn)
		d.mu.Unlock()

		go func(c net.Conn) {
			reader := bufio.NewReader(c)
			for {
				line, err := reader.ReadBytes('\n')
				if err != nil {
					return
				}
				var req map[string]any
				if json.Unmarshal(line, &req) == nil {
					d.lines <- req
				}
			}
		}(conn)
	}
}

func (d *fakeDaemon) port() int {
	return d.ln.Addr().(*net.TCPAddr).Port
}

// push writes one notification line to the connected channel.
func (d *fakeDaemon) push(t *testing.T, line string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		d.mu.Lock()
		n := len(d.conns)
		d.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		t.Fatal("channel never connected")
	}
	if _, err := d.conns[0].Write([]byte(line + "\n")); err != nil {
		t.Fatalf("push: %v", err)
	}
}

// expect reads the next JSON-RPC request the channel wrote.
func (d *fakeDaemon) expect(t *testing.T) map[string]any {
	t.Helper()
	select {
	case req := <-d.lines:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("no request written to daemon")
		return nil
	}
}

func newTestChannel(t *testing.T) (*Channel, *bus.MessageBus, *fakeDaemon) {
	t.Helper()
	daemon := newFakeDaemon(t)

	msgBus := bus.New()
	t.Cleanup(msgBus.Stop)

	cfg := config.SignalConfig{Phone: "+15550001111", Host: "127.0.0.1", Port: daemon.port()}
	c := New(cfg, msgBus, nil)
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { c.Stop(context.Background()) })
	return c, msgBus, daemon
}

// TestChannel_ReceivesDirectMessage verifies a daemon receive
// notification becomes an inbound message keyed by the sender.
func TestChannel_ReceivesDirectMessage(t *testing.T) {
	_, msgBus, daemon := newTestChannel(t)

	daemon.push(t, `{"jsonrpc":"2.0","method":"receive","params":{"envelope":{"source":"+15557654321","dataMessage":{"message":"hello"}}}}`)

	msg, ok := msgBus.ConsumeInbound(2 * time.Second)
	if !ok {
		t.Fatal("expected inbound message")
	}
	if msg.Channel != "signal" || msg.ChatID != "+15557654321" || msg.UserID != "+15557654321" {
		t.Errorf("unexpected identity: %+v", msg)
	}
	if msg.Content != "hello" {
		t.Errorf("expected hello, got %q", msg.Content)
	}
	if msg.Metadata["is_group"] != "false" {
		t.Errorf("expected direct message metadata, got %v", msg.Metadata)
	}
}

// TestChannel_ReceivesGroupMessage verifies group messages are keyed by
// the group ID with the sender preserved as the user.
func TestChannel_ReceivesGroupMessage(t *testing.T) {
	_, msgBus, daemon := newTestChannel(t)

	daemon.push(t, `{"jsonrpc":"2.0","method":"receive","params":{"envelope":{"source":"+15557654321","dataMessage":{"message":"hi all","groupInfo":{"groupId":"`+testGroupID+`"}}}}}`)

	msg, ok := msgBus.ConsumeInbound(2 * time.Second)
	if !ok {
		t.Fatal("expected inbound message")
	}
	if msg.ChatID != testGroupID {
		t.Errorf("expected group chat id, got %q", msg.ChatID)
	}
	if msg.UserID != "+15557654321" {
		t.Errorf("expected sender as user, got %q", msg.UserID)
	}
	if msg.Metadata["is_group"] != "true" || msg.Metadata["group_id"] != testGroupID {
		t.Errorf("unexpected metadata: %v", msg.Metadata)
	}
}

// TestChannel_IgnoresOtherNotifications verifies non-receive methods,
// empty messages and unparseable lines are skipped.
func TestChannel_IgnoresOtherNotifications(t *testing.T) {
	_, msgBus, daemon := newTestChannel(t)

	daemon.push(t, `{"jsonrpc":"2.0","method":"listAccounts","params":{}}`)
	daemon.push(t, `not json at all`)
	daemon.push(t, `{"jsonrpc":"2.0","method":"receive","params":{"envelope":{"source":"+15557654321","dataMessage":{"message":""}}}}`)
	daemon.push(t, `{"jsonrpc":"2.0","method":"receive","params":{"envelope":{"source":"+15557654321","dataMessage":{"message":"kept"}}}}`)

	msg, ok := msgBus.ConsumeInbound(2 * time.Second)
	if !ok {
		t.Fatal("expected the real message")
	}
	if msg.Content != "kept" {
		t.Errorf("expected kept, got %q", msg.Content)
	}
	if n := msgBus.PendingInbound(); n != 0 {
		t.Errorf("expected no extra inbound messages, got %d", n)
	}
}

// TestChannel_SendDirect verifies direct sends use the recipient list
// form of the send RPC.
func TestChannel_SendDirect(t *testing.T) {
	c, _, daemon := newTestChannel(t)

	if err := c.SendMessage(context.Background(), "+15557654321", "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}

	req := daemon.expect(t)
	if req["method"] != "send" {
		t.Fatalf("expected send method, got %v", req["method"])
	}
	params := req["params"].(map[string]any)
	if params["account"] != "+15550001111" {
		t.Errorf("expected account, got %v", params["account"])
	}
	if params["message"] != "hi" {
		t.Errorf("expected message, got %v", params["message"])
	}
	recipients, ok := params["recipient"].([]any)
	if !ok || len(recipients) != 1 || recipients[0] != "+15557654321" {
		t.Errorf("expected recipient list, got %v", params["recipient"])
	}
	if _, hasGroup := params["groupId"]; hasGroup {
		t.Error("direct send should not carry groupId")
	}
}

// TestChannel_SendGroup verifies long recipients are treated as group
// IDs.
func TestChannel_SendGroup(t *testing.T) {
	c, _, daemon := newTestChannel(t)

	if err := c.SendMessage(context.Background(), testGroupID, "hi all"); err != nil {
		t.Fatalf("send: %v", err)
	}

	req := daemon.expect(t)
	params := req["params"].(map[string]any)
	if params["groupId"] != testGroupID {
		t.Errorf("expected groupId, got %v", params["groupId"])
	}
	if _, hasRecipient := params["recipient"]; hasRecipient {
		t.Error("group send should not carry recipient")
	}
}

// TestChannel_SplitsLongMessages verifies content over the cap goes out
// as multiple send RPCs.
func TestChannel_SplitsLongMessages(t *testing.T) {
	c, _, daemon := newTestChannel(t)

	long := strings.Repeat("a", messageLimit+500)
	if err := c.SendMessage(context.Background(), "+15557654321", long); err != nil {
		t.Fatalf("send: %v", err)
	}

	first := daemon.expect(t)
	second := daemon.expect(t)
	p1 := first["params"].(map[string]any)["message"].(string)
	p2 := second["params"].(map[string]any)["message"].(string)
	if len(p1) != messageLimit || len(p2) != 500 {
		t.Errorf("expected %d and 500 byte parts, got %d and %d", messageLimit, len(p1), len(p2))
	}
}

// TestChannel_StreamTypingThenFinal verifies streaming shows typing and
// the final chunk delivers the whole reply.
func TestChannel_StreamTypingThenFinal(t *testing.T) {
	c, _, daemon := newTestChannel(t)
	ctx := context.Background()

	c.SendStreamChunk(ctx, bus.StreamChunk{Channel: "signal", ChatID: "+15557654321", Chunk: "Hel", Accumulated: "Hel"})
	req := daemon.expect(t)
	if req["method"] != "sendTyping" {
		t.Fatalf("expected sendTyping, got %v", req["method"])
	}
	params := req["params"].(map[string]any)
	recipients, _ := params["recipient"].([]any)
	if len(recipients) != 1 || recipients[0] != "+15557654321" {
		t.Errorf("expected typing recipient, got %v", params["recipient"])
	}
	if params["groupId"] != "" {
		t.Errorf("expected empty groupId for direct typing, got %v", params["groupId"])
	}

	c.SendStreamChunk(ctx, bus.StreamChunk{Channel: "signal", ChatID: "+15557654321", IsFinal: true, Accumulated: "Hello there"})
	req = daemon.expect(t)
	if req["method"] != "send" {
		t.Fatalf("expected send on final, got %v", req["method"])
	}
	if got := req["params"].(map[string]any)["message"]; got != "Hello there" {
		t.Errorf("expected full accumulated text, got %v", got)
	}
}
