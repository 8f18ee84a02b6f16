// Package channels provides the adapter layer between chat platforms and
// the message bus. Each adapter converts platform events into
// bus.InboundMessage values and delivers OutboundMessage/StreamChunk
// traffic back to the platform. The Manager owns adapter lifecycle and
// routes outbound artifacts to the right adapter.
package channels

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotbotlabs/rotbot/internal/bus"
)

// Channel is the contract every platform adapter satisfies.
type Channel interface {
	// Name returns the adapter identifier (e.g. "telegram", "cli").
	Name() string

	// Start begins listening for platform events. Non-blocking after setup.
	Start(ctx context.Context) error

	// Stop shuts the adapter down gracefully.
	Stop(ctx context.Context) error

	// SendMessage delivers a finished reply to a chat.
	SendMessage(ctx context.Context, chatID, content string) error

	// SendStreamChunk handles an in-progress reply fragment.
	SendStreamChunk(ctx context.Context, chunk bus.StreamChunk) error

	// IsRunning reports whether the adapter is actively processing.
	IsRunning() bool
}

// BaseChannel carries the state every adapter shares. Adapter structs
// embed it and implement the platform-specific methods themselves.
type BaseChannel struct {
	name    string
	bus     *bus.MessageBus
	running atomic.Bool
}

// NewBaseChannel creates the shared adapter core.
func NewBaseChannel(name string, msgBus *bus.MessageBus) *BaseChannel {
	return &BaseChannel{name: name, bus: msgBus}
}

// Name returns the adapter identifier.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning reports whether the adapter is running.
func (c *BaseChannel) IsRunning() bool { return c.running.Load() }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running.Store(running) }

// Bus returns the message bus reference.
func (c *BaseChannel) Bus() *bus.MessageBus { return c.bus }

// PublishInbound forwards a received platform message to the bus.
func (c *BaseChannel) PublishInbound(chatID, userID, content string, media []string, metadata map[string]string) {
	c.bus.PublishInbound(bus.InboundMessage{
		Channel:   c.name,
		ChatID:    chatID,
		UserID:    userID,
		Content:   content,
		Media:     media,
		Metadata:  metadata,
		Timestamp: time.Now(),
	})
}

// BufferUntilFinal is the default streaming strategy for platforms without
// message editing: intermediate chunks are dropped and the accumulated
// text is delivered via send once the final chunk arrives.
func (c *BaseChannel) BufferUntilFinal(ctx context.Context, chunk bus.StreamChunk, send func(ctx context.Context, chatID, content string) error) error {
	if !chunk.IsFinal {
		return nil
	}
	return send(ctx, chunk.ChatID, chunk.Accumulated)
}

// Truncate shortens a string to maxLen runes, appending "..." if truncated.
// Used for log previews of message content.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
