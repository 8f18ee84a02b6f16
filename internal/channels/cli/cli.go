// Package cli implements the interactive terminal channel. It reads
// prompts from stdin, publishes them on the message bus, and prints the
// streamed reply as it arrives.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rotbotlabs/rotbot/internal/bus"
	"github.com/rotbotlabs/rotbot/internal/channels"
)

// ChatID identifies the single terminal conversation; the session key
// is "cli:" + ChatID.
const ChatID = "cli_user"

// responseTimeout bounds how long the prompt blocks on one reply.
const responseTimeout = 180 * time.Second

var exitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

// TurnWaiter reports when the final reply for a session has been
// delivered, so the prompt can block until the turn finishes.
// *channels.Manager implements it.
type TurnWaiter interface {
	TurnDone(sessionKey string) <-chan struct{}
}

// Channel is the terminal adapter.
type Channel struct {
	*channels.BaseChannel

	waiter  TurnWaiter
	in      io.Reader
	out     io.Writer
	oneShot bool
	plain   bool

	mu        sync.Mutex
	streaming bool

	done chan struct{}
}

// New creates the terminal channel on stdin/stdout.
func New(msgBus *bus.MessageBus, waiter TurnWaiter) *Channel {
	return &Channel{
		BaseChannel: channels.NewBaseChannel("cli", msgBus),
		waiter:      waiter,
		in:          os.Stdin,
		out:         os.Stdout,
		done:        make(chan struct{}),
	}
}

// NewOneShot creates a terminal channel that only prints replies: no
// banner and no prompt loop. Single-message mode uses it to stream one
// answer to stdout.
func NewOneShot(msgBus *bus.MessageBus) *Channel {
	c := New(msgBus, nil)
	c.oneShot = true
	return c
}

// SetPlain strips the markdown bold markers from final replies, for
// terminals or pipes that render raw text.
func (c *Channel) SetPlain(plain bool) {
	c.plain = plain
}

// Start prints the banner and spawns the read loop. In one-shot mode it
// only marks the channel running.
func (c *Channel) Start(ctx context.Context) error {
	c.SetRunning(true)
	if c.oneShot {
		return nil
	}

	fmt.Fprintln(c.out, "\nrotbot - the open agent framework for every platform")
	fmt.Fprintln(c.out, "Type 'exit' to quit, '/help' for commands")
	fmt.Fprintln(c.out)

	go c.repl(ctx)
	return nil
}

// Stop ends the read loop at the next prompt.
func (c *Channel) Stop(ctx context.Context) error {
	c.SetRunning(false)
	return nil
}

// Done is closed when the user exits the prompt, so the command can shut
// the rest of the runtime down.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

func (c *Channel) repl(ctx context.Context) {
	defer close(c.done)

	reader := bufio.NewReader(c.in)
	for c.IsRunning() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		fmt.Fprint(c.out, "You: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Fprintln(c.out, "\nGoodbye!")
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if exitCommands[strings.ToLower(input)] {
			fmt.Fprintln(c.out, "\nGoodbye!")
			return
		}

		// Grab the waiter before publishing so the completion signal
		// cannot be missed.
		var turnDone <-chan struct{}
		if c.waiter != nil {
			turnDone = c.waiter.TurnDone("cli:" + ChatID)
		}

		c.PublishInbound(ChatID, ChatID, input, nil, nil)

		if turnDone == nil {
			continue
		}
		select {
		case <-turnDone:
		case <-ctx.Done():
			return
		case <-time.After(responseTimeout):
			// Give up on this turn and return to the prompt.
		}
	}
}

// SendMessage prints the finished reply, terminating any partial
// streamed line first. The full text is printed even after streaming so
// the final rendering (stats tail included) appears in one block.
func (c *Channel) SendMessage(_ context.Context, _ string, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.streaming {
		fmt.Fprintln(c.out)
		c.streaming = false
	}
	if c.plain {
		content = strings.ReplaceAll(content, "**", "")
	}
	fmt.Fprintf(c.out, "\n%s\n\n", content)
	return nil
}

// SendStreamChunk prints the incremental delta in place.
func (c *Channel) SendStreamChunk(_ context.Context, chunk bus.StreamChunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if chunk.IsFinal {
		if c.streaming {
			fmt.Fprintln(c.out)
			c.streaming = false
		}
		return nil
	}
	if chunk.Chunk == "" {
		return nil
	}
	fmt.Fprint(c.out, chunk.Chunk)
	c.streaming = true
	return nil
}
