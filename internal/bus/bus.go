// Package bus provides the in-memory message queues that connect channel
// adapters to the agent loop. Two unbounded FIFOs: inbound carries user
// events toward the agent, outbound carries stream chunks and final
// replies back toward the adapters.
package bus

import (
	"sync"
	"time"
)

// DefaultConsumeTimeout is how long consumers block before returning empty.
const DefaultConsumeTimeout = 1 * time.Second

// MessageBus is safe for concurrent use. Producers may be many; one
// consumer goroutine per direction is expected (the agent loop for
// inbound, the channel manager for outbound).
type MessageBus struct {
	mu       sync.Mutex
	cond     *sync.Cond
	inbound  []InboundMessage
	outbound []Artifact
	stopped  bool
}

func New() *MessageBus {
	b := &MessageBus{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// PublishInbound enqueues a user event. No-op after Stop.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.inbound = append(b.inbound, msg)
	b.cond.Broadcast()
}

// PublishOutbound enqueues a stream chunk or final reply. No-op after Stop.
func (b *MessageBus) PublishOutbound(art Artifact) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.outbound = append(b.outbound, art)
	b.cond.Broadcast()
}

// ConsumeInbound pops the oldest inbound message, blocking up to timeout.
// Returns ok=false when the timeout expires or the bus is stopped.
func (b *MessageBus) ConsumeInbound(timeout time.Duration) (InboundMessage, bool) {
	deadline := time.Now().Add(timeout)

	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.inbound) == 0 {
		if b.stopped || !time.Now().Before(deadline) {
			return InboundMessage{}, false
		}
		b.timedWait(deadline)
	}
	msg := b.inbound[0]
	b.inbound = b.inbound[1:]
	return msg, true
}

// ConsumeOutbound pops the oldest outbound artifact, blocking up to timeout.
// Returns ok=false when the timeout expires or the bus is stopped.
func (b *MessageBus) ConsumeOutbound(timeout time.Duration) (Artifact, bool) {
	deadline := time.Now().Add(timeout)

	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.outbound) == 0 {
		if b.stopped || !time.Now().Before(deadline) {
			return nil, false
		}
		b.timedWait(deadline)
	}
	art := b.outbound[0]
	b.outbound = b.outbound[1:]
	return art, true
}

// timedWait blocks on the condition until signalled or the deadline passes.
// Caller must hold b.mu and re-check its predicate afterwards.
//
// sync.Cond has no timed wait, so a helper timer pokes the condition at
// the deadline. The extra broadcast is harmless: waiters re-check their
// predicate and deadline.
func (b *MessageBus) timedWait(deadline time.Time) {
	timer := time.AfterFunc(time.Until(deadline), func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	b.cond.Wait()
	timer.Stop()
}

// PendingInbound reports the number of queued inbound messages.
func (b *MessageBus) PendingInbound() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.inbound)
}

// PendingOutbound reports the number of queued outbound artifacts.
func (b *MessageBus) PendingOutbound() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.outbound)
}

// Stop unblocks all pending consumers and rejects further publishes.
// Idempotent. Queued messages are discarded.
func (b *MessageBus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	b.inbound = nil
	b.outbound = nil
	b.cond.Broadcast()
}

// Stopped reports whether Stop has been called.
func (b *MessageBus) Stopped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopped
}
