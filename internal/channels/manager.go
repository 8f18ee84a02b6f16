package channels

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rotbotlabs/rotbot/internal/bus"
)

// routePollInterval bounds how long the outbound router waits on an empty
// queue before rechecking for shutdown.
const routePollInterval = 100 * time.Millisecond

// Manager owns the registered adapters: it starts and stops them and
// routes outbound bus artifacts to the adapter named on each one.
type Manager struct {
	bus *bus.MessageBus

	mu       sync.RWMutex
	channels map[string]Channel
	order    []string

	wmu     sync.Mutex
	waiters map[string]chan struct{}

	routeCancel context.CancelFunc
	routeDone   chan struct{}
}

// NewManager creates a channel manager. Adapters are added via Register.
func NewManager(msgBus *bus.MessageBus) *Manager {
	return &Manager{
		bus:      msgBus,
		channels: make(map[string]Channel),
		waiters:  make(map[string]chan struct{}),
	}
}

// Register adds an adapter under its own name. Re-registering a name
// replaces the previous adapter.
func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := ch.Name()
	if _, exists := m.channels[name]; !exists {
		m.order = append(m.order, name)
	}
	m.channels[name] = ch
	slog.Info("registered channel", "channel", name)
}

// Names returns registered adapter names in registration order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Running reports the running state of each registered adapter.
func (m *Manager) Running() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state := make(map[string]bool, len(m.channels))
	for name, ch := range m.channels {
		state[name] = ch.IsRunning()
	}
	return state
}

// StartAll launches the outbound router and starts every registered
// adapter. An adapter that fails to start is logged and skipped; the
// rest keep running.
func (m *Manager) StartAll(ctx context.Context) error {
	routeCtx, cancel := context.WithCancel(ctx)
	m.routeCancel = cancel
	m.routeDone = make(chan struct{})
	go m.route(routeCtx)

	chs := m.snapshot()
	if len(chs) == 0 {
		slog.Warn("no channels enabled")
		return nil
	}

	for _, ch := range chs {
		if err := ch.Start(ctx); err != nil {
			slog.Error("failed to start channel", "channel", ch.Name(), "error", err)
			continue
		}
		slog.Info("channel started", "channel", ch.Name())
	}
	return nil
}

// StopAll shuts down the router and every adapter.
func (m *Manager) StopAll(ctx context.Context) error {
	if m.routeCancel != nil {
		m.routeCancel()
		<-m.routeDone
		m.routeCancel = nil
	}

	for _, ch := range m.snapshot() {
		if err := ch.Stop(ctx); err != nil {
			slog.Error("error stopping channel", "channel", ch.Name(), "error", err)
		}
	}
	return nil
}

// TurnDone returns a channel that receives one signal each time a final
// reply for sessionKey has been delivered. The CLI adapter and one-shot
// mode use it to know when a turn is complete.
func (m *Manager) TurnDone(sessionKey string) <-chan struct{} {
	m.wmu.Lock()
	defer m.wmu.Unlock()

	ch, ok := m.waiters[sessionKey]
	if !ok {
		ch = make(chan struct{}, 1)
		m.waiters[sessionKey] = ch
	}
	return ch
}

func (m *Manager) signalTurnDone(sessionKey string) {
	m.wmu.Lock()
	ch, ok := m.waiters[sessionKey]
	m.wmu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// route consumes outbound artifacts and dispatches them until ctx ends.
func (m *Manager) route(ctx context.Context) {
	defer close(m.routeDone)
	slog.Info("outbound router started")

	for {
		select {
		case <-ctx.Done():
			slog.Info("outbound router stopped")
			return
		default:
		}

		art, ok := m.bus.ConsumeOutbound(routePollInterval)
		if !ok {
			continue
		}
		m.dispatch(ctx, art)
	}
}

// dispatch routes one artifact: stream chunks go to SendStreamChunk,
// final messages to SendMessage followed by the turn-done signal.
// Non-final OutboundMessages are reserved for future use and dropped.
func (m *Manager) dispatch(ctx context.Context, art bus.Artifact) {
	name := art.ArtifactChannel()

	m.mu.RLock()
	ch, exists := m.channels[name]
	m.mu.RUnlock()

	if !exists {
		slog.Warn("no channel for outbound message", "channel", name)
		return
	}

	switch msg := art.(type) {
	case bus.StreamChunk:
		if err := ch.SendStreamChunk(ctx, msg); err != nil {
			slog.Error("failed to route to channel", "channel", name, "error", err)
		}

	case bus.OutboundMessage:
		if !msg.IsFinal {
			slog.Debug("non-final outbound message dropped", "channel", name, "chat_id", msg.ChatID)
			return
		}
		if err := ch.SendMessage(ctx, msg.ChatID, msg.Content); err != nil {
			slog.Error("failed to route to channel", "channel", name, "error", err)
		}
		m.signalTurnDone(name + ":" + msg.ChatID)

	default:
		slog.Warn("unknown outbound artifact type", "channel", name)
	}
}

func (m *Manager) snapshot() []Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chs := make([]Channel, 0, len(m.channels))
	for _, name := range m.order {
		chs = append(chs, m.channels[name])
	}
	return chs
}
