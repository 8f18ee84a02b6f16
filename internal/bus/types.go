package bus

import "time"

// InboundMessage is a normalized user event from any channel adapter.
type InboundMessage struct {
	Channel   string            `json:"channel"`
	ChatID    string            `json:"chat_id"`
	UserID    string            `json:"user_id"`
	Content   string            `json:"content"`
	Media     []string          `json:"media,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// SessionKey identifies the conversation scope of this message.
func (m InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// OutboundMessage is a complete agent reply bound for a channel adapter.
type OutboundMessage struct {
	Channel   string            `json:"channel"`
	ChatID    string            `json:"chat_id"`
	Content   string            `json:"content"`
	IsFinal   bool              `json:"is_final"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// StreamChunk is an incremental piece of an in-progress agent reply.
// Chunk carries the newly arrived delta; Accumulated the full text so far.
type StreamChunk struct {
	Channel     string `json:"channel"`
	ChatID      string `json:"chat_id"`
	Chunk       string `json:"chunk"`
	Accumulated string `json:"accumulated"`
	IsFinal     bool   `json:"is_final"`
}

// Artifact is anything the outbound queue can carry: a StreamChunk or a
// final OutboundMessage. The router dispatches on the concrete type.
type Artifact interface {
	ArtifactChannel() string
	ArtifactChatID() string
}

func (m OutboundMessage) ArtifactChannel() string { return m.Channel }
func (m OutboundMessage) ArtifactChatID() string  { return m.ChatID }

func (c StreamChunk) ArtifactChannel() string { return c.Channel }
func (c StreamChunk) ArtifactChatID() string  { return c.ChatID }
