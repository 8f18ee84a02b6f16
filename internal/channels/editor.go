package channels

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/rotbotlabs/rotbot/internal/bus"
)

// streamCursor marks a live-edited message as still being generated.
const streamCursor = " ▌"

// Editable is the platform surface a StreamEditor drives. Adapters whose
// platform supports editing sent messages (Telegram, Discord) implement
// it and hand themselves to NewStreamEditor.
type Editable interface {
	// SendText posts a new message and returns the platform message ID.
	SendText(ctx context.Context, chatID, text string) (string, error)

	// EditText replaces the text of a previously sent message.
	EditText(ctx context.Context, chatID, messageID, text string) error

	// FinalizeText applies the finished reply to the streamed message,
	// with whatever formatting the platform uses for final output.
	FinalizeText(ctx context.Context, chatID, messageID, text string) error

	// SendFinal delivers a finished reply from scratch, splitting at the
	// platform cap as needed.
	SendFinal(ctx context.Context, chatID, text string) error
}

// textDeleter is implemented by platforms that remove the streamed
// preview before re-sending an oversized final reply (Discord does,
// Telegram leaves the preview in place).
type textDeleter interface {
	DeleteText(ctx context.Context, chatID, messageID string) error
}

// StreamEditor maintains one live-edited preview message per chat. Stream
// chunks update the preview with a trailing cursor glyph, throttled to
// the platform's edit interval; the finished reply replaces it in place
// when it fits the platform cap, and falls back to a split send when it
// doesn't.
//
// The outbound router drives Apply and Finalize from a single goroutine;
// the mutex only guards the stream map.
type StreamEditor struct {
	target   Editable
	limit    int
	interval time.Duration

	mu      sync.Mutex
	streams map[string]*editStream
}

type editStream struct {
	messageID string
	limiter   *rate.Limiter
}

// NewStreamEditor creates an editor for target with the given message cap
// (in runes) and minimum delay between streaming edits.
func NewStreamEditor(target Editable, limit int, interval time.Duration) *StreamEditor {
	return &StreamEditor{
		target:   target,
		limit:    limit,
		interval: interval,
		streams:  make(map[string]*editStream),
	}
}

// Apply processes one streaming chunk: create the preview message on the
// first visible text, then keep editing it as the reply grows. Edit
// failures are logged at debug and never fail the stream.
func (e *StreamEditor) Apply(ctx context.Context, chunk bus.StreamChunk) error {
	if chunk.IsFinal {
		return e.Finalize(ctx, chunk.ChatID, chunk.Accumulated)
	}

	text := truncateRunes(chunk.Accumulated, e.limit)
	if strings.TrimSpace(text) == "" {
		return nil
	}

	st := e.stream(chunk.ChatID)
	if !st.limiter.Allow() {
		return nil
	}

	if st.messageID == "" {
		id, err := e.target.SendText(ctx, chunk.ChatID, text+streamCursor)
		if err != nil {
			slog.Debug("stream message send failed", "chat_id", chunk.ChatID, "error", err)
			return nil
		}
		st.messageID = id
		return nil
	}

	if err := e.target.EditText(ctx, chunk.ChatID, st.messageID, text+streamCursor); err != nil {
		slog.Debug("stream message edit failed", "chat_id", chunk.ChatID, "error", err)
	}
	return nil
}

// Finalize completes the live preview for chatID with the finished reply:
// edit in place when it fits the platform cap, otherwise fall back to a
// split send (deleting the preview first on platforms that support it).
// Without an active preview the reply is sent fresh.
func (e *StreamEditor) Finalize(ctx context.Context, chatID, finalText string) error {
	messageID, active := e.take(chatID)

	if !active {
		if finalText == "" {
			return nil
		}
		return e.target.SendFinal(ctx, chatID, finalText)
	}

	if finalText == "" {
		e.deletePreview(ctx, chatID, messageID)
		return nil
	}

	if utf8.RuneCountInString(finalText) <= e.limit {
		err := e.target.FinalizeText(ctx, chatID, messageID, finalText)
		if err == nil {
			return nil
		}
		slog.Debug("final edit failed, sending fresh message", "chat_id", chatID, "error", err)
		return e.target.SendFinal(ctx, chatID, finalText)
	}

	e.deletePreview(ctx, chatID, messageID)
	return e.target.SendFinal(ctx, chatID, finalText)
}

// stream returns the live state for chatID, creating it on first use.
func (e *StreamEditor) stream(chatID string) *editStream {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.streams[chatID]
	if !ok {
		st = &editStream{limiter: rate.NewLimiter(rate.Every(e.interval), 1)}
		e.streams[chatID] = st
	}
	return st
}

// take removes and returns the preview message ID for chatID. The second
// return is false when no preview message was ever sent.
func (e *StreamEditor) take(chatID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.streams[chatID]
	if !ok {
		return "", false
	}
	delete(e.streams, chatID)
	return st.messageID, st.messageID != ""
}

func (e *StreamEditor) deletePreview(ctx context.Context, chatID, messageID string) {
	d, ok := e.target.(textDeleter)
	if !ok {
		return
	}
	if err := d.DeleteText(ctx, chatID, messageID); err != nil {
		slog.Debug("stream message delete failed", "chat_id", chatID, "error", err)
	}
}

// truncateRunes caps text at limit runes, marking the cut with "...".
func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-3]) + "..."
}
