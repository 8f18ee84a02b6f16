// Package telegram connects the agent to Telegram via the Bot API,
// streaming replies into a live-edited message.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/rotbotlabs/rotbot/internal/bus"
	"github.com/rotbotlabs/rotbot/internal/channels"
	"github.com/rotbotlabs/rotbot/internal/config"
)

const (
	// messageLimit is Telegram's message length cap, minus headroom.
	messageLimit = 4000

	// editInterval throttles live edits of the streaming preview.
	editInterval = time.Second
)

// Channel connects to Telegram via the Bot API using long polling.
type Channel struct {
	*channels.BaseChannel
	bot    *telego.Bot
	config config.TelegramConfig
	gate   *channels.Gate
	editor *channels.StreamEditor

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New creates a Telegram channel from config. gate may be nil to admit
// every sender.
func New(cfg config.TelegramConfig, msgBus *bus.MessageBus, gate *channels.Gate) (*Channel, error) {
	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	c := &Channel{
		BaseChannel: channels.NewBaseChannel("telegram", msgBus),
		bot:         bot,
		config:      cfg,
		gate:        gate,
	}
	c.editor = channels.NewStreamEditor(c, messageLimit, editInterval)
	return c, nil
}

// Start begins long polling for Telegram updates.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting telegram bot (polling mode)")

	// Stop() cancels this context to cleanly shut down long polling.
	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	c.SetRunning(true)
	slog.Info("telegram bot connected", "username", c.bot.Username())

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				if update.Message != nil {
					c.handleMessage(pollCtx, update.Message)
				}
			}
		}
	}()

	return nil
}

// Stop cancels long polling and waits for the polling goroutine so
// Telegram releases the getUpdates lock before a new instance starts.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping telegram bot")
	c.SetRunning(false)

	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
			slog.Info("telegram bot stopped")
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}
	return nil
}

func (c *Channel) handleMessage(ctx context.Context, message *telego.Message) {
	user := message.From
	if user == nil {
		return
	}
	content := message.Text
	if content == "" {
		return
	}

	chatID := strconv.FormatInt(message.Chat.ID, 10)
	userID := strconv.FormatInt(user.ID, 10)

	slog.Debug("telegram message received",
		"chat_id", message.Chat.ID,
		"user_id", user.ID,
		"username", user.Username,
		"text_preview", channels.Truncate(content, 60),
	)

	if c.gate.IsAdmin(userID) {
		handled := c.gate.HandleAdminCommand(content,
			func(text string) {
				if err := c.sendPlain(ctx, chatID, text); err != nil {
					slog.Warn("telegram admin reply failed", "error", err)
				}
			},
			func(targetID, text string) {
				// For DMs the user ID doubles as the chat ID.
				if err := c.sendPlain(ctx, targetID, text); err != nil {
					slog.Warn("telegram approval notice failed", "user_id", targetID, "error", err)
				}
			},
		)
		if handled {
			return
		}
	}

	if !c.gate.Allowed(userID) {
		c.handleUnapproved(ctx, chatID, userID, user)
		return
	}

	c.PublishInbound(chatID, userID, content, nil, map[string]string{
		"username":   user.Username,
		"first_name": user.FirstName,
	})
}

func (c *Channel) handleUnapproved(ctx context.Context, chatID, userID string, user *telego.User) {
	info := map[string]string{
		"username":   user.Username,
		"first_name": user.FirstName,
	}
	if !c.gate.RequestAccess(userID, info) {
		return
	}

	if err := c.sendPlain(ctx, chatID, c.gate.PendingReply(userID)); err != nil {
		slog.Warn("telegram pending reply failed", "user_id", userID, "error", err)
	}
	if admin := c.gate.AdminID(); admin != "" {
		if err := c.sendPlain(ctx, admin, c.gate.AdminAlert(userID, info)); err != nil {
			slog.Warn("telegram admin alert failed", "error", err)
		}
	}
}

// SendMessage delivers the finished reply, completing any live-edited
// preview for the chat.
func (c *Channel) SendMessage(ctx context.Context, chatID, content string) error {
	return c.editor.Finalize(ctx, chatID, content)
}

// SendStreamChunk live-edits the streaming preview message.
func (c *Channel) SendStreamChunk(ctx context.Context, chunk bus.StreamChunk) error {
	return c.editor.Apply(ctx, chunk)
}

// SendText posts a streaming preview message, plain text.
func (c *Channel) SendText(ctx context.Context, chatID, text string) (string, error) {
	id, err := parseChatID(chatID)
	if err != nil {
		return "", err
	}
	msg, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(id), text))
	if err != nil {
		return "", err
	}
	return strconv.Itoa(msg.MessageID), nil
}

// EditText replaces a streaming preview, plain text.
func (c *Channel) EditText(ctx context.Context, chatID, messageID, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	mid, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("invalid message id %q: %w", messageID, err)
	}
	_, err = c.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    tu.ID(id),
		MessageID: mid,
		Text:      text,
	})
	return err
}

// FinalizeText applies the finished reply to the preview with Markdown,
// retrying plain when Telegram rejects the formatting.
func (c *Channel) FinalizeText(ctx context.Context, chatID, messageID, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	mid, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("invalid message id %q: %w", messageID, err)
	}

	params := &telego.EditMessageTextParams{
		ChatID:    tu.ID(id),
		MessageID: mid,
		Text:      text,
		ParseMode: telego.ModeMarkdown,
	}
	if _, err := c.bot.EditMessageText(ctx, params); err != nil {
		params.ParseMode = ""
		_, err = c.bot.EditMessageText(ctx, params)
		return err
	}
	return nil
}

// SendFinal delivers a finished reply from scratch, split at the message
// cap. Parts try Markdown first and fall back to plain text; failures
// are logged and do not stop the remaining parts.
func (c *Channel) SendFinal(ctx context.Context, chatID, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}

	for _, part := range channels.SplitMessage(text, messageLimit) {
		msg := tu.Message(tu.ID(id), part)
		msg.ParseMode = telego.ModeMarkdown
		if _, err := c.bot.SendMessage(ctx, msg); err != nil {
			if _, err := c.bot.SendMessage(ctx, tu.Message(tu.ID(id), part)); err != nil {
				slog.Error("telegram send failed", "chat_id", chatID, "error", err)
			}
		}
	}
	return nil
}

func (c *Channel) sendPlain(ctx context.Context, chatID, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	_, err = c.bot.SendMessage(ctx, tu.Message(tu.ID(id), text))
	return err
}

func parseChatID(chatID string) (int64, error) {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	return id, nil
}
