// Package discord connects the agent to Discord via the gateway,
// streaming replies into a live-edited message.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/rotbotlabs/rotbot/internal/bus"
	"github.com/rotbotlabs/rotbot/internal/channels"
	"github.com/rotbotlabs/rotbot/internal/config"
)

const (
	// messageLimit is Discord's message length cap.
	messageLimit = 2000

	// editInterval throttles live edits of the streaming preview.
	editInterval = 600 * time.Millisecond
)

// Channel connects to Discord via the Bot API using gateway events.
type Channel struct {
	*channels.BaseChannel
	session   *discordgo.Session
	config    config.DiscordConfig
	gate      *channels.Gate
	editor    *channels.StreamEditor
	botUserID string // populated on start
}

// New creates a Discord channel from config. gate may be nil to admit
// every sender.
func New(cfg config.DiscordConfig, msgBus *bus.MessageBus, gate *channels.Gate) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	c := &Channel{
		BaseChannel: channels.NewBaseChannel("discord", msgBus),
		session:     session,
		config:      cfg,
		gate:        gate,
	}
	c.editor = channels.NewStreamEditor(c, messageLimit, editInterval)
	return c, nil
}

// Start opens the Discord gateway connection and begins receiving events.
func (c *Channel) Start(_ context.Context) error {
	slog.Info("starting discord bot")

	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID

	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)

	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot")
	c.SetRunning(false)
	return c.session.Close()
}

func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}

	content := strings.TrimSpace(m.Content)
	if content == "" {
		return
	}

	chatID := m.ChannelID
	userID := m.Author.ID

	slog.Debug("discord message received",
		"channel_id", chatID,
		"user_id", userID,
		"username", m.Author.Username,
		"is_dm", m.GuildID == "",
		"text_preview", channels.Truncate(content, 60),
	)

	if c.gate.IsAdmin(userID) {
		handled := c.gate.HandleAdminCommand(content,
			func(text string) {
				if _, err := c.session.ChannelMessageSend(chatID, text); err != nil {
					slog.Warn("discord admin reply failed", "error", err)
				}
			},
			func(targetID, text string) {
				if err := c.sendDM(targetID, text); err != nil {
					slog.Warn("discord approval notice failed", "user_id", targetID, "error", err)
				}
			},
		)
		if handled {
			return
		}
	}

	if !c.gate.Allowed(userID) {
		c.handleUnapproved(chatID, userID, m.Author)
		return
	}

	c.PublishInbound(chatID, userID, content, nil, map[string]string{
		"author_name": m.Author.Username,
	})
}

func (c *Channel) handleUnapproved(chatID, userID string, author *discordgo.User) {
	info := map[string]string{"username": author.Username}
	if !c.gate.RequestAccess(userID, info) {
		return
	}

	if _, err := c.session.ChannelMessageSend(chatID, c.gate.PendingReply(userID)); err != nil {
		slog.Warn("discord pending reply failed", "user_id", userID, "error", err)
	}
	if admin := c.gate.AdminID(); admin != "" {
		if err := c.sendDM(admin, c.gate.AdminAlert(userID, info)); err != nil {
			slog.Warn("discord admin alert failed", "error", err)
		}
	}
}

// sendDM delivers text to a user's direct-message channel.
func (c *Channel) sendDM(userID, text string) error {
	dm, err := c.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("open dm channel: %w", err)
	}
	_, err = c.session.ChannelMessageSend(dm.ID, text)
	return err
}

// SendMessage delivers the finished reply, completing any live-edited
// preview for the channel.
func (c *Channel) SendMessage(ctx context.Context, chatID, content string) error {
	return c.editor.Finalize(ctx, chatID, content)
}

// SendStreamChunk live-edits the streaming preview message.
func (c *Channel) SendStreamChunk(ctx context.Context, chunk bus.StreamChunk) error {
	return c.editor.Apply(ctx, chunk)
}

// SendText posts a streaming preview message.
func (c *Channel) SendText(_ context.Context, chatID, text string) (string, error) {
	msg, err := c.session.ChannelMessageSend(chatID, text)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

// EditText replaces a streaming preview.
func (c *Channel) EditText(_ context.Context, chatID, messageID, text string) error {
	_, err := c.session.ChannelMessageEdit(chatID, messageID, text)
	return err
}

// FinalizeText applies the finished reply to the preview message.
func (c *Channel) FinalizeText(_ context.Context, chatID, messageID, text string) error {
	_, err := c.session.ChannelMessageEdit(chatID, messageID, text)
	return err
}

// DeleteText removes the streaming preview before an oversized reply is
// re-sent in parts.
func (c *Channel) DeleteText(_ context.Context, chatID, messageID string) error {
	return c.session.ChannelMessageDelete(chatID, messageID)
}

// SendFinal delivers a finished reply from scratch, split at the message
// cap.
func (c *Channel) SendFinal(_ context.Context, chatID, text string) error {
	for _, part := range channels.SplitMessage(text, messageLimit) {
		if _, err := c.session.ChannelMessageSend(chatID, part); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	return nil
}
