package channels

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotbotlabs/rotbot/internal/access"
)

// accessReplyDebounce limits how often an unapproved sender receives the
// waiting-for-approval reply.
const accessReplyDebounce = 60 * time.Second

// approvedNotice is sent to a user when the owner approves them.
const approvedNotice = "✅ rotbot access approved. Send a message to start chatting."

// Gate screens senders against the shared approved-users store. Platform
// adapters consult it before forwarding messages to the agent, record
// unknown senders as pending, and let the configured owner manage the
// list with /approve, /revoke and /pending.
//
// A nil Gate admits everyone; adapters without access control configured
// simply pass nil.
type Gate struct {
	store    *access.Store
	platform string
	adminID  string
	replied  sync.Map // userID -> time.Time of last pending reply
}

// NewGate creates a gate for one platform. adminID is the platform user
// ID of the bot owner; empty disables owner commands and alerts.
func NewGate(store *access.Store, platform, adminID string) *Gate {
	if store == nil {
		return nil
	}
	return &Gate{store: store, platform: platform, adminID: adminID}
}

// Allowed reports whether a sender may talk to the agent. The owner is
// always allowed.
func (g *Gate) Allowed(userID string) bool {
	if g == nil {
		return true
	}
	if g.adminID != "" && userID == g.adminID {
		return true
	}
	return g.store.IsApproved(g.platform, userID)
}

// IsAdmin reports whether userID is the configured bot owner.
func (g *Gate) IsAdmin(userID string) bool {
	return g != nil && g.adminID != "" && userID == g.adminID
}

// AdminID returns the configured owner ID, or "" when none is set.
func (g *Gate) AdminID() string {
	if g == nil {
		return ""
	}
	return g.adminID
}

// RequestAccess records userID as pending and reports whether the adapter
// should reply now. Repeat requests inside the debounce window return
// false so chatty senders don't get spammed with the same notice.
func (g *Gate) RequestAccess(userID string, info map[string]string) bool {
	if g == nil {
		return false
	}

	if last, ok := g.replied.Load(userID); ok {
		if time.Since(last.(time.Time)) < accessReplyDebounce {
			return false
		}
	}

	if !g.store.IsPending(g.platform, userID) {
		if err := g.store.AddPending(g.platform, userID, info); err != nil {
			slog.Warn("failed to record pending user",
				"platform", g.platform, "user_id", userID, "error", err)
		}
	}

	g.replied.Store(userID, time.Now())
	return true
}

// Approve moves userID onto the approved list.
func (g *Gate) Approve(userID string) error {
	if g == nil {
		return fmt.Errorf("no access store configured")
	}
	return g.store.Approve(g.platform, userID, nil)
}

// Revoke removes userID from the approved list.
func (g *Gate) Revoke(userID string) bool {
	if g == nil {
		return false
	}
	return g.store.Revoke(g.platform, userID)
}

// Pending returns the users awaiting approval on this platform.
func (g *Gate) Pending() map[string]access.UserInfo {
	if g == nil {
		return nil
	}
	return g.store.ListPending(g.platform)
}

// PendingReply is the response sent to a sender awaiting approval.
func (g *Gate) PendingReply(userID string) string {
	return fmt.Sprintf(
		"rotbot: access not configured.\n\nYour %s user id: %s\n\nThe bot owner has been asked to approve you.",
		g.platform, userID,
	)
}

// AdminAlert is the notification sent to the bot owner when a new sender
// requests access.
func (g *Gate) AdminAlert(userID string, info map[string]string) string {
	label := userID
	if u := info["username"]; u != "" {
		label = fmt.Sprintf("%s (@%s)", userID, u)
	}
	return fmt.Sprintf(
		"Access request on %s from %s.\nApprove with /approve %s",
		g.platform, label, userID,
	)
}

// HandleAdminCommand interprets an owner message as a gate command.
// reply receives command feedback; notify, when non-nil, is called with
// the newly approved user so the adapter can tell them. Returns false
// when text is not a gate command, letting it flow to the agent.
func (g *Gate) HandleAdminCommand(text string, reply func(string), notify func(userID, text string)) bool {
	if g == nil {
		return false
	}

	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return false
	}

	switch strings.ToLower(fields[0]) {
	case "/approve":
		if len(fields) < 2 {
			reply("Usage: /approve <user_id>")
			return true
		}
		target := fields[1]
		if err := g.Approve(target); err != nil {
			reply(fmt.Sprintf("Approve failed: %v", err))
			return true
		}
		reply(fmt.Sprintf("Approved %s.", target))
		if notify != nil {
			notify(target, approvedNotice)
		}
		return true

	case "/revoke":
		if len(fields) < 2 {
			reply("Usage: /revoke <user_id>")
			return true
		}
		target := fields[1]
		if g.Revoke(target) {
			reply(fmt.Sprintf("Revoked %s.", target))
		} else {
			reply(fmt.Sprintf("%s was not approved.", target))
		}
		return true

	case "/pending":
		reply(g.formatPending())
		return true
	}

	return false
}

func (g *Gate) formatPending() string {
	pending := g.Pending()
	if len(pending) == 0 {
		return "No pending users."
	}

	ids := make([]string, 0, len(pending))
	for id := range pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Pending %s users (%d):\n", g.platform, len(pending))
	for _, id := range ids {
		info := pending[id]
		line := id
		if u := info["username"]; u != "" {
			line += " (@" + u + ")"
		}
		if t := info["request_time"]; t != "" {
			line += " — requested " + t
		}
		sb.WriteString("• " + line + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
