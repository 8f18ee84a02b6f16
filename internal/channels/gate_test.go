package channels

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotbotlabs/rotbot/internal/access"
)

func newTestGate(t *testing.T, adminID string) *Gate {
	t.Helper()
	store, err := access.Open(filepath.Join(t.TempDir(), "access.json"))
	if err != nil {
		t.Fatalf("open access store: %v", err)
	}
	return NewGate(store, "telegram", adminID)
}

// TestGateNil verifies a nil gate admits everyone and never intercepts
// commands, so ungated channels need no branching.
func TestGateNil(t *testing.T) {
	var g *Gate
	if !g.Allowed("anyone") {
		t.Error("nil gate should allow everyone")
	}
	if g.IsAdmin("anyone") {
		t.Error("nil gate should have no admin")
	}
	if g.RequestAccess("anyone", nil) {
		t.Error("nil gate should not record access requests")
	}
	if g.HandleAdminCommand("/pending", nil, nil) {
		t.Error("nil gate should not handle admin commands")
	}
}

// TestGateAllowed verifies the admin bypasses approval and other users
// need an approved entry.
func TestGateAllowed(t *testing.T) {
	g := newTestGate(t, "100")

	if !g.Allowed("100") {
		t.Error("admin should always be allowed")
	}
	if g.Allowed("200") {
		t.Error("unknown user should not be allowed")
	}

	if err := g.Approve("200"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !g.Allowed("200") {
		t.Error("approved user should be allowed")
	}
}

// TestGateRequestAccess verifies the first request records a pending
// entry and repeat requests within the debounce window are suppressed.
func TestGateRequestAccess(t *testing.T) {
	g := newTestGate(t, "100")

	if !g.RequestAccess("200", map[string]string{"username": "sam"}) {
		t.Fatal("first request should be accepted")
	}
	if g.RequestAccess("200", nil) {
		t.Error("repeat request within debounce window should be suppressed")
	}

	pending := g.Pending()
	info, ok := pending["200"]
	if !ok {
		t.Fatal("expected user 200 in pending list")
	}
	if info["username"] != "sam" {
		t.Errorf("expected username sam, got %q", info["username"])
	}
}

// TestGateAdminApprove verifies /approve moves a pending user to
// approved and notifies them.
func TestGateAdminApprove(t *testing.T) {
	g := newTestGate(t, "100")
	g.RequestAccess("200", map[string]string{"username": "sam"})

	var replies []string
	var notified []string
	handled := g.HandleAdminCommand("/approve 200",
		func(text string) { replies = append(replies, text) },
		func(userID, text string) { notified = append(notified, userID+"|"+text) },
	)
	if !handled {
		t.Fatal("expected /approve to be handled")
	}
	if len(replies) != 1 || replies[0] != "Approved 200." {
		t.Errorf("expected approval reply, got %q", replies)
	}
	if len(notified) != 1 || !strings.HasPrefix(notified[0], "200|") {
		t.Errorf("expected notification to user 200, got %q", notified)
	}
	if !g.Allowed("200") {
		t.Error("user should be allowed after /approve")
	}
}

// TestGateAdminApproveUsage verifies /approve without an argument
// replies with usage instead of erroring.
func TestGateAdminApproveUsage(t *testing.T) {
	g := newTestGate(t, "100")

	var replies []string
	g.HandleAdminCommand("/approve", func(text string) { replies = append(replies, text) }, nil)
	if len(replies) != 1 || replies[0] != "Usage: /approve <user_id>" {
		t.Errorf("expected usage reply, got %q", replies)
	}
}

// TestGateAdminRevoke verifies /revoke removes approval and reports
// when the user was never approved.
func TestGateAdminRevoke(t *testing.T) {
	g := newTestGate(t, "100")
	if err := g.Approve("200"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	var replies []string
	reply := func(text string) { replies = append(replies, text) }

	g.HandleAdminCommand("/revoke 200", reply, nil)
	if g.Allowed("200") {
		t.Error("user should not be allowed after /revoke")
	}
	if len(replies) != 1 || replies[0] != "Revoked 200." {
		t.Errorf("expected revoke reply, got %q", replies)
	}

	g.HandleAdminCommand("/revoke 300", reply, nil)
	if len(replies) != 2 || replies[1] != "300 was not approved." {
		t.Errorf("expected not-approved reply, got %q", replies)
	}
}

// TestGateAdminPending verifies /pending lists requesters and reports
// an empty queue.
func TestGateAdminPending(t *testing.T) {
	g := newTestGate(t, "100")

	var replies []string
	reply := func(text string) { replies = append(replies, text) }

	g.HandleAdminCommand("/pending", reply, nil)
	if len(replies) != 1 || replies[0] != "No pending users." {
		t.Errorf("expected empty pending reply, got %q", replies)
	}

	g.RequestAccess("200", map[string]string{"username": "sam"})
	g.HandleAdminCommand("/pending", reply, nil)
	if len(replies) != 2 {
		t.Fatalf("expected second reply, got %q", replies)
	}
	if !strings.Contains(replies[1], "Pending telegram users (1):") {
		t.Errorf("expected pending header, got %q", replies[1])
	}
	if !strings.Contains(replies[1], "200") || !strings.Contains(replies[1], "@sam") {
		t.Errorf("expected pending entry for 200 (@sam), got %q", replies[1])
	}
}

// TestGateHandleAdminCommand_PassThrough verifies ordinary messages and
// unrelated commands are not intercepted.
func TestGateHandleAdminCommand_PassThrough(t *testing.T) {
	g := newTestGate(t, "100")

	reply := func(string) { t.Error("reply should not be called") }
	if g.HandleAdminCommand("hello there", reply, nil) {
		t.Error("plain text should not be handled")
	}
	if g.HandleAdminCommand("/help", reply, nil) {
		t.Error("unrelated command should not be handled")
	}
}

// TestGatePendingReplyFormat verifies the message shown to unapproved
// users names the platform and their id.
func TestGatePendingReplyFormat(t *testing.T) {
	g := newTestGate(t, "100")

	reply := g.PendingReply("200")
	if !strings.Contains(reply, "telegram user id: 200") {
		t.Errorf("expected platform and id in pending reply, got %q", reply)
	}

	alert := g.AdminAlert("200", map[string]string{"username": "sam"})
	if !strings.Contains(alert, "200 (@sam)") {
		t.Errorf("expected labelled user in admin alert, got %q", alert)
	}
	if !strings.Contains(alert, "/approve 200") {
		t.Errorf("expected approve hint in admin alert, got %q", alert)
	}
}
