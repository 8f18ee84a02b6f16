package channels

import (
	"testing"
	"time"
)

// TestConnRateLimiter_AllowsWithinLimit verifies hits under the cap pass
// and the hit over it is rejected.
func TestConnRateLimiter_AllowsWithinLimit(t *testing.T) {
	rl := NewConnRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !rl.Allow("1.2.3.4") {
			t.Fatalf("hit %d should be allowed", i+1)
		}
	}
	if rl.Allow("1.2.3.4") {
		t.Error("hit over the cap should be rejected")
	}
}

// TestConnRateLimiter_KeysIndependent verifies one client exhausting its
// budget does not affect others.
func TestConnRateLimiter_KeysIndependent(t *testing.T) {
	rl := NewConnRateLimiter(1, time.Minute)

	if !rl.Allow("a") {
		t.Fatal("first hit for a should be allowed")
	}
	if rl.Allow("a") {
		t.Error("second hit for a should be rejected")
	}
	if !rl.Allow("b") {
		t.Error("first hit for b should be allowed")
	}
}

// TestConnRateLimiter_WindowResets verifies the budget refills after the
// window elapses.
func TestConnRateLimiter_WindowResets(t *testing.T) {
	rl := NewConnRateLimiter(1, 30*time.Millisecond)

	if !rl.Allow("a") {
		t.Fatal("first hit should be allowed")
	}
	if rl.Allow("a") {
		t.Fatal("second hit should be rejected")
	}

	time.Sleep(50 * time.Millisecond)
	if !rl.Allow("a") {
		t.Error("hit after window should be allowed")
	}
}
