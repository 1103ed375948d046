package uploads

import (
	"testing"
	"time"
)

func TestPollLimiterHonorsConfiguredWindow(t *testing.T) {
	current := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	l := newPollLimiter(5*time.Second, func() time.Time { return current })

	if !l.Allow("alice", "doc-1") {
		t.Fatal("first poll must be allowed")
	}
	current = current.Add(3 * time.Second)
	if l.Allow("alice", "doc-1") {
		t.Fatal("poll inside the window must be throttled")
	}
	current = current.Add(2 * time.Second)
	if !l.Allow("alice", "doc-1") {
		t.Fatal("poll after the window must be allowed")
	}

	// Other documents and users are tracked independently.
	if !l.Allow("alice", "doc-2") {
		t.Fatal("different document must not share the throttle")
	}
	if !l.Allow("bob", "doc-1") {
		t.Fatal("different user must not share the throttle")
	}

	if got := l.RetryAfterSeconds(); got != 5 {
		t.Fatalf("expected Retry-After of 5s, got %d", got)
	}
}

func TestPollLimiterZeroWindowFallsBackToDefault(t *testing.T) {
	l := newPollLimiter(0, nil)
	if l.window != pollLimitWindow {
		t.Fatalf("expected default window %s, got %s", pollLimitWindow, l.window)
	}
}
