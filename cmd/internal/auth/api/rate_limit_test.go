package authapi

import (
	"testing"
	"time"
)

func TestLoginLimiter_BlocksAfterLimit(t *testing.T) {
	t.Parallel()

	l := newLoginLimiter(3, 15*time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := range 3 {
		if ok, _ := l.allow("203.0.113.1", now); !ok {
			t.Fatalf("attempt %d blocked", i+1)
		}
	}

	ok, retry := l.allow("203.0.113.1", now)
	if ok {
		t.Fatalf("attempt 4 allowed")
	}
	if retry < 5*time.Minute-time.Second || retry > 5*time.Minute {
		t.Fatalf("retry = %v, want about 5m", retry)
	}

	// Other clients are unaffected.
	if ok, _ := l.allow("203.0.113.2", now); !ok {
		t.Fatalf("other key blocked")
	}
}

func TestLoginLimiter_Refills(t *testing.T) {
	t.Parallel()

	l := newLoginLimiter(2, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	l.allow("k", now)
	l.allow("k", now)
	if ok, _ := l.allow("k", now); ok {
		t.Fatalf("expected block")
	}
	if ok, _ := l.allow("k", now.Add(31*time.Second)); !ok {
		t.Fatalf("expected refill after 31s")
	}
}

func TestLoginLimiter_SweepsIdleBuckets(t *testing.T) {
	t.Parallel()

	l := newLoginLimiter(10, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.allow("old", now)

	later := now.Add(2 * time.Minute)
	l.sweep(later)
	if n := l.len(); n != 0 {
		t.Fatalf("len = %d, want 0", n)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "1"},
		{300 * time.Millisecond, "1"},
		{90 * time.Second, "90"},
		{90*time.Second + time.Millisecond, "91"},
	}
	for _, tt := range tests {
		if got := retryAfterSeconds(tt.in); got != tt.want {
			t.Fatalf("retryAfterSeconds(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
