package ratelimit

import (
	"errors"
	"testing"
	"time"

	"collabcore/internal/model"
)

func TestIsAllowedWithinPerSecondCap(t *testing.T) {
	l := New(Options{MaxPerSecond: 100, MaxPerMinute: 1000})

	for i := 0; i < 100; i++ {
		if !l.IsAllowed("u1") {
			t.Fatalf("call %d: expected allowed", i)
		}
	}
	if l.IsAllowed("u1") {
		t.Error("call 101: expected denied once per-second cap is hit")
	}
}

func TestIsAllowedTracksUsersIndependently(t *testing.T) {
	l := New(Options{MaxPerSecond: 1, MaxPerMinute: 1000})

	if !l.IsAllowed("u1") {
		t.Fatal("u1 first call should be allowed")
	}
	if l.IsAllowed("u1") {
		t.Error("u1 second call within the same second should be denied")
	}
	if !l.IsAllowed("u2") {
		t.Error("u2 should have its own independent bucket")
	}
}

func TestIsAllowedPerMinuteCapAcrossSeconds(t *testing.T) {
	base := time.Now()
	l := New(Options{MaxPerSecond: 1000, MaxPerMinute: 2, WindowMs: 60_000})
	l.now = func() time.Time { return base }

	if !l.IsAllowed("u1") {
		t.Fatal("expected first call allowed")
	}
	l.now = func() time.Time { return base.Add(1 * time.Second) }
	if !l.IsAllowed("u1") {
		t.Fatal("expected second call allowed")
	}
	l.now = func() time.Time { return base.Add(2 * time.Second) }
	if l.IsAllowed("u1") {
		t.Error("expected third call denied by per-minute cap")
	}
}

func TestIsAllowedRollsOffExpiredTimestamps(t *testing.T) {
	base := time.Now()
	l := New(Options{MaxPerSecond: 1000, MaxPerMinute: 1, WindowMs: 1000})
	l.now = func() time.Time { return base }

	if !l.IsAllowed("u1") {
		t.Fatal("expected first call allowed")
	}
	if l.IsAllowed("u1") {
		t.Fatal("expected second call denied within the same window")
	}
	l.now = func() time.Time { return base.Add(2 * time.Second) }
	if !l.IsAllowed("u1") {
		t.Error("expected call allowed once the window has rolled past")
	}
}

func TestCheckAndRecordWrapsErrRateLimited(t *testing.T) {
	l := New(Options{MaxPerSecond: 1, MaxPerMinute: 1000})
	if err := l.CheckAndRecord("u1"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	err := l.CheckAndRecord("u1")
	if !errors.Is(err, model.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}

func TestClearUserLimits(t *testing.T) {
	l := New(Options{MaxPerSecond: 1, MaxPerMinute: 1000})
	l.IsAllowed("u1")
	l.ClearUserLimits("u1")
	if !l.IsAllowed("u1") {
		t.Error("expected fresh bucket after clearing user limits")
	}
}

func TestClearAllLimits(t *testing.T) {
	l := New(Options{MaxPerSecond: 1, MaxPerMinute: 1000})
	l.IsAllowed("u1")
	l.IsAllowed("u2")
	l.ClearAllLimits()
	if !l.IsAllowed("u1") || !l.IsAllowed("u2") {
		t.Error("expected all buckets cleared")
	}
}

func TestOptionsWithDefaults(t *testing.T) {
	l := New(Options{})
	if l.opts.MaxPerSecond != DefaultMaxPerSecond {
		t.Errorf("MaxPerSecond = %d, want default %d", l.opts.MaxPerSecond, DefaultMaxPerSecond)
	}
	if l.opts.MaxPerMinute != DefaultMaxPerMinute {
		t.Errorf("MaxPerMinute = %d, want default %d", l.opts.MaxPerMinute, DefaultMaxPerMinute)
	}
	if l.opts.WindowMs != DefaultWindowMs {
		t.Errorf("WindowMs = %d, want default %d", l.opts.WindowMs, DefaultWindowMs)
	}
}
