package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)
	if d := clock.Since(past); d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestMockClock_SetAndAdvance(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	if got := clock.Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}
	clock.Advance(90 * time.Second)
	if got := clock.Since(start); got != 90*time.Second {
		t.Errorf("Since() = %v, want 90s", got)
	}
	later := start.Add(time.Hour)
	clock.Set(later)
	if got := clock.Now(); !got.Equal(later) {
		t.Errorf("Now() after Set = %v, want %v", got, later)
	}
}

func TestMockClock_Step(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)
	clock.SetStep(time.Second)

	first := clock.Now()
	second := clock.Now()
	if d := second.Sub(first); d != time.Second {
		t.Errorf("consecutive Now() calls %v apart, want 1s", d)
	}
	if d := clock.Since(start); d != 2*time.Second {
		t.Errorf("Since() = %v, want 2s", d)
	}
}
