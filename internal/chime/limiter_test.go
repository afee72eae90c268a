package chime

import (
	"math"
	"testing"
	"time"
)

func TestFirstChimeAllowed(t *testing.T) {
	l := NewLimiter(time.Second)
	allowed, remaining := l.CheckAndRecord()
	if !allowed {
		t.Error("first chime should be allowed")
	}
	if remaining != 0 {
		t.Errorf("seconds_remaining = %v on an allowed chime, want 0", remaining)
	}
}

func TestSecondChimeDenied(t *testing.T) {
	l := NewLimiter(time.Second)
	l.CheckAndRecord()

	allowed, remaining := l.CheckAndRecord()
	if allowed {
		t.Fatal("second chime inside the cooldown should be denied")
	}
	if remaining <= 0 || remaining > 1 {
		t.Errorf("seconds_remaining = %v, want in (0, 1]", remaining)
	}
}

func TestDeniedChimeDoesNotExtendCooldown(t *testing.T) {
	l := NewLimiter(50 * time.Millisecond)
	l.CheckAndRecord()

	// Hammering the limiter while denied must not push the window out.
	for i := 0; i < 5; i++ {
		l.CheckAndRecord()
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	if allowed, _ := l.CheckAndRecord(); !allowed {
		t.Error("chime should be allowed once the original cooldown elapsed")
	}
}

func TestCooldownElapses(t *testing.T) {
	l := NewLimiter(30 * time.Millisecond)
	l.CheckAndRecord()
	time.Sleep(40 * time.Millisecond)

	if allowed, _ := l.CheckAndRecord(); !allowed {
		t.Error("chime should be allowed after the cooldown")
	}
}

func TestRemainingRounding(t *testing.T) {
	l := NewLimiter(time.Minute)
	l.CheckAndRecord()

	_, remaining := l.CheckAndRecord()
	if math.Abs(remaining*10-math.Round(remaining*10)) > 1e-6 {
		t.Errorf("seconds_remaining = %v, want one decimal place", remaining)
	}
	if remaining < 59 || remaining > 60 {
		t.Errorf("seconds_remaining = %v, want near 60", remaining)
	}
}
