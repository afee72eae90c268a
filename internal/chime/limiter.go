// Package chime rate-limits notification tones across all windows: at
// most one chime per cooldown window, service-wide.
package chime

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultCooldown is the minimum spacing between allowed chimes.
const DefaultCooldown = 60 * time.Second

// Limiter gates chimes on a shared cooldown.
type Limiter struct {
	mu sync.Mutex
	rl *rate.Limiter
}

// NewLimiter creates a limiter with the given cooldown; non-positive
// falls back to DefaultCooldown.
func NewLimiter(cooldown time.Duration) *Limiter {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Limiter{rl: rate.NewLimiter(rate.Every(cooldown), 1)}
}

// CheckAndRecord atomically checks the cooldown and, when a chime is
// allowed, records it so subsequent calls are denied until the window
// elapses. When denied it returns the seconds remaining, rounded to
// one decimal.
func (l *Limiter) CheckAndRecord() (allowed bool, secondsRemaining float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res := l.rl.Reserve()
	if delay := res.Delay(); delay > 0 {
		res.Cancel()
		return false, math.Round(delay.Seconds()*10) / 10
	}
	return true, 0
}
