package service

import (
	"fmt"
	"sync"
	"time"
)

// CooldownError reports how long an identity must wait before the next
// self-service generation.
type CooldownError struct {
	RemainingSeconds int
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("on cooldown for another %ds", e.RemainingSeconds)
}

// Throttle tracks each identity's last successful generation in memory.
// State is deliberately not persisted: cooldowns reset on restart, which is
// an accepted limitation of the original design.
type Throttle struct {
	mu       sync.Mutex
	lastUsed map[string]time.Time
}

func NewThrottle() *Throttle {
	return &Throttle{lastUsed: make(map[string]time.Time)}
}

// Check fails with *CooldownError while identity is inside the window.
// A rejected attempt never updates the record, so it neither resets nor
// extends the cooldown.
func (t *Throttle) Check(identity string, now time.Time, window time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.lastUsed[identity]
	if !ok {
		return nil
	}
	elapsed := now.Sub(last)
	if elapsed >= window {
		return nil
	}

	remaining := window - elapsed
	secs := int((remaining + time.Second - 1) / time.Second) // ceil
	return &CooldownError{RemainingSeconds: secs}
}

// Mark records a successful generation at now.  Callers invoke it only after
// stock has actually been taken, so a failed take does not burn the cooldown.
func (t *Throttle) Mark(identity string, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastUsed[identity] = now
}
