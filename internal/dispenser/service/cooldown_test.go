package service_test

import (
	"errors"
	"testing"
	"time"

	"github.com/icefez/dispenser/internal/dispenser/service"
)

func TestThrottle_FirstUseAllowed(t *testing.T) {
	th := service.NewThrottle()
	now := time.Unix(1000, 0)

	if err := th.Check("user-1", now, 30*time.Second); err != nil {
		t.Fatalf("first check should pass, got %v", err)
	}
}

func TestThrottle_RejectsInsideWindow(t *testing.T) {
	th := service.NewThrottle()
	start := time.Unix(1000, 0)
	window := 30 * time.Second

	th.Mark("user-1", start)

	err := th.Check("user-1", start.Add(10*time.Second), window)
	var cd *service.CooldownError
	if !errors.As(err, &cd) {
		t.Fatalf("expected CooldownError, got %v", err)
	}
	if cd.RemainingSeconds != 20 {
		t.Errorf("expected 20s remaining, got %d", cd.RemainingSeconds)
	}
}

func TestThrottle_RemainingRoundsUp(t *testing.T) {
	th := service.NewThrottle()
	start := time.Unix(1000, 0)

	th.Mark("user-1", start)

	err := th.Check("user-1", start.Add(10*time.Second+500*time.Millisecond), 30*time.Second)
	var cd *service.CooldownError
	if !errors.As(err, &cd) {
		t.Fatalf("expected CooldownError, got %v", err)
	}
	// 19.5s remaining rounds up to 20.
	if cd.RemainingSeconds != 20 {
		t.Errorf("expected 20s remaining, got %d", cd.RemainingSeconds)
	}
}

func TestThrottle_RejectionDoesNotExtendCooldown(t *testing.T) {
	th := service.NewThrottle()
	start := time.Unix(1000, 0)
	window := 30 * time.Second

	th.Mark("user-1", start)

	// A rejected attempt at t+10 must not reset the clock: t+31 still passes.
	if err := th.Check("user-1", start.Add(10*time.Second), window); err == nil {
		t.Fatal("expected rejection at t+10")
	}
	if err := th.Check("user-1", start.Add(31*time.Second), window); err != nil {
		t.Fatalf("expected pass at t+31, got %v", err)
	}
}

func TestThrottle_IdentitiesIndependent(t *testing.T) {
	th := service.NewThrottle()
	now := time.Unix(1000, 0)

	th.Mark("user-1", now)

	if err := th.Check("user-2", now, 30*time.Second); err != nil {
		t.Fatalf("user-2 should not share user-1's cooldown, got %v", err)
	}
}
