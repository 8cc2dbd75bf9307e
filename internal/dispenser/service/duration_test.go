package service_test

import (
	"errors"
	"testing"
	"time"

	"github.com/icefez/dispenser/internal/dispenser/service"
)

func TestParseTTL_KnownUnits(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"45s", 45 * time.Second},
		{"2h", 2 * time.Hour},
		{"30m", 30 * time.Minute},
		{"30 mins", 30 * time.Minute},
		{"2 HOURS", 2 * time.Hour},
		{"3d", 72 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
		{"1y", 365 * 24 * time.Hour},
		{"  10 Sec  ", 10 * time.Second},
	}

	for _, c := range cases {
		got, err := service.ParseTTL(c.in)
		if err != nil {
			t.Errorf("ParseTTL(%q): unexpected error %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseTTL(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseTTL_SecondsMultipliers(t *testing.T) {
	// The user-facing contract is in seconds.
	if d, _ := service.ParseTTL("2h"); int(d.Seconds()) != 7200 {
		t.Errorf("2h = %v seconds, want 7200", d.Seconds())
	}
	if d, _ := service.ParseTTL("1y"); int(d.Seconds()) != 31536000 {
		t.Errorf("1y = %v seconds, want 31536000", d.Seconds())
	}
}

func TestParseTTL_Invalid(t *testing.T) {
	for _, in := range []string{
		"", "abc", "-5m", "1.5h", "10", "h", "5 fortnights", "m5", "5mm",
	} {
		_, err := service.ParseTTL(in)
		if !errors.Is(err, service.ErrInvalidDuration) {
			t.Errorf("ParseTTL(%q): expected ErrInvalidDuration, got %v", in, err)
		}
	}
}
