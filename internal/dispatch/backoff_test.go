package dispatch

import (
	"testing"
	"time"
)

func TestRetryDelayGrowsAndCaps(t *testing.T) {
	cfg := Config{BackoffBase: 500 * time.Millisecond, BackoffMax: 4 * time.Second}.withDefaults()

	prev := time.Duration(0)
	for attempt := 1; attempt <= 8; attempt++ {
		d := retryDelay(cfg, attempt, 0)
		if d < prev-250*time.Millisecond {
			t.Fatalf("attempt %d: delay %v shrank below previous %v", attempt, d, prev)
		}
		if d > cfg.BackoffMax+250*time.Millisecond {
			t.Fatalf("attempt %d: delay %v exceeds cap %v plus jitter", attempt, d, cfg.BackoffMax)
		}
		prev = d
	}

	// First attempt stays near the base.
	if d := retryDelay(cfg, 1, 0); d < cfg.BackoffBase || d > cfg.BackoffBase+250*time.Millisecond {
		t.Fatalf("first delay %v outside [%v, %v+jitter]", d, cfg.BackoffBase, cfg.BackoffBase)
	}
}

func TestRetryDelayHonorsHint(t *testing.T) {
	cfg := Config{BackoffBase: 10 * time.Millisecond, BackoffMax: time.Second}.withDefaults()

	// A hint above the computed backoff is authoritative.
	if d := retryDelay(cfg, 1, 5*time.Second); d != 5*time.Second {
		t.Fatalf("delay = %v, want hint 5s", d)
	}

	// A hint below the computed backoff does not shortcut it.
	cfg.BackoffBase = time.Second
	if d := retryDelay(cfg, 1, time.Millisecond); d < time.Second {
		t.Fatalf("delay = %v, tiny hint undercut the backoff", d)
	}
}
