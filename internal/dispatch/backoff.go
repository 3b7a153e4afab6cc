package dispatch

import (
	"math/rand"
	"time"
)

// retryDelay computes the wait before the next attempt. attempt is the
// number of attempts already made (>= 1). Exponential growth with a little
// jitter; a provider-declared hint is an authoritative floor, never a
// shortcut below the computed backoff.
func retryDelay(cfg Config, attempt int, hint time.Duration) time.Duration {
	d := cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.BackoffMax {
			d = cfg.BackoffMax
			break
		}
	}
	d += time.Duration(rand.Float64() * float64(250*time.Millisecond))

	if hint > d {
		return hint
	}
	return d
}
