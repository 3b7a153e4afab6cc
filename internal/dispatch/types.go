package dispatch

import (
	"errors"
	"time"

	"teleforward/internal/destination"
	"teleforward/internal/sender"
)

var (
	// ErrQueueFull is returned from Dispatch when a destination's queue is at
	// capacity. The newest job is rejected; queued jobs are unaffected.
	ErrQueueFull = errors.New("destination queue full")
	// ErrStopped is returned from Dispatch after the engine stopped intake.
	ErrStopped = errors.New("dispatch engine stopped")
	// ErrNoSender is returned when no sender is registered for the
	// destination kind.
	ErrNoSender = errors.New("no sender for destination kind")
)

// Config tunes the engine.
//
// Zero values fall back to defaults: 5 in-flight sends, queue size 500,
// 6 attempts, 30s per attempt, backoff 500ms doubling up to 30s.
type Config struct {
	// MaxInFlight caps concurrently sending workers (admission, not queue depth).
	MaxInFlight int
	// QueueSize bounds each destination's pending-job queue.
	QueueSize int
	// MaxAttempts is the total attempt budget per job on transient failures.
	MaxAttempts int
	// KindMaxAttempts overrides MaxAttempts per destination kind.
	KindMaxAttempts map[destination.Kind]int
	// AttemptTimeout bounds one send attempt.
	AttemptTimeout time.Duration
	// BackoffBase and BackoffMax shape the exponential retry delay.
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// RatePerSec limits send attempts per destination (0 disables).
	RatePerSec int
}

func (c Config) withDefaults() Config {
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 5
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 500
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 6
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 30 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
	return c
}

func (c Config) maxAttemptsFor(kind destination.Kind) int {
	if n, ok := c.KindMaxAttempts[kind]; ok && n > 0 {
		return n
	}
	return c.MaxAttempts
}

// Job is one obligation to deliver one payload to one destination.
// Immutable once enqueued except for the attempt counter, which only the
// owning worker touches.
type Job struct {
	ID            string
	SourceEventID string
	Dest          destination.Destination
	Payload       sender.Payload
	EnqueuedAt    time.Time
	Attempts      int
}

// Acceptance is the synchronous per-destination answer from Dispatch.
// Err is nil when the job was queued; otherwise it explains the rejection
// (ErrQueueFull, ErrStopped, ...).
type Acceptance struct {
	DestinationID string
	Err           error
}
