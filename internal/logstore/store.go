package logstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"teleforward/pkg/logx"
)

// Outcome is the terminal result of one delivery job.
type Outcome string

const (
	OutcomeDelivered       Outcome = "delivered"
	OutcomeFailedPermanent Outcome = "failed-permanent"
	OutcomeFailedExhausted Outcome = "failed-exhausted"
)

// Record is one row of the delivery outcome log. Identity is the
// (SourceEventID, DestinationID) pair; one fanout creates at most one row per
// destination, so concurrent writers never collide on a key.
type Record struct {
	SourceEventID   string
	DestinationID   string
	DestinationName string
	Kind            string
	Outcome         Outcome
	Class           string
	Attempts        int
	Error           string
	At              time.Time
}

// Store is the append-only outcome log.
//
// Append is an idempotent upsert on the record identity: replaying a
// terminal outcome never yields two conflicting rows, and a recorded
// delivered outcome is never overwritten by a later write for the same job.
type Store interface {
	Append(ctx context.Context, r Record) error
	Get(ctx context.Context, sourceEventID, destinationID string) (Record, bool, error)
	Recent(ctx context.Context, limit int) ([]Record, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

// Config configures the outcome log.
//
// Driver values:
//   - "sqlite": SQLite database file (default)
//   - "memory": in-process map, lost on exit (tests, dry runs)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown logstore driver: " + driver)
	}
}
