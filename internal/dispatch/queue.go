package dispatch

import (
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"teleforward/internal/destination"
)

// errQueueClosed signals that a queue was retired between lookup and
// enqueue; the caller re-creates it.
var errQueueClosed = errors.New("destination queue closed")

// destQueue is the ordered, bounded queue of pending jobs for one
// destination identity. Exactly one worker drains it, which is what makes
// per-destination ordering hold.
//
// The queue's own mutex guards only the closed flag; enqueue/dequeue never
// take the engine-wide registry lock.
type destQueue struct {
	dest destination.Destination

	mu     sync.Mutex
	closed bool
	jobs   chan *Job

	// limiter paces send attempts for this destination. Waited on before the
	// admission slot is taken, so a throttled destination holds nothing.
	limiter *rate.Limiter
}

func newDestQueue(dest destination.Destination, size, ratePerSec int) *destQueue {
	q := &destQueue{
		dest: dest,
		jobs: make(chan *Job, size),
	}
	if ratePerSec > 0 {
		q.limiter = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	return q
}

// tryEnqueue appends j or rejects it without blocking.
func (q *destQueue) tryEnqueue(j *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errQueueClosed
	}
	select {
	case q.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// close stops intake; the worker drains what is already queued and exits.
func (q *destQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
}

// closeIfEmpty retires the queue only when nothing is pending. Returns true
// when the queue is closed after the call.
func (q *destQueue) closeIfEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return true
	}
	if len(q.jobs) > 0 {
		return false
	}
	q.closed = true
	close(q.jobs)
	return true
}
