package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"teleforward/internal/destination"
	"teleforward/internal/logstore"
	"teleforward/internal/sender"
	"teleforward/pkg/logx"
)

// Engine owns the registry of per-destination queues and fans source events
// out into delivery jobs. Safe for concurrent use.
type Engine struct {
	cfg Config
	log logx.Logger

	senders  map[destination.Kind]sender.Sender
	dests    destination.Store
	outcomes logstore.Store

	// mu guards the queue registry and the intake flag only; per-queue
	// enqueue/dequeue does not take it.
	mu        sync.Mutex
	queues    map[string]*destQueue
	accepting bool

	// sem admits workers into the sending phase. Held across one attempt,
	// released for limiter waits and retry backoffs.
	sem chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup

	events *eventHub
}

func New(cfg Config, senders map[destination.Kind]sender.Sender, dests destination.Store, outcomes logstore.Store, log logx.Logger) *Engine {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	runCtx, runCancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:       cfg,
		log:       log,
		senders:   senders,
		dests:     dests,
		outcomes:  outcomes,
		queues:    map[string]*destQueue{},
		sem:       make(chan struct{}, cfg.MaxInFlight),
		runCtx:    runCtx,
		runCancel: runCancel,
		events:    newEventHub(),
	}
}

// Start opens intake. Worker lifetimes are bounded by Stop, not by any
// caller context, so queued jobs survive until a clean drain.
func (e *Engine) Start() {
	e.mu.Lock()
	e.accepting = true
	e.mu.Unlock()
}

// Subscribe returns a channel of delivery events. Slow subscribers drop
// events; call unsubscribe when done.
func (e *Engine) Subscribe(buffer int) (<-chan Event, func()) {
	return e.events.subscribe(buffer)
}

// Dispatch fans one source event out to the given destinations and returns
// immediately with a per-destination acceptance. It never blocks on
// delivery; terminal outcomes are observable via the outcome log and the
// event stream.
//
// The destination list is trusted as already resolved and deduplicated.
func (e *Engine) Dispatch(ctx context.Context, sourceEventID string, payload sender.Payload, dests []destination.Destination) []Acceptance {
	out := make([]Acceptance, 0, len(dests))
	for _, d := range dests {
		err := e.enqueue(sourceEventID, payload, d)
		if err != nil && !errors.Is(err, ErrStopped) {
			e.log.Warn("dispatch rejected",
				logx.String("event", sourceEventID),
				logx.String("destination", d.ID),
				logx.Err(err))
		}
		out = append(out, Acceptance{DestinationID: d.ID, Err: err})
	}
	return out
}

func (e *Engine) enqueue(eventID string, payload sender.Payload, d destination.Destination) error {
	job := &Job{
		ID:            uuid.NewString(),
		SourceEventID: eventID,
		Dest:          d,
		Payload:       payload,
		EnqueuedAt:    time.Now(),
	}
	for {
		q, err := e.queueFor(d)
		if err != nil {
			return err
		}
		switch err := q.tryEnqueue(job); {
		case err == nil:
			e.events.publish(Event{
				Type:            EventQueued,
				SourceEventID:   eventID,
				DestinationID:   d.ID,
				DestinationName: d.Name,
			})
			return nil
		case errors.Is(err, errQueueClosed):
			// Retired between lookup and enqueue; create a fresh queue.
			continue
		default:
			// Capacity hit: terminal for this job, queued jobs unaffected.
			e.finish(job, logstore.OutcomeFailedPermanent, sender.ClassCapacity, err)
			return err
		}
	}
}

// queueFor returns the destination's queue, creating queue and worker on
// first use.
func (e *Engine) queueFor(d destination.Destination) (*destQueue, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.accepting {
		return nil, ErrStopped
	}
	if q, ok := e.queues[d.ID]; ok {
		return q, nil
	}
	q := newDestQueue(d, e.cfg.QueueSize, e.cfg.RatePerSec)
	e.queues[d.ID] = q
	e.wg.Add(1)
	go e.worker(q)
	e.log.Debug("destination worker started", logx.String("destination", d.ID))
	return q, nil
}

// Probe performs a direct reachability check against the destination,
// bypassing the queue and retry machinery.
func (e *Engine) Probe(ctx context.Context, d destination.Destination) sender.Result {
	snd, ok := e.senders[d.Kind]
	if !ok {
		return sender.Result{Status: sender.StatusPermanent, Class: sender.ClassRejected, Err: ErrNoSender}
	}
	return snd.Probe(ctx, d)
}

// Stop closes intake and drains queued jobs to terminal outcomes. When ctx
// expires first, remaining backoff waits are cut short and their jobs are
// closed out as exhausted.
func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	e.accepting = false
	queues := make([]*destQueue, 0, len(e.queues))
	for _, q := range e.queues {
		queues = append(queues, q)
	}
	e.mu.Unlock()

	for _, q := range queues {
		q.close()
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		e.runCancel()
		<-done
	}
	e.runCancel()
	e.log.Info("dispatch engine stopped")
}

func (e *Engine) worker(q *destQueue) {
	defer e.wg.Done()
	for j := range q.jobs {
		e.process(q, j)
		e.maybeRetire(q)
	}
}

// maybeRetire tears the queue down once it is drained and the destination is
// no longer active. The registry mutation happens under the engine lock;
// closeIfEmpty re-checks pending depth under the queue's own lock.
func (e *Engine) maybeRetire(q *destQueue) {
	if e.dests.Active(q.dest.ID) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if q.closeIfEmpty() {
		if e.queues[q.dest.ID] == q {
			delete(e.queues, q.dest.ID)
		}
		e.log.Debug("destination worker retired", logx.String("destination", q.dest.ID))
	}
}

// process runs one job to a terminal outcome.
func (e *Engine) process(q *destQueue, j *Job) {
	// The destination may have been deactivated between fanout and pop.
	d, ok := e.dests.Get(j.Dest.ID)
	if !ok || !d.Active {
		e.finish(j, logstore.OutcomeFailedPermanent, sender.ClassInactive, errors.New("destination inactive"))
		return
	}
	j.Dest = d

	snd, ok := e.senders[d.Kind]
	if !ok {
		e.finish(j, logstore.OutcomeFailedPermanent, sender.ClassRejected, ErrNoSender)
		return
	}

	maxAttempts := e.cfg.maxAttemptsFor(d.Kind)
	for {
		j.Attempts++
		res := e.attempt(q, snd, j)
		switch res.Status {
		case sender.StatusDelivered:
			e.finish(j, logstore.OutcomeDelivered, sender.ClassNone, nil)
			return
		case sender.StatusPermanent:
			e.finish(j, logstore.OutcomeFailedPermanent, res.Class, res.Err)
			return
		default:
			if j.Attempts >= maxAttempts {
				e.finish(j, logstore.OutcomeFailedExhausted, res.Class, res.Err)
				return
			}
			delay := retryDelay(e.cfg, j.Attempts, res.RetryAfter)
			e.log.Debug("delivery retry scheduled",
				logx.String("event", j.SourceEventID),
				logx.String("destination", j.Dest.ID),
				logx.Int("attempt", j.Attempts+1),
				logx.Duration("delay", delay),
				logx.Err(res.Err))
			if !e.sleepRetry(delay) {
				// Shutdown cut the backoff short; close the job out rather
				// than dropping it without a terminal outcome.
				e.finish(j, logstore.OutcomeFailedExhausted, res.Class, res.Err)
				return
			}
		}
	}
}

// attempt performs exactly one send. The admission slot is taken only after
// the rate limiter allows the attempt and is released before any backoff.
func (e *Engine) attempt(q *destQueue, snd sender.Sender, j *Job) sender.Result {
	if q.limiter != nil {
		if err := q.limiter.Wait(e.runCtx); err != nil {
			return sender.Result{Status: sender.StatusTransient, Class: sender.ClassTransientNetwork, Err: err}
		}
	}

	select {
	case e.sem <- struct{}{}:
	case <-e.runCtx.Done():
		return sender.Result{Status: sender.StatusTransient, Class: sender.ClassTransientNetwork, Err: e.runCtx.Err()}
	}
	defer func() { <-e.sem }()

	ctx, cancel := context.WithTimeout(e.runCtx, e.cfg.AttemptTimeout)
	defer cancel()
	return snd.Send(ctx, j.Dest, j.Payload)
}

// sleepRetry waits out a backoff delay; false means shutdown interrupted it.
func (e *Engine) sleepRetry(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-e.runCtx.Done():
		return false
	}
}

// finish records the terminal outcome and publishes the matching event.
func (e *Engine) finish(j *Job, out logstore.Outcome, class sender.Class, cause error) {
	rec := logstore.Record{
		SourceEventID:   j.SourceEventID,
		DestinationID:   j.Dest.ID,
		DestinationName: j.Dest.Name,
		Kind:            string(j.Dest.Kind),
		Outcome:         out,
		Class:           string(class),
		Attempts:        j.Attempts,
		At:              time.Now(),
	}
	if cause != nil {
		rec.Error = sender.RedactWebhookURL(cause.Error())
	}

	// Outcome writes must survive run-context cancellation during drain.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := e.outcomes.Append(ctx, rec); err != nil {
		e.log.Error("outcome log append failed",
			logx.String("event", j.SourceEventID),
			logx.String("destination", j.Dest.ID),
			logx.Err(err))
	}
	cancel()

	ev := Event{
		SourceEventID:   j.SourceEventID,
		DestinationID:   j.Dest.ID,
		DestinationName: j.Dest.Name,
		Outcome:         out,
		Class:           string(class),
		Attempts:        j.Attempts,
		Error:           rec.Error,
	}
	switch {
	case out == logstore.OutcomeDelivered:
		ev.Type = EventDelivered
		e.log.Debug("delivered",
			logx.String("event", j.SourceEventID),
			logx.String("destination", j.Dest.ID),
			logx.Int("attempts", j.Attempts))
	case class == sender.ClassCapacity:
		ev.Type = EventRejected
	default:
		ev.Type = EventFailed
		e.log.Warn("delivery failed",
			logx.String("event", j.SourceEventID),
			logx.String("destination", j.Dest.ID),
			logx.String("outcome", string(out)),
			logx.String("class", string(class)),
			logx.Int("attempts", j.Attempts),
			logx.String("err", rec.Error))
	}
	e.events.publish(ev)
}
