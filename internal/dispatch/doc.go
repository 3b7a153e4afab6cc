// Package dispatch implements the destination fanout engine.
//
// One source event fans out into one delivery job per destination. Every
// destination owns a bounded FIFO queue drained by a single worker, so
// deliveries to one destination are strictly ordered while destinations
// never block each other. Workers run the send-with-retry protocol around a
// Sender and record exactly one terminal outcome per job in the outcome log.
//
// A global admission semaphore caps how many workers are sending at the same
// moment. The slot is held only across a network attempt: rate-limit waits
// and retry backoffs release it so a destination that is merely waiting
// cannot starve the others.
package dispatch
