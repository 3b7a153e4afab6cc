package sender

import (
	"context"
	"time"

	"teleforward/internal/destination"
)

// Status is the coarse result of exactly one delivery attempt.
type Status int

const (
	// StatusDelivered means the provider accepted the payload.
	StatusDelivered Status = iota
	// StatusTransient means the attempt failed in a retryable way.
	StatusTransient
	// StatusPermanent means retrying cannot help (bad payload/address/config).
	StatusPermanent
)

func (s Status) String() string {
	switch s {
	case StatusDelivered:
		return "delivered"
	case StatusTransient:
		return "transient"
	case StatusPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Class refines Status into the failure taxonomy recorded in the outcome log.
type Class string

const (
	ClassNone             Class = ""
	ClassTransientNetwork Class = "transient-network"
	ClassRateLimited      Class = "transient-rate-limited"
	ClassRejected         Class = "permanent-rejected"
	// ClassInactive and ClassCapacity are produced by the dispatch engine,
	// never by a Sender.
	ClassInactive Class = "permanent-inactive"
	ClassCapacity Class = "capacity-exceeded"
)

// Result classifies one attempt. RetryAfter is a provider-declared wait hint
// (zero when the provider gave none); hints from different providers are
// normalized to a plain duration at this boundary.
type Result struct {
	Status     Status
	Class      Class
	RetryAfter time.Duration
	Err        error
}

func delivered() Result { return Result{Status: StatusDelivered} }

// Payload carries the pre-rendered variant for each destination kind. The
// engine hands the whole struct to the Sender; each Sender reads only its
// own variant.
type Payload struct {
	// WebhookBody is the provider-shaped JSON body for webhook destinations.
	WebhookBody []byte
	// ChatText is the rendered message text for chat destinations.
	ChatText string
}

// Sender performs exactly one delivery attempt and classifies the outcome.
// No retries, no backoff, no outcome logging; that policy lives in the
// dispatch engine.
type Sender interface {
	Send(ctx context.Context, dest destination.Destination, payload Payload) Result

	// Probe performs a harmless reachability check against the destination,
	// bypassing any queueing or retry machinery.
	Probe(ctx context.Context, dest destination.Destination) Result
}
