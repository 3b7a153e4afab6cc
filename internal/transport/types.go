// Package transport defines the source-side ingestion contract. An adapter
// watches one network for messages and emits them as SourceEvents; everything
// downstream (routing, transforms, dispatch) is network-agnostic.
package transport

import (
	"context"
	"time"
)

// SourceEvent is one message observed on a source feed.
type SourceEvent struct {
	// ID identifies the event across restarts and retries; the outcome log
	// keys on it together with the destination.
	ID        string
	ChatID    int64
	ChatTitle string
	// Sender is the author's display name; empty for anonymous channel posts.
	Sender string
	Text   string
	// Link is a permalink to the original message when one can be built.
	Link string
	At   time.Time
	// Outgoing marks messages produced by the relay's own account. Routing
	// drops them to keep relayed output from being re-ingested.
	Outgoing bool
}

// Adapter ingests events from one source network.
type Adapter interface {
	// Events returns the stream of observed messages. The channel is owned
	// by the adapter; after Stop returns no further events are sent.
	Events() <-chan SourceEvent
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
