// Package relay connects source ingestion to the dispatch engine: route
// resolution, text transforms, payload rendering and loop prevention live
// here, so the engine stays a pure delivery machine.
package relay

import (
	"context"
	"sync"

	"teleforward/internal/destination"
	"teleforward/internal/dispatch"
	"teleforward/internal/sender"
	"teleforward/internal/transport"
	"teleforward/pkg/logx"
)

// Dispatcher is the slice of the engine the relay needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, sourceEventID string, payload sender.Payload, dests []destination.Destination) []dispatch.Acceptance
}

// Relay pumps source events through the router into the dispatcher.
type Relay struct {
	router *Router
	disp   Dispatcher
	log    logx.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(router *Router, disp Dispatcher, log logx.Logger) *Relay {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Relay{router: router, disp: disp, log: log}
}

// Start consumes events until Stop. Each routed event is handed to the
// dispatcher per target, because transforms can shape the text differently
// per route.
func (r *Relay) Start(ctx context.Context, events <-chan transport.SourceEvent) {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				r.handle(runCtx, ev)
			}
		}
	}()
}

func (r *Relay) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *Relay) handle(ctx context.Context, ev transport.SourceEvent) {
	targets := r.router.Resolve(ev)
	if len(targets) == 0 {
		return
	}
	r.log.Debug("event routed",
		logx.String("event", ev.ID),
		logx.Int64("chat", ev.ChatID),
		logx.Int("targets", len(targets)))

	for _, tg := range targets {
		payload := RenderPayload(ev, tg.Text)
		r.disp.Dispatch(ctx, ev.ID, payload, []destination.Destination{tg.Dest})
	}
}
