package relay

import (
	"sync"

	"teleforward/internal/destination"
	"teleforward/internal/transport"
)

// Route connects source chats to destinations, with an optional transform
// chain applied to every message it carries.
type Route struct {
	Name         string
	Sources      []int64
	Destinations []string
	Transform    TransformRules
}

// Target is one resolved delivery: the destination plus the text as this
// route's transforms shaped it.
type Target struct {
	Dest destination.Destination
	Text string
}

// Router resolves a source event to the set of deliveries it should produce.
// Safe for concurrent use; Apply swaps the route table on config reload.
type Router struct {
	mu     sync.RWMutex
	routes []Route
	dests  destination.Store
}

func NewRouter(routes []Route, dests destination.Store) *Router {
	return &Router{routes: routes, dests: dests}
}

func (r *Router) Apply(routes []Route) {
	r.mu.Lock()
	r.routes = routes
	r.mu.Unlock()
}

// Resolve returns the deliveries for ev, at most one per destination. When
// several routes hit the same destination the first route's transform wins.
//
// Two classes of event never resolve: messages the relay's own account
// produced, and deliveries that would land back in the chat the message came
// from. Both would feed relayed output back into ingestion.
func (r *Router) Resolve(ev transport.SourceEvent) []Target {
	if ev.Outgoing {
		return nil
	}

	r.mu.RLock()
	routes := r.routes
	dests := r.dests
	r.mu.RUnlock()

	var out []Target
	seen := map[string]bool{}
	for _, rt := range routes {
		if !matchesSource(rt, ev.ChatID) {
			continue
		}
		text, ok := rt.Transform.Apply(ev.Text)
		if !ok {
			continue
		}
		for _, id := range rt.Destinations {
			if seen[id] {
				continue
			}
			seen[id] = true
			d, found := dests.Get(id)
			if !found || !d.Active {
				continue
			}
			if d.Kind == destination.KindChat && d.ChatID == ev.ChatID {
				continue
			}
			out = append(out, Target{Dest: d, Text: text})
		}
	}
	return out
}

func matchesSource(rt Route, chatID int64) bool {
	for _, id := range rt.Sources {
		if id == chatID {
			return true
		}
	}
	return false
}
