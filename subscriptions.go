package gtfsrt

import (
	"sort"
	"sync"
)

// Tuple identifies one monitored (route, direction, stop)
// combination. Direction IDs are string keys throughout, since feeds
// disagree on whether they're strings or integers.
type Tuple struct {
	RouteID     string
	DirectionID string
	StopID      string
}

// Subscription is a monitored tuple plus how many forward departures
// its consumer wants tracked.
type Subscription struct {
	Tuple
	Limit int
}

// Registry tracks the tuples consumers asked for, so a cycle only
// retains feed data someone wants. Registrations are idempotent and
// permanent: there is no unsubscribe, the set grows for the process
// lifetime.
type Registry struct {
	mu     sync.RWMutex
	subs   map[Tuple]Subscription
	routes map[string]bool
}

func NewRegistry() *Registry {
	return &Registry{
		subs:   map[Tuple]Subscription{},
		routes: map[string]bool{},
	}
}

// Register adds a tuple. An empty direction defaults to "0". A limit
// below 1 defaults to 1. Re-registering raises the limit if the new
// one is higher, and is otherwise a no-op.
func (r *Registry) Register(route, direction, stop string, limit int) {
	if direction == "" {
		direction = "0"
	}
	if limit < 1 {
		limit = 1
	}

	key := Tuple{RouteID: route, DirectionID: direction, StopID: stop}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.subs[key]; ok && existing.Limit >= limit {
		return
	}
	r.subs[key] = Subscription{Tuple: key, Limit: limit}
	r.routes[route] = true
}

// IsSubscribed is the single read path used to filter incoming stop
// time updates.
func (r *Registry) IsSubscribed(route, direction, stop string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[Tuple{RouteID: route, DirectionID: direction, StopID: stop}]
	return ok
}

// HasRoute reports whether any subscription references the route.
// Used to skip whole feed entities early.
func (r *Registry) HasRoute(route string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.routes[route]
}

// All returns every subscription, in a stable order.
func (r *Registry) All() []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := make([]Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool {
		a, b := subs[i].Tuple, subs[j].Tuple
		if a.RouteID != b.RouteID {
			return a.RouteID < b.RouteID
		}
		if a.DirectionID != b.DirectionID {
			return a.DirectionID < b.DirectionID
		}
		return a.StopID < b.StopID
	})

	return subs
}
