package runtime

import (
	"sync"

	"lingo-dm/contract"
)

type sinkSet map[contract.EventSink]struct{}

// Registry owns the ephemeral connection-to-user binding. Each entry
// maps a user id to the set of sinks for that user's live sessions.
// Mutated only on connect and disconnect.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]sinkSet
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]sinkSet)}
}

// Bind joins a connection's sink to the channel named after userID.
// A second session for the same user joins the same channel.
func (r *Registry) Bind(userID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.channels[userID]; !ok {
		r.channels[userID] = make(sinkSet)
	}
	r.channels[userID][sink] = struct{}{}
}

// Unbind removes one sink. It leaves no empty sets behind in the
// channel map to prevent memory leaks over time.
func (r *Registry) Unbind(userID string, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sinks, ok := r.channels[userID]
	if !ok {
		return
	}
	delete(sinks, sink)
	if len(sinks) == 0 {
		delete(r.channels, userID)
	}
}

// SinksFor returns the sinks currently bound to a user's channel.
// Returns nil when the user has no live session.
func (r *Registry) SinksFor(userID string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sinks, ok := r.channels[userID]
	if !ok {
		return nil
	}
	active := make([]contract.EventSink, 0, len(sinks))
	for sink := range sinks {
		active = append(active, sink)
	}
	return active
}
