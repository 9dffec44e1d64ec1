package runtime

import (
	"context"
	"log/slog"

	"lingo-dm/contract"
	"lingo-dm/domain/event"
)

// Router fans an event out to every sink bound to the target user's
// channel.
//
// It provides best-effort delivery with no guarantees regarding
// ordering across conversations, durability, or retries. The Router is
// not a message broker: chat content is durable because the store
// persisted it before routing, and typing indicators are allowed to be
// lost.
//
// Router is safe for concurrent use by multiple goroutines.
type Router struct {
	registry contract.IRegistry
	log      *slog.Logger
}

func NewRouter(log *slog.Logger, registry contract.IRegistry) *Router {
	return &Router{registry: registry, log: log}
}

// Deliver pushes the event to all of the target user's live sinks.
// An offline user (no bound sink) is a silent drop, not an error.
func (r *Router) Deliver(ctx context.Context, e event.DomainEvent) {
	sinks := r.registry.SinksFor(e.TargetUserID())
	if len(sinks) == 0 {
		r.log.Debug("no live session, event dropped", "user_id", e.TargetUserID())
		return
	}
	for _, sink := range sinks {
		if err := sink.Consume(ctx, e); err != nil {
			r.log.Debug("sink rejected event", "user_id", e.TargetUserID(), "error", err)
		}
	}
}
