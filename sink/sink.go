// Package sink bridges the router and a live connection. The router
// pushes events in; the connection's writer goroutine drains them.
package sink

import (
	"context"

	"lingo-dm/domain/event"
)

type Sink struct {
	Events chan event.DomainEvent
}

func New(bufferSize int) *Sink {
	return &Sink{Events: make(chan event.DomainEvent, bufferSize)}
}

// Consume is called by the router. A full buffer drops the event
// rather than blocking delivery to other connections; the client
// resynchronizes through a history fetch after reconnecting.
func (s *Sink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case s.Events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
