//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"lingo-dm/domain"
	"lingo-dm/domain/event"
)

// EventSink is one live connection's inbox. Consume must not block the
// router: implementations buffer and drop under backpressure.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry tracks which sinks are bound to a user's channel.
// Multiple simultaneous sessions for one user all bind to the same
// channel and broadcast semantics fan out to all of them.
type IRegistry interface {
	Bind(userID string, sink EventSink)
	Unbind(userID string, sink EventSink)
	SinksFor(userID string) []EventSink
}

// IMessageStore is the append-only, partitioned-by-conversation store.
// QueryRecent returns up to limit messages newest-first; before is an
// exclusive upper bound on CreatedAt (zero means unbounded).
// Implementations normalize limit with domain.ClampPageSize.
type IMessageStore interface {
	Append(ctx context.Context, message domain.Message) (domain.Message, error)
	QueryRecent(ctx context.Context, conversationID string, limit int, before int64) ([]domain.Message, error)
}

// IIdentityDirectory is the external identity collaborator. The
// gateway resolves the user id carried by a verified credential before
// binding the connection.
type IIdentityDirectory interface {
	Resolve(ctx context.Context, userID string) (domain.Profile, error)
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// lifecycle events, avoiding the need for manual naming in the Worker
// interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
