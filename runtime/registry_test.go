package runtime

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"lingo-dm/domain"
	"lingo-dm/domain/event"
	"lingo-dm/sink"
)

func Test_Registry_Binds_Multiple_Sessions_To_One_Channel(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	laptop := sink.New(8)
	phone := sink.New(8)

	registry.Bind("u1", laptop)
	registry.Bind("u1", phone)
	req.Len(registry.SinksFor("u1"), 2)

	registry.Unbind("u1", laptop)
	req.Len(registry.SinksFor("u1"), 1)

	registry.Unbind("u1", phone)
	req.Nil(registry.SinksFor("u1"))
}

func Test_Registry_Unbind_Unknown_User_Is_Noop(t *testing.T) {
	registry := NewRegistry()
	registry.Unbind("ghost", sink.New(1))
}

func Test_Router_Delivers_To_Every_Session(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	router := NewRouter(slog.Default(), registry)

	laptop := sink.New(8)
	phone := sink.New(8)
	registry.Bind("u2", laptop)
	registry.Bind("u2", phone)

	router.Deliver(context.Background(), event.MessageDelivered{
		To:      "u2",
		Message: domain.Message{MessageID: "m1", Text: "hello"},
	})

	for _, s := range []*sink.Sink{laptop, phone} {
		select {
		case e := <-s.Events:
			delivered, ok := e.(event.MessageDelivered)
			req.True(ok)
			req.Equal("m1", delivered.Message.MessageID)
		default:
			t.Fatal("expected an event in every bound sink")
		}
	}
}

func Test_Router_Drops_Event_For_Offline_User(t *testing.T) {
	registry := NewRegistry()
	router := NewRouter(slog.Default(), registry)
	// Must not panic or block.
	router.Deliver(context.Background(), event.TypingStarted{To: "offline", From: "u1"})
}

func Test_Sink_Drops_On_Full_Buffer_Instead_Of_Blocking(t *testing.T) {
	req := require.New(t)
	s := sink.New(1)
	ctx := context.Background()

	req.NoError(s.Consume(ctx, event.TypingStarted{To: "u2", From: "u1"}))
	// Buffer full: second event is dropped, Consume still returns nil.
	req.NoError(s.Consume(ctx, event.TypingStopped{To: "u2", From: "u1"}))
	req.Len(s.Events, 1)
}
