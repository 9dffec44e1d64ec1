package client

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"lingo-dm/auth"
	"lingo-dm/domain"
	"lingo-dm/gateway"
	"lingo-dm/repositories"
	"lingo-dm/runtime"
	"lingo-dm/services"
)

type backend struct {
	server *httptest.Server
	tokens *auth.TokenManager
}

func (b *backend) wsURL() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http") + "/ws"
}

func (b *backend) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := b.tokens.Generate(userID)
	require.NoError(t, err)
	return token
}

func (b *backend) dial(t *testing.T, userID string) *Conn {
	t.Helper()
	conn, err := Dial(context.Background(), b.wsURL(), b.token(t, userID), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	registry := runtime.NewRegistry()
	router := runtime.NewRouter(log, registry)
	store := repositories.NewMessageRepository(db, log)
	chat := services.NewChatService(log, store, router)

	directory := repositories.NewProfileRepository(db)
	for _, profile := range []domain.Profile{{ID: "u1", Name: "Alice"}, {ID: "u2", Name: "Bob"}} {
		require.NoError(t, directory.Upsert(context.Background(), profile))
	}

	tokens := auth.NewTokenManager("client_test_secret", time.Hour)
	gw := gateway.NewGateway(log, tokens, directory, registry, chat, 16)
	history := gateway.NewHistoryHandler(log, chat)

	server := httptest.NewServer(gateway.NewHTTPRouter(gw, history, tokens))
	t.Cleanup(server.Close)
	return &backend{server: server, tokens: tokens}
}

func Test_Dial_Rejects_Bad_Credential(t *testing.T) {
	req := require.New(t)
	b := newBackend(t)

	_, err := Dial(context.Background(), b.wsURL(), "not-a-token", slog.Default())
	req.Error(err)
}

func Test_Send_Confirms_Optimistic_Entry_End_To_End(t *testing.T) {
	req := require.New(t)
	b := newBackend(t)

	alice := b.dial(t, "u1")
	bob := b.dial(t, "u2")

	stored, err := alice.Send(context.Background(), "u2", "hello")
	req.NoError(err)
	req.Equal("u1-u2", stored.ConversationID)

	// Sender view: exactly one entry, delivered, server identity.
	view := alice.Timeline().Snapshot()
	req.Len(view, 1)
	req.Equal(StatusDelivered, view[0].Status)
	req.Equal(stored.MessageID, view[0].Message.MessageID)

	// Recipient view catches up through the live event.
	req.Eventually(func() bool {
		peers := bob.Timeline().Snapshot()
		return len(peers) == 1 && peers[0].Message.MessageID == stored.MessageID
	}, 3*time.Second, 20*time.Millisecond)
}

func Test_Live_Events_And_History_Fetch_Do_Not_Duplicate(t *testing.T) {
	req := require.New(t)
	b := newBackend(t)

	alice := b.dial(t, "u1")
	bob := b.dial(t, "u2")
	ctx := context.Background()

	first, err := alice.Send(ctx, "u2", "hello")
	req.NoError(err)
	second, err := alice.Send(ctx, "u2", "how are you")
	req.NoError(err)

	req.Eventually(func() bool {
		return len(bob.Timeline().Snapshot()) == 2
	}, 3*time.Second, 20*time.Millisecond)

	// The history fetch races the live events and surfaces the same
	// messages; the merge must not duplicate them.
	page, err := FetchHistory(ctx, b.server.URL, b.token(t, "u2"), "u1", 30, 0)
	req.NoError(err)
	req.Len(page, 2)
	bob.Timeline().MergeHistory(page)

	view := bob.Timeline().Snapshot()
	req.Len(view, 2)
	req.Equal(first.MessageID, view[0].Message.MessageID)
	req.Equal(second.MessageID, view[1].Message.MessageID)
}

func Test_Typing_Indicator_Auto_Stops_After_Idle(t *testing.T) {
	req := require.New(t)
	b := newBackend(t)

	alice := b.dial(t, "u1")
	bob := b.dial(t, "u2")

	alice.NotifyTyping("u2")
	req.Eventually(func() bool {
		return bob.Timeline().PeerTyping(time.Now())
	}, 2*time.Second, 20*time.Millisecond)

	// No further keystrokes: the idle timer emits typing:stop.
	req.Eventually(func() bool {
		return !bob.Timeline().PeerTyping(time.Now())
	}, 3*time.Second, 20*time.Millisecond)
}

func Test_Explicit_StopTyping_Clears_Peer_Flag(t *testing.T) {
	req := require.New(t)
	b := newBackend(t)

	alice := b.dial(t, "u1")
	bob := b.dial(t, "u2")

	alice.NotifyTyping("u2")
	req.Eventually(func() bool {
		return bob.Timeline().PeerTyping(time.Now())
	}, 2*time.Second, 20*time.Millisecond)

	alice.StopTyping("u2")
	req.Eventually(func() bool {
		return !bob.Timeline().PeerTyping(time.Now())
	}, 2*time.Second, 20*time.Millisecond)
}

func Test_Paginated_History_Walks_Backward(t *testing.T) {
	req := require.New(t)
	b := newBackend(t)

	alice := b.dial(t, "u1")
	ctx := context.Background()
	for _, text := range []string{"one", "two", "three", "four"} {
		_, err := alice.Send(ctx, "u2", text)
		req.NoError(err)
		// Millisecond timestamps need distinct values for a
		// deterministic page split in this test.
		time.Sleep(5 * time.Millisecond)
	}

	token := b.token(t, "u1")
	recent, err := FetchHistory(ctx, b.server.URL, token, "u2", 2, 0)
	req.NoError(err)
	req.Len(recent, 2)
	req.Equal("three", recent[0].Text)
	req.Equal("four", recent[1].Text)

	older, err := FetchHistory(ctx, b.server.URL, token, "u2", 2, recent[0].CreatedAt)
	req.NoError(err)
	req.Len(older, 2)
	req.Equal("one", older[0].Text)
	req.Equal("two", older[1].Text)

	empty, err := FetchHistory(ctx, b.server.URL, token, "u2", 2, older[0].CreatedAt)
	req.NoError(err)
	req.Empty(empty)
}
