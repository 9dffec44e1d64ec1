package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"lingo-dm/auth"
	"lingo-dm/domain"
	"lingo-dm/repositories"
	"lingo-dm/runtime"
	"lingo-dm/services"
)

const testSecret = "gateway_test_secret_key"

type testServer struct {
	server   *httptest.Server
	tokens   *auth.TokenManager
	registry *runtime.Registry
	chat     *services.ChatService
}

func newTestServer(t *testing.T) *testServer {
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

	tokens := auth.NewTokenManager(testSecret, time.Hour)
	gateway := NewGateway(log, tokens, directory, registry, chat, 16)
	history := NewHistoryHandler(log, chat)

	server := httptest.NewServer(NewHTTPRouter(gateway, history, tokens))
	t.Cleanup(server.Close)
	return &testServer{server: server, tokens: tokens, registry: registry, chat: chat}
}

func (ts *testServer) wsURL(token string) string {
	return "ws" + strings.TrimPrefix(ts.server.URL, "http") + "/ws?token=" + token
}

func (ts *testServer) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	token, err := ts.tokens.Generate(userID)
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(ts.wsURL(token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readEvent reads envelopes until one of the wanted type arrives.
func readEvent(t *testing.T, conn *websocket.Conn, wantType string) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		var envelope Envelope
		require.NoError(t, conn.ReadJSON(&envelope))
		if envelope.Type == wantType {
			return envelope.Data
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, eventType string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Envelope{Type: eventType, Data: data}))
}

func Test_Handshake_Rejects_Expired_Token(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	expired := auth.NewTokenManager(testSecret, -time.Minute)
	token, err := expired.Generate("u1")
	req.NoError(err)

	_, resp, err := websocket.DefaultDialer.Dial(ts.wsURL(token), nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
	// Closed without ever reaching Bound: no channel binding exists.
	req.Nil(ts.registry.SinksFor("u1"))
}

func Test_Handshake_Rejects_Unknown_User(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	token, err := ts.tokens.Generate("stranger")
	req.NoError(err)

	_, resp, err := websocket.DefaultDialer.Dial(ts.wsURL(token), nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
	req.Nil(ts.registry.SinksFor("stranger"))
}

func Test_Handshake_Rejects_Missing_Token(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(ts.wsURL(""), nil)
	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func Test_Send_Acks_Sender_And_Routes_To_Recipient(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	alice := ts.dial(t, "u1")
	bob := ts.dial(t, "u2")

	send(t, alice, EventMessageSend, SendRequest{ToUserID: "u2", Text: "hello", ClientID: "c1"})

	var ack Ack
	req.NoError(json.Unmarshal(readEvent(t, alice, EventMessageAck), &ack))
	req.True(ack.OK)
	req.Equal("c1", ack.ClientID)
	req.NotNil(ack.Message)
	req.Equal("u1-u2", ack.Message.ConversationID)
	req.Equal("hello", ack.Message.Text)
	req.NotEmpty(ack.Message.MessageID)

	var delivered domain.Message
	req.NoError(json.Unmarshal(readEvent(t, bob, EventMessageNew), &delivered))
	req.Equal(ack.Message.MessageID, delivered.MessageID)
	req.Equal("u1", delivered.SenderID)
}

func Test_Invalid_Send_Is_Silently_Dropped(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	alice := ts.dial(t, "u1")
	bob := ts.dial(t, "u2")

	send(t, alice, EventMessageSend, SendRequest{ToUserID: "u2", Text: "   ", ClientID: "bad"})
	send(t, alice, EventMessageSend, SendRequest{ToUserID: "", Text: "hi", ClientID: "worse"})
	// A valid request afterwards: the only ack we ever see belongs to
	// it, proving the invalid ones got no acknowledgement.
	send(t, alice, EventMessageSend, SendRequest{ToUserID: "u2", Text: "valid", ClientID: "good"})

	var ack Ack
	req.NoError(json.Unmarshal(readEvent(t, alice, EventMessageAck), &ack))
	req.Equal("good", ack.ClientID)

	var delivered domain.Message
	req.NoError(json.Unmarshal(readEvent(t, bob, EventMessageNew), &delivered))
	req.Equal("valid", delivered.Text)

	// Nothing was persisted for the invalid requests.
	history, err := ts.chat.History(context.Background(), domain.HistoryQuery{UserID: "u1", PeerID: "u2"})
	req.NoError(err)
	req.Len(history, 1)
}

func Test_Typing_Indicators_Are_Relayed(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	alice := ts.dial(t, "u1")
	bob := ts.dial(t, "u2")

	send(t, alice, EventTypingStart, TypingRequest{ToUserID: "u2"})
	var notice TypingNotice
	req.NoError(json.Unmarshal(readEvent(t, bob, EventTypingStart), &notice))
	req.Equal("u1", notice.FromUserID)

	send(t, alice, EventTypingStop, TypingRequest{ToUserID: "u2"})
	req.NoError(json.Unmarshal(readEvent(t, bob, EventTypingStop), &notice))
	req.Equal("u1", notice.FromUserID)
}

func Test_Multiple_Sessions_All_Receive_Events(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	alice := ts.dial(t, "u1")
	bobLaptop := ts.dial(t, "u2")
	bobPhone := ts.dial(t, "u2")

	send(t, alice, EventMessageSend, SendRequest{ToUserID: "u2", Text: "ping", ClientID: "c1"})

	for _, conn := range []*websocket.Conn{bobLaptop, bobPhone} {
		var delivered domain.Message
		req.NoError(json.Unmarshal(readEvent(t, conn, EventMessageNew), &delivered))
		req.Equal("ping", delivered.Text)
	}
}

func Test_Disconnect_Unbinds_Channel(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	alice := ts.dial(t, "u1")
	req.Eventually(func() bool { return len(ts.registry.SinksFor("u1")) == 1 },
		2*time.Second, 10*time.Millisecond)

	req.NoError(alice.Close())
	req.Eventually(func() bool { return ts.registry.SinksFor("u1") == nil },
		2*time.Second, 10*time.Millisecond)
}

func Test_History_Endpoint_Returns_Ascending_Page(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	alice := ts.dial(t, "u1")
	send(t, alice, EventMessageSend, SendRequest{ToUserID: "u2", Text: "first", ClientID: "c1"})
	readEvent(t, alice, EventMessageAck)
	send(t, alice, EventMessageSend, SendRequest{ToUserID: "u2", Text: "second", ClientID: "c2"})
	readEvent(t, alice, EventMessageAck)

	token, err := ts.tokens.Generate("u2")
	req.NoError(err)
	request, err := http.NewRequest(http.MethodGet, ts.server.URL+"/api/chat/u1/messages?limit=30", nil)
	req.NoError(err)
	request.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(request)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var page []domain.Message
	req.NoError(json.NewDecoder(resp.Body).Decode(&page))
	req.Len(page, 2)
	req.Equal("first", page[0].Text)
	req.Equal("second", page[1].Text)
}

func Test_History_Endpoint_Requires_Credential(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	resp, err := http.Get(ts.server.URL + "/api/chat/u1/messages")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}
