package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"lingo-dm/auth"
	"lingo-dm/contract"
	"lingo-dm/domain"
	"lingo-dm/errors"
	"lingo-dm/services"
	"lingo-dm/sink"
)

const (
	readWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// connState tracks one connection through its lifecycle. Closed is
// terminal; a reconnect always starts a fresh instance.
type connState int

const (
	stateConnecting connState = iota
	stateAuthenticated
	stateBound
	stateClosed
)

// Gateway authenticates incoming connections and binds each one to the
// channel named after its user. No application event is processed
// before the connection is bound.
type Gateway struct {
	log        *slog.Logger
	tokens     *auth.TokenManager
	directory  contract.IIdentityDirectory
	registry   contract.IRegistry
	chat       services.IChatService
	upgrader   websocket.Upgrader
	bufferSize int
}

func NewGateway(log *slog.Logger, tokens *auth.TokenManager, directory contract.IIdentityDirectory,
	registry contract.IRegistry, chat services.IChatService, bufferSize int) *Gateway {
	return &Gateway{
		log:        log,
		tokens:     tokens,
		directory:  directory,
		registry:   registry,
		chat:       chat,
		bufferSize: bufferSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// connection is the per-socket unit of concurrency: one reader (this
// goroutine), one writer goroutine, one sink fed by the router.
type connection struct {
	state  connState
	userID string
	ws     *websocket.Conn
	sink   *sink.Sink
	acks   chan Outbound
}

// HandleSocket runs the handshake state machine and then the read
// loop. A failed handshake transitions straight to Closed: the
// connection is refused before the upgrade, with no partial state.
func (g *Gateway) HandleSocket(w http.ResponseWriter, r *http.Request) {
	conn := &connection{state: stateConnecting}

	credential := auth.CredentialFromRequest(r)
	claims, err := g.tokens.Validate(credential)
	if err != nil {
		conn.state = stateClosed
		g.log.Warn("handshake refused", "reason", "credential", "error", err)
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}
	conn.state = stateAuthenticated

	profile, err := g.directory.Resolve(r.Context(), claims.UserID)
	if err != nil {
		conn.state = stateClosed
		g.log.Warn("handshake refused", "reason", "identity", "user_id", claims.UserID, "error", err)
		http.Error(w, "unknown user", http.StatusUnauthorized)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		conn.state = stateClosed
		g.log.Warn("upgrade failed", "user_id", profile.ID, "error", err)
		return
	}

	conn.userID = profile.ID
	conn.ws = ws
	conn.sink = sink.New(g.bufferSize)
	conn.acks = make(chan Outbound, g.bufferSize)

	g.registry.Bind(conn.userID, conn.sink)
	conn.state = stateBound
	g.log.Info("connection bound", "user_id", conn.userID)

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		// Closing unbinds immediately and unconditionally. In-flight
		// sends on this socket simply never get their acknowledgement.
		cancel()
		g.registry.Unbind(conn.userID, conn.sink)
		_ = ws.Close()
		conn.state = stateClosed
		g.log.Info("connection closed", "user_id", conn.userID)
	}()

	go g.writeLoop(ctx, conn)
	g.readLoop(ctx, conn)
}

// readLoop consumes client events until the socket drops. A malformed
// or invalid request never tears the connection down; failure stays
// local to the request.
func (g *Gateway) readLoop(ctx context.Context, conn *connection) {
	_ = conn.ws.SetReadDeadline(time.Now().Add(readWait))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(readWait))
	})

	for {
		var envelope Envelope
		if err := conn.ws.ReadJSON(&envelope); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.log.Debug("read error", "user_id", conn.userID, "error", err)
			}
			return
		}
		_ = conn.ws.SetReadDeadline(time.Now().Add(readWait))

		switch envelope.Type {
		case EventMessageSend:
			g.handleSend(ctx, conn, envelope.Data)
		case EventTypingStart:
			g.handleTyping(ctx, conn, envelope.Data, true)
		case EventTypingStop:
			g.handleTyping(ctx, conn, envelope.Data, false)
		default:
			g.log.Debug("unsupported event type", "type", envelope.Type, "user_id", conn.userID)
		}
	}
}

func (g *Gateway) handleSend(ctx context.Context, conn *connection, raw json.RawMessage) {
	var request SendRequest
	if err := json.Unmarshal(raw, &request); err != nil {
		g.log.Debug("malformed send payload dropped", "user_id", conn.userID)
		return
	}

	stored, err := g.chat.Send(ctx, domain.SendCommand{
		FromUserID: conn.userID,
		ToUserID:   request.ToUserID,
		Text:       request.Text,
		ClientID:   request.ClientID,
	})
	if err != nil {
		if errors.IsValidation(err) {
			// Caller contract violation: no acknowledgement, no echo.
			g.log.Debug("invalid send request dropped", "user_id", conn.userID, "error", err)
			return
		}
		conn.enqueueAck(Ack{OK: false, ClientID: request.ClientID, Error: "message could not be persisted"})
		return
	}
	conn.enqueueAck(Ack{OK: true, Message: &stored, ClientID: request.ClientID})
}

func (g *Gateway) handleTyping(ctx context.Context, conn *connection, raw json.RawMessage, active bool) {
	var request TypingRequest
	if err := json.Unmarshal(raw, &request); err != nil {
		return
	}
	g.chat.NotifyTyping(ctx, conn.userID, request.ToUserID, active)
}

func (conn *connection) enqueueAck(ack Ack) {
	select {
	case conn.acks <- Outbound{Type: EventMessageAck, Data: ack}:
	default:
		// Writer stalled beyond the ack buffer; the client's own
		// timeout turns the missing ack into a failed send.
	}
}

// writeLoop is the sole writer on the socket. It multiplexes routed
// events, request acknowledgements, and keepalive pings.
func (g *Gateway) writeLoop(ctx context.Context, conn *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	// Closing the socket here unblocks the read loop when the writer
	// dies first.
	defer func() { _ = conn.ws.Close() }()

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-conn.sink.Events:
			outbound, ok := toOutbound(e)
			if !ok {
				continue
			}
			if err := conn.ws.WriteJSON(outbound); err != nil {
				g.log.Debug("write failed", "user_id", conn.userID, "error", err)
				return
			}
		case outbound := <-conn.acks:
			if err := conn.ws.WriteJSON(outbound); err != nil {
				g.log.Debug("ack write failed", "user_id", conn.userID, "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
