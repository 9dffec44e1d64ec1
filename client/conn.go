package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"lingo-dm/domain"
	"lingo-dm/errors"
	"lingo-dm/gateway"
)

const (
	// ackTimeout bounds how long a send waits for its acknowledgement;
	// a closed connection simply never delivers one.
	ackTimeout = 5 * time.Second
	// maxSendAttempts bounds the retry policy. Every attempt uses a
	// fresh clientId: a resolved clientId is never reused.
	maxSendAttempts = 3
	backoffBase     = 250 * time.Millisecond
	// typingIdle is how long after the last keystroke an automatic
	// typing:stop is emitted.
	typingIdle = 800 * time.Millisecond
)

// Conn is one authenticated live session. It owns the socket, the
// pending-acknowledgement table, and the local timeline.
type Conn struct {
	log      *slog.Logger
	ws       *websocket.Conn
	timeline *Timeline

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan gateway.Ack
	closed  bool

	typingMu    sync.Mutex
	typingTimer *time.Timer

	done chan struct{}
}

// Dial opens and authenticates a session. The token travels in the
// handshake query string, never as an application event.
func Dial(ctx context.Context, wsURL, token string, log *slog.Logger) (*Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL+"?token="+token, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, errors.ErrInvalidToken
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	c := &Conn{
		log:      log,
		ws:       ws,
		timeline: NewTimeline(),
		pending:  make(map[string]chan gateway.Ack),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Conn) Timeline() *Timeline { return c.timeline }

// Done closes when the session ends, however it ends.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Send runs the optimistic send cycle: speculative entry first, then
// the request, then reconciliation by the echoed clientId. A failed or
// timed-out attempt is retried under a new clientId with exponential
// backoff; the speculative entry of each dead attempt stays failed.
func (c *Conn) Send(ctx context.Context, toUserID, text string) (domain.Message, error) {
	var lastErr error
	for attempt := 0; attempt < maxSendAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoffBase << (attempt - 1)):
			case <-ctx.Done():
				return domain.Message{}, ctx.Err()
			}
		}

		clientID := uuid.NewString()
		c.timeline.AppendSpeculative(clientID, domain.Message{
			CreatedAt:  time.Now().UnixMilli(),
			ReceiverID: toUserID,
			Text:       text,
		})

		ack, err := c.sendOnce(ctx, clientID, toUserID, text)
		if err != nil {
			c.timeline.MarkFailed(clientID)
			lastErr = err
			continue
		}
		if !ack.OK {
			// Resolve already flipped the entry to failed.
			lastErr = fmt.Errorf("%w: %s", errors.ErrStoreUnavailable, ack.Error)
			continue
		}
		return *ack.Message, nil
	}
	return domain.Message{}, lastErr
}

func (c *Conn) sendOnce(ctx context.Context, clientID, toUserID, text string) (gateway.Ack, error) {
	ackCh := make(chan gateway.Ack, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return gateway.Ack{}, errors.ErrConnectionClosed
	}
	c.pending[clientID] = ackCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, clientID)
		c.mu.Unlock()
	}()

	err := c.writeEvent(gateway.EventMessageSend, gateway.SendRequest{
		ToUserID: toUserID,
		Text:     text,
		ClientID: clientID,
	})
	if err != nil {
		return gateway.Ack{}, err
	}

	select {
	case ack := <-ackCh:
		return ack, nil
	case <-time.After(ackTimeout):
		return gateway.Ack{}, errors.ErrAckTimeout
	case <-ctx.Done():
		return gateway.Ack{}, ctx.Err()
	case <-c.done:
		return gateway.Ack{}, errors.ErrConnectionClosed
	}
}

// NotifyTyping emits typing:start and arms the idle timer that emits
// typing:stop after 800ms without another keystroke. Call it on every
// keystroke; call StopTyping when the input is cleared.
func (c *Conn) NotifyTyping(toUserID string) {
	if err := c.writeEvent(gateway.EventTypingStart, gateway.TypingRequest{ToUserID: toUserID}); err != nil {
		return
	}
	c.typingMu.Lock()
	defer c.typingMu.Unlock()
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.typingTimer = time.AfterFunc(typingIdle, func() {
		_ = c.writeEvent(gateway.EventTypingStop, gateway.TypingRequest{ToUserID: toUserID})
	})
}

// StopTyping cancels the idle timer and emits typing:stop immediately.
func (c *Conn) StopTyping(toUserID string) {
	c.typingMu.Lock()
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	c.typingMu.Unlock()
	_ = c.writeEvent(gateway.EventTypingStop, gateway.TypingRequest{ToUserID: toUserID})
}

func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.ws.Close()
}

func (c *Conn) writeEvent(eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(gateway.Envelope{Type: eventType, Data: data})
}

// readLoop dispatches server events: acknowledgements resolve pending
// sends, message:new and typing events update the timeline. Typing and
// message events race on the wire and are treated independently.
func (c *Conn) readLoop() {
	defer close(c.done)
	for {
		var envelope gateway.Envelope
		if err := c.ws.ReadJSON(&envelope); err != nil {
			c.log.Debug("session ended", "error", err)
			return
		}

		switch envelope.Type {
		case gateway.EventMessageAck:
			var ack gateway.Ack
			if err := json.Unmarshal(envelope.Data, &ack); err != nil {
				continue
			}
			c.timeline.Resolve(ack)
			c.mu.Lock()
			if ch, ok := c.pending[ack.ClientID]; ok {
				ch <- ack
			}
			c.mu.Unlock()
		case gateway.EventMessageNew:
			var message domain.Message
			if err := json.Unmarshal(envelope.Data, &message); err != nil {
				continue
			}
			c.timeline.MergeLive(message)
		case gateway.EventTypingStart:
			c.timeline.SetPeerTyping(true, time.Now())
		case gateway.EventTypingStop:
			c.timeline.SetPeerTyping(false, time.Now())
		}
	}
}

// FetchHistory pulls one ascending page over HTTP. Pagination walks
// backward: pass the createdAt of the oldest message already held.
func FetchHistory(ctx context.Context, baseURL, token, peerID string, limit int, before int64) ([]domain.Message, error) {
	url := fmt.Sprintf("%s/api/chat/%s/messages?limit=%d", baseURL, peerID, limit)
	if before > 0 {
		url = fmt.Sprintf("%s&before=%d", url, before)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history query: unexpected status %d", resp.StatusCode)
	}

	var page []domain.Message
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, err
	}
	return page, nil
}
