// Package gateway exposes the real-time messaging subsystem: a
// WebSocket endpoint carrying the event protocol and an HTTP endpoint
// for paginated history.
package gateway

import (
	"encoding/json"

	"lingo-dm/domain"
	"lingo-dm/domain/event"
)

// Wire event types. Client-to-server requests and server-to-peer
// notifications share the same envelope.
const (
	EventMessageSend = "message:send"
	EventMessageAck  = "message:ack"
	EventMessageNew  = "message:new"
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"
)

// Envelope frames every application event on the socket.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Outbound is the server-side counterpart before marshalling.
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// SendRequest is the payload of a message:send request.
type SendRequest struct {
	ToUserID string `json:"toUserId"`
	Text     string `json:"text"`
	ClientID string `json:"clientId"`
}

// TypingRequest is the payload of client typing:start / typing:stop.
type TypingRequest struct {
	ToUserID string `json:"toUserId"`
}

// TypingNotice is the payload relayed to the peer.
type TypingNotice struct {
	FromUserID string `json:"fromUserId"`
}

// Ack closes one message:send cycle. Exactly one is written per
// well-formed request: ok with the stored message, or not ok with an
// error. ClientID lets the sender replace its speculative entry.
type Ack struct {
	OK       bool            `json:"ok"`
	Message  *domain.Message `json:"message,omitempty"`
	ClientID string          `json:"clientId,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// toOutbound converts a routed domain event to its wire shape.
func toOutbound(e event.DomainEvent) (Outbound, bool) {
	switch evt := e.(type) {
	case event.MessageDelivered:
		return Outbound{Type: EventMessageNew, Data: evt.Message}, true
	case event.TypingStarted:
		return Outbound{Type: EventTypingStart, Data: TypingNotice{FromUserID: evt.From}}, true
	case event.TypingStopped:
		return Outbound{Type: EventTypingStop, Data: TypingNotice{FromUserID: evt.From}}, true
	default:
		return Outbound{}, false
	}
}
