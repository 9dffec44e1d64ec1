// Package event defines the events the router fans out to live
// connections. Events are ephemeral: durability for chat content is the
// message store's job, typing indicators have none at all.
package event

import "lingo-dm/domain"

type DomainEvent interface {
	// TargetUserID names the channel the event is delivered to.
	TargetUserID() string
}

// MessageDelivered carries a persisted message to the recipient's
// channel. At most one is routed per stored message.
type MessageDelivered struct {
	To      string
	Message domain.Message
}

func (e MessageDelivered) TargetUserID() string { return e.To }

// TypingStarted and TypingStopped relay the peer's typing state.
// No persistence, no acknowledgement.
type TypingStarted struct {
	To   string
	From string
}

func (e TypingStarted) TargetUserID() string { return e.To }

type TypingStopped struct {
	To   string
	From string
}

func (e TypingStopped) TargetUserID() string { return e.To }
