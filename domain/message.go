// Package domain contains core concepts of the messaging system.
// This file defines Message and the conversation partition key.
// Messages are immutable and validated by the domain.
package domain

import (
	"sort"
	"strings"

	"lingo-dm/errors"
)

// DefaultPageSize is the number of messages returned by a history
// query when the caller does not specify a limit.
const DefaultPageSize = 30

// MaxPageSize caps a single history page. Oversized requests are
// clamped rather than rejected; callers page with `before` instead.
const MaxPageSize = 200

// ClampPageSize normalizes a caller-supplied page size.
func ClampPageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// conversationSeparator joins the two sorted participant ids.
const conversationSeparator = "-"

// Message represents an immutable chat message.
// JSON tags double as the wire shape and the stored shape.
type Message struct {
	ConversationID string `json:"conversationId"`
	CreatedAt      int64  `json:"createdAt"` // milliseconds since epoch
	MessageID      string `json:"messageId"`
	SenderID       string `json:"senderId"`
	ReceiverID     string `json:"receiverId"`
	Text           string `json:"text"`
}

// DeriveConversationID maps two participant ids to the canonical
// conversation partition key. The ids are sorted lexicographically
// before joining, so DeriveConversationID(a, b) == DeriveConversationID(b, a)
// and both participants always address the same partition.
func DeriveConversationID(userA, userB string) (string, error) {
	if userA == "" || userB == "" {
		return "", errors.ErrEmptyUserID
	}
	if userA > userB {
		userA, userB = userB, userA
	}
	return userA + conversationSeparator + userB, nil
}

// Less orders two messages by (CreatedAt, MessageID). The message id
// tie-break keeps the order total when both participants send within
// the same millisecond.
func Less(a, b Message) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt < b.CreatedAt
	}
	return a.MessageID < b.MessageID
}

// SortAscending sorts messages in place into chronological order.
func SortAscending(messages []Message) {
	sort.Slice(messages, func(i, j int) bool {
		return Less(messages[i], messages[j])
	})
}

// TrimText returns the message text with surrounding whitespace removed.
func TrimText(text string) string {
	return strings.TrimSpace(text)
}
