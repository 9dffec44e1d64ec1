// Package client implements the consumer side of the send protocol:
// optimistic local state, acknowledgement reconciliation, and the
// merge of live events with paginated history.
package client

import (
	"sort"
	"sync"
	"time"

	"lingo-dm/domain"
	"lingo-dm/gateway"
)

// Status is the explicit per-message state machine of an optimistic
// send: sending until the acknowledgement resolves it.
type Status string

const (
	StatusSending   Status = "sending"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// typingExpiry bounds how long a typing:start without a matching stop
// keeps the peer-typing flag up. Guards against a lost stop event.
const typingExpiry = 3 * time.Second

// Entry is one message in the local ordered view. ClientID is set only
// for this client's own speculative sends.
type Entry struct {
	Message  domain.Message
	ClientID string
	Status   Status
}

// Timeline holds the local ordered view of one conversation.
// Invariant: after any merge, every server-confirmed message appears
// exactly once, keyed by messageId, and entries are sorted by
// (createdAt, messageId) ascending.
type Timeline struct {
	mu          sync.Mutex
	entries     []Entry
	peerTyping  bool
	typingUntil time.Time
}

func NewTimeline() *Timeline {
	return &Timeline{}
}

// AppendSpeculative adds a local entry with status sending before the
// server has seen the request. The clientId doubles as a placeholder
// message id so the entry sorts deterministically until resolved.
func (t *Timeline) AppendSpeculative(clientID string, message domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if message.MessageID == "" {
		message.MessageID = clientID
	}
	t.entries = append(t.entries, Entry{Message: message, ClientID: clientID, Status: StatusSending})
	t.sortLocked()
}

// Resolve applies an acknowledgement: the speculative entry with the
// echoed clientId is replaced in place, never appended again. An ack
// for an unknown clientId is ignored (already resolved, or a reused id
// the client should not have produced). When a history fetch already
// surfaced the acknowledged message, the speculative entry is removed
// instead, keeping each messageId in the view exactly once.
func (t *Timeline) Resolve(ack gateway.Ack) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.entries {
		if t.entries[i].ClientID != ack.ClientID || t.entries[i].Status != StatusSending {
			continue
		}
		if ack.OK && ack.Message != nil {
			if t.hasDeliveredLocked(ack.Message.MessageID) {
				t.entries = append(t.entries[:i], t.entries[i+1:]...)
				return
			}
			t.entries[i].Message = *ack.Message
			t.entries[i].Status = StatusDelivered
		} else {
			t.entries[i].Status = StatusFailed
		}
		t.sortLocked()
		return
	}
}

func (t *Timeline) hasDeliveredLocked(messageID string) bool {
	for _, entry := range t.entries {
		if entry.Status != StatusSending && entry.Message.MessageID == messageID {
			return true
		}
	}
	return false
}

// MarkFailed flips a speculative entry to failed without an
// acknowledgement, used when the ack timed out locally.
func (t *Timeline) MarkFailed(clientID string) {
	t.Resolve(gateway.Ack{OK: false, ClientID: clientID})
}

// MergeLive folds a message:new event into the view. Applying the same
// event twice yields the same sequence as applying it once.
func (t *Timeline) MergeLive(message domain.Message) {
	t.MergeHistory([]domain.Message{message})
}

// MergeHistory folds a history page into the view, deduplicating by
// messageId against everything already present. For entries not yet
// assigned a server id the createdAt timestamp is the fallback key.
func (t *Timeline) MergeHistory(messages []domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	byID := make(map[string]struct{}, len(t.entries))
	byTimestamp := make(map[int64]struct{})
	for _, entry := range t.entries {
		if entry.Status == StatusSending {
			byTimestamp[entry.Message.CreatedAt] = struct{}{}
			continue
		}
		byID[entry.Message.MessageID] = struct{}{}
	}

	for _, message := range messages {
		if message.MessageID != "" {
			if _, seen := byID[message.MessageID]; seen {
				continue
			}
			byID[message.MessageID] = struct{}{}
		} else if _, seen := byTimestamp[message.CreatedAt]; seen {
			continue
		}
		t.entries = append(t.entries, Entry{Message: message, Status: StatusDelivered})
	}
	t.sortLocked()
}

// Snapshot returns a copy of the ordered view for rendering.
func (t *Timeline) Snapshot() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot := make([]Entry, len(t.entries))
	copy(snapshot, t.entries)
	return snapshot
}

// SetPeerTyping updates the peer-typing flag. A start arms the expiry
// window and suppresses any earlier pending state.
func (t *Timeline) SetPeerTyping(active bool, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peerTyping = active
	if active {
		t.typingUntil = now.Add(typingExpiry)
	}
}

// PeerTyping reports whether the peer is typing, treating a stale
// start with no following stop as expired.
func (t *Timeline) PeerTyping(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peerTyping && now.Before(t.typingUntil)
}

func (t *Timeline) sortLocked() {
	sort.SliceStable(t.entries, func(i, j int) bool {
		return domain.Less(t.entries[i].Message, t.entries[j].Message)
	})
}
