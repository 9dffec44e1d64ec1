package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"lingo-dm/contract"
	"lingo-dm/domain"
	"lingo-dm/domain/event"
	"lingo-dm/errors"
)

type IChatService interface {
	Send(ctx context.Context, cmd domain.SendCommand) (domain.Message, error)
	History(ctx context.Context, query domain.HistoryQuery) ([]domain.Message, error)
	NotifyTyping(ctx context.Context, fromUserID, toUserID string, active bool)
}

var validate = validator.New()

// sendPayload mirrors the caller contract of a message:send request:
// recipient present, text non-empty after trimming.
type sendPayload struct {
	FromUserID string `validate:"required"`
	ToUserID   string `validate:"required"`
	Text       string `validate:"required"`
}

// ChatService owns the send path: validate, derive the partition key,
// persist, then route to the recipient. Persistence completes before
// anything is routed, so a recipient never sees a message the sender
// was not positively acknowledged for.
type ChatService struct {
	store  contract.IMessageStore
	router Deliverer
	log    *slog.Logger
	now    func() time.Time
}

// Deliverer is the fan-out entry point the service pushes events into.
type Deliverer interface {
	Deliver(ctx context.Context, e event.DomainEvent)
}

func NewChatService(log *slog.Logger, store contract.IMessageStore, router Deliverer) *ChatService {
	return &ChatService{store: store, router: router, log: log, now: time.Now}
}

// WithClock overrides the timestamp source. Test seam.
func (s *ChatService) WithClock(now func() time.Time) *ChatService {
	s.now = now
	return s
}

// Send runs one request-acknowledgement cycle. A validation error
// means the request violated the caller contract and the gateway drops
// it silently; any other error is a persistence failure surfaced to
// the sender as a negative acknowledgement.
func (s *ChatService) Send(ctx context.Context, cmd domain.SendCommand) (domain.Message, error) {
	cmd.Text = domain.TrimText(cmd.Text)
	if err := validateSend(cmd); err != nil {
		return domain.Message{}, err
	}

	conversationID, err := domain.DeriveConversationID(cmd.FromUserID, cmd.ToUserID)
	if err != nil {
		return domain.Message{}, err
	}

	stored, err := s.store.Append(ctx, domain.Message{
		ConversationID: conversationID,
		CreatedAt:      s.now().UnixMilli(),
		SenderID:       cmd.FromUserID,
		ReceiverID:     cmd.ToUserID,
		Text:           cmd.Text,
	})
	if err != nil {
		s.log.Error("message append failed",
			"conversation_id", conversationID,
			"sender_id", cmd.FromUserID,
			"error", err)
		return domain.Message{}, err
	}

	s.router.Deliver(ctx, event.MessageDelivered{To: cmd.ToUserID, Message: stored})
	return stored, nil
}

// History returns one ascending page of the conversation between the
// caller and the peer. The store reads newest-first so the limit
// favors the most recent messages; the page is reversed to
// chronological order before returning.
func (s *ChatService) History(ctx context.Context, query domain.HistoryQuery) ([]domain.Message, error) {
	conversationID, err := domain.DeriveConversationID(query.UserID, query.PeerID)
	if err != nil {
		return nil, err
	}
	newestFirst, err := s.store.QueryRecent(ctx, conversationID, domain.ClampPageSize(query.Limit), query.Before)
	if err != nil {
		return nil, err
	}
	return lo.Reverse(newestFirst), nil
}

// NotifyTyping relays a typing indicator to the peer. Ephemeral:
// no persistence, no acknowledgement, malformed requests are dropped.
func (s *ChatService) NotifyTyping(ctx context.Context, fromUserID, toUserID string, active bool) {
	if fromUserID == "" || toUserID == "" {
		return
	}
	if active {
		s.router.Deliver(ctx, event.TypingStarted{To: toUserID, From: fromUserID})
		return
	}
	s.router.Deliver(ctx, event.TypingStopped{To: toUserID, From: fromUserID})
}

func validateSend(cmd domain.SendCommand) error {
	err := validate.Struct(sendPayload{
		FromUserID: cmd.FromUserID,
		ToUserID:   cmd.ToUserID,
		Text:       cmd.Text,
	})
	if err == nil {
		return nil
	}
	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	switch fieldErrors[0].Field() {
	case "ToUserID":
		return errors.ErrMissingRecipient
	case "Text":
		return errors.ErrEmptyText
	default:
		return errors.ErrEmptyUserID
	}
}
