package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"lingo-dm/domain"
	"lingo-dm/errors"
)

const (
	messageKeyPrefix = "msg:"
	// maxTimestampPad sorts after every zero-padded timestamp, so a
	// reverse seek from it starts at the newest message.
	maxTimestampPad = "9999999999999999999"
)

// MessageRepository persists messages in BadgerDB.
// The key is formatted as "msg:{conversationId}:{timestamp_padded}:{messageId}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Resolve same-millisecond sends from both participants by the
//     message id, which makes the partition order total.
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

func messageKey(conversationID string, createdAt int64, messageID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s", messageKeyPrefix, conversationID, createdAt, messageID))
}

func conversationPrefix(conversationID string) []byte {
	return []byte(messageKeyPrefix + conversationID + ":")
}

// Append writes one message as a single atomic item. A message id is
// assigned here when absent; concurrent appends from both participants
// never contend because every item has its own key.
func (m MessageRepository) Append(_ context.Context, message domain.Message) (domain.Message, error) {
	if message.MessageID == "" {
		message.MessageID = uuid.NewString()
	}
	value, err := json.Marshal(message)
	if err != nil {
		return domain.Message{}, err
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message.ConversationID, message.CreatedAt, message.MessageID), value)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return message, nil
}

// QueryRecent walks the conversation partition backward in time using
// a reverse prefix scan and returns up to limit messages newest-first.
// Thanks to the padded timestamp in the key, no sort is needed. A
// non-zero before bounds CreatedAt exclusively, which is how callers
// page toward older messages.
func (m MessageRepository) QueryRecent(_ context.Context, conversationID string, limit int, before int64) ([]domain.Message, error) {
	limit = domain.ClampPageSize(limit)
	prefix := conversationPrefix(conversationID)

	var values [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch {
		case before > 0:
			// Keys at exactly `before` extend past this seek key and
			// therefore sort after it: the bound is exclusive.
			seekKey = append(append([]byte{}, prefix...), []byte(fmt.Sprintf("%019d", before))...)
		default:
			seekKey = append(append([]byte{}, prefix...), []byte(maxTimestampPad)...)
		}

		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if len(values) == limit {
				break
			}
			err := it.Item().Value(func(value []byte) error {
				values = append(values, append([]byte{}, value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	messages := make([]domain.Message, 0, len(values))
	for _, value := range values {
		var message domain.Message
		if err = json.Unmarshal(value, &message); err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, nil
}
