//go:generate go run go.uber.org/mock/mockgen -source=message_repository.go -destination=../../mocks/mock_message_repository.go -package=mocks
package storage

import (
	"charity-chat/domain"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	messagePrefix   = "msg:"
	clientKeyPrefix = "msgkey:"
)

type IMessageRepository interface {
	// Append stores message and returns the stored form. When the client key
	// is already known for the chat, the existing message is returned and
	// duplicate is true.
	Append(message domain.Message) (stored domain.Message, duplicate bool, err error)
	FindByClientKey(chatID domain.ChatID, clientKey string) (domain.Message, bool, error)
	List(chatID domain.ChatID) ([]domain.Message, error)
	Last(chatID domain.ChatID) (*domain.Message, error)
}

// MessageRepository persists messages in BadgerDB.
// The key is formatted as "msg:{chat_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two messages
//     arrive at the same nanosecond.
//
// "msgkey:{chat_id}:{client_key}" points to the message key of a client key.
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log}
}

// Append assigns CreatedAt = max(message.CreatedAt, last+1ns) so timestamps
// strictly increase within a chat, then writes the message and its client key
// index in one transaction.
func (r *MessageRepository) Append(message domain.Message) (domain.Message, bool, error) {
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	for attempt := 0; ; attempt++ {
		var stored domain.Message
		var duplicate bool
		err := r.db.Update(func(txn *badger.Txn) error {
			if message.ClientKey != "" {
				existing, found, err := findByClientKey(txn, message.ChatID, message.ClientKey)
				if err != nil {
					return err
				}
				if found {
					stored, duplicate = existing, true
					return nil
				}
			}

			last, err := lastMessage(txn, message.ChatID)
			if err != nil {
				return err
			}
			stored = message
			stored.CreatedAt = stored.CreatedAt.UTC()
			if last != nil && !stored.CreatedAt.After(last.CreatedAt) {
				stored.CreatedAt = last.CreatedAt.Add(time.Nanosecond)
			}

			data, err := marshalRecord(fromMessage(stored))
			if err != nil {
				return err
			}
			key := messageKey(stored)
			if err := txn.Set(key, data); err != nil {
				return err
			}
			if stored.ClientKey != "" {
				return txn.Set(clientKey(stored.ChatID, stored.ClientKey), key)
			}
			return nil
		})
		if err == badger.ErrConflict && attempt < maxConflictRetries {
			r.log.Debug("Message append conflict, retrying", "chat_id", message.ChatID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return domain.Message{}, false, err
		}
		return stored, duplicate, nil
	}
}

func (r *MessageRepository) FindByClientKey(chatID domain.ChatID, key string) (domain.Message, bool, error) {
	var message domain.Message
	var found bool
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		message, found, err = findByClientKey(txn, chatID, key)
		return err
	})
	return message, found, err
}

// List returns every message of the chat in ascending timestamp order.
func (r *MessageRepository) List(chatID domain.ChatID) ([]domain.Message, error) {
	messages := make([]domain.Message, 0)
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefixOf(chatID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			message, err := decodeMessageItem(it.Item())
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	return messages, err
}

func (r *MessageRepository) Last(chatID domain.ChatID) (*domain.Message, error) {
	var last *domain.Message
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		last, err = lastMessage(txn, chatID)
		return err
	})
	return last, err
}

// lastMessage seeks from the highest possible timestamp backwards.
func lastMessage(txn *badger.Txn, chatID domain.ChatID) (*domain.Message, error) {
	prefix := messagePrefixOf(chatID)
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	it := txn.NewIterator(opts)
	defer it.Close()

	it.Seek(append(append([]byte{}, prefix...), []byte("9999999999999999999;")...))
	if !it.ValidForPrefix(prefix) {
		return nil, nil
	}
	message, err := decodeMessageItem(it.Item())
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func findByClientKey(txn *badger.Txn, chatID domain.ChatID, key string) (domain.Message, bool, error) {
	item, err := txn.Get(clientKey(chatID, key))
	if err == badger.ErrKeyNotFound {
		return domain.Message{}, false, nil
	}
	if err != nil {
		return domain.Message{}, false, err
	}
	msgKey, err := item.ValueCopy(nil)
	if err != nil {
		return domain.Message{}, false, err
	}
	msgItem, err := txn.Get(msgKey)
	if err != nil {
		return domain.Message{}, false, fmt.Errorf("dangling client key %q: %w", key, err)
	}
	message, err := decodeMessageItem(msgItem)
	return message, err == nil, err
}

func messagePrefixOf(chatID domain.ChatID) []byte {
	return []byte(messagePrefix + string(chatID) + ":")
}

func messageKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("%s%s:%019d:%s", messagePrefix, m.ChatID, m.CreatedAt.UnixNano(), m.ID))
}

func clientKey(chatID domain.ChatID, key string) []byte {
	return []byte(clientKeyPrefix + string(chatID) + ":" + key)
}

func decodeMessageItem(item *badger.Item) (domain.Message, error) {
	var message domain.Message
	err := item.Value(func(val []byte) error {
		rec, err := unmarshalRecord(val)
		if err != nil {
			return err
		}
		message, err = toMessage(rec)
		return err
	})
	return message, err
}

func fromMessage(m domain.Message) map[string]any {
	return map[string]any{
		"id":          m.ID.String(),
		"chat_id":     string(m.ChatID),
		"sender_id":   m.SenderID,
		"receiver_id": m.ReceiverID,
		"content":     m.Content,
		"censored":    m.Censored,
		"client_key":  m.ClientKey,
		"language":    m.Language,
		"created_at":  formatTime(m.CreatedAt),
	}
}

func toMessage(rec record) (domain.Message, error) {
	id, err := uuid.Parse(rec.str("id"))
	if err != nil {
		return domain.Message{}, err
	}
	createdAt, err := rec.time("created_at")
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:         id,
		ChatID:     domain.ChatID(rec.str("chat_id")),
		SenderID:   rec.str("sender_id"),
		ReceiverID: rec.str("receiver_id"),
		Content:    rec.str("content"),
		Censored:   rec.str("censored"),
		ClientKey:  rec.str("client_key"),
		Language:   rec.str("language"),
		CreatedAt:  createdAt,
	}, nil
}
