//go:generate go run go.uber.org/mock/mockgen -source=chat_repository.go -destination=../../mocks/mock_chat_repository.go -package=mocks
package storage

import (
	"charity-chat/domain"
	"charity-chat/errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	chatPrefix   = "chat:"
	pairPrefix   = "pair:"
	memberPrefix = "member:"

	maxConflictRetries = 5
)

type IChatRepository interface {
	// CreateOrGet returns the chat of the unordered pair, creating it when absent.
	// created is false when the chat already existed.
	CreateOrGet(a, b domain.Participant) (chat domain.Chat, created bool, err error)
	Get(id domain.ChatID) (domain.Chat, error)
	ListByParticipant(participantID string) ([]domain.Chat, error)
}

// ChatRepository keeps one record per chat plus two indexes:
//   - "pair:{min}|{max}" makes creation idempotent on the unordered pair
//   - "member:{participant}:{chat}" lists the chats of a participant
//
// The pair index is written in the same transaction as the chat, so two
// concurrent creators conflict and the loser reads the winner's chat.
type ChatRepository struct {
	db  *badger.DB
	log *slog.Logger
	now func() time.Time
}

func NewChatRepository(db *badger.DB, log *slog.Logger) *ChatRepository {
	return &ChatRepository{db: db, log: log, now: time.Now}
}

func (r *ChatRepository) CreateOrGet(a, b domain.Participant) (domain.Chat, bool, error) {
	candidate, err := domain.NewChat(domain.ChatID(uuid.New().String()), a, b, r.now().UTC())
	if err != nil {
		return domain.Chat{}, false, err
	}
	data, err := marshalRecord(fromChat(candidate))
	if err != nil {
		return domain.Chat{}, false, err
	}
	pairKey := []byte(pairPrefix + candidate.PairKey())

	for attempt := 0; ; attempt++ {
		var chat domain.Chat
		var created bool
		err = r.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(pairKey)
			switch {
			case err == nil:
				id, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				chat, err = getChat(txn, domain.ChatID(id))
				return err
			case err != badger.ErrKeyNotFound:
				return err
			}
			id := string(candidate.ID)
			if err := txn.Set([]byte(chatPrefix+id), data); err != nil {
				return err
			}
			if err := txn.Set(pairKey, []byte(id)); err != nil {
				return err
			}
			for _, p := range candidate.Participants {
				if err := txn.Set(memberKey(p.ID, candidate.ID), nil); err != nil {
					return err
				}
			}
			chat, created = candidate, true
			return nil
		})
		if err == badger.ErrConflict && attempt < maxConflictRetries {
			r.log.Debug("Chat creation conflict, retrying", "pair", candidate.PairKey(), "attempt", attempt+1)
			continue
		}
		if err != nil {
			return domain.Chat{}, false, err
		}
		return chat, created, nil
	}
}

func (r *ChatRepository) Get(id domain.ChatID) (domain.Chat, error) {
	var chat domain.Chat
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		chat, err = getChat(txn, id)
		return err
	})
	return chat, err
}

// ListByParticipant walks the member index of participantID.
// An unknown participant simply has no chats.
func (r *ChatRepository) ListByParticipant(participantID string) ([]domain.Chat, error) {
	var chats []domain.Chat
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(memberPrefix + participantID + ":")
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // the chat id is in the key
		it := txn.NewIterator(opts)
		defer it.Close()

		var ids []domain.ChatID
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, domain.ChatID(it.Item().Key()[len(prefix):]))
		}
		for _, id := range ids {
			chat, err := getChat(txn, id)
			if err != nil {
				return err
			}
			chats = append(chats, chat)
		}
		return nil
	})
	return chats, err
}

func memberKey(participantID string, chatID domain.ChatID) []byte {
	return []byte(memberPrefix + participantID + ":" + string(chatID))
}

func getChat(txn *badger.Txn, id domain.ChatID) (domain.Chat, error) {
	item, err := txn.Get([]byte(chatPrefix + string(id)))
	if err == badger.ErrKeyNotFound {
		return domain.Chat{}, errors.ErrChatNotFound
	}
	if err != nil {
		return domain.Chat{}, err
	}
	var chat domain.Chat
	err = item.Value(func(val []byte) error {
		rec, err := unmarshalRecord(val)
		if err != nil {
			return err
		}
		chat, err = toChat(rec)
		return err
	})
	return chat, err
}

func fromChat(c domain.Chat) map[string]any {
	participants := make([]any, 0, len(c.Participants))
	for _, p := range c.Participants {
		participants = append(participants, map[string]any{
			"id":   p.ID,
			"kind": string(p.Kind),
			"name": p.Name,
		})
	}
	return map[string]any{
		"id":           string(c.ID),
		"participants": participants,
		"created_at":   formatTime(c.CreatedAt),
	}
}

func toChat(rec record) (domain.Chat, error) {
	createdAt, err := rec.time("created_at")
	if err != nil {
		return domain.Chat{}, err
	}
	participants := rec.list("participants")
	if len(participants) != 2 {
		return domain.Chat{}, fmt.Errorf("chat %s: expected 2 participants, got %d", rec.str("id"), len(participants))
	}
	chat := domain.Chat{ID: domain.ChatID(rec.str("id")), CreatedAt: createdAt}
	for i, p := range participants {
		chat.Participants[i] = domain.Participant{
			ID:   p.str("id"),
			Kind: domain.Kind(p.str("kind")),
			Name: p.str("name"),
		}
	}
	return chat, nil
}
