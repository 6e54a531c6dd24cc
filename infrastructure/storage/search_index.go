//go:generate go run go.uber.org/mock/mockgen -source=search_index.go -destination=../../mocks/mock_search_index.go -package=mocks
package storage

import (
	"charity-chat/domain"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/blugelabs/bluge/search"
	"github.com/google/uuid"
)

const (
	fieldChatID     = "chat_id"
	fieldSenderID   = "sender_id"
	fieldReceiverID = "receiver_id"
	fieldContent    = "content"
	fieldLanguage   = "language"
	fieldCreatedAt  = "created_at"
)

type IMessageIndex interface {
	Index(message domain.Message) error
	Search(ctx context.Context, chatID domain.ChatID, query string, limit int) ([]domain.Message, error)
}

// MessageIndex is the full-text index of message contents, scoped by chat.
type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(writer *bluge.Writer, log *slog.Logger) *MessageIndex {
	return &MessageIndex{writer: writer, log: log}
}

// OpenWriter opens an on-disk index at path, or an in-memory one when path is empty.
func OpenWriter(path string) (*bluge.Writer, error) {
	cfg := bluge.InMemoryOnlyConfig()
	if path != "" {
		cfg = bluge.DefaultConfig(path)
	}
	writer, err := bluge.OpenWriter(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	return writer, nil
}

// Index upserts the message, keyed by its id, so a replay is harmless.
func (i *MessageIndex) Index(message domain.Message) error {
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewKeywordField(fieldChatID, string(message.ChatID)).StoreValue()).
		AddField(bluge.NewKeywordField(fieldSenderID, message.SenderID).StoreValue()).
		AddField(bluge.NewKeywordField(fieldReceiverID, message.ReceiverID).StoreValue()).
		AddField(bluge.NewKeywordField(fieldLanguage, message.Language).StoreValue()).
		AddField(bluge.NewKeywordField(fieldCreatedAt, formatTime(message.CreatedAt)).StoreValue().Sortable()).
		AddField(bluge.NewTextField(fieldContent, message.Content).StoreValue())
	return i.writer.Update(doc.ID(), doc)
}

// Search returns the best matches of query inside one chat, most relevant first.
func (i *MessageIndex) Search(ctx context.Context, chatID domain.ChatID, query string, limit int) ([]domain.Message, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Error("Failed to close bluge reader", "error", err)
		}
	}()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(query).SetField(fieldContent)).
		AddMust(bluge.NewTermQuery(string(chatID)).SetField(fieldChatID))

	dmi, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, err
	}

	results := make([]domain.Message, 0)
	match, err := dmi.Next()
	for err == nil && match != nil {
		message, visitErr := visitMessage(match)
		if visitErr != nil {
			return nil, visitErr
		}
		results = append(results, message)
		match, err = dmi.Next()
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

func visitMessage(match *search.DocumentMatch) (domain.Message, error) {
	var (
		message   domain.Message
		parseErr  error
		createdAt string
	)
	err := match.VisitStoredFields(func(field string, value []byte) bool {
		switch field {
		case "_id":
			message.ID, parseErr = uuid.Parse(string(value))
		case fieldChatID:
			message.ChatID = domain.ChatID(value)
		case fieldSenderID:
			message.SenderID = string(value)
		case fieldReceiverID:
			message.ReceiverID = string(value)
		case fieldLanguage:
			message.Language = string(value)
		case fieldContent:
			message.Content = string(value)
		case fieldCreatedAt:
			createdAt = string(value)
		}
		return parseErr == nil
	})
	if err != nil {
		return domain.Message{}, err
	}
	if parseErr != nil {
		return domain.Message{}, parseErr
	}
	if createdAt != "" {
		message.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	}
	return message, err
}
