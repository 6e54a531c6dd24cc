//go:generate go run go.uber.org/mock/mockgen -source=message_service.go -destination=../mocks/mock_message_service.go -package=mocks
package services

import (
	"charity-chat/domain"
	"charity-chat/errors"
	"charity-chat/infrastructure/storage"
	"charity-chat/moderation"
	"charity-chat/observability"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"
)

const defaultSearchLimit = 20

type IMessageService interface {
	ListMessages(chatID domain.ChatID) ([]domain.Message, error)
	// AppendMessage persists cmd. duplicate is true when the client key was
	// already stored and the existing message is returned unchanged.
	AppendMessage(cmd domain.PostMessageCommand) (msg domain.Message, duplicate bool, err error)
	SearchMessages(ctx context.Context, chatID domain.ChatID, query string, limit int) ([]domain.Message, error)
}

// MessageService is the message store of the chats.
// moderator is nil when moderation is disabled.
type MessageService struct {
	chatRepository    storage.IChatRepository
	messageRepository storage.IMessageRepository
	messageIndex      storage.IMessageIndex
	moderator         *moderation.Moderator
	maxContentLength  int
	metrics           *observability.Metrics
	log               *slog.Logger
	now               func() time.Time
}

func NewMessageService(chatRepository storage.IChatRepository,
	messageRepository storage.IMessageRepository,
	messageIndex storage.IMessageIndex,
	moderator *moderation.Moderator,
	maxContentLength int,
	metrics *observability.Metrics,
	log *slog.Logger) *MessageService {
	return &MessageService{
		chatRepository:    chatRepository,
		messageRepository: messageRepository,
		messageIndex:      messageIndex,
		moderator:         moderator,
		maxContentLength:  maxContentLength,
		metrics:           metrics,
		log:               log,
		now:               time.Now,
	}
}

// ListMessages returns the history in ascending order. Unknown chats are empty.
func (s *MessageService) ListMessages(chatID domain.ChatID) ([]domain.Message, error) {
	return s.messageRepository.List(chatID)
}

func (s *MessageService) AppendMessage(cmd domain.PostMessageCommand) (domain.Message, bool, error) {
	msg, duplicate, err := s.appendMessage(cmd)
	if err != nil {
		s.metrics.MessagesRejected.WithLabelValues(string(errors.CodeOf(err))).Inc()
		return domain.Message{}, false, err
	}
	if !duplicate {
		s.metrics.MessagesPersisted.Inc()
	}
	return msg, duplicate, nil
}

func (s *MessageService) appendMessage(cmd domain.PostMessageCommand) (domain.Message, bool, error) {
	trimmed := strings.TrimSpace(cmd.Content)
	length := utf8.RuneCountInString(trimmed)
	if length == 0 {
		return domain.Message{}, false, fmt.Errorf("%w: content is empty", errors.ErrValidation)
	}
	if length > s.maxContentLength {
		return domain.Message{}, false, fmt.Errorf("%w: content exceeds %d characters", errors.ErrValidation, s.maxContentLength)
	}

	chat, err := s.chatRepository.Get(cmd.ChatID)
	if err != nil {
		return domain.Message{}, false, err
	}
	receiver, ok := chat.Other(cmd.SenderID)
	if !ok {
		return domain.Message{}, false, errors.ErrNotParticipant
	}

	if cmd.ClientKey != "" {
		existing, found, err := s.messageRepository.FindByClientKey(chat.ID, cmd.ClientKey)
		if err != nil {
			return domain.Message{}, false, err
		}
		if found {
			s.log.Debug("Duplicate send", "chat_id", chat.ID, "client_key", cmd.ClientKey)
			return existing, true, nil
		}
	}

	// Content is stored as sent. The masked form travels beside it.
	var censored string
	if s.moderator != nil {
		sanitized, words := s.moderator.Censor(cmd.Content)
		if len(words) > 0 {
			s.log.Info("Message censored", "chat_id", chat.ID, "sender_id", cmd.SenderID, "words", len(words))
			censored = sanitized
		}
	}

	return s.messageRepository.Append(domain.Message{
		ChatID:     chat.ID,
		SenderID:   cmd.SenderID,
		ReceiverID: receiver.ID,
		Content:    cmd.Content,
		Censored:   censored,
		ClientKey:  cmd.ClientKey,
		Language:   moderation.DetectLanguage(trimmed),
		CreatedAt:  s.now(),
	})
}

// SearchMessages runs a full-text query inside one chat.
// The index is fed asynchronously, so a message just sent may be missing.
func (s *MessageService) SearchMessages(ctx context.Context, chatID domain.ChatID, query string, limit int) ([]domain.Message, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", errors.ErrValidation)
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	results, err := s.messageIndex.Search(ctx, chatID, query, limit)
	if err != nil && !stderrors.Is(err, context.Canceled) {
		s.log.Error("Search failed", "chat_id", chatID, "error", err)
	}
	return results, err
}
