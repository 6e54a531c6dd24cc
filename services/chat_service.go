//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"charity-chat/auth"
	"charity-chat/domain"
	"charity-chat/errors"
	"charity-chat/infrastructure/storage"
	"charity-chat/observability"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/samber/lo"
)

type IChatService interface {
	ListChats(userID string) ([]domain.ChatPreview, error)
	SearchChats(userID, query string) ([]domain.ChatPreview, error)
	CreateOrGetChat(cmd domain.CreateChatCommand) (domain.Chat, error)
	GetChat(chatID domain.ChatID) (domain.Chat, error)
}

// ChatService is the chat directory: one chat per unordered participant pair.
type ChatService struct {
	chatRepository    storage.IChatRepository
	messageRepository storage.IMessageRepository
	accountRepository storage.IAccountRepository
	metrics           *observability.Metrics
	log               *slog.Logger
}

func NewChatService(chatRepository storage.IChatRepository,
	messageRepository storage.IMessageRepository,
	accountRepository storage.IAccountRepository,
	metrics *observability.Metrics, log *slog.Logger) *ChatService {
	return &ChatService{
		chatRepository:    chatRepository,
		messageRepository: messageRepository,
		accountRepository: accountRepository,
		metrics:           metrics,
		log:               log,
	}
}

// ListChats returns the previews of userID, most recent activity first.
func (s *ChatService) ListChats(userID string) ([]domain.ChatPreview, error) {
	chats, err := s.chatRepository.ListByParticipant(userID)
	if err != nil {
		return nil, err
	}
	previews := make([]domain.ChatPreview, 0, len(chats))
	for _, chat := range chats {
		other, ok := chat.Other(userID)
		if !ok {
			continue
		}
		last, err := s.messageRepository.Last(chat.ID)
		if err != nil {
			return nil, err
		}
		previews = append(previews, domain.ChatPreview{Chat: chat, Other: other, LastMessage: last})
	}
	sort.SliceStable(previews, func(i, j int) bool {
		return previews[i].LastActivity().After(previews[j].LastActivity())
	})
	return previews, nil
}

// SearchChats keeps the previews whose other participant name contains query.
func (s *ChatService) SearchChats(userID, query string) ([]domain.ChatPreview, error) {
	previews, err := s.ListChats(userID)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return previews, nil
	}
	return lo.Filter(previews, func(p domain.ChatPreview, _ int) bool {
		return strings.Contains(strings.ToLower(p.Other.Name), needle)
	}), nil
}

func (s *ChatService) CreateOrGetChat(cmd domain.CreateChatCommand) (domain.Chat, error) {
	if err := auth.Validate(cmd); err != nil {
		return domain.Chat{}, err
	}
	if cmd.UserID == cmd.ReceiverID {
		return domain.Chat{}, errors.ErrSameParticipant
	}
	caller, err := s.accountRepository.GetByID(cmd.UserID)
	if err != nil {
		return domain.Chat{}, err
	}
	receiver, err := s.accountRepository.GetByID(cmd.ReceiverID)
	if err != nil {
		return domain.Chat{}, fmt.Errorf("receiver: %w", err)
	}
	chat, created, err := s.chatRepository.CreateOrGet(caller.Participant(), receiver.Participant())
	if err != nil {
		return domain.Chat{}, err
	}
	if created {
		s.metrics.ChatsCreated.Inc()
		s.log.Info("Chat created", "chat_id", chat.ID)
	}
	return chat, nil
}

func (s *ChatService) GetChat(chatID domain.ChatID) (domain.Chat, error) {
	return s.chatRepository.Get(chatID)
}
