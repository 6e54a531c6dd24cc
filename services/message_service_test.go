package services_test

import (
	"charity-chat/domain"
	"charity-chat/errors"
	"charity-chat/mocks"
	"charity-chat/moderation"
	"charity-chat/observability"
	"charity-chat/services"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const maxContentLength = 50

type messageFixture struct {
	chats    *mocks.MockIChatRepository
	messages *mocks.MockIMessageRepository
	index    *mocks.MockIMessageIndex
	metrics  *observability.Metrics
	svc      *services.MessageService
}

func newMessageFixture(t *testing.T, moderator *moderation.Moderator) messageFixture {
	ctrl := gomock.NewController(t)
	f := messageFixture{
		chats:    mocks.NewMockIChatRepository(ctrl),
		messages: mocks.NewMockIMessageRepository(ctrl),
		index:    mocks.NewMockIMessageIndex(ctrl),
		metrics:  observability.NewMetrics(),
	}
	f.svc = services.NewMessageService(f.chats, f.messages, f.index, moderator, maxContentLength,
		f.metrics, logs.GetLoggerFromLevel(slog.LevelDebug))
	return f
}

func echoAppend(m domain.Message) (domain.Message, bool, error) {
	m.ID = uuid.New()
	return m, false, nil
}

func TestMessageService_AppendMessage(t *testing.T) {
	req := require.New(t)
	f := newMessageFixture(t, nil)
	chat := mustChat(t, "chat-1", donorProfile, charityProfile, time.Now())

	f.chats.EXPECT().Get(chat.ID).Return(chat, nil)
	f.messages.EXPECT().Append(gomock.Any()).DoAndReturn(echoAppend)

	msg, duplicate, err := f.svc.AppendMessage(domain.PostMessageCommand{ChatID: chat.ID, SenderID: "user-b", Content: "  hello  "})
	req.NoError(err)
	req.False(duplicate)
	// Receiver is derived from membership and content is kept as sent
	req.Equal("charity-a", msg.ReceiverID)
	req.Equal("  hello  ", msg.Content)
	req.Empty(msg.Censored)
	req.False(msg.CreatedAt.IsZero())
	req.Equal(1.0, testutil.ToFloat64(f.metrics.MessagesPersisted))
}

func TestMessageService_AppendMessage_Validation(t *testing.T) {
	f := newMessageFixture(t, nil)

	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"only spaces", "   \n\t"},
		{"too long", strings.Repeat("é", maxContentLength+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			_, _, err := f.svc.AppendMessage(domain.PostMessageCommand{ChatID: "chat-1", SenderID: "user-b", Content: tt.content})
			req.ErrorIs(err, errors.ErrValidation)
		})
	}
	require.Equal(t, 3.0, testutil.ToFloat64(f.metrics.MessagesRejected.WithLabelValues(string(errors.CodeValidation))))
}

func TestMessageService_AppendMessage_ExactlyMaxLength(t *testing.T) {
	req := require.New(t)
	f := newMessageFixture(t, nil)
	chat := mustChat(t, "chat-1", donorProfile, charityProfile, time.Now())
	f.chats.EXPECT().Get(chat.ID).Return(chat, nil)
	f.messages.EXPECT().Append(gomock.Any()).DoAndReturn(echoAppend)

	_, _, err := f.svc.AppendMessage(domain.PostMessageCommand{ChatID: chat.ID, SenderID: "user-b", Content: strings.Repeat("é", maxContentLength)})
	req.NoError(err)
}

func TestMessageService_AppendMessage_ChatNotFound(t *testing.T) {
	req := require.New(t)
	f := newMessageFixture(t, nil)
	f.chats.EXPECT().Get(domain.ChatID("missing")).Return(domain.Chat{}, errors.ErrChatNotFound)
	f.messages.EXPECT().Append(gomock.Any()).Times(0)

	_, _, err := f.svc.AppendMessage(domain.PostMessageCommand{ChatID: "missing", SenderID: "user-b", Content: "hi"})
	req.ErrorIs(err, errors.ErrChatNotFound)
}

func TestMessageService_AppendMessage_NotParticipant(t *testing.T) {
	req := require.New(t)
	f := newMessageFixture(t, nil)
	chat := mustChat(t, "chat-1", donorProfile, charityProfile, time.Now())
	f.chats.EXPECT().Get(chat.ID).Return(chat, nil)
	f.messages.EXPECT().Append(gomock.Any()).Times(0)

	_, _, err := f.svc.AppendMessage(domain.PostMessageCommand{ChatID: chat.ID, SenderID: "intruder", Content: "hi"})
	req.ErrorIs(err, errors.ErrNotParticipant)
}

func TestMessageService_AppendMessage_DuplicateClientKey(t *testing.T) {
	req := require.New(t)
	f := newMessageFixture(t, nil)
	chat := mustChat(t, "chat-1", donorProfile, charityProfile, time.Now())
	existing := domain.Message{ID: uuid.New(), ChatID: chat.ID, SenderID: "user-b", Content: "hello", ClientKey: "k1"}

	f.chats.EXPECT().Get(chat.ID).Return(chat, nil)
	f.messages.EXPECT().FindByClientKey(chat.ID, "k1").Return(existing, true, nil)
	f.messages.EXPECT().Append(gomock.Any()).Times(0)

	msg, duplicate, err := f.svc.AppendMessage(domain.PostMessageCommand{ChatID: chat.ID, SenderID: "user-b", Content: "hello", ClientKey: "k1"})
	req.NoError(err)
	req.True(duplicate)
	req.Equal(existing, msg)
	req.Zero(testutil.ToFloat64(f.metrics.MessagesPersisted))
}

func TestMessageService_AppendMessage_Moderation(t *testing.T) {
	req := require.New(t)
	moderator, err := moderation.NewModerator([]string{"idiota"}, '*', logs.GetLoggerFromLevel(slog.LevelDebug))
	req.NoError(err)
	f := newMessageFixture(t, &moderator)
	chat := mustChat(t, "chat-1", donorProfile, charityProfile, time.Now())

	f.chats.EXPECT().Get(chat.ID).Return(chat, nil)
	f.messages.EXPECT().FindByClientKey(chat.ID, "k2").Return(domain.Message{}, false, nil)
	f.messages.EXPECT().Append(gomock.Any()).DoAndReturn(echoAppend)

	msg, _, err := f.svc.AppendMessage(domain.PostMessageCommand{ChatID: chat.ID, SenderID: "user-b", Content: "no seas 1d10ta", ClientKey: "k2"})
	req.NoError(err)
	req.Equal("no seas 1d10ta", msg.Content)
	req.Equal("no seas ******", msg.Censored)
	req.Equal("k2", msg.ClientKey)
}

func TestMessageService_SearchMessages(t *testing.T) {
	req := require.New(t)
	f := newMessageFixture(t, nil)
	hits := []domain.Message{{ID: uuid.New(), ChatID: "chat-1", Content: "voluntarios"}}

	f.index.EXPECT().Search(gomock.Any(), domain.ChatID("chat-1"), "voluntarios", 20).Return(hits, nil)

	results, err := f.svc.SearchMessages(context.Background(), "chat-1", "voluntarios", 0)
	req.NoError(err)
	req.Equal(hits, results)

	_, err = f.svc.SearchMessages(context.Background(), "chat-1", "  ", 5)
	req.ErrorIs(err, errors.ErrValidation)
}

func TestMessageService_ListMessages(t *testing.T) {
	req := require.New(t)
	f := newMessageFixture(t, nil)
	f.messages.EXPECT().List(domain.ChatID("unknown")).Return([]domain.Message{}, nil)

	messages, err := f.svc.ListMessages("unknown")
	req.NoError(err)
	req.Empty(messages)
}
