package runtime

import (
	"charity-chat/domain"
	"charity-chat/domain/event"
	"charity-chat/errors"
	"charity-chat/mocks"
	"charity-chat/observability"
	"charity-chat/runtime/workers"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// recordingSink forwards every consumed event to a channel.
type recordingSink struct {
	events chan event.DomainEvent
}

func newRecordingSink() recordingSink {
	return recordingSink{events: make(chan event.DomainEvent, 100)}
}

func (s recordingSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case s.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s recordingSink) next(t *testing.T) event.DomainEvent {
	t.Helper()
	select {
	case e := <-s.events:
		return e
	case <-time.After(time.Second):
		require.Fail(t, "no event received")
		return nil
	}
}

func (s recordingSink) assertSilent(t *testing.T) {
	t.Helper()
	select {
	case e := <-s.events:
		require.Failf(t, "unexpected event", "%v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

type orchestratorFixture struct {
	chatService    *mocks.MockIChatService
	messageService *mocks.MockIMessageService
	orchestrator   *Orchestrator
	chat           domain.Chat
}

func newOrchestratorFixture(t *testing.T) orchestratorFixture {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	telemetryChan := make(chan event.Event, 100)
	chat, err := domain.NewChat("chat-1",
		domain.Participant{ID: "charity-a", Kind: domain.KindCharity, Name: "Cruz Azul"},
		domain.Participant{ID: "user-b", Kind: domain.KindUser, Name: "Ana Lopez"},
		time.Now())
	require.NoError(t, err)

	f := orchestratorFixture{
		chatService:    mocks.NewMockIChatService(ctrl),
		messageService: mocks.NewMockIMessageService(ctrl),
		chat:           chat,
	}
	f.chatService.EXPECT().GetChat(chat.ID).Return(chat, nil).AnyTimes()
	f.orchestrator = NewOrchestrator(log,
		workers.NewSupervisor(log, telemetryChan, 50*time.Millisecond),
		NewRegistry(), f.chatService, f.messageService, telemetryChan,
		observability.NewMetrics(), 100, time.Second, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = f.orchestrator.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	require.Eventually(t, f.orchestrator.Running, time.Second, 10*time.Millisecond)
	return f
}

func (f orchestratorFixture) expectAppend() {
	f.messageService.EXPECT().AppendMessage(gomock.Any()).DoAndReturn(
		func(cmd domain.PostMessageCommand) (domain.Message, bool, error) {
			other, _ := f.chat.Other(cmd.SenderID)
			return domain.Message{
				ID:         uuid.New(),
				ChatID:     cmd.ChatID,
				SenderID:   cmd.SenderID,
				ReceiverID: other.ID,
				Content:    cmd.Content,
				ClientKey:  cmd.ClientKey,
				CreatedAt:  time.Now().UTC(),
			}, false, nil
		}).AnyTimes()
}

func TestOrchestrator_PostMessage_ReachesPeerNotOrigin(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorFixture(t)
	f.expectAppend()
	sender, receiver := newRecordingSink(), newRecordingSink()

	req.NoError(f.orchestrator.JoinRoom("user-b", "conn-b", f.chat.ID, sender))
	req.NoError(f.orchestrator.JoinRoom("charity-a", "conn-a", f.chat.ID, receiver))

	msg, err := f.orchestrator.PostMessage(context.Background(), domain.PostMessageCommand{
		ChatID: f.chat.ID, SenderID: "user-b", Content: "hello", Origin: "conn-b",
	})
	req.NoError(err)
	req.Equal("charity-a", msg.ReceiverID)

	got := receiver.next(t).(event.MessagePersisted)
	req.Equal(msg, got.Message)
	sender.assertSilent(t)
}

func TestOrchestrator_PostMessage_OrderPreserved(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorFixture(t)
	f.expectAppend()
	receiver := newRecordingSink()
	req.NoError(f.orchestrator.JoinRoom("charity-a", "conn-a", f.chat.ID, receiver))

	for i := 0; i < 20; i++ {
		_, err := f.orchestrator.PostMessage(context.Background(), domain.PostMessageCommand{
			ChatID: f.chat.ID, SenderID: "user-b", Content: fmt.Sprintf("msg-%d", i),
		})
		req.NoError(err)
	}
	for i := 0; i < 20; i++ {
		got := receiver.next(t).(event.MessagePersisted)
		req.Equal(fmt.Sprintf("msg-%d", i), got.Message.Content)
	}
}

func (f orchestratorFixture) chatLocks() int {
	f.orchestrator.mu.Lock()
	defer f.orchestrator.mu.Unlock()
	return len(f.orchestrator.chatLocks)
}

func TestOrchestrator_PostMessage_ReleasesChatLocks(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorFixture(t)

	// Given a post that stays inside the append until released
	entered := make(chan struct{})
	release := make(chan struct{})
	f.messageService.EXPECT().AppendMessage(gomock.Any()).DoAndReturn(
		func(cmd domain.PostMessageCommand) (domain.Message, bool, error) {
			if cmd.Content == "slow" {
				close(entered)
				<-release
			}
			return domain.Message{ID: uuid.New(), ChatID: cmd.ChatID, SenderID: cmd.SenderID, Content: cmd.Content}, false, nil
		}).AnyTimes()

	done := make(chan error, 1)
	go func() {
		_, err := f.orchestrator.PostMessage(context.Background(), domain.PostMessageCommand{
			ChatID: f.chat.ID, SenderID: "user-b", Content: "slow",
		})
		done <- err
	}()
	<-entered
	req.Equal(1, f.chatLocks())

	// When every post of every chat has returned
	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.orchestrator.PostMessage(context.Background(), domain.PostMessageCommand{
				ChatID: domain.ChatID(fmt.Sprintf("other-%d", i%3)), SenderID: "user-b", Content: "hi",
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}
	close(release)
	req.NoError(<-done)

	// Then no lock is left behind
	req.Equal(0, f.chatLocks())
}

func TestOrchestrator_PostMessage_DuplicateNotBroadcast(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorFixture(t)
	receiver := newRecordingSink()
	req.NoError(f.orchestrator.JoinRoom("charity-a", "conn-a", f.chat.ID, receiver))

	stored := domain.Message{ID: uuid.New(), ChatID: f.chat.ID, SenderID: "user-b", Content: "hello", ClientKey: "k1"}
	f.messageService.EXPECT().AppendMessage(gomock.Any()).Return(stored, true, nil)

	msg, err := f.orchestrator.PostMessage(context.Background(), domain.PostMessageCommand{
		ChatID: f.chat.ID, SenderID: "user-b", Content: "hello", ClientKey: "k1",
	})
	req.NoError(err)
	req.Equal(stored, msg)
	receiver.assertSilent(t)
}

func TestOrchestrator_PostMessage_FailureNotBroadcast(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorFixture(t)
	receiver := newRecordingSink()
	req.NoError(f.orchestrator.JoinRoom("charity-a", "conn-a", f.chat.ID, receiver))

	f.messageService.EXPECT().AppendMessage(gomock.Any()).Return(domain.Message{}, false, errors.ErrValidation)

	_, err := f.orchestrator.PostMessage(context.Background(), domain.PostMessageCommand{
		ChatID: f.chat.ID, SenderID: "user-b", Content: "",
	})
	req.ErrorIs(err, errors.ErrValidation)
	receiver.assertSilent(t)
}

func TestOrchestrator_JoinRoom_NotParticipant(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorFixture(t)
	f.chatService.EXPECT().GetChat(domain.ChatID("unknown")).Return(domain.Chat{}, errors.ErrChatNotFound)

	err := f.orchestrator.JoinRoom("intruder", "conn-x", f.chat.ID, newRecordingSink())
	req.ErrorIs(err, errors.ErrNotParticipant)

	err = f.orchestrator.JoinRoom("user-b", "conn-b", "unknown", newRecordingSink())
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestOrchestrator_LeaveRoom_StopsDelivery(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorFixture(t)
	f.expectAppend()
	receiver := newRecordingSink()

	req.NoError(f.orchestrator.JoinRoom("charity-a", "conn-a", f.chat.ID, receiver))
	f.orchestrator.LeaveRoom("conn-a", f.chat.ID)

	_, err := f.orchestrator.PostMessage(context.Background(), domain.PostMessageCommand{
		ChatID: f.chat.ID, SenderID: "user-b", Content: "anyone?",
	})
	req.NoError(err)
	receiver.assertSilent(t)
}

func TestOrchestrator_Typing(t *testing.T) {
	req := require.New(t)
	f := newOrchestratorFixture(t)
	sender, receiver := newRecordingSink(), newRecordingSink()

	typing := event.Typing{Chat: f.chat.ID, SenderID: "user-b", OriginConn: "conn-b", At: time.Now()}

	// Given the typing connection has not joined the room
	req.ErrorIs(f.orchestrator.Typing(context.Background(), typing), errors.ErrNotParticipant)

	req.NoError(f.orchestrator.JoinRoom("user-b", "conn-b", f.chat.ID, sender))
	req.NoError(f.orchestrator.JoinRoom("charity-a", "conn-a", f.chat.ID, receiver))
	req.NoError(f.orchestrator.Typing(context.Background(), typing))

	req.Equal(event.TypingName, receiver.next(t).Name())
	sender.assertSilent(t)
}
