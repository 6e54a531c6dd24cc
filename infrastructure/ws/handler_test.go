package ws

import (
	"charity-chat/auth"
	"charity-chat/contract"
	"charity-chat/domain"
	"charity-chat/domain/event"
	"charity-chat/errors"
	"charity-chat/mocks"
	"charity-chat/observability"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type socketFixture struct {
	orchestrator *mocks.MockIOrchestrator
	issuer       *auth.TokenIssuer
	server       *httptest.Server
	handler      *Handler
}

func newSocketFixture(t *testing.T) socketFixture {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	f := socketFixture{
		orchestrator: mocks.NewMockIOrchestrator(ctrl),
		issuer:       auth.NewTokenIssuer("test-secret", time.Hour),
	}
	f.handler = NewHandler(log, f.orchestrator, observability.NewMetrics(), DefaultOptions(16))
	protected := auth.Middleware(f.issuer, func(w http.ResponseWriter, _ *http.Request, err error) {
		http.Error(w, err.Error(), errors.MapToHTTPStatus(err))
	})(f.handler)
	f.server = httptest.NewServer(protected)
	t.Cleanup(func() {
		f.handler.Close()
		f.server.Close()
	})
	return f
}

func (f socketFixture) dial(t *testing.T, identityID string) *websocket.Conn {
	token, err := f.issuer.GenerateToken(identityID, domain.KindUser)
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/socket?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, name string, ack int64, data any) {
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Envelope{Event: name, Data: raw, Ack: &ack}))
}

func read(t *testing.T, conn *websocket.Conn) Envelope {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestHandler_RejectsInvalidTokenBeforeUpgrade(t *testing.T) {
	req := require.New(t)
	f := newSocketFixture(t)

	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/socket?token=forged"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_JoinRoomAndReceive(t *testing.T) {
	req := require.New(t)
	f := newSocketFixture(t)

	sinks := make(chan contract.EventSink, 1)
	f.orchestrator.EXPECT().JoinRoom("charity-a", gomock.Any(), domain.ChatID("chat-1"), gomock.Any()).DoAndReturn(
		func(_ string, _ domain.ConnectionID, _ domain.ChatID, sink contract.EventSink) error {
			sinks <- sink
			return nil
		})
	f.orchestrator.EXPECT().Disconnect(gomock.Any()).AnyTimes()

	conn := f.dial(t, "charity-a")
	// The bare chat id form is accepted
	send(t, conn, JoinRoomEvent, 1, "chat-1")

	ack := read(t, conn)
	req.Equal(AckEvent, ack.Event)
	req.Equal(int64(1), *ack.Ack)
	req.Nil(ack.Error)

	msg := domain.Message{ID: uuid.New(), ChatID: "chat-1", SenderID: "user-b", ReceiverID: "charity-a", Content: "hola"}
	sink := <-sinks
	req.NoError(sink.Consume(context.Background(), event.MessagePersisted{Message: msg, OriginConn: "other"}))

	pushed := read(t, conn)
	req.Equal(event.ReceiveMessageName, pushed.Event)
	var got domain.Message
	req.NoError(json.Unmarshal(pushed.Data, &got))
	req.Equal(msg.ID, got.ID)
	req.Equal("hola", got.Content)
}

func TestHandler_JoinRoom_NotParticipant(t *testing.T) {
	req := require.New(t)
	f := newSocketFixture(t)
	f.orchestrator.EXPECT().JoinRoom(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.ErrNotParticipant)
	f.orchestrator.EXPECT().Disconnect(gomock.Any()).AnyTimes()

	conn := f.dial(t, "intruder")
	send(t, conn, JoinRoomEvent, 7, RoomPayload{ChatID: "chat-1"})

	ack := read(t, conn)
	req.NotNil(ack.Error)
	req.Equal(errors.CodeNotParticipant, ack.Error.Code)
}

func TestHandler_SendMessage(t *testing.T) {
	req := require.New(t)
	f := newSocketFixture(t)
	f.orchestrator.EXPECT().Disconnect(gomock.Any()).AnyTimes()

	stored := domain.Message{ID: uuid.New(), ChatID: "chat-1", SenderID: "user-b", ReceiverID: "charity-a", Content: "hello", ClientKey: "k1"}
	commands := make(chan domain.PostMessageCommand, 1)
	f.orchestrator.EXPECT().PostMessage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, cmd domain.PostMessageCommand) (domain.Message, error) {
			commands <- cmd
			return stored, nil
		})

	conn := f.dial(t, "user-b")
	send(t, conn, SendMessageEvent, 2, SendMessagePayload{ChatID: "chat-1", Content: "hello", ClientKey: "k1", ReceiverID: "ignored"})

	ack := read(t, conn)
	req.Nil(ack.Error)
	var got domain.Message
	req.NoError(json.Unmarshal(ack.Data, &got))
	req.Equal(stored.ID, got.ID)

	// The sender is the authenticated identity and the origin is this socket
	cmd := <-commands
	req.Equal("user-b", cmd.SenderID)
	req.NotEmpty(cmd.Origin)
	req.Equal("k1", cmd.ClientKey)
}

func TestHandler_SendMessage_SpoofedSender(t *testing.T) {
	req := require.New(t)
	f := newSocketFixture(t)
	f.orchestrator.EXPECT().Disconnect(gomock.Any()).AnyTimes()
	f.orchestrator.EXPECT().PostMessage(gomock.Any(), gomock.Any()).Times(0)

	conn := f.dial(t, "user-b")
	send(t, conn, SendMessageEvent, 3, SendMessagePayload{ChatID: "chat-1", Content: "hi", SenderID: "charity-a"})

	ack := read(t, conn)
	req.Equal(errors.CodeNotParticipant, ack.Error.Code)
}

func TestHandler_UnknownEvent(t *testing.T) {
	req := require.New(t)
	f := newSocketFixture(t)
	f.orchestrator.EXPECT().Disconnect(gomock.Any()).AnyTimes()

	conn := f.dial(t, "user-b")
	send(t, conn, "shout", 4, "chat-1")

	ack := read(t, conn)
	req.Equal(errors.CodeValidation, ack.Error.Code)
}

func TestHandler_DisconnectDropsMemberships(t *testing.T) {
	req := require.New(t)
	f := newSocketFixture(t)
	disconnected := make(chan domain.ConnectionID, 1)
	f.orchestrator.EXPECT().Disconnect(gomock.Any()).Do(func(conn domain.ConnectionID) {
		disconnected <- conn
	})

	conn := f.dial(t, "user-b")
	req.NoError(conn.Close())

	select {
	case id := <-disconnected:
		req.NotEmpty(id)
	case <-time.After(2 * time.Second):
		req.Fail("Disconnect was not called")
	}
}

func TestConnection_SlowConsumerIsClosed(t *testing.T) {
	req := require.New(t)
	f := newSocketFixture(t)
	f.orchestrator.EXPECT().Disconnect(gomock.Any()).AnyTimes()

	// Given a connection whose writer never drains
	c := newConnection("conn-1", auth.Identity{ID: "user-b"}, nil, f.orchestrator, Options{BufferSize: 1}, logs.GetLoggerFromLevel(slog.LevelDebug))

	evt := event.MessagePersisted{Message: domain.Message{ChatID: "chat-1", Content: "one"}}
	req.NoError(c.Consume(context.Background(), evt))
	req.ErrorIs(c.Consume(context.Background(), evt), errors.ErrSlowConsumer)

	// Then the connection is closed for good
	req.ErrorIs(c.Consume(context.Background(), evt), errors.ErrNetworkFailure)
}
