package rest

import (
	"bytes"
	"charity-chat/auth"
	"charity-chat/domain"
	"charity-chat/errors"
	"charity-chat/mocks"
	"charity-chat/observability"
	"charity-chat/services"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type routerFixture struct {
	authService    *mocks.MockIAuthService
	chatService    *mocks.MockIChatService
	messageService *mocks.MockIMessageService
	orchestrator   *mocks.MockIOrchestrator
	issuer         *auth.TokenIssuer
	server         *httptest.Server
	chat           domain.Chat
}

func newRouterFixture(t *testing.T) routerFixture {
	ctrl := gomock.NewController(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	chat, err := domain.NewChat("chat-1",
		domain.Participant{ID: "charity-a", Kind: domain.KindCharity, Name: "Cruz Azul"},
		domain.Participant{ID: "user-b", Kind: domain.KindUser, Name: "Ana Lopez"},
		time.Now().UTC())
	require.NoError(t, err)

	f := routerFixture{
		authService:    mocks.NewMockIAuthService(ctrl),
		chatService:    mocks.NewMockIChatService(ctrl),
		messageService: mocks.NewMockIMessageService(ctrl),
		orchestrator:   mocks.NewMockIOrchestrator(ctrl),
		issuer:         auth.NewTokenIssuer("test-secret", time.Hour),
		chat:           chat,
	}
	handler := NewHandler(log, f.authService, f.chatService, f.messageService, f.orchestrator)
	router := NewRouter(log, handler, f.issuer, nil, observability.NewMetrics(), func() bool { return true })
	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

func (f routerFixture) token(t *testing.T, id string, kind domain.Kind) string {
	token, err := f.issuer.GenerateToken(id, kind)
	require.NoError(t, err)
	return token
}

func (f routerFixture) do(t *testing.T, method, path, token string, body any) *http.Response {
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req, err := http.NewRequest(method, f.server.URL+path, &payload)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestRouter_Login(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	user := domain.User{ID: "user-b", Nombre: "Ana", Email: "ana@example.org"}

	f.authService.EXPECT().Login(auth.LoginRequest{Email: "ana@example.org", Password: "S3cure!Passw0rd"}).
		Return(services.Token("tok"), domain.Profile{User: &user}, nil)

	resp := f.do(t, http.MethodPost, "/login", "", map[string]string{"email": "ana@example.org", "password": "S3cure!Passw0rd"})
	req.Equal(http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string]json.RawMessage](t, resp)
	req.JSONEq(`"tok"`, string(body["token"]))
	req.Contains(body, "user")
	req.NotContains(string(body["user"]), "password")
}

func TestRouter_Login_InvalidCredentials(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	f.authService.EXPECT().Login(gomock.Any()).Return(services.Token(""), domain.Profile{}, errors.ErrInvalidCredentials)

	resp := f.do(t, http.MethodPost, "/login", "", map[string]string{"email": "ana@example.org", "password": "nope"})
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
	body := decodeBody[errorResponse](t, resp)
	req.Equal(errors.CodeAuthRequired, body.Error.Code)
}

func TestRouter_RegisterCharity_AlreadyExists(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	f.authService.EXPECT().RegisterCharity(gomock.Any()).Return(services.Token(""), domain.Profile{}, errors.ErrUserAlreadyExists)

	resp := f.do(t, http.MethodPost, "/register/charity", "", map[string]string{"nombre": "Cruz Azul"})
	req.Equal(http.StatusConflict, resp.StatusCode)
}

func TestRouter_MalformedBody(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)

	httpReq, err := http.NewRequest(http.MethodPost, f.server.URL+"/register/user", bytes.NewBufferString("{not json"))
	req.NoError(err)
	resp, err := http.DefaultClient.Do(httpReq)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_ProtectedRoutesRequireToken(t *testing.T) {
	f := newRouterFixture(t)

	for _, path := range []string{"/profile", "/chats", "/messages?chatId=chat-1", "/chats/chat-1"} {
		t.Run(path, func(t *testing.T) {
			req := require.New(t)
			resp := f.do(t, http.MethodGet, path, "", nil)
			req.Equal(http.StatusUnauthorized, resp.StatusCode)
			req.Equal(errors.CodeAuthRequired, decodeBody[errorResponse](t, resp).Error.Code)

			resp = f.do(t, http.MethodGet, path, "forged.token.value", nil)
			req.Equal(http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestRouter_Profile_SecretTokenQuery(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	charity := domain.Charity{ID: "charity-a", Nombre: "Cruz Azul", AccessToken: "mp-secret"}
	f.authService.EXPECT().Profile(auth.Identity{ID: "charity-a", Kind: domain.KindCharity}).
		Return(domain.Profile{Charity: &charity}, nil)

	resp := f.do(t, http.MethodGet, "/profile?secret_token="+f.token(t, "charity-a", domain.KindCharity), "", nil)
	req.Equal(http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string]map[string]any](t, resp)
	req.Equal("Cruz Azul", body["charity"]["nombre"])
	req.NotContains(body["charity"], "accessToken")
}

func TestRouter_ListChats(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	token := f.token(t, "user-b", domain.KindUser)
	preview := domain.ChatPreview{Chat: f.chat, Other: f.chat.Participants[0]}

	f.chatService.EXPECT().ListChats("user-b").Return([]domain.ChatPreview{preview}, nil)
	f.chatService.EXPECT().SearchChats("user-b", "cruz").Return([]domain.ChatPreview{preview}, nil)

	resp := f.do(t, http.MethodGet, "/chats?userId=user-b", token, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Len(decodeBody[[]domain.ChatPreview](t, resp), 1)

	resp = f.do(t, http.MethodGet, "/chats?q=cruz", token, nil)
	req.Equal(http.StatusOK, resp.StatusCode)

	// Then listing the chats of someone else is forbidden
	resp = f.do(t, http.MethodGet, "/chats?userId=charity-a", token, nil)
	req.Equal(http.StatusForbidden, resp.StatusCode)
	req.Equal(errors.CodeNotParticipant, decodeBody[errorResponse](t, resp).Error.Code)
}

func TestRouter_CreateChat(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	token := f.token(t, "user-b", domain.KindUser)

	f.chatService.EXPECT().CreateOrGetChat(domain.CreateChatCommand{UserID: "user-b", ReceiverID: "charity-a"}).Return(f.chat, nil)

	resp := f.do(t, http.MethodPost, "/chats", token, createChatRequest{UserID: "user-b", ReceiverID: "charity-a"})
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal(f.chat.ID, decodeBody[domain.Chat](t, resp).ID)

	f.chatService.EXPECT().CreateOrGetChat(gomock.Any()).Return(domain.Chat{}, errors.ErrSameParticipant)
	resp = f.do(t, http.MethodPost, "/chats", token, createChatRequest{UserID: "user-b", ReceiverID: "user-b"})
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_ListMessages(t *testing.T) {
	f := newRouterFixture(t)
	messages := []domain.Message{{ID: uuid.New(), ChatID: f.chat.ID, SenderID: "user-b", Content: "hola"}}

	f.chatService.EXPECT().GetChat(f.chat.ID).Return(f.chat, nil).Times(2)
	f.chatService.EXPECT().GetChat(domain.ChatID("unknown")).Return(domain.Chat{}, errors.ErrChatNotFound)
	f.messageService.EXPECT().ListMessages(f.chat.ID).Return(messages, nil)

	t.Run("member", func(t *testing.T) {
		req := require.New(t)
		resp := f.do(t, http.MethodGet, "/messages?chatId=chat-1", f.token(t, "user-b", domain.KindUser), nil)
		req.Equal(http.StatusOK, resp.StatusCode)
		req.Len(decodeBody[[]domain.Message](t, resp), 1)
	})

	t.Run("outsider", func(t *testing.T) {
		req := require.New(t)
		resp := f.do(t, http.MethodGet, "/messages?chatId=chat-1", f.token(t, "charity-z", domain.KindCharity), nil)
		req.Equal(http.StatusForbidden, resp.StatusCode)
	})

	t.Run("unknown chat", func(t *testing.T) {
		req := require.New(t)
		resp := f.do(t, http.MethodGet, "/messages?chatId=unknown", f.token(t, "user-b", domain.KindUser), nil)
		req.Equal(http.StatusOK, resp.StatusCode)
		req.Empty(decodeBody[[]domain.Message](t, resp))
	})

	t.Run("missing chat id", func(t *testing.T) {
		req := require.New(t)
		resp := f.do(t, http.MethodGet, "/messages", f.token(t, "user-b", domain.KindUser), nil)
		req.Equal(http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRouter_SearchMessages(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	token := f.token(t, "charity-a", domain.KindCharity)

	f.chatService.EXPECT().GetChat(f.chat.ID).Return(f.chat, nil)
	f.messageService.EXPECT().SearchMessages(gomock.Any(), f.chat.ID, "ropa", 5).Return([]domain.Message{}, nil)

	resp := f.do(t, http.MethodGet, "/messages/search?chatId=chat-1&q=ropa&limit=5", token, nil)
	req.Equal(http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/messages/search?chatId=chat-1&q=ropa&limit=abc", token, nil)
	req.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_PostMessage(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)
	token := f.token(t, "user-b", domain.KindUser)
	stored := domain.Message{ID: uuid.New(), ChatID: f.chat.ID, SenderID: "user-b", ReceiverID: "charity-a", Content: "hola"}

	// Given no chatId, the chat of the pair is resolved first
	f.chatService.EXPECT().CreateOrGetChat(domain.CreateChatCommand{UserID: "user-b", ReceiverID: "charity-a"}).Return(f.chat, nil)
	// Then the message goes through the relay with no origin connection
	f.orchestrator.EXPECT().PostMessage(gomock.Any(), domain.PostMessageCommand{
		ChatID: f.chat.ID, SenderID: "user-b", Content: "hola", ClientKey: "k1",
	}).Return(stored, nil)

	resp := f.do(t, http.MethodPost, "/messages", token, postMessageRequest{
		SenderID: "user-b", ReceiverID: "charity-a", Content: "hola", ClientKey: "k1",
	})
	req.Equal(http.StatusCreated, resp.StatusCode)
	req.Equal(stored.ID, decodeBody[domain.Message](t, resp).ID)

	// When the sender is not the caller
	resp = f.do(t, http.MethodPost, "/messages", token, postMessageRequest{
		ChatID: f.chat.ID, SenderID: "charity-a", Content: "spoofed",
	})
	req.Equal(http.StatusForbidden, resp.StatusCode)
}

func TestRouter_Healthz(t *testing.T) {
	req := require.New(t)
	f := newRouterFixture(t)

	resp := f.do(t, http.MethodGet, "/healthz", "", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal(map[string]string{"status": "ok"}, decodeBody[map[string]string](t, resp))

	resp = f.do(t, http.MethodGet, "/metrics", "", nil)
	req.Equal(http.StatusOK, resp.StatusCode)
}
