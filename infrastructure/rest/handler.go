package rest

import (
	"charity-chat/auth"
	"charity-chat/contract"
	"charity-chat/domain"
	"charity-chat/errors"
	"charity-chat/services"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// Handler serves the REST endpoints of the chat.
type Handler struct {
	log            *slog.Logger
	authService    services.IAuthService
	chatService    services.IChatService
	messageService services.IMessageService
	orchestrator   contract.IOrchestrator
}

func NewHandler(log *slog.Logger,
	authService services.IAuthService,
	chatService services.IChatService,
	messageService services.IMessageService,
	orchestrator contract.IOrchestrator) *Handler {
	return &Handler{
		log:            log,
		authService:    authService,
		chatService:    chatService,
		messageService: messageService,
		orchestrator:   orchestrator,
	}
}

type tokenResponse struct {
	Token services.Token `json:"token"`
	domain.Profile
}

type createChatRequest struct {
	UserID     string `json:"userId"`
	ReceiverID string `json:"receiverId"`
}

type postMessageRequest struct {
	ChatID     domain.ChatID `json:"chatId"`
	SenderID   string        `json:"senderId"`
	ReceiverID string        `json:"receiverId"`
	Content    string        `json:"content"`
	ClientKey  string        `json:"clientKey"`
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(h.log, w, r, err)
}

func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	token, profile, err := h.authService.RegisterUser(req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token, Profile: profile})
}

func (h *Handler) RegisterCharity(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterCharityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	token, profile, err := h.authService.RegisterCharity(req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token, Profile: profile})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	token, profile, err := h.authService.Login(req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, Profile: profile})
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.RequireSelf(r.Context(), "")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	profile, err := h.authService.Profile(identity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// ListChats returns the previews of the caller, filtered by ?q= when present.
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.RequireSelf(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var previews []domain.ChatPreview
	if q := r.URL.Query().Get("q"); q != "" {
		previews, err = h.chatService.SearchChats(identity.ID, q)
	} else {
		previews, err = h.chatService.ListChats(identity.ID)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, previews)
}

func (h *Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	identity, err := auth.RequireSelf(r.Context(), req.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	chat, err := h.chatService.CreateOrGetChat(domain.CreateChatCommand{UserID: identity.ID, ReceiverID: req.ReceiverID})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (h *Handler) GetChat(w http.ResponseWriter, r *http.Request) {
	chat, err := h.memberChat(r, domain.ChatID(mux.Vars(r)["id"]))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

// ListMessages returns the history of a chat the caller participates in.
// An unknown chat has an empty history.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	chatID, err := chatIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.memberChat(r, chatID); err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			writeJSON(w, http.StatusOK, []domain.Message{})
			return
		}
		h.fail(w, r, err)
		return
	}
	messages, err := h.messageService.ListMessages(chatID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *Handler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	chatID, err := chatIDParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			h.fail(w, r, fmt.Errorf("%w: limit must be a positive integer", errors.ErrValidation))
			return
		}
	}
	if _, err := h.memberChat(r, chatID); err != nil {
		h.fail(w, r, err)
		return
	}
	messages, err := h.messageService.SearchMessages(r.Context(), chatID, r.URL.Query().Get("q"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// PostMessage persists a message outside of a socket and broadcasts it to
// the whole room. Without chatId the chat of the sender/receiver pair is used.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	identity, err := auth.RequireSelf(r.Context(), req.SenderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	chatID := req.ChatID
	if chatID == "" {
		chat, err := h.chatService.CreateOrGetChat(domain.CreateChatCommand{UserID: identity.ID, ReceiverID: req.ReceiverID})
		if err != nil {
			h.fail(w, r, err)
			return
		}
		chatID = chat.ID
	}
	msg, err := h.orchestrator.PostMessage(r.Context(), domain.PostMessageCommand{
		ChatID:    chatID,
		SenderID:  identity.ID,
		Content:   req.Content,
		ClientKey: req.ClientKey,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// memberChat loads the chat and checks the caller participates in it.
func (h *Handler) memberChat(r *http.Request, chatID domain.ChatID) (domain.Chat, error) {
	identity, err := auth.RequireSelf(r.Context(), "")
	if err != nil {
		return domain.Chat{}, err
	}
	chat, err := h.chatService.GetChat(chatID)
	if err != nil {
		return domain.Chat{}, err
	}
	if !chat.HasParticipant(identity.ID) {
		return domain.Chat{}, errors.ErrNotParticipant
	}
	return chat, nil
}

func chatIDParam(r *http.Request) (domain.ChatID, error) {
	chatID := r.URL.Query().Get("chatId")
	if chatID == "" {
		return "", fmt.Errorf("%w: chatId is required", errors.ErrValidation)
	}
	return domain.ChatID(chatID), nil
}
