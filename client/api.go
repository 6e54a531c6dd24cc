package client

import (
	"bytes"
	"charity-chat/auth"
	"charity-chat/domain"
	"charity-chat/errors"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// API is the REST side of the chat. Every call carries the session token.
type API struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewAPI(baseURL, token string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &API{baseURL: strings.TrimRight(baseURL, "/"), token: token, http: httpClient}
}

// Credentials is what login and registration return.
type Credentials struct {
	Token string `json:"token"`
	domain.Profile
}

func Login(ctx context.Context, baseURL string, req auth.LoginRequest) (Credentials, error) {
	var creds Credentials
	err := NewAPI(baseURL, "", nil).do(ctx, http.MethodPost, "/login", nil, req, &creds)
	return creds, err
}

func RegisterUser(ctx context.Context, baseURL string, req auth.RegisterUserRequest) (Credentials, error) {
	var creds Credentials
	err := NewAPI(baseURL, "", nil).do(ctx, http.MethodPost, "/register/user", nil, req, &creds)
	return creds, err
}

func RegisterCharity(ctx context.Context, baseURL string, req auth.RegisterCharityRequest) (Credentials, error) {
	var creds Credentials
	err := NewAPI(baseURL, "", nil).do(ctx, http.MethodPost, "/register/charity", nil, req, &creds)
	return creds, err
}

func (a *API) Profile(ctx context.Context) (domain.Profile, error) {
	var profile domain.Profile
	err := a.do(ctx, http.MethodGet, "/profile", nil, nil, &profile)
	return profile, err
}

// ListChats returns the caller's previews, filtered by query when not empty.
func (a *API) ListChats(ctx context.Context, userID, query string) ([]domain.ChatPreview, error) {
	params := url.Values{"userId": {userID}}
	if query != "" {
		params.Set("q", query)
	}
	var previews []domain.ChatPreview
	err := a.do(ctx, http.MethodGet, "/chats", params, nil, &previews)
	return previews, err
}

func (a *API) CreateChat(ctx context.Context, userID, receiverID string) (domain.Chat, error) {
	var chat domain.Chat
	body := map[string]string{"userId": userID, "receiverId": receiverID}
	err := a.do(ctx, http.MethodPost, "/chats", nil, body, &chat)
	return chat, err
}

func (a *API) GetChat(ctx context.Context, chatID domain.ChatID) (domain.Chat, error) {
	var chat domain.Chat
	err := a.do(ctx, http.MethodGet, "/chats/"+url.PathEscape(string(chatID)), nil, nil, &chat)
	return chat, err
}

func (a *API) Messages(ctx context.Context, chatID domain.ChatID) ([]domain.Message, error) {
	var messages []domain.Message
	err := a.do(ctx, http.MethodGet, "/messages", url.Values{"chatId": {string(chatID)}}, nil, &messages)
	return messages, err
}

func (a *API) SearchMessages(ctx context.Context, chatID domain.ChatID, query string, limit int) ([]domain.Message, error) {
	params := url.Values{"chatId": {string(chatID)}, "q": {query}}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var messages []domain.Message
	err := a.do(ctx, http.MethodGet, "/messages/search", params, nil, &messages)
	return messages, err
}

// PostMessage is the REST fallback of a socket send. Without a chat id the
// server uses the chat of the sender and receiver.
func (a *API) PostMessage(ctx context.Context, message PostMessageRequest) (domain.Message, error) {
	var msg domain.Message
	err := a.do(ctx, http.MethodPost, "/messages", nil, message, &msg)
	return msg, err
}

type PostMessageRequest struct {
	ChatID     domain.ChatID `json:"chatId,omitempty"`
	SenderID   string        `json:"senderId,omitempty"`
	ReceiverID string        `json:"receiverId,omitempty"`
	Content    string        `json:"content"`
	ClientKey  string        `json:"clientKey,omitempty"`
}

// do sends one request. Transport failures wrap ErrNetworkFailure, error
// bodies are turned back into the server's sentinel.
func (a *API) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	target := a.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var failure struct {
			Error errors.Body `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&failure); err != nil || failure.Error.Code == "" {
			return fmt.Errorf("%w: unexpected status %d", errors.ErrNetworkFailure, resp.StatusCode)
		}
		return failure.Error.Err()
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
