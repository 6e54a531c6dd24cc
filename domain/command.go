package domain

// ConnectionID identifies one realtime connection. Empty for REST callers.
type ConnectionID string

type PostMessageCommand struct {
	ChatID    ChatID
	SenderID  string
	Content   string
	ClientKey string
	Origin    ConnectionID
}

type CreateChatCommand struct {
	UserID     string `validate:"required"`
	ReceiverID string `validate:"required"`
}
