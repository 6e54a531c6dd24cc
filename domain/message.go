// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages are immutable once stored.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable chat event.
type Message struct {
	ID         uuid.UUID `json:"id"`
	ChatID     ChatID    `json:"chatId"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Content    string    `json:"content"`
	ClientKey  string    `json:"clientKey,omitempty"` // idempotency key chosen by the sender
	Censored   string    `json:"censored,omitempty"`  // masked rendering, set when moderation matched
	Language   string    `json:"language,omitempty"`
	CreatedAt  time.Time `json:"timestamp"`
}
