package domain

import (
	"charity-chat/errors"
	"strings"
	"time"
)

type ChatID string

// Chat is a two-party conversation container.
// Participants are kept in canonical order (ascending ID) so that the
// unordered pair always maps to the same PairKey.
type Chat struct {
	ID           ChatID         `json:"id"`
	Participants [2]Participant `json:"participants"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// NewChat validates that a and b are two distinct identities.
func NewChat(id ChatID, a, b Participant, at time.Time) (Chat, error) {
	if a.ID == "" || b.ID == "" {
		return Chat{}, errors.ErrValidation
	}
	if a.ID == b.ID {
		return Chat{}, errors.ErrSameParticipant
	}
	if b.ID < a.ID {
		a, b = b, a
	}
	return Chat{ID: id, Participants: [2]Participant{a, b}, CreatedAt: at}, nil
}

// PairKey identifies the unordered participant pair.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return strings.Join([]string{a, b}, "|")
}

func (c Chat) PairKey() string {
	return PairKey(c.Participants[0].ID, c.Participants[1].ID)
}

func (c Chat) HasParticipant(id string) bool {
	return c.Participants[0].ID == id || c.Participants[1].ID == id
}

// Other returns the participant that is not id.
func (c Chat) Other(id string) (Participant, bool) {
	switch id {
	case c.Participants[0].ID:
		return c.Participants[1], true
	case c.Participants[1].ID:
		return c.Participants[0], true
	}
	return Participant{}, false
}

// ChatPreview is a chat as listed for one of its participants.
type ChatPreview struct {
	Chat
	Other       Participant `json:"other"`
	LastMessage *Message    `json:"lastMessage,omitempty"`
}

// LastActivity is the time of the last message, or the chat creation time.
func (p ChatPreview) LastActivity() time.Time {
	if p.LastMessage != nil {
		return p.LastMessage.CreatedAt
	}
	return p.CreatedAt
}
