package ws

import (
	"charity-chat/domain"
	"charity-chat/domain/event"
	"charity-chat/errors"
	"encoding/json"
	"fmt"
	"time"
)

const (
	JoinRoomEvent    = "joinRoom"
	LeaveRoomEvent   = "leaveRoom"
	SendMessageEvent = "sendMessage"
	AckEvent         = "ack"
)

// Envelope is the frame exchanged in both directions.
// Ack is set by a client expecting an answer, and echoed back on the ack frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   *int64          `json:"ack,omitempty"`
	Error *errors.Body    `json:"error,omitempty"`
}

// RoomPayload accepts the chat id alone or wrapped as {"chatId": …}.
type RoomPayload struct {
	ChatID domain.ChatID `json:"chatId"`
}

func (p *RoomPayload) UnmarshalJSON(b []byte) error {
	var id string
	if err := json.Unmarshal(b, &id); err == nil {
		p.ChatID = domain.ChatID(id)
		return nil
	}
	type plain RoomPayload
	var v plain
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*p = RoomPayload(v)
	return nil
}

// SendMessagePayload is the body of sendMessage. ReceiverID is accepted
// for compatibility and ignored: the chat decides who receives.
type SendMessagePayload struct {
	ChatID     domain.ChatID `json:"chatId"`
	Content    string        `json:"content"`
	ClientKey  string        `json:"clientKey,omitempty"`
	SenderID   string        `json:"senderId,omitempty"`
	ReceiverID string        `json:"receiverId,omitempty"`
}

// TypingPayload is relayed to the other members of the room.
type TypingPayload struct {
	ChatID   domain.ChatID `json:"chatId"`
	SenderID string        `json:"senderId"`
	At       time.Time     `json:"at"`
}

func newEnvelope(name string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: name, Data: raw}, nil
}

func ackEnvelope(ack int64, data any, err error) (Envelope, error) {
	if err != nil {
		body := errors.NewBody(err)
		return Envelope{Event: AckEvent, Ack: &ack, Error: &body}, nil
	}
	env, marshalErr := newEnvelope(AckEvent, data)
	env.Ack = &ack
	return env, marshalErr
}

// toEnvelope renders a domain event as the frame pushed to room members.
func toEnvelope(evt event.DomainEvent) (Envelope, error) {
	switch e := evt.(type) {
	case event.MessagePersisted:
		return newEnvelope(e.Name(), e.Message)
	case event.Typing:
		return newEnvelope(e.Name(), TypingPayload{ChatID: e.Chat, SenderID: e.SenderID, At: e.At})
	default:
		return Envelope{}, fmt.Errorf("%w: %T", errors.ErrInvalidPayload, evt)
	}
}
