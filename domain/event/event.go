package event

import (
	"charity-chat/domain"
	"time"
)

type Type string

const (
	DomainType              Type = "DOMAIN"
	RestartedAfterPanicType Type = "WORKER_RESTARTED_AFTER_PANIC"
	ChannelCapacityType     Type = "CHANNEL_CAPACITY"
	ProcessStatsType        Type = "PROCESS_STATS"
	DeliveryFailedType      Type = "DELIVERY_FAILED"
)

// Event wraps technical payloads travelling on the telemetry channel.
type Event struct {
	Type      Type
	CreatedAt time.Time
	Payload   any
}

// Names of the realtime events pushed to clients.
const (
	ReceiveMessageName = "receiveMessage"
	TypingName         = "typing"
)

// DomainEvent is routed to the room of its chat.
// Origin is the connection that caused it and never receives it back.
type DomainEvent interface {
	Name() string
	ChatID() domain.ChatID
	Origin() domain.ConnectionID
}

// MessagePersisted carries the canonical stored form of a message.
type MessagePersisted struct {
	Message    domain.Message
	OriginConn domain.ConnectionID
}

func (m MessagePersisted) Name() string                { return ReceiveMessageName }
func (m MessagePersisted) ChatID() domain.ChatID       { return m.Message.ChatID }
func (m MessagePersisted) Origin() domain.ConnectionID { return m.OriginConn }

// Typing is an ephemeral presence indicator, never persisted.
type Typing struct {
	Chat       domain.ChatID
	SenderID   string
	OriginConn domain.ConnectionID
	At         time.Time
}

func (t Typing) Name() string                { return TypingName }
func (t Typing) ChatID() domain.ChatID       { return t.Chat }
func (t Typing) Origin() domain.ConnectionID { return t.OriginConn }

type WorkerRestartedAfterPanic struct {
	WorkerName string
}

type ChannelCapacity struct {
	ChannelName string
	Capacity    int
	Length      int
}

type ProcessStats struct {
	PID        int32
	CPUPercent float64
	RSS        uint64
	Threads    int32
}

type DeliveryFailed struct {
	Chat  domain.ChatID
	Error string
}
