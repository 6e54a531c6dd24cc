//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"charity-chat/domain"
	"charity-chat/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives the domain events of the fan-out.
// Consume must honour ctx and never block past its deadline.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry tracks which connection listens to which chat room.
// A connection may be in several rooms at once.
type IRegistry interface {
	Join(conn domain.ConnectionID, chatID domain.ChatID, sink EventSink)
	Leave(conn domain.ConnectionID, chatID domain.ChatID)
	Drop(conn domain.ConnectionID)
	IsMember(conn domain.ConnectionID, chatID domain.ChatID) bool
	SinksForChat(chatID domain.ChatID) map[domain.ConnectionID]EventSink
	Memberships() int
}

// IOrchestrator is the realtime relay as seen by the transports.
type IOrchestrator interface {
	JoinRoom(identityID string, conn domain.ConnectionID, chatID domain.ChatID, sink EventSink) error
	LeaveRoom(conn domain.ConnectionID, chatID domain.ChatID)
	Disconnect(conn domain.ConnectionID)
	PostMessage(ctx context.Context, cmd domain.PostMessageCommand) (domain.Message, error)
	Typing(ctx context.Context, evt event.Typing) error
	Start(ctx context.Context) error
	Stop()
}
