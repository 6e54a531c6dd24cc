package runtime

import (
	"charity-chat/contract"
	"charity-chat/domain"
	"charity-chat/domain/event"
	"charity-chat/errors"
	"charity-chat/observability"
	"charity-chat/runtime/workers"
	"charity-chat/services"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Orchestrator is the realtime relay. It persists messages through the
// message service, enqueues the persisted events in order and runs the
// supervised pipeline that delivers them to the room connections.
type Orchestrator struct {
	mu             sync.Mutex
	chatLocks      map[domain.ChatID]*chatLock
	log            *slog.Logger
	supervisor     contract.ISupervisor
	registry       contract.IRegistry
	chatService    services.IChatService
	messageService services.IMessageService
	permanentSinks []contract.EventSink
	domainEvents   chan event.DomainEvent
	telemetryChan  chan event.Event
	metrics        *observability.Metrics
	sinkTimeout    time.Duration
	metricInterval time.Duration
	running        atomic.Bool
}

func NewOrchestrator(log *slog.Logger,
	supervisor contract.ISupervisor,
	registry contract.IRegistry,
	chatService services.IChatService,
	messageService services.IMessageService,
	telemetryChan chan event.Event,
	metrics *observability.Metrics,
	bufferSize int,
	sinkTimeout, metricInterval time.Duration) *Orchestrator {
	return &Orchestrator{
		chatLocks:      make(map[domain.ChatID]*chatLock),
		log:            log,
		supervisor:     supervisor,
		registry:       registry,
		chatService:    chatService,
		messageService: messageService,
		domainEvents:   make(chan event.DomainEvent, bufferSize),
		telemetryChan:  telemetryChan,
		metrics:        metrics,
		sinkTimeout:    sinkTimeout,
		metricInterval: metricInterval,
	}
}

// Add registers sinks that receive every domain event, whatever the room.
// Must be called before Start.
func (o *Orchestrator) Add(sinks ...contract.EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.permanentSinks = append(o.permanentSinks, sinks...)
}

// JoinRoom subscribes the connection to the chat room once the caller is
// known to participate in the chat.
func (o *Orchestrator) JoinRoom(identityID string, conn domain.ConnectionID, chatID domain.ChatID, sink contract.EventSink) error {
	chat, err := o.chatService.GetChat(chatID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(identityID) {
		return errors.ErrNotParticipant
	}
	o.registry.Join(conn, chatID, sink)
	o.refreshMemberships()
	o.log.Debug("Room joined", "conn", conn, "chat_id", chatID)
	return nil
}

func (o *Orchestrator) LeaveRoom(conn domain.ConnectionID, chatID domain.ChatID) {
	o.registry.Leave(conn, chatID)
	o.refreshMemberships()
	o.log.Debug("Room left", "conn", conn, "chat_id", chatID)
}

func (o *Orchestrator) Disconnect(conn domain.ConnectionID) {
	o.registry.Drop(conn)
	o.refreshMemberships()
}

func (o *Orchestrator) refreshMemberships() {
	o.metrics.RoomMemberships.Set(float64(o.registry.Memberships()))
}

// PostMessage appends the message and enqueues its event under the chat
// lock, so the fan-out sees the events of a chat in persisted order.
// A failed append is returned to the caller only and never broadcast.
// A duplicate resend returns the stored message without a second broadcast.
func (o *Orchestrator) PostMessage(ctx context.Context, cmd domain.PostMessageCommand) (domain.Message, error) {
	unlock := o.lockChat(cmd.ChatID)
	defer unlock()

	msg, duplicate, err := o.messageService.AppendMessage(cmd)
	if err != nil {
		return domain.Message{}, err
	}
	if duplicate {
		return msg, nil
	}

	select {
	case o.domainEvents <- event.MessagePersisted{Message: msg, OriginConn: cmd.Origin}:
	case <-ctx.Done():
		o.log.Warn("Message persisted but not broadcast", "chat_id", msg.ChatID, "id", msg.ID, "error", ctx.Err())
	}
	return msg, nil
}

// Typing relays an ephemeral indicator. It is dropped when the pipeline is full.
func (o *Orchestrator) Typing(ctx context.Context, evt event.Typing) error {
	if !o.registry.IsMember(evt.OriginConn, evt.Chat) {
		return errors.ErrNotParticipant
	}
	select {
	case o.domainEvents <- evt:
	case <-ctx.Done():
		return ctx.Err()
	default:
		o.log.Debug("Typing event dropped", "chat_id", evt.Chat)
	}
	return nil
}

// chatLock serializes the posts of one chat. refs counts the holder and
// the waiters; the entry is removed when it drops to zero.
type chatLock struct {
	sync.Mutex
	refs int
}

func (o *Orchestrator) lockChat(chatID domain.ChatID) (unlock func()) {
	o.mu.Lock()
	lock, ok := o.chatLocks[chatID]
	if !ok {
		lock = &chatLock{}
		o.chatLocks[chatID] = lock
	}
	lock.refs++
	o.mu.Unlock()

	lock.Lock()
	return func() {
		lock.Unlock()
		o.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(o.chatLocks, chatID)
		}
		o.mu.Unlock()
	}
}

// Start runs the supervised pipeline and blocks until ctx is done or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	sinks := append([]contract.EventSink(nil), o.permanentSinks...)
	o.mu.Unlock()

	handlers := []event.Handler{
		event.NewWorkerRestartedAfterPanicHandler(o.log, o.metrics),
		event.NewChannelCapacityHandler(o.log, o.metrics, cap(o.domainEvents)/10),
		event.NewProcessStatsHandler(o.log, o.metrics),
		event.NewDeliveryFailedHandler(o.log, o.metrics),
	}

	o.supervisor.Add(
		workers.NewEventFanout(o.log, sinks, o.registry, o.domainEvents, o.telemetryChan, o.metrics, o.sinkTimeout),
		workers.NewTelemetryWorker(o.log, o.telemetryChan, handlers),
		workers.NewChannelCapacityWorker(o.log, []workers.NamedChannel{
			{Name: "domain_events", Channel: o.domainEvents},
			{Name: "telemetry", Channel: o.telemetryChan},
		}, o.telemetryChan, o.metricInterval),
		workers.NewProcessStatsWorker(o.log, o.telemetryChan, o.metricInterval),
	)

	o.log.Info("Starting orchestrator and all supervised workers")
	o.running.Store(true)
	defer o.running.Store(false)
	o.supervisor.Run(ctx)
	return nil
}

// Running reports whether the pipeline is up, for health checks.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
