package workers

import (
	"charity-chat/contract"
	"charity-chat/domain/event"
	"charity-chat/observability"
	"context"
	"log/slog"
	"time"
)

// EventFanout delivers domain events to the connections of their room and
// to the permanent sinks (search index).
//
// A single EventFanout drains the channel, so each connection receives the
// events of a room in the order they were enqueued. The connection that
// caused an event never receives it back. Delivery is best effort: a sink
// that fails or exceeds the sink timeout is reported on the telemetry
// channel and skipped, there is no retry.
type EventFanout struct {
	log            *slog.Logger
	permanentSinks []contract.EventSink
	registry       contract.IRegistry
	domainEvents   chan event.DomainEvent
	telemetryChan  chan event.Event
	metrics        *observability.Metrics
	sinkTimeout    time.Duration
}

func NewEventFanout(log *slog.Logger,
	permanentSinks []contract.EventSink,
	registry contract.IRegistry,
	domainEvents chan event.DomainEvent,
	telemetryChan chan event.Event,
	metrics *observability.Metrics,
	sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{
		log:            log,
		permanentSinks: permanentSinks,
		registry:       registry,
		domainEvents:   domainEvents,
		telemetryChan:  telemetryChan,
		metrics:        metrics,
		sinkTimeout:    sinkTimeout,
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case evt, ok := <-w.domainEvents:
			if !ok {
				w.log.Debug("Channel is closed")
				return nil
			}
			w.Fanout(ctx, evt)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping domainEvent send")
			return nil
		}
	}
}

// Fanout One sink for each event
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	for _, sink := range w.permanentSinks {
		if err := w.consume(ctx, sink, evt); err != nil {
			w.log.Warn("Permanent sink failed", "event", evt.Name(), "chat_id", evt.ChatID(), "error", err)
		}
	}

	for conn, sink := range w.registry.SinksForChat(evt.ChatID()) {
		if evt.Origin() != "" && conn == evt.Origin() {
			continue
		}
		if err := w.consume(ctx, sink, evt); err != nil {
			w.reportFailure(evt, err)
			continue
		}
		w.metrics.EventsDelivered.WithLabelValues(evt.Name()).Inc()
	}
}

func (w *EventFanout) consume(ctx context.Context, sink contract.EventSink, evt event.DomainEvent) error {
	sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
	defer cancel()
	return sink.Consume(sinkCtx, evt)
}

func (w *EventFanout) reportFailure(evt event.DomainEvent, err error) {
	w.log.Debug("Delivery failed", "event", evt.Name(), "chat_id", evt.ChatID(), "error", err)
	select {
	case w.telemetryChan <- event.Event{
		Type:      event.DeliveryFailedType,
		CreatedAt: time.Now().UTC(),
		Payload:   event.DeliveryFailed{Chat: evt.ChatID(), Error: err.Error()},
	}:
	default:
		w.log.Debug("Observability telemetry event lost")
	}
}
