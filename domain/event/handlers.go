package event

import (
	"charity-chat/errors"
	"charity-chat/observability"
	"fmt"
	"log/slog"
)

// Handler Each kind of event has his own handler
// Based on the Chain of responsibility pattern
type Handler interface {
	Handle(event Event)
}

// WorkerRestartedAfterPanicHandler counts supervisor restarts per worker.
type WorkerRestartedAfterPanicHandler struct {
	log     *slog.Logger
	metrics *observability.Metrics
}

func NewWorkerRestartedAfterPanicHandler(log *slog.Logger, metrics *observability.Metrics) *WorkerRestartedAfterPanicHandler {
	return &WorkerRestartedAfterPanicHandler{log: log, metrics: metrics}
}

func (h *WorkerRestartedAfterPanicHandler) Handle(event Event) {
	if event.Type != RestartedAfterPanicType {
		return
	}
	payload, ok := event.Payload.(WorkerRestartedAfterPanic)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error(), "type", event.Type)
		return
	}
	h.metrics.WorkerRestarts.WithLabelValues(payload.WorkerName).Inc()
	h.log.Warn("Worker restarted after panic", "worker", payload.WorkerName)
}

// ChannelCapacityHandler reports channel usage and warns when few slots are left.
type ChannelCapacityHandler struct {
	log                  *slog.Logger
	metrics              *observability.Metrics
	lowCapacityThreshold int
}

func NewChannelCapacityHandler(log *slog.Logger, metrics *observability.Metrics, lowCapacityThreshold int) *ChannelCapacityHandler {
	return &ChannelCapacityHandler{log: log, metrics: metrics, lowCapacityThreshold: lowCapacityThreshold}
}

func (h *ChannelCapacityHandler) Handle(event Event) {
	if event.Type != ChannelCapacityType {
		return
	}
	payload, ok := event.Payload.(ChannelCapacity)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error(), "type", event.Type)
		return
	}
	if payload.Capacity <= 0 {
		// unbuffered
		return
	}
	h.metrics.ChannelUsage.WithLabelValues(payload.ChannelName).
		Set(float64(payload.Length) / float64(payload.Capacity))
	capacityLeft := payload.Capacity - payload.Length
	if capacityLeft <= h.lowCapacityThreshold {
		h.log.Warn(fmt.Sprintf("Channel %s capacity left : %d", payload.ChannelName, capacityLeft))
	}
}

// ProcessStatsHandler publishes the process self-stats as gauges.
type ProcessStatsHandler struct {
	log     *slog.Logger
	metrics *observability.Metrics
}

func NewProcessStatsHandler(log *slog.Logger, metrics *observability.Metrics) *ProcessStatsHandler {
	return &ProcessStatsHandler{log: log, metrics: metrics}
}

func (h *ProcessStatsHandler) Handle(event Event) {
	if event.Type != ProcessStatsType {
		return
	}
	payload, ok := event.Payload.(ProcessStats)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error(), "type", event.Type)
		return
	}
	h.metrics.ProcessCPU.Set(payload.CPUPercent)
	h.metrics.ProcessRSS.Set(float64(payload.RSS))
	h.log.Debug("Process stats", "pid", payload.PID, "cpu", payload.CPUPercent, "rss", payload.RSS, "threads", payload.Threads)
}

// DeliveryFailedHandler counts realtime deliveries that could not be completed.
type DeliveryFailedHandler struct {
	log     *slog.Logger
	metrics *observability.Metrics
}

func NewDeliveryFailedHandler(log *slog.Logger, metrics *observability.Metrics) *DeliveryFailedHandler {
	return &DeliveryFailedHandler{log: log, metrics: metrics}
}

func (h *DeliveryFailedHandler) Handle(event Event) {
	if event.Type != DeliveryFailedType {
		return
	}
	payload, ok := event.Payload.(DeliveryFailed)
	if !ok {
		h.log.Error(errors.ErrInvalidPayload.Error(), "type", event.Type)
		return
	}
	h.metrics.DeliveryFailures.Inc()
	h.log.Debug("Delivery failed", "chat_id", payload.Chat, "error", payload.Error)
}
