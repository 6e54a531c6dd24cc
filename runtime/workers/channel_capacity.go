package workers

import (
	"charity-chat/domain/event"
	"context"
	"log/slog"
	"reflect"
	"time"
)

// NamedChannel is a buffered channel watched by ChannelCapacityWorker.
type NamedChannel struct {
	Name    string
	Channel any
}

// ChannelCapacityWorker periodically reports length and capacity of the
// pipeline channels. len and cap never block, and a lost sample is fine
// since the next tick brings a fresh one.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	channels       []NamedChannel
	telemetryChan  chan event.Event
	metricInterval time.Duration
}

func NewChannelCapacityWorker(log *slog.Logger,
	channels []NamedChannel, telemetryChan chan event.Event,
	metricInterval time.Duration) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:            log,
		channels:       channels,
		telemetryChan:  telemetryChan,
		metricInterval: metricInterval,
	}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping channel capacity")
			return nil
		case <-ticker.C:
			for _, evt := range w.sample() {
				select {
				case w.telemetryChan <- evt:
				default:
					w.log.Debug("Observability telemetry event lost")
				}
			}
		}
	}
}

func (w *ChannelCapacityWorker) sample() []event.Event {
	events := make([]event.Event, 0, len(w.channels))
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		events = append(events, event.Event{
			Type:      event.ChannelCapacityType,
			CreatedAt: time.Now().UTC(),
			Payload: event.ChannelCapacity{
				ChannelName: nc.Name,
				Capacity:    v.Cap(),
				Length:      v.Len(),
			},
		})
	}
	return events
}
