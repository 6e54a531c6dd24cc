package sink

import (
	"charity-chat/domain/event"
	"charity-chat/infrastructure/storage"
	"context"
	"log/slog"
)

// SearchSink feeds the full-text index with every persisted message.
type SearchSink struct {
	index storage.IMessageIndex
	log   *slog.Logger
}

func NewSearchSink(index storage.IMessageIndex, log *slog.Logger) SearchSink {
	return SearchSink{index: index, log: log}
}

func (s SearchSink) Consume(ctx context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessagePersisted:
		if err := ctx.Err(); err != nil {
			return err
		}
		return s.index.Index(evt.Message)
	default:
		// Typing and other ephemeral events are not indexed
		return nil
	}
}
