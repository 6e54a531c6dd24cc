package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
)

// badgerLogger redirects badger's internal logging to the application's
// slog.Logger. Badger terminates its lines with a newline, which is trimmed.
type badgerLogger struct {
	logger *slog.Logger
}

func newBadgerLogger(log *slog.Logger) badgerLogger {
	return badgerLogger{logger: log.With("component", "badger")}
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(l.format(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(l.format(format, args...))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(l.format(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(l.format(format, args...))
}

func (l badgerLogger) format(format string, args ...interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}

// Options builds the badger options of the chat database.
// Badger logs at the level of the application logger.
func Options(ctx context.Context, path string, log *slog.Logger) badger.Options {
	options := badger.DefaultOptions(path).WithLogger(newBadgerLogger(log))
	if log.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.INFO)
}

// OpenReadOnly opens an existing database for inspection while the server may be running.
func OpenReadOnly(path string) (*badger.DB, error) {
	return badger.Open(badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true))
}

// InspectMapper renders one key of the chat keyspace for the debug inspector.
func InspectMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	switch {
	case strings.HasPrefix(key, clientKeyPrefix):
		row.Type = "CLIENT_KEY"
		row.Detail = string(val)
		return row
	case strings.HasPrefix(key, accountPrefix):
		row.Type = "EMAIL"
		row.Detail = string(val)
		return row
	case strings.HasPrefix(key, pairPrefix):
		row.Type = "PAIR"
		row.Detail = string(val)
		return row
	case strings.HasPrefix(key, memberPrefix):
		row.Type = "MEMBER"
		return row
	}

	rec, err := unmarshalRecord(val)
	if err != nil {
		row.Detail = "Error: unmarshal failed"
		return row
	}
	switch {
	case strings.HasPrefix(key, messagePrefix):
		row.Type = "MESSAGE"
		row.Detail = fmt.Sprintf("%s -> %s: %s", rec.str("sender_id"), rec.str("receiver_id"), rec.str("content"))
	case strings.HasPrefix(key, chatPrefix):
		row.Type = "CHAT"
		chat, err := toChat(rec)
		if err != nil {
			row.Detail = err.Error()
			return row
		}
		row.Detail = fmt.Sprintf("%s <-> %s", chat.Participants[0].Name, chat.Participants[1].Name)
	case strings.HasPrefix(key, identityPrefix):
		row.Type = strings.ToUpper(rec.str("kind"))
		row.Detail = rec.str("email")
	}
	return row
}
