package ws

import (
	"charity-chat/auth"
	"charity-chat/contract"
	"charity-chat/domain"
	"charity-chat/domain/event"
	"charity-chat/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection is one authenticated socket. It is the EventSink registered in
// every room it joins. Frames are written by writePump only.
type Connection struct {
	id           domain.ConnectionID
	identity     auth.Identity
	conn         *websocket.Conn
	orchestrator contract.IOrchestrator
	options      Options
	log          *slog.Logger
	send         chan []byte
	ctx          context.Context
	cancel       context.CancelFunc
	closeOnce    sync.Once
}

func newConnection(id domain.ConnectionID, identity auth.Identity, conn *websocket.Conn,
	orchestrator contract.IOrchestrator, options Options, log *slog.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		id:           id,
		identity:     identity,
		conn:         conn,
		orchestrator: orchestrator,
		options:      options,
		log:          log.With("conn", id, "identity", identity.ID),
		send:         make(chan []byte, options.BufferSize),
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (c *Connection) ID() domain.ConnectionID {
	return c.id
}

// Consume is called by the fan-out. A full outbound buffer closes the
// connection: the client reconnects and reloads history.
func (c *Connection) Consume(ctx context.Context, evt event.DomainEvent) error {
	env, err := toEnvelope(evt)
	if err != nil {
		return err
	}
	return c.push(ctx, env)
}

func (c *Connection) push(ctx context.Context, env Envelope) error {
	frame, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case <-c.ctx.Done():
		return fmt.Errorf("%w: connection closed", errors.ErrNetworkFailure)
	case <-ctx.Done():
		return ctx.Err()
	case c.send <- frame:
		return nil
	default:
		c.log.Warn("Outbound buffer full, closing connection", "size", cap(c.send))
		c.Close()
		return errors.ErrSlowConsumer
	}
}

// Close stops both pumps. Safe to call several times.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// readPump reads client frames until the socket fails, then drops every
// room membership of the connection.
func (c *Connection) readPump() {
	defer func() {
		c.orchestrator.Disconnect(c.id)
		c.Close()
	}()

	c.conn.SetReadLimit(c.options.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.options.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.options.PongWait))
	})

	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("Socket read failed", "error", err)
			}
			return
		}
		data, err := c.dispatch(env)
		if env.Ack == nil {
			if err != nil {
				c.log.Debug("Frame rejected", "event", env.Event, "error", err)
			}
			continue
		}
		reply, marshalErr := ackEnvelope(*env.Ack, data, err)
		if marshalErr != nil {
			c.log.Error("Ack encoding failed", "event", env.Event, "error", marshalErr)
			continue
		}
		if err := c.push(c.ctx, reply); err != nil {
			return
		}
	}
}

func (c *Connection) dispatch(env Envelope) (any, error) {
	switch env.Event {
	case JoinRoomEvent:
		var p RoomPayload
		if err := decode(env.Data, &p); err != nil {
			return nil, err
		}
		if err := c.orchestrator.JoinRoom(c.identity.ID, c.id, p.ChatID, c); err != nil {
			return nil, err
		}
		return p, nil
	case LeaveRoomEvent:
		var p RoomPayload
		if err := decode(env.Data, &p); err != nil {
			return nil, err
		}
		c.orchestrator.LeaveRoom(c.id, p.ChatID)
		return p, nil
	case SendMessageEvent:
		var p SendMessagePayload
		if err := decode(env.Data, &p); err != nil {
			return nil, err
		}
		if p.SenderID != "" && p.SenderID != c.identity.ID {
			return nil, errors.ErrNotParticipant
		}
		return c.orchestrator.PostMessage(c.ctx, domain.PostMessageCommand{
			ChatID:    p.ChatID,
			SenderID:  c.identity.ID,
			Content:   p.Content,
			ClientKey: p.ClientKey,
			Origin:    c.id,
		})
	case event.TypingName:
		var p RoomPayload
		if err := decode(env.Data, &p); err != nil {
			return nil, err
		}
		return nil, c.orchestrator.Typing(c.ctx, event.Typing{
			Chat:       p.ChatID,
			SenderID:   c.identity.ID,
			OriginConn: c.id,
			At:         time.Now().UTC(),
		})
	default:
		return nil, fmt.Errorf("%w: unknown event %q", errors.ErrValidation, env.Event)
	}
}

// writePump owns every write to the socket, pings included.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.options.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.options.WriteWait))
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.options.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("Socket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.options.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing data", errors.ErrValidation)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	return nil
}
