package client

import (
	"charity-chat/errors"
	"charity-chat/infrastructure/ws"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Listener receives the payload of a pushed event.
type Listener func(data json.RawMessage)

// Socket is the realtime connection of a session. Emit waits for the
// matching ack frame, pushed events go to the listeners of their name.
type Socket struct {
	log  *slog.Logger
	conn *websocket.Conn

	writeMu sync.Mutex
	nextAck atomic.Int64

	mu        sync.Mutex
	pending   map[int64]chan ws.Envelope
	listeners map[string][]Listener

	done      chan struct{}
	closeOnce sync.Once
}

// SocketURL derives the websocket endpoint from the REST base URL.
func SocketURL(baseURL, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path += "/socket"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

func Dial(ctx context.Context, log *slog.Logger, baseURL, token string) (*Socket, error) {
	target, err := SocketURL(baseURL, token)
	if err != nil {
		return nil, err
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, errors.ErrAuthRequired
		}
		return nil, fmt.Errorf("%w: %v", errors.ErrNetworkFailure, err)
	}
	s := &Socket{
		log:       log,
		conn:      conn,
		pending:   make(map[int64]chan ws.Envelope),
		listeners: make(map[string][]Listener),
		done:      make(chan struct{}),
	}
	go s.readPump()
	return s, nil
}

// On registers fn for every pushed event of that name.
func (s *Socket) On(name string, fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[name] = append(s.listeners[name], fn)
}

// Emit sends one event and blocks until its ack, ctx expiry or socket loss.
// The ack payload is decoded into out when out is not nil.
func (s *Socket) Emit(ctx context.Context, name string, data, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	id := s.nextAck.Add(1)
	reply := make(chan ws.Envelope, 1)

	s.mu.Lock()
	s.pending[id] = reply
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	if err := s.write(ws.Envelope{Event: name, Data: raw, Ack: &id}); err != nil {
		return err
	}

	select {
	case env := <-reply:
		if env.Error != nil {
			return env.Error.Err()
		}
		if out == nil || len(env.Data) == 0 {
			return nil
		}
		return json.Unmarshal(env.Data, out)
	case <-s.done:
		return fmt.Errorf("%w: socket closed", errors.ErrNetworkFailure)
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", errors.ErrNetworkFailure, ctx.Err())
	}
}

// Done is closed once the socket stops reading.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

func (s *Socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *Socket) write(env ws.Envelope) error {
	select {
	case <-s.done:
		return fmt.Errorf("%w: socket closed", errors.ErrNetworkFailure)
	default:
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrNetworkFailure, err)
	}
	return nil
}

func (s *Socket) readPump() {
	defer close(s.done)
	defer func() { _ = s.Close() }()
	for {
		var env ws.Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("Socket read failed", "error", err)
			}
			return
		}
		if env.Event == ws.AckEvent && env.Ack != nil {
			s.mu.Lock()
			reply, ok := s.pending[*env.Ack]
			s.mu.Unlock()
			if ok {
				reply <- env
			}
			continue
		}
		s.mu.Lock()
		listeners := append([]Listener(nil), s.listeners[env.Event]...)
		s.mu.Unlock()
		for _, fn := range listeners {
			fn(env.Data)
		}
	}
}
