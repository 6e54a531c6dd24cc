// Package client is the Go SDK of the chat: one Session per logged-in
// account, holding the REST client, the single socket and the open
// conversation.
package client

import (
	"charity-chat/domain"
	"charity-chat/domain/event"
	"charity-chat/errors"
	"charity-chat/infrastructure/ws"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	nanoid "github.com/jaevor/go-nanoid"
)

const (
	DefaultAckTimeout = 5 * time.Second
	clientKeyLength   = 21
)

type Option func(*Session)

func WithAckTimeout(d time.Duration) Option {
	return func(s *Session) { s.ackTimeout = d }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// Session is built once per token. Components share it and never dial
// on their own.
type Session struct {
	log        *slog.Logger
	api        *API
	baseURL    string
	token      string
	profile    domain.Profile
	ackTimeout time.Duration
	newKey     func() string

	dialMu     sync.Mutex
	mu         sync.Mutex
	socket     *Socket
	listeners  map[string][]Listener
	current    *Conversation
	generation uint64
	cancelOpen context.CancelFunc
	closed     bool
}

// NewSession resolves the profile of token and opens the socket.
func NewSession(ctx context.Context, baseURL, token string, opts ...Option) (*Session, error) {
	newKey, err := nanoid.Standard(clientKeyLength)
	if err != nil {
		return nil, err
	}
	s := &Session{
		log:        slog.Default(),
		api:        NewAPI(baseURL, token, nil),
		baseURL:    baseURL,
		token:      token,
		ackTimeout: DefaultAckTimeout,
		newKey:     newKey,
		listeners:  make(map[string][]Listener),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.profile, err = s.api.Profile(ctx); err != nil {
		return nil, err
	}
	if s.socket, err = s.dial(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) API() *API               { return s.api }
func (s *Session) Profile() domain.Profile { return s.profile }

// On registers fn for a pushed event on the current and every later socket.
func (s *Session) On(name string, fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[name] = append(s.listeners[name], fn)
	if s.socket != nil {
		s.socket.On(name, fn)
	}
}

// Open switches the view to chatID. The previous room is left and its
// pending history fetch cancelled before the new history is loaded and
// the new room joined.
func (s *Session) Open(ctx context.Context, chatID domain.ChatID) (*Conversation, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: session closed", errors.ErrNetworkFailure)
	}
	previous := s.current
	s.current = nil
	if s.cancelOpen != nil {
		s.cancelOpen()
	}
	s.generation++
	generation := s.generation
	openCtx, cancel := context.WithCancel(ctx)
	s.cancelOpen = cancel
	s.mu.Unlock()
	defer cancel()

	if previous != nil {
		previous.leave(ctx)
	}

	history, err := s.api.Messages(openCtx, chatID)
	if err != nil {
		if openCtx.Err() != nil && ctx.Err() == nil {
			return nil, context.Canceled
		}
		return nil, err
	}

	conv := newConversation(s, chatID)
	conv.timeline.Load(history)

	s.mu.Lock()
	if generation != s.generation {
		s.mu.Unlock()
		return nil, context.Canceled
	}
	s.current = conv
	s.mu.Unlock()

	if err := s.join(ctx, chatID); err != nil {
		s.mu.Lock()
		if s.current == conv {
			s.current = nil
		}
		s.mu.Unlock()
		return nil, err
	}
	return conv, nil
}

// Connected reports whether the socket is up. A lost socket is dialed
// again on the next emit.
func (s *Session) Connected() bool {
	s.mu.Lock()
	socket := s.socket
	closed := s.closed
	s.mu.Unlock()
	return !closed && alive(socket)
}

// Current returns the open conversation, nil when none is open.
func (s *Session) Current() *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Close leaves the open room and closes the socket.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	current := s.current
	s.current = nil
	if s.cancelOpen != nil {
		s.cancelOpen()
	}
	socket := s.socket
	s.mu.Unlock()

	if current != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.ackTimeout)
		current.leave(ctx)
		cancel()
	}
	return socket.Close()
}

func (s *Session) join(ctx context.Context, chatID domain.ChatID) error {
	socket, err := s.liveSocket(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.ackTimeout)
	defer cancel()
	return socket.Emit(ctx, ws.JoinRoomEvent, ws.RoomPayload{ChatID: chatID}, nil)
}

// emit sends name on a live socket within the ack timeout.
func (s *Session) emit(ctx context.Context, name string, data, out any) error {
	socket, err := s.liveSocket(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.ackTimeout)
	defer cancel()
	return socket.Emit(ctx, name, data, out)
}

// liveSocket returns the socket, dialing again and rejoining the open
// room when the previous one was lost.
func (s *Session) liveSocket(ctx context.Context) (*Socket, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: session closed", errors.ErrNetworkFailure)
	}
	socket := s.socket
	s.mu.Unlock()

	if alive(socket) {
		return socket, nil
	}

	s.dialMu.Lock()
	defer s.dialMu.Unlock()
	s.mu.Lock()
	socket = s.socket
	s.mu.Unlock()
	if alive(socket) {
		return socket, nil
	}
	return s.Reconnect(ctx)
}

func alive(socket *Socket) bool {
	select {
	case <-socket.Done():
		return false
	default:
		return true
	}
}

// Reconnect replaces the socket and joins the open room again.
func (s *Session) Reconnect(ctx context.Context) (*Socket, error) {
	socket, err := s.dial(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	old := s.socket
	s.socket = socket
	current := s.current
	s.mu.Unlock()
	_ = old.Close()

	if current != nil {
		joinCtx, cancel := context.WithTimeout(ctx, s.ackTimeout)
		defer cancel()
		if err := socket.Emit(joinCtx, ws.JoinRoomEvent, ws.RoomPayload{ChatID: current.chatID}, nil); err != nil {
			return nil, err
		}
	}
	s.log.Debug("Socket reconnected", "user_id", s.profile.ID())
	return socket, nil
}

func (s *Session) dial(ctx context.Context) (*Socket, error) {
	socket, err := Dial(ctx, s.log, s.baseURL, s.token)
	if err != nil {
		return nil, err
	}
	socket.On(event.ReceiveMessageName, s.onReceiveMessage)
	socket.On(event.TypingName, s.onTyping)
	s.mu.Lock()
	for name, fns := range s.listeners {
		for _, fn := range fns {
			socket.On(name, fn)
		}
	}
	s.mu.Unlock()
	return socket, nil
}

func (s *Session) onReceiveMessage(data json.RawMessage) {
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		s.log.Debug("Malformed message event", "error", err)
		return
	}
	if conv := s.Current(); conv != nil && conv.chatID == msg.ChatID {
		conv.receive(msg)
	}
}

func (s *Session) onTyping(data json.RawMessage) {
	var p ws.TypingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	if conv := s.Current(); conv != nil && conv.chatID == p.ChatID {
		conv.typing(p.SenderID)
	}
}

func isRetryable(err error) bool {
	return stderrors.Is(err, errors.ErrNetworkFailure)
}
