package client

import (
	"charity-chat/domain"
	"charity-chat/domain/event"
	"charity-chat/errors"
	"charity-chat/infrastructure/ws"
	"charity-chat/projection"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Conversation is the view model of one open chat.
type Conversation struct {
	session  *Session
	chatID   domain.ChatID
	timeline *projection.Timeline

	mu       sync.Mutex
	onChange []func()
	onTyping []func(senderID string)
}

func newConversation(s *Session, chatID domain.ChatID) *Conversation {
	return &Conversation{session: s, chatID: chatID, timeline: projection.NewTimeline(chatID)}
}

func (c *Conversation) ChatID() domain.ChatID { return c.chatID }

// Entries is the timeline in display order, optimistic entries included.
func (c *Conversation) Entries() []projection.Entry {
	return c.timeline.Entries()
}

// OnChange is called after every timeline mutation.
func (c *Conversation) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// OnTyping is called when the other side of the room is typing.
func (c *Conversation) OnTyping(fn func(senderID string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onTyping = append(c.onTyping, fn)
}

// Send appends a pending entry and delivers it over the socket.
// A network failure is retried once with the same client key, so the
// server stores the message at most once.
func (c *Conversation) Send(ctx context.Context, content string) (projection.Entry, error) {
	if strings.TrimSpace(content) == "" {
		return projection.Entry{}, fmt.Errorf("%w: content is empty", errors.ErrValidation)
	}
	msg := domain.Message{
		ChatID:    c.chatID,
		SenderID:  c.session.profile.ID(),
		Content:   content,
		ClientKey: c.session.newKey(),
		CreatedAt: time.Now().UTC(),
	}
	c.timeline.AddPending(msg)
	c.changed()
	return c.deliver(ctx, msg)
}

// Retry sends a failed entry again under its original client key.
func (c *Conversation) Retry(ctx context.Context, clientKey string) (projection.Entry, error) {
	msg, ok := c.timeline.Retry(clientKey)
	if !ok {
		return projection.Entry{}, fmt.Errorf("%w: no failed message %q", errors.ErrNotFound, clientKey)
	}
	c.changed()
	return c.deliver(ctx, msg)
}

// Typing tells the room the owner is typing.
func (c *Conversation) Typing(ctx context.Context) error {
	return c.session.emit(ctx, event.TypingName, ws.RoomPayload{ChatID: c.chatID}, nil)
}

// Close leaves the room. The session has no open conversation afterwards.
func (c *Conversation) Close(ctx context.Context) {
	s := c.session
	s.mu.Lock()
	if s.current == c {
		s.current = nil
	}
	s.mu.Unlock()
	c.leave(ctx)
}

func (c *Conversation) deliver(ctx context.Context, msg domain.Message) (projection.Entry, error) {
	persisted, err := c.emitMessage(ctx, msg)
	if err != nil && isRetryable(err) {
		c.session.log.Debug("Send failed, retrying", "chat_id", c.chatID, "client_key", msg.ClientKey, "error", err)
		persisted, err = c.emitMessage(ctx, msg)
	}
	if err != nil {
		c.timeline.Fail(msg.ClientKey, err)
		c.changed()
		entry, _ := c.timeline.Find(msg.ClientKey)
		return entry, err
	}
	c.timeline.Confirm(persisted)
	c.changed()
	entry, _ := c.timeline.Find(msg.ClientKey)
	return entry, nil
}

func (c *Conversation) emitMessage(ctx context.Context, msg domain.Message) (domain.Message, error) {
	var persisted domain.Message
	err := c.session.emit(ctx, ws.SendMessageEvent, ws.SendMessagePayload{
		ChatID:    msg.ChatID,
		Content:   msg.Content,
		ClientKey: msg.ClientKey,
		SenderID:  msg.SenderID,
	}, &persisted)
	return persisted, err
}

func (c *Conversation) receive(msg domain.Message) {
	c.timeline.Confirm(msg)
	c.changed()
}

func (c *Conversation) typing(senderID string) {
	if senderID == c.session.profile.ID() {
		return
	}
	c.mu.Lock()
	fns := append([]func(string){}, c.onTyping...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn(senderID)
	}
}

// leave is best effort: a lost socket has no room left to leave.
func (c *Conversation) leave(ctx context.Context) {
	s := c.session
	s.mu.Lock()
	socket := s.socket
	s.mu.Unlock()
	if !alive(socket) {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.ackTimeout)
	defer cancel()
	if err := socket.Emit(ctx, ws.LeaveRoomEvent, ws.RoomPayload{ChatID: c.chatID}, nil); err != nil {
		s.log.Debug("Leave room failed", "chat_id", c.chatID, "error", err)
	}
}

func (c *Conversation) changed() {
	c.mu.Lock()
	fns := append([]func(){}, c.onChange...)
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
