// Package projection builds local timelines from observed events.
// Handles ordering, deduplication, and projections.
// Does not emit events or interact with UI directly.
package projection

import (
	"charity-chat/domain"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type State string

const (
	StatePending State = "pending"
	StateSent    State = "sent"
	StateFailed  State = "failed"
)

// Entry is one line of the conversation as seen by its owner.
type Entry struct {
	Message domain.Message
	State   State
	Error   string
}

// Timeline holds the local view of one chat: persisted messages plus the
// optimistic entries of the owner. A message is matched by id or client key,
// so an ack and its echo never produce two entries.
type Timeline struct {
	mu      sync.Mutex
	chatID  domain.ChatID
	entries []Entry
}

func NewTimeline(chatID domain.ChatID) *Timeline {
	return &Timeline{chatID: chatID}
}

func (t *Timeline) ChatID() domain.ChatID {
	return t.chatID
}

// Load replaces the persisted part with history. Optimistic entries the
// history does not know yet are kept at the end.
func (t *Timeline) Load(history []domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	loaded := make([]Entry, 0, len(history)+len(t.entries))
	known := make(map[string]struct{}, len(history))
	for _, m := range history {
		loaded = append(loaded, Entry{Message: m, State: StateSent})
		if m.ClientKey != "" {
			known[m.ClientKey] = struct{}{}
		}
	}
	for _, e := range t.entries {
		if e.State == StateSent {
			continue
		}
		if _, ok := known[e.Message.ClientKey]; ok {
			continue
		}
		loaded = append(loaded, e)
	}
	t.entries = loaded
}

// AddPending appends an optimistic entry. msg.ClientKey must be set.
func (t *Timeline) AddPending(msg domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.indexOf(msg); i >= 0 {
		t.entries[i] = Entry{Message: msg, State: StatePending}
		return
	}
	t.entries = append(t.entries, Entry{Message: msg, State: StatePending})
}

// Confirm records a persisted message coming from an ack or an echo.
// It reports whether a new entry was added rather than an existing one replaced.
// Confirmed entries move to their persisted position.
func (t *Timeline) Confirm(msg domain.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	added := true
	if i := t.indexOf(msg); i >= 0 {
		t.entries = append(t.entries[:i], t.entries[i+1:]...)
		added = false
	}
	t.insertSent(Entry{Message: msg, State: StateSent})
	return added
}

// Fail marks the optimistic entry of clientKey as failed with reason.
func (t *Timeline) Fail(clientKey string, reason error) {
	t.setState(clientKey, StateFailed, reason.Error())
}

// Retry moves a failed entry back to pending and returns its message.
func (t *Timeline) Retry(clientKey string) (domain.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexOf(domain.Message{ClientKey: clientKey})
	if i < 0 || t.entries[i].State != StateFailed {
		return domain.Message{}, false
	}
	t.entries[i].State = StatePending
	t.entries[i].Error = ""
	return t.entries[i].Message, true
}

func (t *Timeline) Find(clientKey string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexOf(domain.Message{ClientKey: clientKey})
	if i < 0 {
		return Entry{}, false
	}
	return t.entries[i], true
}

// Entries returns a snapshot in display order.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Entry(nil), t.entries...)
}

// insertSent keeps the entries as persisted messages ordered by CreatedAt,
// followed by the optimistic ones in send order.
func (t *Timeline) insertSent(entry Entry) {
	sent := 0
	for sent < len(t.entries) && t.entries[sent].State == StateSent {
		sent++
	}
	i := sort.Search(sent, func(i int) bool {
		return t.entries[i].Message.CreatedAt.After(entry.Message.CreatedAt)
	})
	t.entries = append(t.entries, Entry{})
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = entry
}

func (t *Timeline) setState(clientKey string, state State, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.indexOf(domain.Message{ClientKey: clientKey}); i >= 0 && t.entries[i].State != StateSent {
		t.entries[i].State = state
		t.entries[i].Error = reason
	}
}

func (t *Timeline) indexOf(msg domain.Message) int {
	for i, e := range t.entries {
		if msg.ID != uuid.Nil && e.Message.ID == msg.ID {
			return i
		}
		if msg.ClientKey != "" && e.Message.ClientKey == msg.ClientKey {
			return i
		}
	}
	return -1
}
