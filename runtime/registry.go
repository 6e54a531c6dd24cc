package runtime

import (
	"charity-chat/contract"
	"charity-chat/domain"
	"sync"
)

type Set map[domain.ChatID]struct{}

type Registry struct {
	mu sync.RWMutex
	// map connection -> joined rooms
	sessions map[domain.ConnectionID]Set
	// map room -> connections
	roomMembers map[domain.ChatID]map[domain.ConnectionID]contract.EventSink
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:    make(map[domain.ConnectionID]Set),
		roomMembers: make(map[domain.ChatID]map[domain.ConnectionID]contract.EventSink),
	}
}

// Join adds the connection to the room. Joining twice is a no-op
// apart from replacing the sink.
func (r *Registry) Join(conn domain.ConnectionID, chatID domain.ChatID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.roomMembers[chatID]; !ok {
		r.roomMembers[chatID] = make(map[domain.ConnectionID]contract.EventSink)
	}
	r.roomMembers[chatID][conn] = sink

	if _, ok := r.sessions[conn]; !ok {
		r.sessions[conn] = make(Set)
	}
	r.sessions[conn][chatID] = struct{}{}
}

// Leave removes the connection from one room. Leaving a room never joined is fine.
func (r *Registry) Leave(conn domain.ConnectionID, chatID domain.ChatID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leave(conn, chatID)
}

// Drop removes every membership of the connection, on disconnect.
func (r *Registry) Drop(conn domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for chatID := range r.sessions[conn] {
		r.leave(conn, chatID)
	}
	delete(r.sessions, conn)
}

func (r *Registry) leave(conn domain.ConnectionID, chatID domain.ChatID) {
	if members, ok := r.roomMembers[chatID]; ok {
		delete(members, conn)
		// No empty sets are kept around
		if len(members) == 0 {
			delete(r.roomMembers, chatID)
		}
	}
	if rooms, ok := r.sessions[conn]; ok {
		delete(rooms, chatID)
		if len(rooms) == 0 {
			delete(r.sessions, conn)
		}
	}
}

func (r *Registry) IsMember(conn domain.ConnectionID, chatID domain.ChatID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.roomMembers[chatID][conn]
	return ok
}

// SinksForChat returns a snapshot of the room so callers deliver without holding the lock.
func (r *Registry) SinksForChat(chatID domain.ChatID) map[domain.ConnectionID]contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[chatID]
	if !ok {
		return nil
	}
	snapshot := make(map[domain.ConnectionID]contract.EventSink, len(members))
	for conn, sink := range members {
		snapshot[conn] = sink
	}
	return snapshot
}

func (r *Registry) Memberships() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, rooms := range r.sessions {
		count += len(rooms)
	}
	return count
}
