package service

import (
	"sort"
	"sync"
)

// Registry maps live connections to user rooms. It is process-local and
// starts empty on every boot.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{} // userID -> connIDs
	conns map[string]string              // connID -> userID
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[string]struct{}),
		conns: make(map[string]string),
	}
}

// Join puts connID in userID's room. A connection belongs to one room; joining
// again moves it.
func (r *Registry) Join(connID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.conns[connID]; ok {
		r.removeLocked(connID, prev)
	}

	room, ok := r.rooms[userID]
	if !ok {
		room = make(map[string]struct{})
		r.rooms[userID] = room
	}
	room[connID] = struct{}{}
	r.conns[connID] = userID
}

// Leave removes connID. It returns the room the connection belonged to and
// whether it was the last connection of that user.
func (r *Registry) Leave(connID string) (userID string, last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.conns[connID]
	if !ok {
		return "", false
	}
	return userID, r.removeLocked(connID, userID)
}

func (r *Registry) removeLocked(connID, userID string) bool {
	delete(r.conns, connID)
	room := r.rooms[userID]
	delete(room, connID)
	if len(room) == 0 {
		delete(r.rooms, userID)
		return true
	}
	return false
}

// IsOnline reports whether userID has at least one joined connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[userID]) > 0
}

// RoomMembers returns a snapshot of the connections in userID's room.
func (r *Registry) RoomMembers(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[userID]
	out := make([]string, 0, len(room))
	for connID := range room {
		out = append(out, connID)
	}
	sort.Strings(out)
	return out
}

// OnlineUsers returns the ids of every user with a live connection.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.rooms))
	for userID := range r.rooms {
		out = append(out, userID)
	}
	sort.Strings(out)
	return out
}

// Counts returns the number of online users and joined connections.
func (r *Registry) Counts() (users, conns int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), len(r.conns)
}
