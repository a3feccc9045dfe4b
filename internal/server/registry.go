package server

import (
	"log"
	"sync"

	"github.com/pbassett/roomrelay/internal/types"
)

// Registry tracks every live connection and the room it currently
// occupies. The forward index (connection -> room) and reverse index
// (room -> connections) are always mutated together under one lock, so
// no two rooms ever share a connection.
type Registry struct {
	log     *log.Logger
	mu      sync.Mutex
	conns   map[string]*Client
	roomOf  map[string]string
	members map[string]map[string]*Client
}

func NewRegistry(logger *log.Logger) *Registry {
	return &Registry{
		log:     logger,
		conns:   make(map[string]*Client),
		roomOf:  make(map[string]string),
		members: make(map[string]map[string]*Client),
	}
}

// Register adds a connection with no room binding.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.id] = c
}

// Bind atomically moves a connection into a room, removing it from its
// previous room first. It returns the previous room id (empty if none)
// so the caller can emit a "left" notice, and reports false when the
// connection was never registered, which makes a disconnect race a
// no-op instead of an error.
func (r *Registry) Bind(c *Client, roomId string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c.id]; !ok {
		return "", false
	}

	prev := r.roomOf[c.id]
	if prev != "" {
		r.removeFromRoom(c, prev)
	}

	r.roomOf[c.id] = roomId
	if r.members[roomId] == nil {
		r.members[roomId] = make(map[string]*Client)
	}
	r.members[roomId][c.id] = c

	return prev, true
}

// Unbind removes a connection's room binding. Idempotent; unknown
// connections are a no-op so disconnect races never surface as errors.
func (r *Registry) Unbind(c *Client) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomId, ok := r.roomOf[c.id]
	if !ok {
		return "", false
	}

	delete(r.roomOf, c.id)
	r.removeFromRoom(c, roomId)
	return roomId, true
}

// Remove erases all trace of a connection. Idempotent.
func (r *Registry) Remove(c *Client) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, c.id)

	roomId, ok := r.roomOf[c.id]
	if !ok {
		return "", false
	}

	delete(r.roomOf, c.id)
	r.removeFromRoom(c, roomId)
	return roomId, true
}

// removeFromRoom must be called with the lock held.
func (r *Registry) removeFromRoom(c *Client, roomId string) {
	if members, ok := r.members[roomId]; ok {
		delete(members, c.id)
		if len(members) == 0 {
			delete(r.members, roomId)
		}
	}
}

func (r *Registry) RoomOf(c *Client) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomId, ok := r.roomOf[c.id]
	return roomId, ok
}

// ClientsInRoom snapshots the connections bound to a room, so callers
// can iterate without holding the lock.
func (r *Registry) ClientsInRoom(roomId string) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	clients := make([]*Client, 0, len(r.members[roomId]))
	for _, c := range r.members[roomId] {
		clients = append(clients, c)
	}
	return clients
}

// Clients snapshots every live connection.
func (r *Registry) Clients() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	clients := make([]*Client, 0, len(r.conns))
	for _, c := range r.conns {
		clients = append(clients, c)
	}
	return clients
}

// UsersOf returns the users currently connected to a room.
func (r *Registry) UsersOf(roomId string) []types.User {
	r.mu.Lock()
	defer r.mu.Unlock()

	var users []types.User
	seen := make(map[int]struct{})
	for _, c := range r.members[roomId] {
		if _, ok := seen[c.user.Id]; ok {
			continue
		}
		seen[c.user.Id] = struct{}{}
		users = append(users, c.user)
	}
	return users
}
