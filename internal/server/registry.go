package server

import (
	"sync"

	"github.com/Akashh2004-art/Birshibpur-shree-shree-sadharan-horisova-sub000/internal/types"
)

// ConnID identifies one admitted websocket connection.
type ConnID string

// Registry maps room keys to the connections joined to them. A connection
// stays registered, even with no rooms, until RemoveConnection.
type Registry struct {
	mu    sync.RWMutex
	rooms map[types.RoomKey]map[ConnID]struct{}
	conns map[ConnID]map[types.RoomKey]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[types.RoomKey]map[ConnID]struct{}),
		conns: make(map[ConnID]map[types.RoomKey]struct{}),
	}
}

// Join adds id to key. It reports whether the membership is new.
func (r *Registry) Join(id ConnID, key types.RoomKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined, ok := r.conns[id]
	if !ok {
		joined = make(map[types.RoomKey]struct{})
		r.conns[id] = joined
	}
	if _, ok := joined[key]; ok {
		return false
	}
	joined[key] = struct{}{}

	members, ok := r.rooms[key]
	if !ok {
		members = make(map[ConnID]struct{})
		r.rooms[key] = members
	}
	members[id] = struct{}{}
	return true
}

// Leave removes id from key. It reports whether id was a member.
func (r *Registry) Leave(id ConnID, key types.RoomKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined, ok := r.conns[id]
	if !ok {
		return false
	}
	if _, ok := joined[key]; !ok {
		return false
	}
	delete(joined, key)
	r.removeMember(key, id)
	return true
}

// RemoveConnection drops id from every room and returns the rooms it left.
func (r *Registry) RemoveConnection(id ConnID) []types.RoomKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined, ok := r.conns[id]
	if !ok {
		return nil
	}

	left := make([]types.RoomKey, 0, len(joined))
	for key := range joined {
		r.removeMember(key, id)
		left = append(left, key)
	}
	delete(r.conns, id)
	return left
}

func (r *Registry) removeMember(key types.RoomKey, id ConnID) {
	members := r.rooms[key]
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, key)
	}
}

// MembersOf returns a snapshot of the connections joined to key.
func (r *Registry) MembersOf(key types.RoomKey) []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[key]
	ids := make([]ConnID, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) RoomsOf(id ConnID) []types.RoomKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	joined := r.conns[id]
	keys := make([]types.RoomKey, 0, len(joined))
	for key := range joined {
		keys = append(keys, key)
	}
	return keys
}

func (r *Registry) IsMember(id ConnID, key types.RoomKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[key][id]
	return ok
}

// Count returns the number of connections joined to key.
func (r *Registry) Count(key types.RoomKey) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[key])
}

// Connections returns the number of registered connections.
func (r *Registry) Connections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Rooms returns the number of non-empty rooms.
func (r *Registry) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
