// internal/room/room_store.go
package room

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Store manages ephemeral rooms in memory only.
type Store struct {
	mu     sync.Mutex
	rooms  map[uuid.UUID]*Room
	byCode map[string]uuid.UUID
}

// NewStore returns an in-memory store for Rooms.
func NewStore() *Store {
	return &Store{
		rooms:  make(map[uuid.UUID]*Room),
		byCode: make(map[string]uuid.UUID),
	}
}

// AddRoom stores the room in memory, indexed by id and join code.
func (s *Store) AddRoom(r *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[r.ID] = r
	s.byCode[r.Code] = r.ID
}

// DeleteRoom removes the ephemeral room from memory.
func (s *Store) DeleteRoom(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[id]; ok {
		delete(s.byCode, r.Code)
	}
	delete(s.rooms, id)
}

// GetRoom retrieves a room if it exists.
func (s *Store) GetRoom(id uuid.UUID) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	return r, ok
}

// GetRoomByCode retrieves a room by its join code, case-insensitively.
func (s *Store) GetRoomByCode(code string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCode[strings.ToUpper(code)]
	if !ok {
		return nil, false
	}
	r, ok := s.rooms[id]
	return r, ok
}

// ListRooms returns a snapshot slice of the current rooms, so callers never
// iterate the live map outside the store lock.
func (s *Store) ListRooms() []*Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	return out
}
