// internal/room/room.go
package room

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rummyhouse/rummy/internal/models"
)

// Room is the pre-match gathering place: a join code, a roster, ready states
// and the settings the match will be created with. Rooms live in memory only.
//
// Mu guards all mutable room state. Methods assume the caller holds the lock;
// the only exception is the countdown timer callback, which fires on its own
// goroutine and must lock for itself.
type Room struct {
	Mu sync.Mutex `json:"-"`

	ID         uuid.UUID `json:"id"`
	Code       string    `json:"code"`
	HostUserID uuid.UUID `json:"hostUserID"`

	Users       map[uuid.UUID]bool        `json:"-"`
	Connections map[uuid.UUID]*Connection `json:"-"`
	ReadyStates map[uuid.UUID]bool        `json:"-"`

	// JoinOrder records the seating order. The match roster is built from it,
	// so turn order is join order, not map iteration order.
	JoinOrder []uuid.UUID `json:"-"`

	// MatchCreated tracks whether a match instance has been initiated.
	MatchCreated bool
	MatchID      uuid.UUID
	InMatch      bool

	CountdownTimer *time.Timer `json:"-"`

	Settings models.RoomSettings `json:"settings"`
}

// Connection wraps a single user's active WebSocket connection for the room.
type Connection struct {
	UserID  uuid.UUID
	Cancel  context.CancelFunc
	OutChan chan map[string]interface{}
	IsHost  bool
}

// Write pushes a message to the user's message channel.
func (conn *Connection) Write(msg map[string]interface{}) {
	conn.OutChan <- msg
}

// WriteError pushes an error message to the user's message channel.
func (conn *Connection) WriteError(msg string) {
	conn.OutChan <- map[string]interface{}{
		"type":    "error",
		"message": msg,
	}
}

// codeAlphabet avoids 0/O and 1/I so codes survive being read aloud.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewCode returns a 6-character join code.
func NewCode() string {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	b := make([]byte, 6)
	for i := range b {
		b[i] = codeAlphabet[r.Intn(len(codeAlphabet))]
	}
	return string(b)
}

// New creates a room under the specified host user with default settings.
func New(hostID uuid.UUID) *Room {
	roomID, _ := uuid.NewV7()
	return &Room{
		ID:          roomID,
		Code:        NewCode(),
		HostUserID:  hostID,
		Users:       make(map[uuid.UUID]bool),
		Connections: make(map[uuid.UUID]*Connection),
		ReadyStates: make(map[uuid.UUID]bool),
		Settings:    models.DefaultRoomSettings(),
	}
}

// AddConnection registers a user's connection to the room and resets their
// ready status. This is effectively a "join room" operation.
func (r *Room) AddConnection(userID uuid.UUID, conn *Connection) error {
	if r.InMatch {
		return fmt.Errorf("room %s is already playing", r.Code)
	}
	if !r.Users[userID] {
		r.JoinOrder = append(r.JoinOrder, userID)
	}
	r.Users[userID] = true
	r.Connections[userID] = conn
	r.ReadyStates[userID] = false
	return nil
}

// RemoveUser removes a user from the roster and ready map, used when a room
// connection drops.
func (r *Room) RemoveUser(userID uuid.UUID) {
	delete(r.Users, userID)
	delete(r.Connections, userID)
	delete(r.ReadyStates, userID)
	for i, id := range r.JoinOrder {
		if id == userID {
			r.JoinOrder = append(r.JoinOrder[:i], r.JoinOrder[i+1:]...)
			break
		}
	}
	r.CancelCountdown()
}

// StartCountdown initiates a start countdown unless one is already running
// or a match is in progress. After it finishes, callback is invoked with the
// room id.
func (r *Room) StartCountdown(seconds int, callback func(uuid.UUID)) bool {
	if r.InMatch || r.CountdownTimer != nil {
		return false
	}
	r.BroadcastAll(map[string]interface{}{
		"type":    "room_countdown_start",
		"seconds": seconds,
	})
	r.CountdownTimer = time.AfterFunc(time.Duration(seconds)*time.Second, func() {
		callback(r.ID)
	})
	return true
}

// CancelCountdown stops an active countdown if present.
func (r *Room) CancelCountdown() {
	if r.CountdownTimer != nil {
		r.CountdownTimer.Stop()
		r.CountdownTimer = nil
	}
}

// MarkUserReady sets a user's ready state if they're connected.
func (r *Room) MarkUserReady(userID uuid.UUID) {
	if _, ok := r.Connections[userID]; !ok {
		return
	}
	r.ReadyStates[userID] = true
	r.BroadcastReadyState(userID, true)
}

// MarkUserUnready unsets a user's ready state, then cancels any countdown.
func (r *Room) MarkUserUnready(userID uuid.UUID) {
	if _, ok := r.Connections[userID]; !ok {
		return
	}
	r.ReadyStates[userID] = false
	r.BroadcastReadyState(userID, false)
	r.CancelCountdown()
}

// AreAllReady returns true if every connected participant is ready.
func (r *Room) AreAllReady() bool {
	if len(r.ReadyStates) == 0 {
		return false
	}
	for _, ready := range r.ReadyStates {
		if !ready {
			return false
		}
	}
	return true
}

// BroadcastAll sends a JSON object to all connected users' OutChan.
func (r *Room) BroadcastAll(msg map[string]interface{}) {
	for _, conn := range r.Connections {
		conn.OutChan <- msg
	}
}

// BroadcastJoin sends a "room_update" message indicating a user joined.
func (r *Room) BroadcastJoin(userID uuid.UUID) {
	r.BroadcastAll(map[string]interface{}{
		"type":      "room_update",
		"user_join": userID.String(),
		"ready_map": r.ReadyStates,
	})
}

// BroadcastReadyState notes that a particular user changed their ready state.
func (r *Room) BroadcastReadyState(userID uuid.UUID, ready bool) {
	r.BroadcastAll(map[string]interface{}{
		"type":     "ready_update",
		"user_id":  userID.String(),
		"is_ready": ready,
	})
}

// BroadcastLeave sends a "room_update" message indicating a user left.
func (r *Room) BroadcastLeave(userID uuid.UUID) {
	r.BroadcastAll(map[string]interface{}{
		"type":      "room_update",
		"user_left": userID.String(),
		"ready_map": r.ReadyStates,
	})
}

// BroadcastChat relays a chat message from a given user.
func (r *Room) BroadcastChat(userID uuid.UUID, msg string) {
	r.BroadcastAll(map[string]interface{}{
		"type":    "chat",
		"user_id": userID.String(),
		"msg":     msg,
		"ts":      time.Now().Unix(),
	})
}
