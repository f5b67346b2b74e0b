// internal/game/reconnect.go
package game

import (
	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/rummyhouse/rummy/internal/models"
)

// HandleDisconnect flips the player's connection flag. Nothing else changes:
// the hand stays put and the player's turn still blocks the match. Whether to
// pause or substitute bot play is transport policy, not engine policy.
// Assumes lock is held.
func (m *Match) HandleDisconnect(playerID uuid.UUID) {
	p := m.playerByID(playerID)
	if p == nil || !p.Connected {
		return
	}
	p.Connected = false
	p.Conn = nil
	p.SessionID = uuid.Nil

	m.logAction(playerID, "player_disconnect", nil)
	m.fireEvent(Event{
		Type:    EventPlayerConn,
		User:    &EventUser{ID: playerID},
		Payload: map[string]interface{}{"connected": false},
	})
}

// HandleReconnect rebinds a transport session to a player's stable game
// identity and returns their current view.
//
// Resolution order:
//  1. the persistent player id, when the caller still has it;
//  2. the previous session id, for callers that only kept their transport
//     identity;
//  3. as a last resort, the single currently disconnected human — this
//     fallback is refused outright when zero or more than one human is
//     disconnected, so it never guesses between candidates.
//
// Assumes lock is held.
func (m *Match) HandleReconnect(persistentID, newSessionID, oldSessionID uuid.UUID, conn *websocket.Conn) (*View, error) {
	p := m.playerByID(persistentID)
	if p == nil && oldSessionID != uuid.Nil {
		for _, pl := range m.Players {
			if !pl.IsBot && pl.SessionID == oldSessionID {
				p = pl
				break
			}
		}
	}
	if p == nil {
		p = m.soleDisconnectedHuman()
	}
	if p == nil || p.IsBot {
		return nil, ErrPlayerNotFound
	}

	p.Connected = true
	p.Conn = conn
	p.SessionID = newSessionID

	m.logAction(p.ID, "player_reconnect", nil)
	m.fireEvent(Event{
		Type:    EventPlayerConn,
		User:    &EventUser{ID: p.ID},
		Payload: map[string]interface{}{"connected": true},
	})
	m.sendSyncState(p.ID)

	view := m.View(p.ID)
	return &view, nil
}

// soleDisconnectedHuman returns the one disconnected non-bot player, or nil
// when that description is ambiguous or empty.
// Assumes lock is held.
func (m *Match) soleDisconnectedHuman() *models.Player {
	var found *models.Player
	for _, p := range m.Players {
		if p.IsBot || p.Connected {
			continue
		}
		if found != nil {
			return nil
		}
		found = p
	}
	return found
}
