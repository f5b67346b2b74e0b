// internal/game/events.go
package game

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rummyhouse/rummy/internal/cache"
	"github.com/rummyhouse/rummy/internal/meld"
	"github.com/rummyhouse/rummy/internal/models"
)

// EventType is an enum-like type for broadcasting match events.
type EventType string

const (
	EventMatchStart      EventType = "match_start"
	EventPlayerTurn      EventType = "player_turn"       // whose turn / which phase
	EventPlayerDraw      EventType = "player_draw"       // public; card hidden for deck draws
	EventPrivateDraw     EventType = "private_draw"      // drawn card details, actor only
	EventStockReshuffle  EventType = "stock_reshuffle"   // discards shuffled back into the stock
	EventMeldPlayed      EventType = "meld_played"       // new meld on the table
	EventMeldExtended    EventType = "meld_extended"     // single card added to a meld
	EventTableRearranged EventType = "table_rearranged"  // full table replaced
	EventPlayerDiscard   EventType = "player_discard"    // card pushed onto the discard pile
	EventPlayerConn      EventType = "player_connection" // connect/disconnect flag change
	EventMatchEnd        EventType = "match_end"
	EventPrivateSync     EventType = "private_sync_state"
)

// EventUser identifies the acting player inside event payloads.
type EventUser struct {
	ID uuid.UUID `json:"id"`
}

// EventCard carries card details inside event payloads. Rank/suit are omitted
// when the card is face down for the audience.
type EventCard struct {
	ID    models.CardID `json:"id"`
	Rank  string        `json:"rank,omitempty"`
	Suit  string        `json:"suit,omitempty"`
	Value int           `json:"value,omitempty"`
}

// Event is the single broadcast envelope for everything the engine reports.
type Event struct {
	Type  EventType  `json:"type"`
	User  *EventUser `json:"user,omitempty"`
	Card  *EventCard `json:"card,omitempty"`
	Meld  *ViewMeld  `json:"meld,omitempty"`
	State *View      `json:"state,omitempty"`

	Payload map[string]interface{} `json:"payload,omitempty"`
}

func eventCard(c *models.Card, reveal bool) *EventCard {
	if c == nil {
		return nil
	}
	if !reveal {
		return &EventCard{ID: c.ID}
	}
	return &EventCard{ID: c.ID, Rank: c.Rank, Suit: c.Suit, Value: c.Value}
}

func eventMeld(m *meld.Meld) *ViewMeld {
	v := viewMeld(m)
	return &v
}

// fireEvent broadcasts an event to all connected players.
// Assumes lock is held.
func (m *Match) fireEvent(ev Event) {
	if m.BroadcastFn != nil {
		m.BroadcastFn(ev)
	}
}

// fireEventToPlayer sends an event only to a specific player.
// Assumes lock is held.
func (m *Match) fireEventToPlayer(playerID uuid.UUID, ev Event) {
	if m.BroadcastToPlayerFn == nil {
		return
	}
	p := m.playerByID(playerID)
	if p != nil && p.Connected && !p.IsBot {
		m.BroadcastToPlayerFn(playerID, ev)
	}
}

// logAction queues the action for the historian. Publishing is asynchronous
// and best effort; match flow never waits on Redis.
// Assumes lock is held.
func (m *Match) logAction(actorID uuid.UUID, actionType string, payload map[string]interface{}) {
	m.actionIndex++
	if payload == nil {
		payload = make(map[string]interface{})
	}
	record := cache.MatchActionRecord{
		MatchID:       m.ID,
		ActionIndex:   m.actionIndex,
		ActorPlayerID: actorID,
		ActionType:    actionType,
		ActionPayload: payload,
		Timestamp:     time.Now().UnixMilli(),
	}
	go func(rec cache.MatchActionRecord) {
		if cache.Rdb == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = cache.PublishMatchAction(ctx, rec)
	}(record)
}
