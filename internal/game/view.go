// internal/game/view.go
package game

import (
	"github.com/google/uuid"

	"github.com/rummyhouse/rummy/internal/cache"
	"github.com/rummyhouse/rummy/internal/meld"
	"github.com/rummyhouse/rummy/internal/models"
)

// ViewCard is a fully visible card inside a player view. Hidden cards are
// never included; hands of other players appear only as counts.
type ViewCard struct {
	ID    models.CardID `json:"id"`
	Rank  string        `json:"rank"`
	Suit  string        `json:"suit"`
	Value int           `json:"value"`
}

// ViewMeld mirrors a table meld for a client.
type ViewMeld struct {
	ID           uuid.UUID  `json:"id"`
	Cards        []ViewCard `json:"cards"`
	LastPlayedBy uuid.UUID  `json:"lastPlayedBy"`
}

// ViewPlayer represents one seat from the perspective of the requesting
// player. Hand is populated only for the requester themselves.
type ViewPlayer struct {
	PlayerID      uuid.UUID  `json:"playerId"`
	Name          string     `json:"name"`
	HandSize      int        `json:"handSize"`
	Connected     bool       `json:"connected"`
	IsBot         bool       `json:"isBot"`
	IsCurrentTurn bool       `json:"isCurrentTurn"`
	Hand          []ViewCard `json:"hand,omitempty"`
}

// View is the obfuscated match snapshot sent to one player: everything they
// are allowed to know and nothing more.
type View struct {
	MatchID         uuid.UUID     `json:"matchId"`
	Code            string        `json:"code"`
	Phase           Phase         `json:"phase"`
	CurrentPlayerID uuid.UUID     `json:"currentPlayerId"`
	StockSize       int           `json:"stockSize"`
	DiscardSize     int           `json:"discardSize"`
	DiscardTop      *ViewCard     `json:"discardTop,omitempty"`
	Table           []ViewMeld    `json:"table"`
	Players         []ViewPlayer  `json:"players"`
	Winner          *WinnerRecord `json:"winner,omitempty"`
}

func viewCard(c *models.Card) ViewCard {
	return ViewCard{ID: c.ID, Rank: c.Rank, Suit: c.Suit, Value: c.Value}
}

func viewMeld(m *meld.Meld) ViewMeld {
	vm := ViewMeld{ID: m.ID, LastPlayedBy: m.LastPlayedBy, Cards: make([]ViewCard, len(m.Cards))}
	for i, c := range m.Cards {
		vm.Cards[i] = viewCard(c)
	}
	return vm
}

// View generates the snapshot of the match for the requesting player.
// Assumes lock is held.
func (m *Match) View(forPlayer uuid.UUID) View {
	v := View{
		MatchID:         m.ID,
		Code:            m.Code,
		Phase:           m.Phase,
		CurrentPlayerID: m.CurrentPlayer().ID,
		StockSize:       len(m.Stock),
		DiscardSize:     len(m.DiscardPile),
		Table:           make([]ViewMeld, len(m.Table)),
		Winner:          m.Winner,
	}
	if len(m.DiscardPile) > 0 {
		top := viewCard(m.DiscardPile[len(m.DiscardPile)-1])
		v.DiscardTop = &top
	}
	for i, tm := range m.Table {
		v.Table[i] = viewMeld(tm)
	}
	for i, p := range m.Players {
		vp := ViewPlayer{
			PlayerID:      p.ID,
			Name:          p.Name,
			HandSize:      len(p.Hand),
			Connected:     p.Connected,
			IsBot:         p.IsBot,
			IsCurrentTurn: i == m.CurrentTurn,
		}
		if p.ID == forPlayer {
			vp.Hand = make([]ViewCard, len(p.Hand))
			for j, c := range p.Hand {
				vp.Hand[j] = viewCard(c)
			}
		}
		v.Players = append(v.Players, vp)
	}
	return v
}

// FinalSnapshot captures a finished match for long-term storage: every hand,
// the table layout and the winner record.
// Assumes lock is held.
func (m *Match) FinalSnapshot() map[string]interface{} {
	hands := make(map[string]interface{}, len(m.Players))
	for _, p := range m.Players {
		ids := make([]models.CardID, len(p.Hand))
		for i, c := range p.Hand {
			ids[i] = c.ID
		}
		hands[p.ID.String()] = cache.CardIDs(ids)
	}
	table := make([][]string, len(m.Table))
	for i, tm := range m.Table {
		ids := make([]models.CardID, len(tm.Cards))
		for j, c := range tm.Cards {
			ids[j] = c.ID
		}
		table[i] = cache.CardIDs(ids)
	}
	return map[string]interface{}{
		"hands":  hands,
		"table":  table,
		"winner": m.Winner,
	}
}

// sendSyncState pushes the player's current view over their connection.
// Assumes lock is held.
func (m *Match) sendSyncState(playerID uuid.UUID) {
	state := m.View(playerID)
	m.fireEventToPlayer(playerID, Event{
		Type:  EventPrivateSync,
		State: &state,
	})
}

// broadcastSyncStateToAll resends each connected human their own view.
// Assumes lock is held.
func (m *Match) broadcastSyncStateToAll() {
	for _, p := range m.Players {
		if p.Connected && !p.IsBot {
			m.sendSyncState(p.ID)
		}
	}
}
