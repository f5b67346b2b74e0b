package models

import (
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Player is one seat in a match. ID is the stable game identity; SessionID is
// the volatile transport identity and is remapped on reconnect without touching
// anything else. Hand order carries no meaning.
type Player struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Hand      []*Card         `json:"hand"`
	Connected bool            `json:"connected"`
	IsBot     bool            `json:"isBot"`
	SessionID uuid.UUID       `json:"-"`
	Conn      *websocket.Conn `json:"-"`

	User *User `json:"-"`
}

// NewPlayer creates a connected human player seat for the given user.
func NewPlayer(user *User) (*Player, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	return &Player{
		ID:        id,
		Name:      user.Username,
		Hand:      []*Card{},
		Connected: true,
		User:      user,
	}, nil
}

// NewBotPlayer creates a seat driven by the bot engine. Bots count as
// connected for turn purposes.
func NewBotPlayer(name string) *Player {
	return &Player{
		ID:        uuid.New(),
		Name:      name,
		Hand:      []*Card{},
		Connected: true,
		IsBot:     true,
	}
}

// HasCard reports whether the player's hand contains the card id.
func (p *Player) HasCard(id CardID) bool {
	for _, c := range p.Hand {
		if c.ID == id {
			return true
		}
	}
	return false
}

// RemoveCard takes the card out of the hand and returns it, or nil if absent.
func (p *Player) RemoveCard(id CardID) *Card {
	for i, c := range p.Hand {
		if c.ID == id {
			p.Hand = append(p.Hand[:i], p.Hand[i+1:]...)
			return c
		}
	}
	return nil
}
