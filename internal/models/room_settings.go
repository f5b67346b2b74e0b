// internal/models/room_settings.go
package models

import "fmt"

// RoomSettings captures the game-time configuration a room hands to the engine
// when it transitions to playing.
type RoomSettings struct {
	// DeckCount is the number of 52-card decks shuffled into the pool.
	DeckCount int `json:"deckCount"`

	// CardsPerPlayer is the initial deal size.
	CardsPerPlayer int `json:"cardsPerPlayer"`

	// StartingPlayerIndex selects who draws first, in roster order.
	StartingPlayerIndex int `json:"startingPlayerIndex"`

	// BotFill pads the roster with bots up to this seat count (0 => no fill).
	BotFill int `json:"botFill"`

	// AutoStart starts the countdown once every human is ready.
	AutoStart bool `json:"autoStart"`
}

// DefaultRoomSettings are applied to every new room.
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		DeckCount:      1,
		CardsPerPlayer: 10,
		AutoStart:      true,
	}
}

// Update overlays values from a client-supplied map onto the settings.
// Missing keys keep their old values. JSON numbers arrive as float64.
func (s *RoomSettings) Update(newSettings map[string]interface{}) error {
	assignInt := func(field *int, key string, minVal int) error {
		val, exists := newSettings[key]
		if !exists || val == nil {
			return nil
		}
		f, ok := val.(float64)
		if !ok {
			i, ok := val.(int)
			if !ok {
				return fmt.Errorf("invalid type for %s", key)
			}
			*field = i
		} else {
			*field = int(f)
		}
		if *field < minVal {
			return fmt.Errorf("%s must be >= %d", key, minVal)
		}
		return nil
	}

	if err := assignInt(&s.DeckCount, "deckCount", 1); err != nil {
		return err
	}
	if err := assignInt(&s.CardsPerPlayer, "cardsPerPlayer", 1); err != nil {
		return err
	}
	if err := assignInt(&s.StartingPlayerIndex, "startingPlayerIndex", 0); err != nil {
		return err
	}
	if err := assignInt(&s.BotFill, "botFill", 0); err != nil {
		return err
	}
	if val, exists := newSettings["autoStart"]; exists && val != nil {
		b, ok := val.(bool)
		if !ok {
			return fmt.Errorf("invalid type for autoStart")
		}
		s.AutoStart = b
	}
	return nil
}
