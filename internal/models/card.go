// internal/models/card.go
package models

import "fmt"

// CardID identifies a card within the full multi-deck pool. Because a match may
// use more than one deck, (rank, suit) is not unique; identity is always by ID.
type CardID string

// Suits and ranks in deck order. "T" is the ten, following the single-character
// rank convention used throughout the wire format.
var (
	Suits = []string{"H", "D", "C", "S"}
	Ranks = []string{"A", "2", "3", "4", "5", "6", "7", "8", "9", "T", "J", "Q", "K"}
)

// RankValues maps a rank to its ordinal value used for run ordering (A=1 .. K=13).
var RankValues = map[string]int{
	"A": 1, "2": 2, "3": 3, "4": 4, "5": 5, "6": 6, "7": 7, "8": 8,
	"9": 9, "T": 10, "J": 11, "Q": 12, "K": 13,
}

// Card is an immutable playing card. DeckIndex records which physical deck the
// card came from so duplicates across decks stay distinguishable.
type Card struct {
	ID        CardID `json:"id"`
	Rank      string `json:"rank"`
	Suit      string `json:"suit"`
	Value     int    `json:"value"`
	DeckIndex int    `json:"deckIndex"`
}

// NewCard builds a card with its deterministic pool-unique ID.
func NewCard(deckIndex int, rank, suit string) *Card {
	return &Card{
		ID:        CardID(fmt.Sprintf("%d:%s%s", deckIndex, suit, rank)),
		Rank:      rank,
		Suit:      suit,
		Value:     RankValues[rank],
		DeckIndex: deckIndex,
	}
}

// Points returns the card's deadwood score: aces one, face cards ten,
// everything else face value.
func (c *Card) Points() int {
	switch c.Rank {
	case "A":
		return 1
	case "J", "Q", "K":
		return 10
	default:
		return c.Value
	}
}

func (c *Card) String() string {
	return c.Rank + c.Suit
}
