// Package meld implements run/set legality and table rearrangement checks.
package meld

import (
	"sort"

	"github.com/google/uuid"

	"github.com/rummyhouse/rummy/internal/models"
)

// Position selects which end of a meld a card is spliced onto.
type Position string

const (
	PositionStart Position = "start"
	PositionEnd   Position = "end"
)

// Meld is an ordered sequence of 3+ cards forming a run or a set, laid out on
// the table. LastPlayedBy is display metadata only; table melds are shared.
type Meld struct {
	ID           uuid.UUID      `json:"id"`
	Cards        []*models.Card `json:"cards"`
	LastPlayedBy uuid.UUID      `json:"lastPlayedBy"`
}

// New creates a table meld. Callers must have checked IsValidMeld first.
func New(cards []*models.Card, playerID uuid.UUID) *Meld {
	return &Meld{
		ID:           uuid.New(),
		Cards:        cards,
		LastPlayedBy: playerID,
	}
}

// IsValidRun reports whether cards form a run: 3+ cards of one suit with
// strictly consecutive values. The ace may sit low (A-2-3) or high (Q-K-A).
// The high reading is only attempted when the cards hold an ace and a king but
// no two, which is what distinguishes Q-K-A from A-2-3; K-A-2 wraps and is
// valid under neither reading.
func IsValidRun(cards []*models.Card) bool {
	if len(cards) < 3 {
		return false
	}
	suit := cards[0].Suit
	hasAce, hasKing, hasTwo := false, false, false
	for _, c := range cards {
		if c.Suit != suit {
			return false
		}
		switch c.Rank {
		case "A":
			hasAce = true
		case "K":
			hasKing = true
		case "2":
			hasTwo = true
		}
	}

	aceHigh := hasAce && hasKing && !hasTwo
	values := make([]int, len(cards))
	for i, c := range cards {
		v := c.Value
		if aceHigh && c.Rank == "A" {
			v = 14
		}
		values[i] = v
	}
	sort.Ints(values)
	for i := 1; i < len(values); i++ {
		if values[i] != values[i-1]+1 {
			return false
		}
	}
	return true
}

// IsValidSet reports whether cards form a set: 3+ cards of one rank. Suits may
// repeat since multi-deck pools contain duplicates.
func IsValidSet(cards []*models.Card) bool {
	if len(cards) < 3 {
		return false
	}
	rank := cards[0].Rank
	for _, c := range cards {
		if c.Rank != rank {
			return false
		}
	}
	return true
}

// IsValidMeld reports whether cards form a legal run or set.
func IsValidMeld(cards []*models.Card) bool {
	return IsValidRun(cards) || IsValidSet(cards)
}

// Contains reports whether the meld holds the card id.
func (m *Meld) Contains(id models.CardID) bool {
	for _, c := range m.Cards {
		if c.ID == id {
			return true
		}
	}
	return false
}

// WithCardAt returns the meld's card sequence with card spliced at the given
// end. The meld itself is not modified.
func (m *Meld) WithCardAt(card *models.Card, pos Position) []*models.Card {
	out := make([]*models.Card, 0, len(m.Cards)+1)
	if pos == PositionStart {
		out = append(out, card)
		out = append(out, m.Cards...)
	} else {
		out = append(out, m.Cards...)
		out = append(out, card)
	}
	return out
}
