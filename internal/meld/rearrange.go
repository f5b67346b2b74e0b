package meld

import (
	"fmt"

	"github.com/rummyhouse/rummy/internal/models"
)

// Violation is the structured failure produced by ValidateRearrangement. Rule
// identifies which constraint broke; Detail is a human-readable reason passed
// back to the acting player.
type Violation struct {
	Rule   string
	Detail string
}

func (v *Violation) Error() string {
	return v.Detail
}

// Rearrangement rule identifiers, in checking order.
const (
	RuleTableCardMissing = "table_card_missing"
	RuleDuplicateCard    = "duplicate_card"
	RuleCardNotInHand    = "card_not_in_hand"
	RuleShortMeld        = "short_meld"
	RuleInvalidMeld      = "invalid_meld"
)

// ValidateRearrangement decides whether proposed may replace current on the
// table, given the acting player's hand. The rules, checked in order with the
// first violation reported:
//
//  1. every card currently on the table must still appear in proposed — table
//     cards never return to a hand;
//  2. no card may appear twice across the proposed melds;
//  3. every proposed card not already on the table must come from hand;
//  4. no non-empty proposed meld may have fewer than 3 cards (empty melds are
//     treated as removed);
//  5. every remaining proposed meld must be a legal run or set.
//
// On success it returns the ids of the hand cards the proposal consumes.
func ValidateRearrangement(current []*Meld, proposed [][]*models.Card, hand []*models.Card) ([]models.CardID, error) {
	proposedIDs := make(map[models.CardID]bool)
	for _, cards := range proposed {
		for _, c := range cards {
			if proposedIDs[c.ID] {
				return nil, &Violation{
					Rule:   RuleDuplicateCard,
					Detail: fmt.Sprintf("card %s appears more than once in the proposed table", c.ID),
				}
			}
			proposedIDs[c.ID] = true
		}
	}

	tableIDs := make(map[models.CardID]bool)
	for _, m := range current {
		for _, c := range m.Cards {
			tableIDs[c.ID] = true
			if !proposedIDs[c.ID] {
				return nil, &Violation{
					Rule:   RuleTableCardMissing,
					Detail: fmt.Sprintf("card %s is on the table and must stay on the table", c.ID),
				}
			}
		}
	}

	handIDs := make(map[models.CardID]bool, len(hand))
	for _, c := range hand {
		handIDs[c.ID] = true
	}

	var fromHand []models.CardID
	for _, cards := range proposed {
		for _, c := range cards {
			if tableIDs[c.ID] {
				continue
			}
			if !handIDs[c.ID] {
				return nil, &Violation{
					Rule:   RuleCardNotInHand,
					Detail: fmt.Sprintf("card %s is neither on the table nor in your hand", c.ID),
				}
			}
			fromHand = append(fromHand, c.ID)
		}
	}

	for _, cards := range proposed {
		if len(cards) == 0 {
			continue
		}
		if len(cards) < 3 {
			return nil, &Violation{
				Rule:   RuleShortMeld,
				Detail: fmt.Sprintf("a meld needs at least 3 cards, got %d", len(cards)),
			}
		}
		if !IsValidMeld(cards) {
			return nil, &Violation{
				Rule:   RuleInvalidMeld,
				Detail: fmt.Sprintf("cards %v do not form a legal run or set", cardNames(cards)),
			}
		}
	}

	return fromHand, nil
}

func cardNames(cards []*models.Card) []string {
	names := make([]string, len(cards))
	for i, c := range cards {
		names[i] = c.String()
	}
	return names
}
