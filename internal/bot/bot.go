// Package bot drives autonomous players: meld discovery in a hand, discard
// heuristics, and a bounded search for full-table rearrangements.
package bot

import (
	"sort"

	"github.com/rummyhouse/rummy/internal/meld"
	"github.com/rummyhouse/rummy/internal/models"
)

// FindPossibleMelds scans a hand for playable melds: maximal consecutive
// same-suit runs of 3+ and rank sets of 3 or 4. The scan is a cheap greedy
// pass, disjoint within each suit or rank group but not globally optimal.
func FindPossibleMelds(hand []*models.Card) [][]*models.Card {
	var found [][]*models.Card

	bySuit := make(map[string][]*models.Card)
	for _, c := range hand {
		bySuit[c.Suit] = append(bySuit[c.Suit], c)
	}
	for _, suit := range models.Suits {
		cards := bySuit[suit]
		if len(cards) < 3 {
			continue
		}
		sort.Slice(cards, func(i, j int) bool { return cards[i].Value < cards[j].Value })

		run := []*models.Card{cards[0]}
		flush := func() {
			if len(run) >= 3 {
				found = append(found, run)
			}
		}
		for _, c := range cards[1:] {
			last := run[len(run)-1]
			switch c.Value {
			case last.Value:
				continue // duplicate rank across decks, skip
			case last.Value + 1:
				run = append(run, c)
			default:
				flush()
				run = []*models.Card{c}
			}
		}
		flush()
	}

	byRank := make(map[string][]*models.Card)
	for _, c := range hand {
		byRank[c.Rank] = append(byRank[c.Rank], c)
	}
	for _, rank := range models.Ranks {
		cards := byRank[rank]
		if len(cards) < 3 {
			continue
		}
		if len(cards) > 4 {
			cards = cards[:4]
		}
		found = append(found, cards)
	}

	return found
}

// CanAddToMeld reports which end, if any, the card can be spliced onto while
// keeping the meld legal. The start is tried first.
func CanAddToMeld(card *models.Card, m *meld.Meld) (meld.Position, bool) {
	if meld.IsValidMeld(m.WithCardAt(card, meld.PositionStart)) {
		return meld.PositionStart, true
	}
	if meld.IsValidMeld(m.WithCardAt(card, meld.PositionEnd)) {
		return meld.PositionEnd, true
	}
	return "", false
}

// IsDiscardCardUseful decides whether the visible discard is worth taking:
// either it extends a table meld right now, or adding it to the hand raises
// the number of melds the hand can form.
func IsDiscardCardUseful(card *models.Card, hand []*models.Card, table []*meld.Meld) bool {
	for _, m := range table {
		if _, ok := CanAddToMeld(card, m); ok {
			return true
		}
	}
	with := make([]*models.Card, 0, len(hand)+1)
	with = append(with, hand...)
	with = append(with, card)
	return len(FindPossibleMelds(with)) > len(FindPossibleMelds(hand))
}

// FindBestDiscard scores every hand card for discard safety and returns the
// safest. Base score is the rank value (dump expensive cards first), minus
// penalties for cards that are close to being useful:
//
//	-20 the card could extend a meld already on the table
//	-15 discarding it would shrink the melds findable in the hand
//	 -5 a rank-mate is in the hand (potential set)
//	 -5 a suit-adjacent card is in the hand (potential run)
func FindBestDiscard(hand []*models.Card, table []*meld.Meld) *models.Card {
	if len(hand) == 0 {
		return nil
	}
	baseline := len(FindPossibleMelds(hand))

	var best *models.Card
	bestScore := 0
	for i, c := range hand {
		score := c.Value

		for _, m := range table {
			if _, ok := CanAddToMeld(c, m); ok {
				score -= 20
				break
			}
		}

		without := make([]*models.Card, 0, len(hand)-1)
		without = append(without, hand[:i]...)
		without = append(without, hand[i+1:]...)
		if len(FindPossibleMelds(without)) < baseline {
			score -= 15
		}

		hasRankMate, hasNeighbor := false, false
		for _, other := range without {
			if other.Rank == c.Rank {
				hasRankMate = true
			}
			if other.Suit == c.Suit && (other.Value == c.Value-1 || other.Value == c.Value+1) {
				hasNeighbor = true
			}
		}
		if hasRankMate {
			score -= 5
		}
		if hasNeighbor {
			score -= 5
		}

		if best == nil || score > bestScore {
			best = c
			bestScore = score
		}
	}
	return best
}
