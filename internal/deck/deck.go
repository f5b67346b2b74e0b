// Package deck builds, shuffles and deals the multi-deck card pool.
package deck

import (
	"math/rand"
	"time"

	"github.com/rummyhouse/rummy/internal/models"
)

// Build returns deckCount standard 52-card decks. Every card carries a
// pool-unique ID derived from (deckIndex, suit, rank).
func Build(deckCount int) []*models.Card {
	pool := make([]*models.Card, 0, deckCount*52)
	for d := 0; d < deckCount; d++ {
		for _, suit := range models.Suits {
			for _, rank := range models.Ranks {
				pool = append(pool, models.NewCard(d, rank, suit))
			}
		}
	}
	return pool
}

// Shuffle permutes cards in place with Fisher-Yates. No seed is retained; the
// permutation is not reproducible.
func Shuffle(cards []*models.Card) {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	r.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
}

// Deal removes perPlayer cards for each of numPlayers hands in seat order from
// the front of the pool, then flips exactly one more card as the opening
// discard. It returns the hands, the single-card discard pile, and the
// remaining draw pile.
func Deal(pool []*models.Card, numPlayers, perPlayer int) (hands [][]*models.Card, discard []*models.Card, stock []*models.Card, err error) {
	need := numPlayers*perPlayer + 1
	if len(pool) < need {
		return nil, nil, nil, ErrInsufficientCards
	}
	hands = make([][]*models.Card, numPlayers)
	idx := 0
	for p := 0; p < numPlayers; p++ {
		hands[p] = make([]*models.Card, perPlayer)
		copy(hands[p], pool[idx:idx+perPlayer])
		idx += perPlayer
	}
	discard = []*models.Card{pool[idx]}
	idx++
	stock = make([]*models.Card, len(pool)-idx)
	copy(stock, pool[idx:])
	return hands, discard, stock, nil
}
