package deck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rummyhouse/rummy/internal/models"
)

func TestBuildSingleDeck(t *testing.T) {
	pool := Build(1)
	require.Len(t, pool, 52)

	seen := map[models.CardID]bool{}
	for _, c := range pool {
		assert.False(t, seen[c.ID], "duplicate card id %s", c.ID)
		seen[c.ID] = true
		assert.Equal(t, 0, c.DeckIndex)
		assert.Equal(t, models.RankValues[c.Rank], c.Value)
	}
}

func TestBuildMultiDeckIDsStayUnique(t *testing.T) {
	pool := Build(3)
	require.Len(t, pool, 156)

	seen := map[models.CardID]bool{}
	perRankSuit := map[string]int{}
	for _, c := range pool {
		require.False(t, seen[c.ID], "duplicate card id %s", c.ID)
		seen[c.ID] = true
		perRankSuit[c.Rank+c.Suit]++
	}
	// Every (rank,suit) pair appears once per deck.
	for key, n := range perRankSuit {
		assert.Equal(t, 3, n, "unexpected count for %s", key)
	}
}

func TestShuffleIsPermutation(t *testing.T) {
	pool := Build(1)
	before := map[models.CardID]bool{}
	for _, c := range pool {
		before[c.ID] = true
	}

	Shuffle(pool)

	require.Len(t, pool, 52)
	for _, c := range pool {
		assert.True(t, before[c.ID], "shuffle introduced card %s", c.ID)
	}

	// Structural check, not exact-sequence: across several shuffles of a fresh
	// deck, at least one must differ from factory order. The odds of 5 uniform
	// shuffles all being identity are negligible.
	factory := Build(1)
	moved := false
	for i := 0; i < 5 && !moved; i++ {
		p := Build(1)
		Shuffle(p)
		for j, c := range p {
			if c.ID != factory[j].ID {
				moved = true
				break
			}
		}
	}
	assert.True(t, moved, "shuffle never changed card order")
}

func TestDeal(t *testing.T) {
	pool := Build(1)
	hands, discard, stock, err := Deal(pool, 2, 10)
	require.NoError(t, err)

	require.Len(t, hands, 2)
	assert.Len(t, hands[0], 10)
	assert.Len(t, hands[1], 10)
	assert.Len(t, discard, 1)
	assert.Len(t, stock, 52-2*10-1)

	// Conservation: every dealt card is in exactly one place.
	seen := map[models.CardID]int{}
	for _, h := range hands {
		for _, c := range h {
			seen[c.ID]++
		}
	}
	for _, c := range discard {
		seen[c.ID]++
	}
	for _, c := range stock {
		seen[c.ID]++
	}
	require.Len(t, seen, 52)
	for id, n := range seen {
		assert.Equal(t, 1, n, "card %s appears %d times", id, n)
	}
}

func TestDealInsufficientCards(t *testing.T) {
	pool := Build(1)[:20]
	_, _, _, err := Deal(pool, 2, 10) // needs 21
	assert.ErrorIs(t, err, ErrInsufficientCards)
}
