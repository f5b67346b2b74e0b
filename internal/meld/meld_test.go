package meld

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rummyhouse/rummy/internal/models"
)

// cards builds deck-0 cards from short "RS" names, e.g. "4H", "TS", "AD".
func cards(names ...string) []*models.Card {
	out := make([]*models.Card, len(names))
	for i, n := range names {
		rank := n[:len(n)-1]
		suit := n[len(n)-1:]
		out[i] = models.NewCard(0, rank, suit)
	}
	return out
}

func TestIsValidRun(t *testing.T) {
	tests := []struct {
		name  string
		cards []*models.Card
		want  bool
	}{
		{"three consecutive hearts", cards("4H", "5H", "6H"), true},
		{"mixed suit", cards("4H", "5D", "6H"), false},
		{"high ace", cards("QS", "KS", "AS"), true},
		{"low ace", cards("AS", "2S", "3S"), true},
		{"wrap past ace", cards("KS", "AS", "2S"), false},
		{"out of order input still a run", cards("6H", "4H", "5H"), true},
		{"gap", cards("4H", "5H", "7H"), false},
		{"too short", cards("4H", "5H"), false},
		{"long run with high ace", cards("TS", "JS", "QS", "KS", "AS"), true},
		{"duplicate value breaks run", append(cards("4H", "5H", "6H"), models.NewCard(1, "5", "H")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidRun(tt.cards))
		})
	}
}

func TestIsValidSet(t *testing.T) {
	assert.True(t, IsValidSet(cards("7H", "7D", "7C")))
	assert.False(t, IsValidSet(cards("7H", "7D", "8C")))
	assert.False(t, IsValidSet(cards("7H", "7D")))

	// Multi-deck duplicate suits are fine.
	dup := []*models.Card{
		models.NewCard(0, "7", "H"),
		models.NewCard(1, "7", "H"),
		models.NewCard(0, "7", "S"),
	}
	assert.True(t, IsValidSet(dup))
}

func TestIsValidMeld(t *testing.T) {
	assert.True(t, IsValidMeld(cards("4H", "5H", "6H")))
	assert.True(t, IsValidMeld(cards("7H", "7D", "7C")))
	assert.False(t, IsValidMeld(cards("4H", "7D", "9C")))
}

func TestWithCardAt(t *testing.T) {
	m := New(cards("4H", "5H", "6H"), uuid.New())
	three := models.NewCard(0, "3", "H")
	seven := models.NewCard(0, "7", "H")

	assert.True(t, IsValidRun(m.WithCardAt(three, PositionStart)))
	assert.True(t, IsValidRun(m.WithCardAt(seven, PositionEnd)))
	assert.Len(t, m.Cards, 3, "WithCardAt must not mutate the meld")
}

func TestValidateRearrangementTableCardNeverReturnsToHand(t *testing.T) {
	owner := uuid.New()
	table := []*Meld{New(cards("4H", "5H", "6H"), owner)}

	// Proposal drops 4H entirely; remaining meld is itself valid but the
	// omission must be rejected.
	proposed := [][]*models.Card{cards("5H", "6H", "7H")}
	hand := cards("7H")

	_, err := ValidateRearrangement(table, proposed, hand)
	require.Error(t, err)
	var v *Violation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, RuleTableCardMissing, v.Rule)
}

func TestValidateRearrangementNewCardsMustComeFromHand(t *testing.T) {
	owner := uuid.New()
	table := []*Meld{New(cards("4H", "5H", "6H"), owner)}

	proposed := [][]*models.Card{cards("4H", "5H", "6H", "7H")}
	_, err := ValidateRearrangement(table, proposed, cards("9S"))
	require.Error(t, err)
	var v *Violation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, RuleCardNotInHand, v.Rule)
}

func TestValidateRearrangementShortMeld(t *testing.T) {
	owner := uuid.New()
	table := []*Meld{New(cards("7H", "7D", "7C"), owner)}

	proposed := [][]*models.Card{cards("7H", "7D"), cards("7C")}
	_, err := ValidateRearrangement(table, proposed, nil)
	require.Error(t, err)
	var v *Violation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, RuleShortMeld, v.Rule)
}

func TestValidateRearrangementSuccess(t *testing.T) {
	owner := uuid.New()
	table := []*Meld{
		New(cards("4H", "5H", "6H"), owner),
		New(cards("9S", "9D", "9C"), owner),
	}
	hand := cards("7H", "9H", "KD")

	// Extend the run with 7H and the set with 9H; KD stays in hand.
	proposed := [][]*models.Card{
		cards("4H", "5H", "6H", "7H"),
		cards("9S", "9D", "9C", "9H"),
	}
	fromHand, err := ValidateRearrangement(table, proposed, hand)
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.CardID{
		models.NewCard(0, "7", "H").ID,
		models.NewCard(0, "9", "H").ID,
	}, fromHand)
}

func TestValidateRearrangementSplitAcrossMelds(t *testing.T) {
	owner := uuid.New()
	table := []*Meld{New(cards("4H", "5H", "6H", "7H", "8H", "9H"), owner)}
	hand := cards("3H", "TH")

	// Split the long run into two runs, each completed with a hand card.
	proposed := [][]*models.Card{
		cards("3H", "4H", "5H", "6H"),
		cards("7H", "8H", "9H", "TH"),
	}
	fromHand, err := ValidateRearrangement(table, proposed, hand)
	require.NoError(t, err)
	assert.Len(t, fromHand, 2)
}

func TestValidateRearrangementRejectsDuplicateUse(t *testing.T) {
	owner := uuid.New()
	table := []*Meld{New(cards("7H", "7D", "7C"), owner)}
	proposed := [][]*models.Card{
		cards("7H", "7D", "7C"),
		cards("7H", "7D", "7C"),
	}
	_, err := ValidateRearrangement(table, proposed, nil)
	require.Error(t, err)
	var v *Violation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, RuleDuplicateCard, v.Rule)
}
