// internal/game/match_test.go
package game

import (
	"fmt"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rummyhouse/rummy/internal/meld"
	"github.com/rummyhouse/rummy/internal/models"
)

func card(rank, suit string) *models.Card {
	return models.NewCard(0, rank, suit)
}

// eventRecorder captures broadcasts so tests can assert on the event stream.
type eventRecorder struct {
	events  []Event
	private map[uuid.UUID][]Event
}

func (r *eventRecorder) attach(m *Match) {
	r.private = make(map[uuid.UUID][]Event)
	m.BroadcastFn = func(ev Event) {
		r.events = append(r.events, ev)
	}
	m.BroadcastToPlayerFn = func(playerID uuid.UUID, ev Event) {
		r.private[playerID] = append(r.private[playerID], ev)
	}
}

func (r *eventRecorder) typesSeen() []EventType {
	out := make([]EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

// newTestMatch builds a match with fixed hands and piles so the tests control
// every card. The first hand belongs to the player whose turn it is.
func newTestMatch(hands [][]*models.Card, stock, discard []*models.Card) *Match {
	m := &Match{
		ID:          uuid.New(),
		RoomID:      uuid.New(),
		Code:        "TESTRM",
		Settings:    models.DefaultRoomSettings(),
		Stock:       stock,
		DiscardPile: discard,
		Table:       []*meld.Meld{},
		Phase:       PhaseDraw,
	}
	for i, h := range hands {
		m.Players = append(m.Players, &models.Player{
			ID:        uuid.New(),
			Name:      fmt.Sprintf("p%d", i+1),
			Hand:      h,
			Connected: true,
		})
	}
	return m
}

// allCardIDs gathers every card id across piles, hands and the table.
func allCardIDs(m *Match) []string {
	var ids []string
	for _, c := range m.Stock {
		ids = append(ids, string(c.ID))
	}
	for _, c := range m.DiscardPile {
		ids = append(ids, string(c.ID))
	}
	for _, p := range m.Players {
		for _, c := range p.Hand {
			ids = append(ids, string(c.ID))
		}
	}
	for _, tm := range m.Table {
		for _, c := range tm.Cards {
			ids = append(ids, string(c.ID))
		}
	}
	sort.Strings(ids)
	return ids
}

func TestDrawGatesThePhase(t *testing.T) {
	m := newTestMatch(
		[][]*models.Card{
			{card("4", "H"), card("9", "S")},
			{card("7", "C"), card("J", "D")},
		},
		[]*models.Card{card("2", "C"), card("3", "C")},
		[]*models.Card{card("K", "D")},
	)
	p0 := m.Players[0]

	drawn, err := m.Draw(p0.ID, DrawFromStock)
	require.NoError(t, err)
	assert.Equal(t, "2C", drawn.String())
	assert.Len(t, p0.Hand, 3)
	assert.Equal(t, PhasePlay, m.Phase)

	// A second draw in the same turn is a phase violation.
	_, err = m.Draw(p0.ID, DrawFromStock)
	assert.ErrorIs(t, err, ErrWrongPhase)

	// Playing before drawing is the mirror violation for the next player.
	err = m.Discard(m.Players[1].ID, m.Players[1].Hand[0].ID)
	assert.ErrorIs(t, err, ErrNotYourTurn)
}

func TestDrawFromDiscard(t *testing.T) {
	m := newTestMatch(
		[][]*models.Card{
			{card("4", "H")},
			{card("7", "C")},
		},
		[]*models.Card{card("2", "C")},
		[]*models.Card{card("K", "D")},
	)
	p0 := m.Players[0]

	drawn, err := m.Draw(p0.ID, DrawFromDiscard)
	require.NoError(t, err)
	assert.Equal(t, "KD", drawn.String())
	assert.Empty(t, m.DiscardPile)
}

func TestDrawFromEmptyDiscard(t *testing.T) {
	m := newTestMatch(
		[][]*models.Card{
			{card("4", "H")},
			{card("7", "C")},
		},
		[]*models.Card{card("2", "C")},
		nil,
	)
	_, err := m.Draw(m.Players[0].ID, DrawFromDiscard)
	assert.ErrorIs(t, err, ErrEmptyPile)
	assert.Equal(t, PhaseDraw, m.Phase, "a rejected draw must not advance the phase")
}

func TestStockExhaustionReshufflesDiscard(t *testing.T) {
	m := newTestMatch(
		[][]*models.Card{
			{card("4", "H")},
			{card("7", "C")},
		},
		nil,
		[]*models.Card{card("2", "C"), card("3", "C"), card("5", "D"), card("K", "D")},
	)
	rec := &eventRecorder{}
	rec.attach(m)
	before := allCardIDs(m)

	_, err := m.Draw(m.Players[0].ID, DrawFromStock)
	require.NoError(t, err)

	// The visible top of the discard pile stays where it is.
	require.Len(t, m.DiscardPile, 1)
	assert.Equal(t, "KD", m.DiscardPile[0].String())
	assert.Len(t, m.Stock, 2)
	assert.Len(t, m.Players[0].Hand, 2)

	assert.Equal(t, before, allCardIDs(m), "reshuffle must conserve every card")
	assert.Contains(t, rec.typesSeen(), EventStockReshuffle)
}

func TestPlayMeldRules(t *testing.T) {
	run := []*models.Card{card("4", "H"), card("5", "H"), card("6", "H")}
	spare := card("9", "S")
	m := newTestMatch(
		[][]*models.Card{
			append(append([]*models.Card{}, run...), spare),
			{card("7", "C")},
		},
		[]*models.Card{card("2", "C")},
		[]*models.Card{card("K", "D")},
	)
	p0 := m.Players[0]
	m.Phase = PhasePlay

	// Duplicate ids in the request must not reuse one card twice.
	_, err := m.PlayMeld(p0.ID, []models.CardID{run[0].ID, run[0].ID, run[1].ID})
	assert.ErrorIs(t, err, ErrCardNotInHand)

	// A broken sequence is rejected untouched.
	_, err = m.PlayMeld(p0.ID, []models.CardID{run[0].ID, run[1].ID, spare.ID})
	assert.ErrorIs(t, err, ErrInvalidMeld)
	assert.Len(t, p0.Hand, 4)

	played, err := m.PlayMeld(p0.ID, []models.CardID{run[0].ID, run[1].ID, run[2].ID})
	require.NoError(t, err)
	assert.Len(t, m.Table, 1)
	assert.Len(t, played.Cards, 3)
	assert.Equal(t, p0.ID, played.LastPlayedBy)
	require.Len(t, p0.Hand, 1)

	// Melding the last card is forbidden; hands empty only through a discard.
	p0.Hand = []*models.Card{card("T", "C"), card("T", "D"), card("T", "S")}
	_, err = m.PlayMeld(p0.ID, []models.CardID{p0.Hand[0].ID, p0.Hand[1].ID, p0.Hand[2].ID})
	assert.ErrorIs(t, err, ErrMustKeepOneCard)
}

func TestAddToMeld(t *testing.T) {
	m := newTestMatch(
		[][]*models.Card{
			{card("3", "H"), card("9", "S"), card("J", "C")},
			{card("7", "C")},
		},
		[]*models.Card{card("2", "C")},
		[]*models.Card{card("K", "D")},
	)
	p0 := m.Players[0]
	m.Phase = PhasePlay
	tableMeld := meld.New([]*models.Card{card("4", "H"), card("5", "H"), card("6", "H")}, m.Players[1].ID)
	m.Table = append(m.Table, tableMeld)

	threeH := p0.Hand[0]
	nineS := p0.Hand[1]

	err := m.AddToMeld(p0.ID, nineS.ID, tableMeld.ID, meld.PositionEnd)
	assert.ErrorIs(t, err, ErrInvalidMeld)
	assert.Len(t, tableMeld.Cards, 3)

	err = m.AddToMeld(p0.ID, threeH.ID, tableMeld.ID, meld.PositionStart)
	require.NoError(t, err)
	assert.Len(t, tableMeld.Cards, 4)
	assert.Equal(t, "3H", tableMeld.Cards[0].String())
	assert.Equal(t, p0.ID, tableMeld.LastPlayedBy)
	assert.Len(t, p0.Hand, 2)
}

func TestRearrangeTable(t *testing.T) {
	four, five, six := card("4", "H"), card("5", "H"), card("6", "H")
	seven := card("7", "H")
	spare := card("9", "S")
	m := newTestMatch(
		[][]*models.Card{
			{seven, spare},
			{card("7", "C")},
		},
		[]*models.Card{card("2", "C")},
		[]*models.Card{card("K", "D")},
	)
	p0 := m.Players[0]
	m.Phase = PhasePlay
	m.Table = append(m.Table, meld.New([]*models.Card{four, five, six}, m.Players[1].ID))
	before := allCardIDs(m)

	// Declared hand cards must match what the proposal consumes.
	err := m.RearrangeTable(p0.ID,
		[][]models.CardID{{four.ID, five.ID, six.ID, seven.ID}},
		nil,
	)
	assert.ErrorIs(t, err, ErrInvalidRearrangement)

	// Declaring a card the actor does not hold is rejected before anything else.
	err = m.RearrangeTable(p0.ID,
		[][]models.CardID{{four.ID, five.ID, six.ID, seven.ID}},
		[]models.CardID{four.ID},
	)
	assert.ErrorIs(t, err, ErrCardNotInHand)

	// A proposal that drops a table card is rejected whole.
	err = m.RearrangeTable(p0.ID,
		[][]models.CardID{{five.ID, six.ID, seven.ID}},
		[]models.CardID{seven.ID},
	)
	assert.ErrorIs(t, err, ErrInvalidRearrangement)
	assert.Len(t, m.Table, 1)
	assert.Len(t, m.Table[0].Cards, 3)

	err = m.RearrangeTable(p0.ID,
		[][]models.CardID{{four.ID, five.ID, six.ID, seven.ID}},
		[]models.CardID{seven.ID},
	)
	require.NoError(t, err)
	require.Len(t, m.Table, 1)
	assert.Len(t, m.Table[0].Cards, 4)
	assert.Len(t, p0.Hand, 1)
	assert.Equal(t, before, allCardIDs(m))
}

func TestDiscardAdvancesTurn(t *testing.T) {
	m := newTestMatch(
		[][]*models.Card{
			{card("4", "H"), card("9", "S")},
			{card("7", "C"), card("J", "D")},
		},
		[]*models.Card{card("2", "C")},
		[]*models.Card{card("K", "D")},
	)
	p0 := m.Players[0]
	m.Phase = PhasePlay

	require.NoError(t, m.Discard(p0.ID, p0.Hand[0].ID))
	assert.Equal(t, 1, m.CurrentTurn)
	assert.Equal(t, PhaseDraw, m.Phase)
	assert.Equal(t, "4H", m.DiscardPile[len(m.DiscardPile)-1].String())
	assert.Nil(t, m.Winner)
}

func TestWinByDiscardingLastCard(t *testing.T) {
	m := newTestMatch(
		[][]*models.Card{
			{card("9", "S")},
			{card("K", "C"), card("5", "D")},
		},
		[]*models.Card{card("2", "C")},
		[]*models.Card{card("K", "D")},
	)
	p0, p1 := m.Players[0], m.Players[1]
	m.Phase = PhasePlay

	var endedRoom uuid.UUID
	var endedRec *WinnerRecord
	m.OnMatchEnd = func(roomID uuid.UUID, rec *WinnerRecord) {
		endedRoom = roomID
		endedRec = rec
	}

	require.NoError(t, m.Discard(p0.ID, p0.Hand[0].ID))

	require.NotNil(t, m.Winner)
	assert.Equal(t, p0.ID, m.Winner.PlayerID)
	assert.Equal(t, PhaseFinished, m.Phase)
	assert.Equal(t, m.RoomID, endedRoom)
	require.NotNil(t, endedRec)

	// Winner scores zero; the loser counts K=10 and 5=5.
	byPlayer := map[uuid.UUID]PlayerResult{}
	for _, res := range m.Winner.Results {
		byPlayer[res.PlayerID] = res
	}
	assert.Equal(t, 0, byPlayer[p0.ID].Points)
	assert.True(t, byPlayer[p0.ID].Winner)
	assert.Equal(t, 15, byPlayer[p1.ID].Points)
	assert.False(t, byPlayer[p1.ID].Winner)

	// The finished match accepts no further actions.
	_, err := m.Draw(p1.ID, DrawFromStock)
	assert.ErrorIs(t, err, ErrWrongPhase)
}

func TestFinalSnapshotRecordsHandsAndWinner(t *testing.T) {
	m := newTestMatch(
		[][]*models.Card{
			{card("9", "S")},
			{card("K", "C"), card("5", "D")},
		},
		[]*models.Card{card("2", "C")},
		[]*models.Card{card("K", "D")},
	)
	p0, p1 := m.Players[0], m.Players[1]
	m.Phase = PhasePlay
	require.NoError(t, m.Discard(p0.ID, p0.Hand[0].ID))

	snap := m.FinalSnapshot()
	hands, ok := snap["hands"].(map[string]interface{})
	require.True(t, ok)
	assert.Empty(t, hands[p0.ID.String()])
	assert.ElementsMatch(t, []string{"0:CK", "0:D5"}, hands[p1.ID.String()])
	assert.Equal(t, m.Winner, snap["winner"])
}

func TestEndTurnRequiresEmptyHand(t *testing.T) {
	m := newTestMatch(
		[][]*models.Card{
			{card("4", "H"), card("9", "S")},
			{card("7", "C")},
		},
		[]*models.Card{card("2", "C")},
		[]*models.Card{card("K", "D")},
	)
	m.Phase = PhasePlay
	err := m.EndTurn(m.Players[0].ID)
	assert.ErrorIs(t, err, ErrWrongPhase)
	assert.Nil(t, m.Winner)
}

func TestCardConservationAcrossATurn(t *testing.T) {
	m := newTestMatch(
		[][]*models.Card{
			{card("4", "H"), card("5", "H"), card("6", "H"), card("9", "S")},
			{card("7", "C"), card("J", "D")},
		},
		[]*models.Card{card("2", "C"), card("3", "D")},
		[]*models.Card{card("K", "D")},
	)
	p0 := m.Players[0]
	before := allCardIDs(m)

	_, err := m.Draw(p0.ID, DrawFromStock)
	require.NoError(t, err)
	_, err = m.PlayMeld(p0.ID, []models.CardID{p0.Hand[0].ID, p0.Hand[1].ID, p0.Hand[2].ID})
	require.NoError(t, err)
	require.NoError(t, m.Discard(p0.ID, p0.Hand[0].ID))

	assert.Equal(t, before, allCardIDs(m))
}

func TestDrawDiscardLoopSurvivesStockExhaustion(t *testing.T) {
	roster := []*models.Player{
		{ID: uuid.New(), Name: "p1", Connected: true},
		{ID: uuid.New(), Name: "p2", Connected: true},
	}
	m, err := NewMatch(uuid.New(), "LOOPRM", roster, models.DefaultRoomSettings())
	require.NoError(t, err)
	rec := &eventRecorder{}
	rec.attach(m)
	before := allCardIDs(m)

	// Deck-draw then immediate discard for 200 turns: the 31-card stock runs
	// dry several times, each time rebuilt from the discard pile minus its top.
	for turn := 0; turn < 200; turn++ {
		p := m.CurrentPlayer()
		drawn, err := m.Draw(p.ID, DrawFromStock)
		require.NoError(t, err)
		require.NoError(t, m.Discard(p.ID, drawn.ID))
	}

	reshuffles := 0
	for _, typ := range rec.typesSeen() {
		if typ == EventStockReshuffle {
			reshuffles++
		}
	}
	assert.Greater(t, reshuffles, 0, "the stock must have been rebuilt at least once")
	assert.Equal(t, before, allCardIDs(m), "the full pool survives every reshuffle")
	assert.Nil(t, m.Winner)
	assert.Equal(t, PhaseDraw, m.Phase)
}

func TestViewHidesOtherHands(t *testing.T) {
	m := newTestMatch(
		[][]*models.Card{
			{card("4", "H"), card("9", "S")},
			{card("7", "C"), card("J", "D"), card("Q", "D")},
		},
		[]*models.Card{card("2", "C")},
		[]*models.Card{card("K", "D")},
	)
	p0 := m.Players[0]

	v := m.View(p0.ID)
	require.Len(t, v.Players, 2)
	for _, vp := range v.Players {
		if vp.PlayerID == p0.ID {
			assert.Len(t, vp.Hand, 2)
		} else {
			assert.Empty(t, vp.Hand, "opponent hands must stay hidden")
			assert.Equal(t, 3, vp.HandSize)
		}
	}
	assert.Equal(t, 1, v.StockSize)
	require.NotNil(t, v.DiscardTop)
	assert.Equal(t, "K", v.DiscardTop.Rank)
}

func TestReconnectByPersistentID(t *testing.T) {
	m := newTestMatch(
		[][]*models.Card{
			{card("4", "H")},
			{card("7", "C")},
		},
		[]*models.Card{card("2", "C")},
		[]*models.Card{card("K", "D")},
	)
	p0 := m.Players[0]

	m.HandleDisconnect(p0.ID)
	assert.False(t, p0.Connected)

	newSession := uuid.New()
	view, err := m.HandleReconnect(p0.ID, newSession, uuid.Nil, nil)
	require.NoError(t, err)
	assert.True(t, p0.Connected)
	assert.Equal(t, newSession, p0.SessionID)
	require.NotNil(t, view)
	assert.Equal(t, m.ID, view.MatchID)
}

func TestReconnectByOldSessionID(t *testing.T) {
	m := newTestMatch(
		[][]*models.Card{
			{card("4", "H")},
			{card("7", "C")},
		},
		[]*models.Card{card("2", "C")},
		[]*models.Card{card("K", "D")},
	)
	p1 := m.Players[1]
	oldSession := uuid.New()
	p1.SessionID = oldSession

	newSession := uuid.New()
	_, err := m.HandleReconnect(uuid.New(), newSession, oldSession, nil)
	require.NoError(t, err)
	assert.Equal(t, newSession, p1.SessionID)
}

func TestReconnectRefusesAmbiguousFallback(t *testing.T) {
	m := newTestMatch(
		[][]*models.Card{
			{card("4", "H")},
			{card("7", "C")},
			{card("J", "D")},
		},
		[]*models.Card{card("2", "C")},
		[]*models.Card{card("K", "D")},
	)
	m.HandleDisconnect(m.Players[0].ID)
	m.HandleDisconnect(m.Players[1].ID)

	// Two humans are disconnected, so an unknown identity cannot be guessed.
	_, err := m.HandleReconnect(uuid.New(), uuid.New(), uuid.Nil, nil)
	assert.ErrorIs(t, err, ErrPlayerNotFound)

	// Once only one candidate remains, the fallback applies.
	_, err = m.HandleReconnect(m.Players[0].ID, uuid.New(), uuid.Nil, nil)
	require.NoError(t, err)
	_, err = m.HandleReconnect(uuid.New(), uuid.New(), uuid.Nil, nil)
	require.NoError(t, err)
	assert.True(t, m.Players[1].Connected)
}

func TestBotPlaysAFullTurn(t *testing.T) {
	bot1 := models.NewBotPlayer("Bot 1")
	bot1.Hand = []*models.Card{
		models.NewCard(0, "A", "S"), models.NewCard(0, "A", "H"),
		models.NewCard(0, "A", "D"), models.NewCard(0, "2", "C"),
	}
	bot2 := models.NewBotPlayer("Bot 2")
	bot2.Hand = []*models.Card{
		models.NewCard(0, "7", "S"), models.NewCard(0, "9", "C"), models.NewCard(0, "J", "D"),
	}
	m := &Match{
		ID:          uuid.New(),
		RoomID:      uuid.New(),
		Settings:    models.DefaultRoomSettings(),
		Players:     []*models.Player{bot1, bot2},
		Stock:       []*models.Card{models.NewCard(0, "A", "C"), models.NewCard(0, "9", "D")},
		DiscardPile: []*models.Card{models.NewCard(0, "K", "D")},
		Table:       []*meld.Meld{},
		Phase:       PhaseDraw,
	}
	before := allCardIDs(m)

	m.RunBotTurns()

	// Bot 1 draws the fourth ace, melds the set and goes out on the discard.
	require.NotNil(t, m.Winner)
	assert.Equal(t, bot1.ID, m.Winner.PlayerID)
	require.Len(t, m.Table, 1)
	assert.Len(t, m.Table[0].Cards, 4)
	assert.Empty(t, bot1.Hand)
	assert.Equal(t, before, allCardIDs(m))
}
