// internal/game/match.go
package game

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rummyhouse/rummy/internal/cache"
	"github.com/rummyhouse/rummy/internal/deck"
	"github.com/rummyhouse/rummy/internal/meld"
	"github.com/rummyhouse/rummy/internal/models"
)

// Phase is the per-turn sub-state of the current player.
type Phase string

const (
	// PhaseDraw: the current player must draw before anything else.
	PhaseDraw Phase = "draw"
	// PhasePlay: the current player may meld, rearrange and must discard (or go out).
	PhasePlay Phase = "play"
	// PhaseFinished: a winner is recorded; no further actions are accepted.
	PhaseFinished Phase = "finished"
)

// DrawSource selects which pile a draw takes from.
type DrawSource string

const (
	DrawFromStock   DrawSource = "deck"
	DrawFromDiscard DrawSource = "discard"
)

// PlayerResult is one player's line in the final score sheet.
type PlayerResult struct {
	PlayerID uuid.UUID `json:"playerId"`
	Points   int       `json:"points"` // remaining hand points (winner: 0)
	Winner   bool      `json:"winner"`
}

// WinnerRecord freezes a finished match.
type WinnerRecord struct {
	PlayerID uuid.UUID      `json:"playerId"`
	Results  []PlayerResult `json:"results"`
}

// OnMatchEndFunc handles a finished match: persisting results, resetting the
// room, broadcasting to the lobby.
type OnMatchEndFunc func(roomID uuid.UUID, rec *WinnerRecord)

// Match holds the entire canonical state for a single match in memory.
//
// Concurrency follows the service convention: the transport handler acquires
// Mu, performs one full operation, and releases it. The state machine methods
// themselves assume the lock is held and never block.
type Match struct {
	ID     uuid.UUID
	RoomID uuid.UUID
	Code   string

	Settings models.RoomSettings

	Players     []*models.Player
	Stock       []*models.Card
	DiscardPile []*models.Card
	Table       []*meld.Meld

	CurrentTurn int
	Phase       Phase
	Winner      *WinnerRecord

	actionIndex int
	Mu          sync.Mutex

	// BroadcastFn sends an event to all connected players. If nil, no
	// broadcast is done.
	BroadcastFn func(ev Event)

	// BroadcastToPlayerFn sends an event to a single specific player.
	BroadcastToPlayerFn func(playerID uuid.UUID, ev Event)

	// OnMatchEnd is invoked once when a winner is recorded.
	OnMatchEnd OnMatchEndFunc
}

// NewMatch deals a fresh match for the given roster. The roster order is the
// turn order and never changes afterwards; disconnects only flip a flag.
func NewMatch(roomID uuid.UUID, code string, roster []*models.Player, settings models.RoomSettings) (*Match, error) {
	pool := deck.Build(settings.DeckCount)
	deck.Shuffle(pool)

	hands, discard, stock, err := deck.Deal(pool, len(roster), settings.CardsPerPlayer)
	if err != nil {
		return nil, err
	}
	for i, p := range roster {
		p.Hand = hands[i]
	}

	m := &Match{
		ID:          uuid.New(),
		RoomID:      roomID,
		Code:        code,
		Settings:    settings,
		Players:     roster,
		Stock:       stock,
		DiscardPile: discard,
		Table:       []*meld.Meld{},
		CurrentTurn: settings.StartingPlayerIndex % len(roster),
		Phase:       PhaseDraw,
	}
	m.logAction(uuid.Nil, string(EventMatchStart), map[string]interface{}{
		"players":   len(roster),
		"deckCount": settings.DeckCount,
		"perPlayer": settings.CardsPerPlayer,
	})
	return m, nil
}

// Start broadcasts the opening turn. Call once after the broadcast callbacks
// are wired.
// Assumes lock is held.
func (m *Match) Start() {
	m.broadcastTurn()
}

// CurrentPlayer returns the player whose turn it is.
// Assumes lock is held.
func (m *Match) CurrentPlayer() *models.Player {
	return m.Players[m.CurrentTurn]
}

// checkTurn validates that playerID may act right now in the given phase.
// Assumes lock is held.
func (m *Match) checkTurn(playerID uuid.UUID, phase Phase) (*models.Player, error) {
	if m.Winner != nil {
		return nil, wrongPhase("the match is finished")
	}
	p := m.playerByID(playerID)
	if p == nil {
		return nil, ErrPlayerNotFound
	}
	if m.CurrentPlayer().ID != playerID {
		return nil, ErrNotYourTurn
	}
	if m.Phase != phase {
		if phase == PhaseDraw {
			return nil, wrongPhase("you have already drawn this turn")
		}
		return nil, wrongPhase("you must draw before playing")
	}
	return p, nil
}

// Draw moves one card from the chosen pile into the acting player's hand and
// advances the turn phase to play. Drawing from an exhausted stock first
// reshuffles the discard pile, minus its visible top card, back into the
// stock.
// Assumes lock is held.
func (m *Match) Draw(playerID uuid.UUID, source DrawSource) (*models.Card, error) {
	p, err := m.checkTurn(playerID, PhaseDraw)
	if err != nil {
		return nil, err
	}

	var card *models.Card
	switch source {
	case DrawFromDiscard:
		if len(m.DiscardPile) == 0 {
			return nil, ErrEmptyPile
		}
		idx := len(m.DiscardPile) - 1
		card = m.DiscardPile[idx]
		m.DiscardPile = m.DiscardPile[:idx]
	default:
		if len(m.Stock) == 0 {
			m.reshuffleDiscardIntoStock()
		}
		if len(m.Stock) == 0 {
			return nil, ErrEmptyPile
		}
		card = m.Stock[0]
		m.Stock = m.Stock[1:]
	}

	p.Hand = append(p.Hand, card)
	m.Phase = PhasePlay

	// Deck draws stay face down for the audience; discard draws were already
	// visible to everyone.
	m.fireEvent(Event{
		Type: EventPlayerDraw,
		User: &EventUser{ID: playerID},
		Card: eventCard(card, source == DrawFromDiscard),
		Payload: map[string]interface{}{
			"source":      string(source),
			"stockSize":   len(m.Stock),
			"discardSize": len(m.DiscardPile),
		},
	})
	m.fireEventToPlayer(playerID, Event{
		Type: EventPrivateDraw,
		Card: eventCard(card, true),
	})
	m.logAction(playerID, string(EventPlayerDraw), map[string]interface{}{
		"cardId": card.ID,
		"source": string(source),
	})
	return card, nil
}

// reshuffleDiscardIntoStock rebuilds the stock from the discard pile, keeping
// the top discard where it is. No-op if there is nothing to reshuffle.
// Assumes lock is held.
func (m *Match) reshuffleDiscardIntoStock() {
	if len(m.DiscardPile) < 2 {
		return
	}
	top := m.DiscardPile[len(m.DiscardPile)-1]
	recycled := make([]*models.Card, len(m.DiscardPile)-1)
	copy(recycled, m.DiscardPile[:len(m.DiscardPile)-1])

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	r.Shuffle(len(recycled), func(i, j int) {
		recycled[i], recycled[j] = recycled[j], recycled[i]
	})

	m.Stock = append(m.Stock, recycled...)
	m.DiscardPile = []*models.Card{top}

	m.fireEvent(Event{
		Type: EventStockReshuffle,
		Payload: map[string]interface{}{
			"stockSize": len(m.Stock),
		},
	})
	m.logAction(uuid.Nil, string(EventStockReshuffle), map[string]interface{}{
		"stockSize": len(m.Stock),
	})
}

// PlayMeld moves the named hand cards onto the table as a new meld. The
// player must retain at least one card: hands empty out through a discard or
// by going out, never through melding.
// Assumes lock is held.
func (m *Match) PlayMeld(playerID uuid.UUID, cardIDs []models.CardID) (*meld.Meld, error) {
	p, err := m.checkTurn(playerID, PhasePlay)
	if err != nil {
		return nil, err
	}

	cards := make([]*models.Card, 0, len(cardIDs))
	seen := make(map[models.CardID]bool, len(cardIDs))
	for _, id := range cardIDs {
		c := handCard(p, id)
		if c == nil || seen[id] {
			return nil, ErrCardNotInHand
		}
		seen[id] = true
		cards = append(cards, c)
	}
	if !meld.IsValidMeld(cards) {
		return nil, ErrInvalidMeld
	}
	if len(p.Hand)-len(cards) < 1 {
		return nil, ErrMustKeepOneCard
	}

	for _, c := range cards {
		p.RemoveCard(c.ID)
	}
	newMeld := meld.New(cards, playerID)
	m.Table = append(m.Table, newMeld)

	m.fireEvent(Event{
		Type: EventMeldPlayed,
		User: &EventUser{ID: playerID},
		Meld: eventMeld(newMeld),
	})
	m.logAction(playerID, string(EventMeldPlayed), map[string]interface{}{
		"meldId": newMeld.ID,
		"cards":  cache.CardIDs(cardIDs),
	})
	return newMeld, nil
}

// AddToMeld splices a single hand card onto one end of an existing table
// meld. The extended sequence must itself be a legal meld.
// Assumes lock is held.
func (m *Match) AddToMeld(playerID uuid.UUID, cardID models.CardID, meldID uuid.UUID, pos meld.Position) error {
	p, err := m.checkTurn(playerID, PhasePlay)
	if err != nil {
		return err
	}

	target := m.meldByID(meldID)
	if target == nil {
		return ErrMeldNotFound
	}
	card := handCard(p, cardID)
	if card == nil {
		return ErrCardNotInHand
	}

	extended := target.WithCardAt(card, pos)
	if !meld.IsValidMeld(extended) {
		return ErrInvalidMeld
	}
	if len(p.Hand)-1 < 1 {
		return ErrMustKeepOneCard
	}

	p.RemoveCard(cardID)
	target.Cards = extended
	target.LastPlayedBy = playerID

	m.fireEvent(Event{
		Type: EventMeldExtended,
		User: &EventUser{ID: playerID},
		Card: eventCard(card, true),
		Meld: eventMeld(target),
	})
	m.logAction(playerID, string(EventMeldExtended), map[string]interface{}{
		"meldId":   meldID,
		"cardId":   cardID,
		"position": string(pos),
	})
	return nil
}

// RearrangeTable replaces the whole table with the proposed melds, pulling
// the declared hand cards into play. Legality is delegated to the meld
// validator; the declared fromHand set must match what the proposal actually
// consumes. Nothing mutates unless every rule passes.
// Assumes lock is held.
func (m *Match) RearrangeTable(playerID uuid.UUID, proposed [][]models.CardID, fromHand []models.CardID) error {
	p, err := m.checkTurn(playerID, PhasePlay)
	if err != nil {
		return err
	}

	// The declared hand contribution must actually be in the hand.
	for _, id := range fromHand {
		if !p.HasCard(id) {
			return ErrCardNotInHand
		}
	}

	// Resolve ids against the only two legal sources: the current table and
	// the acting hand.
	byID := make(map[models.CardID]*models.Card)
	for _, tm := range m.Table {
		for _, c := range tm.Cards {
			byID[c.ID] = c
		}
	}
	for _, c := range p.Hand {
		byID[c.ID] = c
	}

	resolved := make([][]*models.Card, len(proposed))
	for i, group := range proposed {
		resolved[i] = make([]*models.Card, 0, len(group))
		for _, id := range group {
			c, ok := byID[id]
			if !ok {
				return invalidRearrangement("card " + string(id) + " is neither on the table nor in your hand")
			}
			resolved[i] = append(resolved[i], c)
		}
	}

	used, err := meld.ValidateRearrangement(m.Table, resolved, p.Hand)
	if err != nil {
		return invalidRearrangement(err.Error())
	}
	if !sameIDSet(used, fromHand) {
		return invalidRearrangement("declared hand cards do not match the cards the proposal uses")
	}
	if len(p.Hand)-len(used) < 1 {
		return ErrMustKeepOneCard
	}

	// Commit: drop empty groups, keep proposal order.
	newTable := make([]*meld.Meld, 0, len(resolved))
	for _, group := range resolved {
		if len(group) == 0 {
			continue
		}
		newTable = append(newTable, meld.New(group, playerID))
	}
	m.Table = newTable
	for _, id := range used {
		p.RemoveCard(id)
	}

	m.fireEvent(Event{
		Type:    EventTableRearranged,
		User:    &EventUser{ID: playerID},
		Payload: map[string]interface{}{"melds": len(newTable)},
	})
	m.logAction(playerID, string(EventTableRearranged), map[string]interface{}{
		"melds":    len(newTable),
		"fromHand": cache.CardIDs(used),
	})
	return nil
}

// Discard pushes a hand card onto the discard pile and ends the turn. A
// discard that empties the hand wins the match instead.
// Assumes lock is held.
func (m *Match) Discard(playerID uuid.UUID, cardID models.CardID) error {
	p, err := m.checkTurn(playerID, PhasePlay)
	if err != nil {
		return err
	}

	card := p.RemoveCard(cardID)
	if card == nil {
		return ErrCardNotInHand
	}
	m.DiscardPile = append(m.DiscardPile, card)

	m.fireEvent(Event{
		Type: EventPlayerDiscard,
		User: &EventUser{ID: playerID},
		Card: eventCard(card, true),
	})
	m.logAction(playerID, string(EventPlayerDiscard), map[string]interface{}{
		"cardId": cardID,
	})

	if len(p.Hand) == 0 {
		m.endWithWinner(playerID)
		return nil
	}
	m.advanceTurn()
	return nil
}

// EndTurn is going out without a discard: legal only when the hand is already
// empty, which records the win.
// Assumes lock is held.
func (m *Match) EndTurn(playerID uuid.UUID) error {
	p, err := m.checkTurn(playerID, PhasePlay)
	if err != nil {
		return err
	}
	if len(p.Hand) != 0 {
		return wrongPhase("you must discard to end your turn")
	}
	m.endWithWinner(playerID)
	return nil
}

// advanceTurn hands the turn to the next seat. Disconnected players are not
// skipped: a blocked turn is the transport layer's problem to resolve, not a
// rule change.
// Assumes lock is held.
func (m *Match) advanceTurn() {
	m.CurrentTurn = (m.CurrentTurn + 1) % len(m.Players)
	m.Phase = PhaseDraw
	m.broadcastTurn()
}

// broadcastTurn notifies all players whose turn it is now.
// Assumes lock is held.
func (m *Match) broadcastTurn() {
	m.fireEvent(Event{
		Type: EventPlayerTurn,
		User: &EventUser{ID: m.CurrentPlayer().ID},
		Payload: map[string]interface{}{
			"phase": string(m.Phase),
		},
	})
}

// endWithWinner freezes the match: scores every remaining hand (aces one,
// faces ten, numerals face value) and records the winner.
// Assumes lock is held.
func (m *Match) endWithWinner(playerID uuid.UUID) {
	results := make([]PlayerResult, len(m.Players))
	for i, p := range m.Players {
		points := 0
		for _, c := range p.Hand {
			points += c.Points()
		}
		results[i] = PlayerResult{
			PlayerID: p.ID,
			Points:   points,
			Winner:   p.ID == playerID,
		}
	}
	m.Winner = &WinnerRecord{PlayerID: playerID, Results: results}
	m.Phase = PhaseFinished

	scores := map[string]int{}
	for _, r := range results {
		scores[r.PlayerID.String()] = r.Points
	}
	m.fireEvent(Event{
		Type: EventMatchEnd,
		User: &EventUser{ID: playerID},
		Payload: map[string]interface{}{
			"winner": playerID.String(),
			"scores": scores,
		},
	})
	m.logAction(playerID, string(EventMatchEnd), map[string]interface{}{
		"scores": scores,
	})

	if m.OnMatchEnd != nil {
		m.OnMatchEnd(m.RoomID, m.Winner)
	}
}

// playerByID is a helper to find a player struct by their stable id.
// Assumes lock is held.
func (m *Match) playerByID(playerID uuid.UUID) *models.Player {
	for _, p := range m.Players {
		if p.ID == playerID {
			return p
		}
	}
	return nil
}

// meldByID finds a table meld by id, or nil.
// Assumes lock is held.
func (m *Match) meldByID(meldID uuid.UUID) *meld.Meld {
	for _, tm := range m.Table {
		if tm.ID == meldID {
			return tm
		}
	}
	return nil
}

func handCard(p *models.Player, id models.CardID) *models.Card {
	for _, c := range p.Hand {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func sameIDSet(a, b []models.CardID) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[models.CardID]int, len(a))
	for _, id := range a {
		seen[id]++
	}
	for _, id := range b {
		seen[id]--
		if seen[id] < 0 {
			return false
		}
	}
	return true
}
