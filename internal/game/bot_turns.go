// internal/game/bot_turns.go
package game

import (
	"errors"

	"github.com/rummyhouse/rummy/internal/bot"
	"github.com/rummyhouse/rummy/internal/models"
)

// maxChainedBotTurns is a safety valve for all-bot matches so a wedged state
// can never spin the caller forever.
const maxChainedBotTurns = 500

// RunBotTurns plays synchronous bot turns until the turn reaches a human or
// the match ends. Callers invoke it after the match starts and after every
// accepted human action.
// Assumes lock is held.
func (m *Match) RunBotTurns() {
	for turns := 0; turns < maxChainedBotTurns; turns++ {
		if m.Winner != nil {
			return
		}
		p := m.CurrentPlayer()
		if !p.IsBot {
			return
		}
		if !m.botTakeTurn(p) {
			return
		}
	}
}

// botTakeTurn plays one complete turn for the bot: draw, rearrange or meld
// what it can, then discard. Returns false if the bot could not act at all,
// which only happens when every pile is empty.
// Assumes lock is held.
func (m *Match) botTakeTurn(p *models.Player) bool {
	// Draw: prefer the visible discard when it is useful, else the stock.
	source := DrawFromStock
	if len(m.DiscardPile) > 0 {
		top := m.DiscardPile[len(m.DiscardPile)-1]
		if bot.IsDiscardCardUseful(top, p.Hand, m.Table) {
			source = DrawFromDiscard
		}
	}
	if _, err := m.Draw(p.ID, source); err != nil {
		if !errors.Is(err, ErrEmptyPile) || source == DrawFromDiscard {
			return false
		}
		if _, err := m.Draw(p.ID, DrawFromDiscard); err != nil {
			return false
		}
	}

	// Full-table rearrangement first: it is the only move that can unlock
	// cards no single addition could place.
	if r, ok := bot.TryRearrangement(m.Table, p.Hand); ok {
		proposed := make([][]models.CardID, len(r.Melds))
		for i, group := range r.Melds {
			proposed[i] = make([]models.CardID, len(group))
			for j, c := range group {
				proposed[i][j] = c.ID
			}
		}
		_ = m.RearrangeTable(p.ID, proposed, r.FromHand)
	}

	// Opportunistic single-card additions to existing melds.
	m.botExtendMelds(p)

	// New melds from hand, while a spare card remains.
	for _, candidate := range bot.FindPossibleMelds(p.Hand) {
		if len(p.Hand)-len(candidate) < 1 {
			continue
		}
		ids := make([]models.CardID, len(candidate))
		for i, c := range candidate {
			ids[i] = c.ID
		}
		if _, err := m.PlayMeld(p.ID, ids); err == nil {
			m.botExtendMelds(p)
		}
	}

	if len(p.Hand) == 0 {
		return m.EndTurn(p.ID) == nil
	}

	if best := bot.FindBestDiscard(p.Hand, m.Table); best != nil {
		return m.Discard(p.ID, best.ID) == nil
	}
	return false
}

// botExtendMelds repeatedly splices single hand cards onto table melds until
// no card fits or only one card remains.
// Assumes lock is held.
func (m *Match) botExtendMelds(p *models.Player) {
	for len(p.Hand) > 1 {
		extended := false
		for _, c := range p.Hand {
			for _, tm := range m.Table {
				if pos, ok := bot.CanAddToMeld(c, tm); ok {
					if err := m.AddToMeld(p.ID, c.ID, tm.ID, pos); err == nil {
						extended = true
					}
					break
				}
			}
			if extended {
				break
			}
		}
		if !extended {
			return
		}
	}
}
