// internal/bot/rearrange.go
package bot

import (
	"sort"

	"github.com/rummyhouse/rummy/internal/meld"
	"github.com/rummyhouse/rummy/internal/models"
)

// maxSearchDepth bounds the candidate-combination recursion. The search is
// best effort: it can miss a legal rearrangement that a deeper search would
// find, which is accepted in exchange for a hard cost ceiling.
const maxSearchDepth = 10

// Rearrangement is a table proposal the caller can feed straight into the
// match's rearrange operation.
type Rearrangement struct {
	Melds    [][]*models.Card
	FromHand []models.CardID
}

// TryRearrangement searches for a way to lay out every card currently on the
// table plus at least one hand card as a set of legal melds, leaving at least
// one card in hand. It enumerates candidate melds over the combined pool
// (maximal same-suit runs, rank sets of 3 and 4) and then backtracks over
// combinations of non-overlapping candidates, preferring arrangements that
// use more hand cards.
func TryRearrangement(table []*meld.Meld, hand []*models.Card) (*Rearrangement, bool) {
	required := make(map[models.CardID]bool)
	pool := []*models.Card{}
	for _, m := range table {
		for _, c := range m.Cards {
			required[c.ID] = true
			pool = append(pool, c)
		}
	}
	if len(required) == 0 {
		return nil, false
	}
	handIDs := make(map[models.CardID]bool, len(hand))
	for _, c := range hand {
		handIDs[c.ID] = true
		pool = append(pool, c)
	}
	if len(hand) < 2 {
		// Need one card to contribute and one to keep.
		return nil, false
	}

	cands := enumerateCandidates(pool, required)
	if len(cands) == 0 {
		return nil, false
	}

	s := &searcher{
		required: required,
		handIDs:  handIDs,
		cands:    cands,
		handMax:  len(hand) - 1,
	}
	s.search(0, make(map[models.CardID]bool), nil, 0)

	if s.best == nil {
		return nil, false
	}
	out := &Rearrangement{Melds: s.best}
	for _, group := range s.best {
		for _, c := range group {
			if handIDs[c.ID] {
				out.FromHand = append(out.FromHand, c.ID)
			}
		}
	}
	return out, true
}

// enumerateCandidates lists every meld the combined pool could form: maximal
// consecutive runs per suit (one card per value, table cards preferred so
// required coverage stays reachable) and per-rank sets of sizes 3 and 4.
func enumerateCandidates(pool []*models.Card, required map[models.CardID]bool) [][]*models.Card {
	var cands [][]*models.Card

	bySuit := make(map[string][]*models.Card)
	byRank := make(map[string][]*models.Card)
	for _, c := range pool {
		bySuit[c.Suit] = append(bySuit[c.Suit], c)
		byRank[c.Rank] = append(byRank[c.Rank], c)
	}

	for _, suit := range models.Suits {
		cards := bySuit[suit]
		if len(cards) < 3 {
			continue
		}
		// One representative per value, required cards first so runs cover
		// the table where possible.
		byValue := make(map[int]*models.Card)
		hasKing := false
		for _, c := range cards {
			if c.Rank == "K" {
				hasKing = true
			}
			if cur, ok := byValue[c.Value]; !ok || (!required[cur.ID] && required[c.ID]) {
				byValue[c.Value] = c
			}
		}
		cands = append(cands, suitRuns(byValue)...)

		// Second pass with the ace read high, so Q-K-A stretches are
		// reachable too.
		if ace, ok := byValue[1]; ok && hasKing {
			high := make(map[int]*models.Card, len(byValue))
			for v, c := range byValue {
				high[v] = c
			}
			delete(high, 1)
			high[14] = ace
			cands = append(cands, suitRuns(high)...)
		}
	}

	for _, rank := range models.Ranks {
		cards := byRank[rank]
		if len(cards) < 3 {
			continue
		}
		// Required cards first, then by suit for determinism.
		sort.Slice(cards, func(i, j int) bool {
			ri, rj := required[cards[i].ID], required[cards[j].ID]
			if ri != rj {
				return ri
			}
			return cards[i].ID < cards[j].ID
		})
		cands = append(cands, cards[:3])
		if len(cards) >= 4 {
			cands = append(cands, cards[:4])
		}
	}

	return cands
}

// suitRuns emits every maximal consecutive stretch of 3+ from a
// value-to-card mapping of a single suit.
func suitRuns(byValue map[int]*models.Card) [][]*models.Card {
	values := make([]int, 0, len(byValue))
	for v := range byValue {
		values = append(values, v)
	}
	if len(values) < 3 {
		return nil
	}
	sort.Ints(values)

	var runs [][]*models.Card
	run := []*models.Card{byValue[values[0]]}
	last := values[0]
	flush := func() {
		if len(run) >= 3 {
			runs = append(runs, run)
		}
	}
	for _, v := range values[1:] {
		if v == last+1 {
			run = append(run, byValue[v])
		} else {
			flush()
			run = []*models.Card{byValue[v]}
		}
		last = v
	}
	flush()
	return runs
}

type searcher struct {
	required map[models.CardID]bool
	handIDs  map[models.CardID]bool
	cands    [][]*models.Card
	handMax  int // at most len(hand)-1 hand cards may be consumed

	best         [][]*models.Card
	bestHandUsed int
}

// search walks candidate melds from idx onward, including each compatible
// candidate at most once. Depth counts included melds, capped at
// maxSearchDepth.
func (s *searcher) search(idx int, used map[models.CardID]bool, chosen [][]*models.Card, handUsed int) {
	s.consider(chosen, used, handUsed)
	if idx >= len(s.cands) || len(chosen) >= maxSearchDepth {
		return
	}
	for i := idx; i < len(s.cands); i++ {
		cand := s.cands[i]
		overlap := false
		candHand := 0
		for _, c := range cand {
			if used[c.ID] {
				overlap = true
				break
			}
			if s.handIDs[c.ID] {
				candHand++
			}
		}
		if overlap || handUsed+candHand > s.handMax {
			continue
		}
		for _, c := range cand {
			used[c.ID] = true
		}
		s.search(i+1, used, append(chosen, cand), handUsed+candHand)
		for _, c := range cand {
			delete(used, c.ID)
		}
	}
}

// consider records the arrangement if it is acceptable and better than the
// current best: all required table cards covered, at least one hand card
// used, and more hand cards than any previous acceptable arrangement.
func (s *searcher) consider(chosen [][]*models.Card, used map[models.CardID]bool, handUsed int) {
	if handUsed < 1 || handUsed > s.handMax {
		return
	}
	for id := range s.required {
		if !used[id] {
			return
		}
	}
	if s.best == nil || handUsed > s.bestHandUsed {
		s.best = make([][]*models.Card, len(chosen))
		copy(s.best, chosen)
		s.bestHandUsed = handUsed
	}
}
