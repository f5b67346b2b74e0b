// internal/handlers/server.go
package handlers

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/rummyhouse/rummy/internal/database"
	"github.com/rummyhouse/rummy/internal/game"
	"github.com/rummyhouse/rummy/internal/models"
	"github.com/rummyhouse/rummy/internal/room"
)

// Server is the top-level handle shared by every HTTP and WebSocket handler:
// the live match store and the ephemeral room store.
type Server struct {
	Matches *game.MatchStore
	Rooms   *room.Store
	Logf    func(f string, v ...interface{})
}

func NewServer() *Server {
	return &Server{
		Matches: game.NewMatchStore(),
		Rooms:   room.NewStore(),
		Logf:    log.Printf,
	}
}

// NewMatchFromRoom creates and starts a match for the room's connected users,
// padding the roster with bots when BotFill asks for more seats. The caller
// must hold the room lock.
func (s *Server) NewMatchFromRoom(ctx context.Context, r *room.Room) (*game.Match, error) {
	// Seats follow join order; the engine treats roster order as turn order.
	var roster []*models.Player
	for _, userID := range r.JoinOrder {
		if _, live := r.Connections[userID]; !live {
			continue
		}
		u := &models.User{ID: userID, Username: "Guest", IsEphemeral: true}
		if database.DB != nil {
			if dbUser, err := database.GetUserByID(ctx, userID); err == nil {
				u = dbUser
			}
			// A dropped lookup never blocks the table: they stay seated as a guest.
		}
		roster = append(roster, &models.Player{
			ID:        userID,
			Name:      u.Username,
			Hand:      []*models.Card{},
			Connected: true,
			User:      u,
		})
	}
	for i := len(roster); i < r.Settings.BotFill; i++ {
		roster = append(roster, models.NewBotPlayer(fmt.Sprintf("Bot %d", i+1)))
	}
	if len(roster) < 2 {
		return nil, fmt.Errorf("room %s needs at least 2 seats to start", r.Code)
	}

	m, err := game.NewMatch(r.ID, r.Code, roster, r.Settings)
	if err != nil {
		return nil, err
	}
	m.OnMatchEnd = s.makeOnMatchEnd(m)

	s.Matches.AddMatch(m)
	r.MatchCreated = true
	r.MatchID = m.ID
	r.InMatch = true
	return m, nil
}

// makeOnMatchEnd returns the end-of-match callback: persist the score sheet
// and final table snapshot, push results back to the room, reset ready states
// and drop the match from the store.
func (s *Server) makeOnMatchEnd(m *game.Match) game.OnMatchEndFunc {
	return func(roomID uuid.UUID, rec *game.WinnerRecord) {
		// The callback fires with the match lock held, so the snapshot is
		// taken here and the slow work happens on its own goroutine.
		snapshot := m.FinalSnapshot()
		go func() {
			rows := make([]database.MatchResultRow, len(rec.Results))
			for i, res := range rec.Results {
				rows[i] = database.MatchResultRow{
					PlayerID: res.PlayerID,
					Score:    res.Points,
					DidWin:   res.Winner,
				}
			}
			if database.DB != nil {
				if err := database.RecordMatchResults(context.Background(), m.ID, rows); err != nil {
					s.Logf("failed to persist results for match %s: %v", m.ID, err)
				}
				if err := database.StoreFinalMatchStateInDB(context.Background(), m.ID, snapshot); err != nil {
					s.Logf("failed to store final state for match %s: %v", m.ID, err)
				}
			}

			r, exists := s.Rooms.GetRoom(roomID)
			if exists {
				r.Mu.Lock()
				r.InMatch = false
				r.MatchCreated = false
				r.MatchID = uuid.Nil
				for uid := range r.Connections {
					r.ReadyStates[uid] = false
				}
				scores := map[string]int{}
				for _, res := range rec.Results {
					scores[res.PlayerID.String()] = res.Points
				}
				r.BroadcastAll(map[string]interface{}{
					"type":      "match_results",
					"winner":    rec.PlayerID.String(),
					"scores":    scores,
					"ready_map": r.ReadyStates,
				})
				r.Mu.Unlock()
			}

			s.Matches.DeleteMatch(m.ID)
			s.Logf("match %s finished, winner %s", m.ID, rec.PlayerID)
		}()
	}
}
