// internal/handlers/match_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rummyhouse/rummy/internal/game"
	"github.com/rummyhouse/rummy/internal/meld"
	"github.com/rummyhouse/rummy/internal/middleware"
	"github.com/rummyhouse/rummy/internal/models"
)

// MatchMessage is the envelope for every incoming WebSocket message during a
// match. Which fields matter depends on Type.
type MatchMessage struct {
	Type string `json:"type"`

	// Source selects the draw pile for "draw" ("deck" or "discard").
	Source string `json:"source,omitempty"`

	// CardID names the single card for "discard" and "add_to_meld".
	CardID string `json:"cardId,omitempty"`

	// CardIDs names the hand cards for "play_meld".
	CardIDs []string `json:"cardIds,omitempty"`

	// MeldID and Position target an existing meld for "add_to_meld".
	MeldID   string `json:"meldId,omitempty"`
	Position string `json:"position,omitempty"`

	// Melds and FromHand describe the proposed table for "rearrange".
	Melds    [][]string `json:"melds,omitempty"`
	FromHand []string   `json:"fromHand,omitempty"`
}

// MatchWSHandler upgrades the HTTP connection to WebSocket for a specific
// match. It authenticates the user, verifies they hold a seat, wires the
// broadcast callbacks, and runs the read loop until the connection dies.
func MatchWSHandler(logger *logrus.Logger, s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/match/ws/"), "/")
		if len(pathParts) < 1 || pathParts[0] == "" {
			http.Error(w, "missing match_id in path (/match/ws/{match_id})", http.StatusBadRequest)
			return
		}
		matchID, err := uuid.Parse(pathParts[0])
		if err != nil {
			http.Error(w, "invalid match_id format", http.StatusBadRequest)
			return
		}

		m, ok := s.Matches.GetMatch(matchID)
		if !ok {
			http.Error(w, "match not found", http.StatusNotFound)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"match"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("websocket accept error for match %s: %v", matchID, err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler exit")

		if c.Subprotocol() != "match" {
			c.Close(BadSubprotocolError, "client must speak the match subprotocol")
			return
		}
		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)

		userID, err := EnsureEphemeralUser(w, r)
		if err != nil {
			logger.Warnf("user authentication failed for match %s: %v", matchID, err)
			c.Close(websocket.StatusPolicyViolation, "authentication failed")
			return
		}

		// Each connection gets a fresh session id; the engine remaps it onto
		// the player's stable identity.
		sessionID := uuid.New()
		oldSessionID := uuid.Nil
		if prev := r.URL.Query().Get("session"); prev != "" {
			if parsed, perr := uuid.Parse(prev); perr == nil {
				oldSessionID = parsed
			}
		}

		m.Mu.Lock()
		if m.BroadcastFn == nil {
			m.BroadcastFn = createBroadcastFunc(m, logger)
		}
		if m.BroadcastToPlayerFn == nil {
			m.BroadcastToPlayerFn = createBroadcastToPlayerFunc(m, logger)
		}
		_, err = m.HandleReconnect(userID, sessionID, oldSessionID, c)
		m.Mu.Unlock()
		if err != nil {
			logger.Warnf("user %s holds no seat in match %s", userID, matchID)
			c.Close(websocket.StatusPolicyViolation, "you are not a player in this match")
			return
		}
		logger.Infof("user %s connected to match %s from %s", userID, matchID, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		readMatchMessages(ctx, c, m, userID, logger)

		m.Mu.Lock()
		m.HandleDisconnect(userID)
		m.Mu.Unlock()
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, nil)
	}
}

// createBroadcastFunc returns a function suitable for Match.BroadcastFn. It is
// called with the match lock held, so the write itself happens on a separate
// goroutine against a snapshot of the connected players.
func createBroadcastFunc(m *game.Match, logger *logrus.Logger) func(ev game.Event) {
	return func(ev game.Event) {
		playersToSend := []*models.Player{}
		for _, p := range m.Players {
			if p.Connected && p.Conn != nil {
				playersToSend = append(playersToSend, p)
			}
		}

		msgBytes, err := json.Marshal(ev)
		if err != nil {
			logger.Errorf("failed to marshal broadcast event (%s) for match %s: %v", ev.Type, m.ID, err)
			return
		}

		go func(players []*models.Player, data []byte, matchID uuid.UUID) {
			for _, pl := range players {
				if pl.Conn == nil {
					continue
				}
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				err := pl.Conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					logger.Warnf("failed to write broadcast to player %s in match %s: %v", pl.ID, matchID, err)
				}
			}
		}(playersToSend, msgBytes, m.ID)
	}
}

// createBroadcastToPlayerFunc returns a function suitable for
// Match.BroadcastToPlayerFn. Also called with the match lock held.
func createBroadcastToPlayerFunc(m *game.Match, logger *logrus.Logger) func(targetPlayerID uuid.UUID, ev game.Event) {
	return func(targetPlayerID uuid.UUID, ev game.Event) {
		var targetConn *websocket.Conn
		for _, pl := range m.Players {
			if pl.ID == targetPlayerID {
				if pl.Connected && pl.Conn != nil {
					targetConn = pl.Conn
				}
				break
			}
		}
		if targetConn == nil {
			return
		}

		msgBytes, err := json.Marshal(ev)
		if err != nil {
			logger.Errorf("failed to marshal private event (%s) for player %s in match %s: %v", ev.Type, targetPlayerID, m.ID, err)
			return
		}
		go func(conn *websocket.Conn, data []byte) {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				logger.Warnf("failed to write private message to player %s in match %s: %v", targetPlayerID, m.ID, err)
			}
		}(targetConn, msgBytes)
	}
}

// readMatchMessages reads client messages, routes them into the state machine
// under the match lock, and reports rule rejections back to the sender. Bots
// take their chained turns after every accepted action.
func readMatchMessages(ctx context.Context, c *websocket.Conn, m *game.Match, userID uuid.UUID, logger *logrus.Logger) {
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("websocket closed normally for user %s in match %s", userID, m.ID)
			} else if strings.Contains(err.Error(), "context canceled") {
				logger.Infof("websocket context canceled for user %s in match %s", userID, m.ID)
			} else {
				logger.Warnf("read error for user %s in match %s: %v (status %d)", userID, m.ID, err, status)
			}
			return
		}

		if msgType != websocket.MessageText {
			logger.Warnf("ignoring non-text message type %d from user %s in match %s", msgType, userID, m.ID)
			continue
		}

		var msg MatchMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("invalid json from user %s in match %s: %v", userID, m.ID, err)
			sendWsError(ctx, c, "Invalid JSON format.")
			continue
		}

		if msg.Type == "ping" {
			sendWsMessage(ctx, c, map[string]string{"type": "pong"})
			continue
		}

		m.Mu.Lock()
		actionErr := dispatchMatchAction(m, userID, &msg)
		if actionErr == nil {
			m.RunBotTurns()
		}
		m.Mu.Unlock()

		if actionErr != nil {
			logger.Debugf("rejected %s from user %s in match %s: %v", msg.Type, userID, m.ID, actionErr)
			sendRuleError(ctx, c, actionErr)
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// dispatchMatchAction maps one wire message onto the matching state machine
// operation. Assumes the match lock is held.
func dispatchMatchAction(m *game.Match, userID uuid.UUID, msg *MatchMessage) error {
	switch msg.Type {
	case "draw":
		source := game.DrawFromStock
		if msg.Source == string(game.DrawFromDiscard) {
			source = game.DrawFromDiscard
		}
		_, err := m.Draw(userID, source)
		return err

	case "play_meld":
		_, err := m.PlayMeld(userID, toCardIDs(msg.CardIDs))
		return err

	case "add_to_meld":
		meldID, err := uuid.Parse(msg.MeldID)
		if err != nil {
			return game.ErrMeldNotFound
		}
		pos := meld.PositionEnd
		if msg.Position == string(meld.PositionStart) {
			pos = meld.PositionStart
		}
		return m.AddToMeld(userID, models.CardID(msg.CardID), meldID, pos)

	case "rearrange":
		proposed := make([][]models.CardID, len(msg.Melds))
		for i, group := range msg.Melds {
			proposed[i] = toCardIDs(group)
		}
		return m.RearrangeTable(userID, proposed, toCardIDs(msg.FromHand))

	case "discard":
		return m.Discard(userID, models.CardID(msg.CardID))

	case "end_turn":
		return m.EndTurn(userID)

	default:
		return &game.RuleError{Code: "unknown_action", Message: fmt.Sprintf("unknown action type: %s", msg.Type)}
	}
}

func toCardIDs(ids []string) []models.CardID {
	out := make([]models.CardID, len(ids))
	for i, id := range ids {
		out[i] = models.CardID(id)
	}
	return out
}

// sendRuleError reports a rejected action back to the acting client, keeping
// the stable error code when the rejection came from the rule engine.
func sendRuleError(ctx context.Context, c *websocket.Conn, err error) {
	if re, ok := err.(*game.RuleError); ok {
		sendWsMessage(ctx, c, map[string]interface{}{
			"type":    "error",
			"code":    re.Code,
			"message": re.Message,
		})
		return
	}
	sendWsError(ctx, c, err.Error())
}

// sendWsMessage marshals a message and sends it to the WebSocket client with a
// write timeout.
func sendWsMessage(ctx context.Context, c *websocket.Conn, message interface{}) {
	if c == nil {
		log.Println("attempted to send WebSocket message on nil connection")
		return
	}
	msgBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("error marshaling WebSocket message: %v", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Write(writeCtx, websocket.MessageText, msgBytes); err != nil {
		status := websocket.CloseStatus(err)
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
			log.Printf("error writing WebSocket message: %v (status %d)", err, status)
		}
	}
}

// sendWsError sends a structured error message to the client.
func sendWsError(ctx context.Context, c *websocket.Conn, errorMsg string) {
	sendWsMessage(ctx, c, map[string]interface{}{
		"type":    "error",
		"message": errorMsg,
	})
}
