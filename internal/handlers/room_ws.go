// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rummyhouse/rummy/internal/middleware"
	"github.com/rummyhouse/rummy/internal/room"
)

// RoomWSHandler runs the ephemeral in-memory room flow: join, ready up, tweak
// settings, then hand the roster to the match engine.
func RoomWSHandler(logger *logrus.Logger, s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		remoteAddr := r.RemoteAddr
		pathParts := strings.Split(strings.TrimPrefix(r.URL.Path, "/room/ws/"), "/")
		if len(pathParts) < 1 || pathParts[0] == "" {
			http.Error(w, "missing room_id", http.StatusBadRequest)
			return
		}
		roomID, err := uuid.Parse(pathParts[0])
		if err != nil {
			http.Error(w, "invalid room_id", http.StatusBadRequest)
			return
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"room"},
			OriginPatterns: []string{"*"}, // Adjust in production.
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != "room" {
			c.Close(BadSubprotocolError, "client must speak the room subprotocol")
			return
		}
		middleware.LogWebSocketConnect(logger, remoteAddr, r.URL.Path)

		userID, err := EnsureEphemeralUser(w, r)
		if err != nil {
			logger.Warnf("user authentication failed for room %s: %v", roomID, err)
			c.Close(websocket.StatusPolicyViolation, "authentication failed")
			return
		}

		rm, exists := s.Rooms.GetRoom(roomID)
		if !exists {
			c.Close(InvalidRoomIDError, "room does not exist")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		conn := &room.Connection{
			UserID:  userID,
			Cancel:  cancel,
			OutChan: make(chan map[string]interface{}, 10),
			IsHost:  rm.HostUserID == userID,
		}

		rm.Mu.Lock()
		if err := rm.AddConnection(userID, conn); err != nil {
			rm.Mu.Unlock()
			logger.Warnf("failed to join room %s: %v", roomID, err)
			c.Close(websocket.StatusPolicyViolation, fmt.Sprintf("join error: %v", err))
			cancel()
			return
		}
		rm.BroadcastJoin(userID)
		rm.Mu.Unlock()

		logger.Infof("user %v (%s) connected to room %v", userID, remoteAddr, roomID)

		go roomWritePump(ctx, c, conn, logger)
		roomReadPump(ctx, c, rm, conn, s, logger)

		rm.Mu.Lock()
		rm.RemoveUser(userID)
		rm.BroadcastLeave(userID)
		empty := len(rm.Connections) == 0
		rm.Mu.Unlock()
		middleware.LogWebSocketDisconnect(logger, remoteAddr, r.URL.Path, nil)
		if empty {
			s.Rooms.DeleteRoom(roomID)
			logger.Infof("room %v emptied and removed", roomID)
		}
	}
}

// roomReadPump handles incoming messages until the connection dies. The room
// lock is taken per message.
func roomReadPump(ctx context.Context, c *websocket.Conn, rm *room.Room, conn *room.Connection, s *Server, logger *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		typ, msg, err := c.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				logger.Infof("room %s: websocket closed normally for user %v", rm.ID, conn.UserID)
			} else if !strings.Contains(err.Error(), "context canceled") {
				logger.Warnf("room %s: read error for user %v: %v", rm.ID, conn.UserID, err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var packet map[string]interface{}
		if err := json.Unmarshal(msg, &packet); err != nil {
			logger.Warnf("room %s: invalid json from user %v: %v", rm.ID, conn.UserID, err)
			conn.WriteError("Invalid JSON format")
			continue
		}

		startCountdown := false
		startNow := false

		rm.Mu.Lock()
		if cur, ok := rm.Connections[conn.UserID]; !ok || cur != conn {
			rm.Mu.Unlock()
			continue // stale connection instance
		}
		handleRoomMessage(packet, rm, conn, logger, &startCountdown, &startNow)
		rm.Mu.Unlock()

		if startNow {
			launchMatch(s, rm, logger)
		} else if startCountdown {
			rm.Mu.Lock()
			rm.StartCountdown(10, func(roomID uuid.UUID) {
				logger.Infof("room %s: start countdown finished", roomID)
				launchMatch(s, rm, logger)
			})
			rm.Mu.Unlock()
		}
	}
}

// handleRoomMessage interprets one room action. Assumes the room lock is held.
func handleRoomMessage(packet map[string]interface{}, rm *room.Room, senderConn *room.Connection, logger *logrus.Logger, startCountdown, startNow *bool) {
	action, _ := packet["type"].(string)

	switch action {
	case "ready":
		rm.MarkUserReady(senderConn.UserID)
		if rm.Settings.AutoStart && rm.AreAllReady() && !rm.InMatch {
			*startCountdown = true
		}
	case "unready":
		rm.MarkUserUnready(senderConn.UserID)
	case "chat":
		msg, _ := packet["msg"].(string)
		if msg != "" {
			rm.BroadcastChat(senderConn.UserID, msg)
		}
	case "update_settings":
		if !senderConn.IsHost {
			senderConn.WriteError("Only the host can update settings")
			return
		}
		settingsData, ok := packet["settings"].(map[string]interface{})
		if !ok {
			senderConn.WriteError("Invalid payload for update_settings")
			return
		}
		if err := rm.Settings.Update(settingsData); err != nil {
			logger.Warnf("room %s: settings update rejected: %v", rm.ID, err)
			senderConn.WriteError(fmt.Sprintf("Failed to apply settings: %v", err))
			return
		}
		rm.BroadcastAll(map[string]interface{}{
			"type":     "settings_update",
			"settings": rm.Settings,
		})
	case "start":
		if !senderConn.IsHost {
			senderConn.WriteError("Only the host can force start")
			return
		}
		if rm.InMatch {
			senderConn.WriteError("Match already in progress")
			return
		}
		if !rm.AreAllReady() {
			senderConn.WriteError("Not all users are ready")
			return
		}
		rm.CancelCountdown()
		*startNow = true
	case "leave":
		senderConn.Cancel()
	default:
		logger.Warnf("room %s: unknown action '%s' from user %v", rm.ID, action, senderConn.UserID)
		senderConn.WriteError(fmt.Sprintf("Unknown action type: %s", action))
	}
}

// launchMatch transitions the room to playing: deal the match, announce it,
// and let any leading bot turns run before the first human connects.
func launchMatch(s *Server, rm *room.Room, logger *logrus.Logger) {
	rm.Mu.Lock()
	if rm.InMatch {
		rm.Mu.Unlock()
		return
	}
	m, err := s.NewMatchFromRoom(context.Background(), rm)
	if err != nil {
		logger.Errorf("room %s: failed to create match: %v", rm.ID, err)
		rm.BroadcastAll(map[string]interface{}{
			"type":    "error",
			"message": fmt.Sprintf("failed to start match: %v", err),
		})
		rm.Mu.Unlock()
		return
	}
	rm.BroadcastAll(map[string]interface{}{
		"type":     "match_start",
		"match_id": m.ID.String(),
	})
	rm.Mu.Unlock()

	m.Mu.Lock()
	m.Start()
	m.RunBotTurns()
	m.Mu.Unlock()
	logger.Infof("room %s: match %s started", rm.ID, m.ID)
}

// roomWritePump drains the connection's out channel onto the socket and keeps
// the connection alive with periodic pings.
func roomWritePump(ctx context.Context, c *websocket.Conn, conn *room.Connection, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-conn.OutChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warnf("room: failed to marshal outgoing msg for user %v: %v", conn.UserID, err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("room: failed to write to websocket for user %v: %v", conn.UserID, err)
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				logger.Warnf("room: ping failed for user %v, assuming disconnect", conn.UserID)
				return
			}
		}
	}
}
