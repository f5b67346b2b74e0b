// internal/handlers/room.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/rummyhouse/rummy/internal/auth"
	"github.com/rummyhouse/rummy/internal/models"
	"github.com/rummyhouse/rummy/internal/room"
)

type createRoomRequest struct {
	Settings map[string]interface{} `json:"settings"`
}

// roomSummary is the JSON shape handed to HTTP clients. Rooms themselves hold
// live connections, channels and cancel funcs that must never hit the encoder.
type roomSummary struct {
	ID         uuid.UUID           `json:"id"`
	Code       string              `json:"code"`
	HostUserID uuid.UUID           `json:"hostUserID"`
	InMatch    bool                `json:"inMatch"`
	Players    int                 `json:"players"`
	ReadyMap   map[string]bool     `json:"readyMap"`
	Settings   models.RoomSettings `json:"settings"`
}

// summarizeRoom builds the client-facing shape. Caller must hold the room lock.
func summarizeRoom(rm *room.Room) roomSummary {
	ready := make(map[string]bool, len(rm.ReadyStates))
	for uid, isReady := range rm.ReadyStates {
		ready[uid.String()] = isReady
	}
	return roomSummary{
		ID:         rm.ID,
		Code:       rm.Code,
		HostUserID: rm.HostUserID,
		InMatch:    rm.InMatch,
		Players:    len(rm.Connections),
		ReadyMap:   ready,
		Settings:   rm.Settings,
	}
}

// CreateRoomHandler creates an ephemeral in-memory room owned by the caller
// and returns it, join code included.
func CreateRoomHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie := r.Header.Get("Cookie")
		if !strings.Contains(cookie, "auth_token=") {
			http.Error(w, "missing auth_token", http.StatusUnauthorized)
			return
		}
		token := extractCookieToken(cookie, "auth_token")

		userIDStr, err := auth.AuthenticateJWT(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			http.Error(w, "invalid user id format in token", http.StatusBadRequest)
			return
		}

		rm := room.New(userID)

		var req createRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
			http.Error(w, "bad room request payload", http.StatusBadRequest)
			return
		}
		if req.Settings != nil {
			if err := rm.Settings.Update(req.Settings); err != nil {
				http.Error(w, "invalid room settings: "+err.Error(), http.StatusBadRequest)
				return
			}
		}

		s.Rooms.AddRoom(rm)

		rm.Mu.Lock()
		out := summarizeRoom(rm)
		rm.Mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

// ListRoomsHandler returns summaries of the in-memory rooms, mainly for
// debugging.
func ListRoomsHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie := r.Header.Get("Cookie")
		if !strings.Contains(cookie, "auth_token=") {
			http.Error(w, "missing auth_token", http.StatusUnauthorized)
			return
		}
		token := extractTokenFromCookie(cookie)
		if _, err := auth.AuthenticateJWT(token); err != nil {
			http.Error(w, "invalid token", http.StatusForbidden)
			return
		}

		rooms := s.Rooms.ListRooms()
		out := make([]roomSummary, 0, len(rooms))
		for _, rm := range rooms {
			rm.Mu.Lock()
			out = append(out, summarizeRoom(rm))
			rm.Mu.Unlock()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

// ResolveRoomCodeHandler maps a spoken join code onto the room id, so clients
// can open the room WebSocket. Path: /room/code/{code}
func ResolveRoomCodeHandler(s *Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.TrimPrefix(r.URL.Path, "/room/code/")
		if code == "" {
			http.Error(w, "missing room code", http.StatusBadRequest)
			return
		}
		rm, ok := s.Rooms.GetRoomByCode(code)
		if !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"room_id": rm.ID.String(),
			"code":    rm.Code,
		})
	}
}
