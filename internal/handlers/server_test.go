// internal/handlers/server_test.go
package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rummyhouse/rummy/internal/room"
)

func roomConn(userID uuid.UUID) *room.Connection {
	return &room.Connection{
		UserID:  userID,
		Cancel:  func() {},
		OutChan: make(chan map[string]interface{}, 10),
	}
}

func TestRosterFollowsJoinOrder(t *testing.T) {
	s := NewServer()
	host, u2, u3 := uuid.New(), uuid.New(), uuid.New()
	rm := room.New(host)

	rm.Mu.Lock()
	defer rm.Mu.Unlock()
	require.NoError(t, rm.AddConnection(host, roomConn(host)))
	require.NoError(t, rm.AddConnection(u2, roomConn(u2)))
	require.NoError(t, rm.AddConnection(u3, roomConn(u3)))

	m, err := s.NewMatchFromRoom(context.Background(), rm)
	require.NoError(t, err)

	require.Len(t, m.Players, 3)
	assert.Equal(t, host, m.Players[0].ID)
	assert.Equal(t, u2, m.Players[1].ID)
	assert.Equal(t, u3, m.Players[2].ID)
	assert.True(t, rm.InMatch)
}

func TestRoomSummaryMarshalsLiveRooms(t *testing.T) {
	rm := room.New(uuid.New())
	uid := uuid.New()

	rm.Mu.Lock()
	require.NoError(t, rm.AddConnection(uid, roomConn(uid)))
	rm.MarkUserReady(uid)
	out := summarizeRoom(rm)
	rm.Mu.Unlock()

	// The live room carries channels and cancel funcs; the summary must not.
	data, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), rm.Code)
	assert.Equal(t, 1, out.Players)
	assert.True(t, out.ReadyMap[uid.String()])
}
