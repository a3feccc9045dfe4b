package server

import (
	"fmt"
	"log"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbassett/roomrelay/internal/testutil"
	"github.com/pbassett/roomrelay/internal/types"
)

func testClient(id int) *Client {
	return &Client{
		id:   fmt.Sprintf("conn-%d", id),
		log:  log.New(os.Stdout, "[test] ", log.LstdFlags),
		user: types.User{Id: id, Username: fmt.Sprintf("user%d", id), Role: types.RoleGuest},
		send: make(chan Frame, 8),
	}
}

func TestRegistry_bindMovesBetweenRooms(t *testing.T) {
	reg := NewRegistry(testutil.TestLogger(t))
	c := testClient(1)
	reg.Register(c)

	prev, ok := reg.Bind(c, "room-a")
	require.True(t, ok)
	assert.Empty(t, prev)

	roomId, bound := reg.RoomOf(c)
	require.True(t, bound)
	assert.Equal(t, "room-a", roomId)

	prev, ok = reg.Bind(c, "room-b")
	require.True(t, ok)
	assert.Equal(t, "room-a", prev, "rebinding reports the previous room")

	assert.Empty(t, reg.ClientsInRoom("room-a"), "a connection occupies at most one room")
	assert.Len(t, reg.ClientsInRoom("room-b"), 1)
}

func TestRegistry_bindUnregisteredConnection(t *testing.T) {
	reg := NewRegistry(testutil.TestLogger(t))
	c := testClient(1)

	_, ok := reg.Bind(c, "room-a")
	assert.False(t, ok)
	assert.Empty(t, reg.ClientsInRoom("room-a"))
}

func TestRegistry_unbindIsIdempotent(t *testing.T) {
	reg := NewRegistry(testutil.TestLogger(t))
	c := testClient(1)
	reg.Register(c)
	reg.Bind(c, "room-a")

	roomId, ok := reg.Unbind(c)
	require.True(t, ok)
	assert.Equal(t, "room-a", roomId)

	_, ok = reg.Unbind(c)
	assert.False(t, ok, "second unbind is a no-op")

	assert.Len(t, reg.Clients(), 1, "unbind keeps the connection registered")
}

func TestRegistry_removeErasesAllState(t *testing.T) {
	reg := NewRegistry(testutil.TestLogger(t))
	c1, c2 := testClient(1), testClient(2)
	reg.Register(c1)
	reg.Register(c2)
	reg.Bind(c1, "room-a")
	reg.Bind(c2, "room-a")

	roomId, ok := reg.Remove(c1)
	require.True(t, ok)
	assert.Equal(t, "room-a", roomId)

	assert.Len(t, reg.Clients(), 1)
	assert.Len(t, reg.ClientsInRoom("room-a"), 1)

	_, ok = reg.RoomOf(c1)
	assert.False(t, ok)

	_, ok = reg.Remove(c1)
	assert.False(t, ok, "second remove is a no-op")
}

func TestRegistry_removeUnboundConnection(t *testing.T) {
	reg := NewRegistry(testutil.TestLogger(t))
	c := testClient(1)
	reg.Register(c)

	roomId, ok := reg.Remove(c)
	assert.False(t, ok)
	assert.Empty(t, roomId)
	assert.Empty(t, reg.Clients())
}

func TestRegistry_usersOfDeduplicates(t *testing.T) {
	reg := NewRegistry(testutil.TestLogger(t))

	// two connections for the same account, one for another
	c1 := testClient(1)
	c2 := &Client{id: "conn-1b", user: c1.user, send: make(chan Frame, 8)}
	c3 := testClient(2)
	for _, c := range []*Client{c1, c2, c3} {
		reg.Register(c)
		reg.Bind(c, "room-a")
	}

	users := reg.UsersOf("room-a")
	assert.Len(t, users, 2, "the same account with two connections appears once")
}
