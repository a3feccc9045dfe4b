package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbassett/roomrelay/internal/testutil"
	"github.com/pbassett/roomrelay/internal/types"
)

func drainFrames(c *Client) []Frame {
	var frames []Frame
	for {
		select {
		case f := <-c.send:
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func TestRouter_publishToRoomScopesDelivery(t *testing.T) {
	logger := testutil.TestLogger(t)
	reg := NewRegistry(logger)
	router := NewRouter(logger, reg)

	inRoom, other, unbound := testClient(1), testClient(2), testClient(3)
	for _, c := range []*Client{inRoom, other, unbound} {
		reg.Register(c)
	}
	reg.Bind(inRoom, "room-a")
	reg.Bind(other, "room-b")

	router.PublishToRoom("room-a", NewRoomError("boom", "room-a"), nil)

	require.Len(t, drainFrames(inRoom), 1)
	assert.Empty(t, drainFrames(other), "frames never cross rooms")
	assert.Empty(t, drainFrames(unbound))
}

func TestRouter_publishToRoomExceptSkipsSender(t *testing.T) {
	logger := testutil.TestLogger(t)
	reg := NewRegistry(logger)
	router := NewRouter(logger, reg)

	sender, peer := testClient(1), testClient(2)
	reg.Register(sender)
	reg.Register(peer)
	reg.Bind(sender, "room-a")
	reg.Bind(peer, "room-a")

	router.PublishToRoomExcept("room-a", NewMemberJoined("room-a", sender.user.Id, sender.user.Username), sender)

	assert.Empty(t, drainFrames(sender))
	assert.Len(t, drainFrames(peer), 1)
}

func TestRouter_publishAppliesRoleFilter(t *testing.T) {
	logger := testutil.TestLogger(t)
	reg := NewRegistry(logger)
	router := NewRouter(logger, reg)

	operator := testClient(1)
	operator.user.Role = types.RoleOperator
	guest := testClient(2)
	reg.Register(operator)
	reg.Register(guest)

	router.Publish(NewRoomDeleted("room-a"), OperatorsOnly)

	assert.Len(t, drainFrames(operator), 1)
	assert.Empty(t, drainFrames(guest))
}

func TestRouter_fullQueueDoesNotBlockOthers(t *testing.T) {
	logger := testutil.TestLogger(t)
	reg := NewRegistry(logger)
	router := NewRouter(logger, reg)

	full := testClient(1)
	full.send = make(chan Frame) // zero-capacity queue is always full
	healthy := testClient(2)
	reg.Register(full)
	reg.Register(healthy)
	reg.Bind(full, "room-a")
	reg.Bind(healthy, "room-a")

	router.PublishToRoom("room-a", NewRoomError("boom", "room-a"), nil)

	assert.Len(t, drainFrames(healthy), 1, "a slow connection must not starve the rest")
}
